package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/smilemakc/wmcore/internal/domain/flow"
)

// mcpTool is one tool a remote MCP server advertises via tools/list.
type mcpTool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// mcpServerTool binds a discovered remote tool to the client that serves it.
type mcpServerTool struct {
	client *mcpClient
	name   string
}

// mcpClient speaks the MCP stdio JSON-RPC transport: newline-delimited
// JSON-RPC 2.0 requests written to the child process's stdin, responses
// read one line at a time from its stdout. No library in the pack wraps
// this protocol, so this client is hand-written; its process lifecycle
// (os/exec, dedicated stdin/stdout pipes, context-scoped cancellation)
// follows the same shape as langhandler.SubprocessHandler rather than any
// single cited file — that handler is this repository's only other
// os/exec-over-pipes integration and is the nearest precedent in the tree.
type mcpClient struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdout *bufio.Scanner
	mu     sync.Mutex
	nextID int64
}

func startMCPClient(ctx context.Context, server flow.MCPServer) (*mcpClient, error) {
	if server.Transport != "stdio" {
		return nil, fmt.Errorf("mcp transport %q is not implemented; only stdio is supported", server.Transport)
	}
	if server.Command == "" {
		return nil, fmt.Errorf("mcp server %q has no command configured", server.Name)
	}

	cmd := exec.CommandContext(ctx, server.Command, server.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", server.Name, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	c := &mcpClient{cmd: cmd, stdin: bufio.NewWriter(stdin), stdout: scanner}
	if _, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "wmcore", "version": "1"},
	}); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}
	return c, nil
}

type mcpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *mcpClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddInt64(&c.nextID, 1)
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := c.stdin.Write(append(raw, '\n')); err != nil {
		return nil, fmt.Errorf("write mcp request: %w", err)
	}
	if err := c.stdin.Flush(); err != nil {
		return nil, fmt.Errorf("flush mcp request: %w", err)
	}

	if !c.stdout.Scan() {
		if err := c.stdout.Err(); err != nil {
			return nil, fmt.Errorf("mcp server closed stdout: %w", err)
		}
		return nil, fmt.Errorf("mcp server closed stdout")
	}

	var resp mcpResponse
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode mcp response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp error: %s", resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *mcpClient) listTools(ctx context.Context) ([]mcpTool, error) {
	raw, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	out := make([]mcpTool, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		out = append(out, mcpTool{Name: t.Name, Description: t.Description, Schema: t.InputSchema})
	}
	return out, nil
}

func (c *mcpClient) callTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	if parsed.IsError {
		return nil, fmt.Errorf("mcp tool %s returned an error result", name)
	}
	var sb strings.Builder
	for _, part := range parsed.Content {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// mcpPool caches one client per server name for a Runner's lifetime. It
// does not evict idle clients; a long-running server process should wire
// its own Runner per worker process rather than sharing one across an
// unbounded number of distinct MCP server configs.
type mcpPool struct {
	mu      sync.Mutex
	clients map[string]*mcpClient
}

func newMCPPool() *mcpPool {
	return &mcpPool{clients: make(map[string]*mcpClient)}
}

func (p *mcpPool) get(ctx context.Context, server flow.MCPServer) (*mcpClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[server.Name]; ok {
		return c, nil
	}
	c, err := startMCPClient(ctx, server)
	if err != nil {
		return nil, err
	}
	p.clients[server.Name] = c
	return c, nil
}
