package langhandler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/smilemakc/wmcore/internal/domain/job"
)

const streamMarker = "WM_STREAM:"

// SubprocessHandler runs a job by shelling out to a language-specific
// binary and reading its stdout/stderr over pipes. It stands in for the
// isolated-VM NativeTS handler described in §4.3: the pack carries no
// embeddable JS runtime, so the isolation boundary here is the OS process
// rather than a V8 heap limit.
type SubprocessHandler struct {
	// Command is the interpreter binary invoked with the job's materialized
	// source file as its sole argument (e.g. "deno run --allow-net").
	Command []string
	// MemoryLimitBytes becomes an rlimit on the child process, the
	// subprocess analogue of the spec's 128 MiB VM heap limit.
	MemoryLimitBytes int64
	ErrorDump        *ErrorDump
}

func NewSubprocessHandler(command []string, memoryLimitBytes int64, dump *ErrorDump) *SubprocessHandler {
	return &SubprocessHandler{Command: command, MemoryLimitBytes: memoryLimitBytes, ErrorDump: dump}
}

func (h *SubprocessHandler) Execute(ctx context.Context, req Request) (*Result, error) {
	if len(h.Command) == 0 {
		return nil, fmt.Errorf("langhandler: subprocess handler has no command configured")
	}

	sourcePath := filepath.Join(req.JobDir, "main")
	if err := os.WriteFile(sourcePath, []byte(req.Code), 0o600); err != nil {
		return nil, fmt.Errorf("langhandler: write source: %w", err)
	}

	argsPath := filepath.Join(req.JobDir, "args.json")
	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		return nil, fmt.Errorf("langhandler: marshal args: %w", err)
	}
	if err := os.WriteFile(argsPath, argsJSON, 0o600); err != nil {
		return nil, fmt.Errorf("langhandler: write args: %w", err)
	}

	args := append(append([]string{}, h.Command[1:]...), sourcePath, argsPath)
	cmd := exec.CommandContext(ctx, h.Command[0], args...)
	cmd.Dir = req.JobDir
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	applyMemoryLimit(cmd, h.MemoryLimitBytes)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("langhandler: stdout pipe: %w", err)
	}
	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("langhandler: start: %w", err)
	}

	done := make(chan struct{})
	var resultLine string
	usedStream := false

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, streamMarker) {
				usedStream = true
				if req.Stream != nil {
					req.Stream.Emit([]byte(strings.TrimPrefix(line, streamMarker)))
				}
				continue
			}
			if req.Logs != nil {
				req.Logs.Write(line)
			}
			resultLine = line
		}
		close(done)
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-req.CancelToken:
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, &job.ExecutionError{Name: "Canceled", Message: "job canceled during execution"}
	case err := <-waitErr:
		<-done
		if err != nil {
			dumpPath := h.dump(req.JobID, req.Code, stderrBuf.String())
			execErr := &job.ExecutionError{
				Name:    "ExecutionError",
				Message: firstLine(stderrBuf.String(), err.Error()),
				Stack:   stderrBuf.String(),
			}
			if dumpPath != "" {
				execErr.Stack += "\n(dumped to " + dumpPath + ")"
			}
			return nil, execErr
		}
	}

	if resultLine == "" {
		resultLine = "null"
	}
	return &Result{ResultJSON: []byte(resultLine), UsedStream: usedStream}, nil
}

func (h *SubprocessHandler) dump(jobID, code, stderr string) string {
	if h.ErrorDump == nil {
		return ""
	}
	path, err := h.ErrorDump.Write(jobID, code, stderr)
	if err != nil {
		return ""
	}
	return path
}

func firstLine(s, fallback string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		if i > 0 {
			return s[:i]
		}
	} else if s != "" {
		return s
	}
	return fallback
}

// ErrorDump is a bounded directory of failing-job source dumps, evicted
// LRU-style by file modification time once it holds more than MaxFiles
// entries (§4.3).
type ErrorDump struct {
	Dir      string
	MaxFiles int
}

func NewErrorDump(dir string, maxFiles int) *ErrorDump {
	if maxFiles <= 0 {
		maxFiles = 100
	}
	return &ErrorDump{Dir: dir, MaxFiles: maxFiles}
}

// Write saves one failing job's source and stderr, evicting the oldest dump
// if the directory is at capacity.
func (d *ErrorDump) Write(jobID, code, stderr string) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o700); err != nil {
		return "", err
	}

	name := strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + jobID + ".txt"
	path := filepath.Join(d.Dir, name)
	content := "=== source ===\n" + code + "\n=== stderr ===\n" + stderr
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}

	if err := d.evictOverflow(); err != nil {
		return path, err
	}
	return path, nil
}

func (d *ErrorDump) evictOverflow() error {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return err
	}
	if len(entries) <= d.MaxFiles {
		return nil
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	for len(infos) > d.MaxFiles {
		oldestIdx := 0
		for i := range infos {
			if infos[i].modTime.Before(infos[oldestIdx].modTime) {
				oldestIdx = i
			}
		}
		_ = os.Remove(filepath.Join(d.Dir, infos[oldestIdx].name))
		infos = append(infos[:oldestIdx], infos[oldestIdx+1:]...)
	}
	return nil
}

// applyMemoryLimit sets an address-space rlimit on the child process as the
// subprocess analogue of the spec's 128 MiB VM heap limit.
func applyMemoryLimit(cmd *exec.Cmd, limitBytes int64) {
	if limitBytes <= 0 {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
}
