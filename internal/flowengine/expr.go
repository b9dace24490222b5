// Package flowengine implements the flow interpreter (§4.4): the transition
// rules over FlowModules (sequence, forloop, whileloop, branchone, branchall,
// AI-agent), retry/backoff, and suspend-point integration.
package flowengine

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprCache is a thread-safe LRU cache of compiled expr-lang programs, keyed
// by source text, the same shape as the teacher's condition cache: a doubly
// linked list for recency plus a map for O(1) lookup.
type exprCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	mu       sync.RWMutex
}

type exprCacheEntry struct {
	key     string
	program *vm.Program
}

func newExprCache(capacity int) *exprCache {
	if capacity <= 0 {
		capacity = 200
	}
	return &exprCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *exprCache) get(src string) (*vm.Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if el, ok := c.entries[src]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*exprCacheEntry).program, true
	}
	return nil, false
}

func (c *exprCache) put(src string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[src]; ok {
		c.order.MoveToFront(el)
		el.Value.(*exprCacheEntry).program = program
		return
	}
	el := c.order.PushFront(&exprCacheEntry{key: src, program: program})
	c.entries[src] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*exprCacheEntry).key)
		}
	}
}

// exprOptions returns the expr-lang compile options shared by every
// evaluation site: the flow environment type plus the hand-written
// resolve_path helper (§4.4's "resolve_path walks JSON objects; undefined
// paths return null"), since expr-lang's own member access panics/returns
// zero value rather than null for a dynamically-built path string.
func exprOptions(env map[string]any) []expr.Option {
	return []expr.Option{
		expr.Env(env),
		expr.Function("resolve_path", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("resolve_path(path, obj) takes exactly 2 arguments")
			}
			path, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("resolve_path: path must be a string")
			}
			return resolvePath(path, params[1]), nil
		}),
	}
}

// compileAndRun compiles src (caching the program) and evaluates it against
// env, returning the raw result. Used for Javascript InputTransforms and
// skip_if/branch predicates that may legitimately yield any JSON value.
func (c *exprCache) compileAndRun(src string, env map[string]any) (any, error) {
	program, ok := c.get(src)
	if !ok {
		var err error
		program, err = expr.Compile(src, exprOptions(env)...)
		if err != nil {
			return nil, fmt.Errorf("compile expression %q: %w", src, err)
		}
		c.put(src, program)
	}
	return expr.Run(program, env)
}

// evalBool evaluates src and coerces the result to a boolean using JSON
// truthiness (§4.4: "undefined paths return null, which is falsy"), rather
// than forcing expr.AsBool() at compile time — skip_if and branch predicates
// are allowed to reference paths that resolve to null on a given flow_input.
func (c *exprCache) evalBool(src string, env map[string]any) (bool, error) {
	if src == "" {
		return false, nil
	}
	v, err := c.compileAndRun(src, env)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// truthy applies JSON-style truthiness: false, nil, 0, "", and empty
// collections are falsy; everything else is truthy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// resolvePath walks a dotted path ("a.b.c") through nested maps and slices,
// returning nil the moment a segment is missing or the wrong shape instead
// of panicking — the spec's "undefined paths return null" rule.
func resolvePath(path string, root any) any {
	cur := root
	seg := ""
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			if seg == "" {
				continue
			}
			cur = step(cur, seg)
			if cur == nil {
				return nil
			}
			seg = ""
			continue
		}
		seg += string(path[i])
	}
	return cur
}

func step(cur any, seg string) any {
	switch v := cur.(type) {
	case map[string]any:
		return v[seg]
	case map[string]string:
		return v[seg]
	default:
		return nil
	}
}
