// Package wstrigger implements the outbound WebSocket trigger family (§4.7):
// dial an external WebSocket server, optionally send an initial message,
// and fire one job per inbound message that survives an optional gojq
// filter. The dial/reconnect/ping-pong idiom is grounded on the teacher's
// WebSocketClient (internal/application/observer/websocket_observer.go,
// the go/ tree's copy of this component) even though that file plays the
// opposite role — a server-side hub broadcasting out — because it is the
// only gorilla/websocket connection management this codebase shows; the
// jq filter idiom is grounded on pkg/executor/builtin/transform.go's "jq"
// transform branch (gojq.Parse/Compile/Run).
package wstrigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itchyny/gojq"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
	"github.com/smilemakc/wmcore/internal/queue"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	dialTimeout  = 10 * time.Second
)

// Firer pushes one job per message that passes the filter. Narrowed to this
// shape (rather than the concrete *queue.Queue) so Listener is testable
// without a database.
type Firer interface {
	Fire(ctx context.Context, payload any) error
}

// queueFirer adapts a *queue.Queue + fixed PushArgs template into a Firer.
type queueFirer struct {
	q       *queue.Queue
	record  *trigger.Record
	cfg     trigger.WebsocketConfig
}

func (f *queueFirer) Fire(ctx context.Context, payload any) error {
	j := (trigger.PushArgs{
		WorkspaceID:  "", // caller fills via NewQueueFirer
		RunnablePath: f.record.RunnablePath,
		IsFlow:       f.record.IsFlow,
		Args:         map[string]any{"event": map[string]any{"kind": "websocket", "payload": payload, "url": f.cfg.URL}},
		Caller: job.CallerIdentity{
			CreatedBy:      f.record.CreatedBy,
			PermissionedAs: f.record.CreatedBy,
		},
		TriggerKind: job.TriggerWebsocket,
		TriggerPath: f.record.Path,
	}).NewJob()
	j.WorkspaceID = f.record.WorkspaceID

	_, err := f.q.Push(ctx, j, queue.PushOptions{Level: queue.IsolatedRoot})
	return err
}

// NewQueueFirer builds the production Firer for one configured websocket trigger.
func NewQueueFirer(q *queue.Queue, record *trigger.Record, cfg trigger.WebsocketConfig) Firer {
	return &queueFirer{q: q, record: record, cfg: cfg}
}

// Listener dials one external WebSocket endpoint and fires jobs for inbound
// messages, reconnecting with backoff until its context is canceled.
type Listener struct {
	cfg   trigger.WebsocketConfig
	firer Firer
	query *gojq.Code

	dialer func(ctx context.Context, url string) (*websocket.Conn, error)
}

func New(cfg trigger.WebsocketConfig, firer Firer) (*Listener, error) {
	l := &Listener{cfg: cfg, firer: firer}

	if cfg.Filter != "" {
		parsed, err := gojq.Parse(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("parse websocket trigger filter: %w", err)
		}
		code, err := gojq.Compile(parsed)
		if err != nil {
			return nil, fmt.Errorf("compile websocket trigger filter: %w", err)
		}
		l.query = code
	}

	l.dialer = func(ctx context.Context, url string) (*websocket.Conn, error) {
		d := websocket.Dialer{HandshakeTimeout: dialTimeout}
		conn, _, err := d.DialContext(ctx, url, nil)
		return conn, err
	}

	return l, nil
}

// Run connects and processes messages until ctx is canceled, reconnecting
// with exponential backoff (capped at 30s) on any connection error.
func (l *Listener) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			backoff = time.Second
			continue
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	conn, err := l.dialer(ctx, l.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial websocket trigger endpoint: %w", err)
	}
	defer conn.Close()

	if l.cfg.InitialMsg != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(l.cfg.InitialMsg)); err != nil {
			return fmt.Errorf("send initial message: %w", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read websocket message: %w", err)
		}
		if err := l.handle(ctx, message); err != nil {
			return err
		}
	}
}

func (l *Listener) handle(ctx context.Context, message []byte) error {
	var payload any
	if err := json.Unmarshal(message, &payload); err != nil {
		payload = string(message)
	}

	if l.query != nil {
		iter := l.query.Run(payload)
		v, ok := iter.Next()
		if !ok {
			return nil // filter produced no output: message dropped
		}
		if err, ok := v.(error); ok {
			return fmt.Errorf("websocket trigger filter error: %w", err)
		}
		if b, ok := v.(bool); ok && !b {
			return nil // filter evaluated falsy: message dropped
		}
	}

	return l.firer.Fire(ctx, payload)
}
