package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/wmcore/internal/infrastructure/logger"
)

func TestListenerSetStartIsIdempotent(t *testing.T) {
	ls := newListenerSet()
	id := uuid.New()
	starts := 0

	block := make(chan struct{})
	run := func(ctx context.Context) error {
		starts++
		<-block
		return nil
	}

	ls.start(context.Background(), id, run, logger.Default())
	ls.start(context.Background(), id, run, logger.Default())

	require.Eventually(t, func() bool { return starts >= 1 }, time.Second, 10*time.Millisecond)
	require.True(t, ls.running(id))
	require.Equal(t, 1, starts)

	close(block)
}

func TestListenerSetStopCancelsContext(t *testing.T) {
	ls := newListenerSet()
	id := uuid.New()
	canceled := make(chan struct{})

	run := func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}

	ls.start(context.Background(), id, run, logger.Default())
	require.Eventually(t, func() bool { return ls.running(id) }, time.Second, 10*time.Millisecond)

	ls.stop(id)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the running listener")
	}
	require.False(t, ls.running(id))
}

func TestListenerSetRemovesEntryWhenRunExits(t *testing.T) {
	ls := newListenerSet()
	id := uuid.New()

	run := func(ctx context.Context) error { return errors.New("connection dropped") }
	ls.start(context.Background(), id, run, logger.Default())

	require.Eventually(t, func() bool { return !ls.running(id) }, time.Second, 10*time.Millisecond)
}

func TestListenerSetStopAllCancelsEverything(t *testing.T) {
	ls := newListenerSet()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	done := make(chan uuid.UUID, len(ids))

	for _, id := range ids {
		id := id
		ls.start(context.Background(), id, func(ctx context.Context) error {
			<-ctx.Done()
			done <- id
			return ctx.Err()
		}, logger.Default())
	}

	require.Eventually(t, func() bool { return len(ls.ids()) == len(ids) }, time.Second, 10*time.Millisecond)

	ls.stopAll()

	seen := map[uuid.UUID]bool{}
	for range ids {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("stopAll did not cancel every listener")
		}
	}
	require.Len(t, seen, len(ids))
}
