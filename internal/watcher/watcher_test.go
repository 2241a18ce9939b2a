package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soren-n/tickle/internal/logger"
)

func waitForEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event(-1)
	}
}

func TestSubscribeReceivesCreateAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, err := New(logger.Noop())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	events := make(chan Event, 8)
	require.NoError(t, w.Subscribe(path, func(e Event) { events <- e }))
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("bb"), 0o644))
	ev := waitForEvent(t, events, 2*time.Second)
	require.Contains(t, []Event{Created, Modified}, ev)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, err := New(logger.Noop())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	events := make(chan Event, 8)
	require.NoError(t, w.Subscribe(path, func(e Event) { events <- e }))
	w.Start()
	require.NoError(t, w.Unsubscribe(path))

	require.NoError(t, os.WriteFile(path, []byte("bb"), 0o644))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after unsubscribe: %v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSharedDirectoryWatchRefcounted(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	w, err := New(logger.Noop())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	require.NoError(t, w.Subscribe(a, func(Event) {}))
	require.NoError(t, w.Subscribe(b, func(Event) {}))
	require.Equal(t, 2, w.dirRefs[dir])

	require.NoError(t, w.Unsubscribe(a))
	require.Equal(t, 1, w.dirRefs[dir])
	require.NoError(t, w.Unsubscribe(b))
	require.NotContains(t, w.dirRefs, dir)
}
