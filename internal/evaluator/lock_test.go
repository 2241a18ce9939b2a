package evaluator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPauseLockExcludesReadersWhileWriterHeld(t *testing.T) {
	l := newPauseLock()
	l.acquireWrite()

	acquired := make(chan struct{})
	go func() {
		l.acquireRead()
		close(acquired)
		l.releaseRead()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired while writer held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.releaseWrite()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after writer released")
	}
}

func TestPauseLockWriterWaitsForReaders(t *testing.T) {
	l := newPauseLock()
	l.acquireRead()

	writerDone := make(chan struct{})
	go func() {
		l.acquireWrite()
		close(writerDone)
		l.releaseWrite()
	}()

	select {
	case <-writerDone:
		t.Fatal("writer acquired while a reader held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	l.releaseRead()

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired after reader released")
	}
}

func TestPauseLockMultipleReaders(t *testing.T) {
	l := newPauseLock()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.acquireRead()
			time.Sleep(10 * time.Millisecond)
			l.releaseRead()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("readers did not run concurrently")
	}
	require.Equal(t, 0, l.readers)
}
