package feed

import (
	"sync"
	"testing"
)

type discardConn struct{}

func (discardConn) WriteMessage(int, []byte) error { return nil }
func (discardConn) Close() error                   { return nil }

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	a := NewSession(discardConn{}, 4)
	b := NewSession(discardConn{}, 4)
	defer a.Close()
	defer b.Close()

	r.Register(a)
	r.Register(b)
	r.Register(a) // idempotent
	if got := r.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	r.Unregister(a)
	r.Unregister(a) // absent: no-op
	if got := r.Len(); got != 1 {
		t.Fatalf("Len() after unregister = %d, want 1", got)
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0] != b {
		t.Fatalf("Snapshot() = %v, want [b]", snap)
	}
}

func TestRegistrySnapshotDuringConcurrentMutation(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := NewSession(discardConn{}, 1)
				r.Register(s)
				r.Snapshot()
				r.Unregister(s)
				s.Close()
			}
		}()
	}
	wg.Wait()

	if got := r.Len(); got != 0 {
		t.Fatalf("Len() after churn = %d, want 0", got)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := NewSession(discardConn{}, 4)
	b := NewSession(discardConn{}, 4)
	r.Register(a)
	r.Register(b)

	r.CloseAll()

	if got := r.Len(); got != 0 {
		t.Fatalf("Len() after CloseAll = %d, want 0", got)
	}
	if err := a.Send([]byte("x")); err != ErrSessionClosed {
		t.Fatalf("Send after CloseAll = %v, want ErrSessionClosed", err)
	}
}
