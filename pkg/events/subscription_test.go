package events

import (
	"sync"
	"testing"
	"time"

	"github.com/coboltblu/exchange/pkg/types"
)

func receive(t *testing.T, s *Subscription, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-s.C():
			if !ok {
				t.Fatalf("subscription closed after %d events", len(out))
			}
			out = append(out, e)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestSubscribeReplaysHistory(t *testing.T) {
	l := NewLog(nil, nil)
	emitTransfers(t, l, 3)

	s := l.Subscribe(2)
	defer s.Close()
	emitTransfers(t, l, 2)

	got := receive(t, s, 4)
	for i, e := range got {
		if e.Seq != uint64(i+2) {
			t.Errorf("event %d: seq %d, want %d", i, e.Seq, i+2)
		}
	}
}

func TestSubscribeLiveOnly(t *testing.T) {
	l := NewLog(nil, nil)
	emitTransfers(t, l, 3)

	s := l.Subscribe(0)
	defer s.Close()
	emitTransfers(t, l, 1)

	got := receive(t, s, 1)
	if got[0].Seq != 4 {
		t.Errorf("first live event seq %d, want 4", got[0].Seq)
	}
}

// A subscriber that never reads must not stall writers, and must still see
// every event in order once it starts reading.
func TestSlowSubscriberNeverDropsOrBlocks(t *testing.T) {
	l := NewLog(nil, nil)
	s := l.Subscribe(1)
	defer s.Close()

	const total = subscriptionBuffer * 4
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				if _, err := l.Update(func(tx *Tx) error {
					tx.Emit(Transfer(ledgerAddr, alice, bob, types.NewAmount(1)))
					return nil
				}); err != nil {
					t.Errorf("update: %v", err)
					return
				}
			}
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writers blocked by idle subscriber")
	}

	got := receive(t, s, total)
	for i, e := range got {
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d: seq %d", i, e.Seq)
		}
	}
}

func TestCloseLogEndsSubscription(t *testing.T) {
	l := NewLog(nil, nil)
	emitTransfers(t, l, 2)
	s := l.Subscribe(1)
	l.Close()

	receive(t, s, 2)
	select {
	case _, ok := <-s.C():
		if ok {
			t.Fatal("unexpected extra event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}
	s.Close()
}
