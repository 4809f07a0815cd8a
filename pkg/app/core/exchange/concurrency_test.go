package exchange

import (
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/types"
)

func TestConcurrentFillsExactlyOneWins(t *testing.T) {
	f := newFixture(t, 10, true)
	f.fund(t, f.x, userA, 100)

	const fillers = 16
	users := make([]types.Identity, fillers)
	for i := range users {
		users[i] = common.BigToAddress(big.NewInt(int64(1000 + i)))
		f.fund(t, f.y, users[i], 100)
	}
	o, _, err := f.ex.MakeOrder(userA, tokenY, amt(100), tokenX, amt(100))
	if err != nil {
		t.Fatalf("make: %v", err)
	}

	var wins, notOpen atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, u := range users {
		wg.Add(1)
		go func(u types.Identity) {
			defer wg.Done()
			<-start
			_, _, err := f.ex.FillOrder(u, o.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, types.ErrOrderNotOpen):
				notOpen.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || notOpen.Load() != fillers-1 {
		t.Fatalf("wins=%d notOpen=%d", wins.Load(), notOpen.Load())
	}
	if got := f.custody(tokenX, feeAccount); got != 10 {
		t.Errorf("fee charged %d times worth, custody %d", got/10, got)
	}
	if err := f.ex.Audit(); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newFixture(t, 10, true)
	f.fund(t, f.x, userA, 10)

	const attempts = 25
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.ex.Withdraw(userA, tokenX, amt(1))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, types.ErrInsufficientCustodyBalance):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != 10 || short.Load() != attempts-10 {
		t.Fatalf("ok=%d short=%d", ok.Load(), short.Load())
	}
	if f.custody(tokenX, userA) != 0 || f.x.Balance(userA).Uint64() != 10 {
		t.Errorf("custody=%d wallet=%d", f.custody(tokenX, userA), f.x.Balance(userA).Uint64())
	}
}

// Readers run alongside writers without observing a torn fill.
func TestReadsDuringFills(t *testing.T) {
	f := newFixture(t, 0, true)
	f.fund(t, f.x, userA, 1000)
	f.fund(t, f.y, userB, 1000)

	var ids []uint64
	for i := 0; i < 50; i++ {
		o, _, err := f.ex.MakeOrder(userA, tokenY, amt(1), tokenX, amt(1))
		if err != nil {
			t.Fatalf("make: %v", err)
		}
		ids = append(ids, o.ID)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			var x, y uint64
			f.log.View(func() {
				x = f.ex.Balance(tokenX, userA).Uint64() + f.ex.Balance(tokenX, userB).Uint64()
				y = f.ex.Balance(tokenY, userA).Uint64() + f.ex.Balance(tokenY, userB).Uint64()
			})
			if x != 1000 || y != 1000 {
				t.Errorf("torn read: x=%d y=%d", x, y)
				return
			}
		}
	}()
	for _, id := range ids {
		if _, _, err := f.ex.FillOrder(userB, id); err != nil {
			t.Fatalf("fill %d: %v", id, err)
		}
	}
	close(done)
	wg.Wait()
}
