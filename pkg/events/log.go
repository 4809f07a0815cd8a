package events

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/coboltblu/exchange/pkg/types"
	"github.com/coboltblu/exchange/pkg/util"
)

// Write is a state change staged alongside events. A nil Value deletes Key.
type Write struct {
	Key   []byte
	Value []byte
}

// Sink persists a committed transaction. Commit must apply writes and events
// atomically: either all of them are durable or none are.
type Sink interface {
	Commit(writes []Write, events []Event) error
}

// Tx collects the events and state writes of one Update call.
type Tx struct {
	time   int64
	events []Event
	writes []Write
}

// Time is the commit time every event of this transaction will carry.
func (tx *Tx) Time() int64 { return tx.time }

// Emit stages e. Seq, Time and Hash are overwritten at commit.
func (tx *Tx) Emit(e Event) { tx.events = append(tx.events, e) }

// Put stages a state write for the sink. The slices are retained.
func (tx *Tx) Put(key, value []byte) {
	tx.writes = append(tx.writes, Write{Key: key, Value: value})
}

// Staged returns the events emitted so far.
func (tx *Tx) Staged() []Event { return tx.events }

// Log is the append-only, hash-chained event log.
type Log struct {
	mu       sync.RWMutex
	clock    util.Clock
	sink     Sink
	events   []Event
	head     common.Hash
	lastTime int64

	// changed is closed and replaced on every commit to wake subscribers.
	changed chan struct{}
	closed  bool
}

// NewLog creates an empty log. sink may be nil for an in-memory log.
func NewLog(clock util.Clock, sink Sink) *Log {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Log{clock: clock, sink: sink, changed: make(chan struct{})}
}

// Restore replaces the log contents with previously committed events, as
// read back from storage. The chain is verified before it is accepted.
func (l *Log) Restore(evs []Event) error {
	if err := verifyChain(evs); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append([]Event(nil), evs...)
	l.head = common.Hash{}
	l.lastTime = 0
	if n := len(evs); n > 0 {
		l.head = evs[n-1].Hash
		l.lastTime = evs[n-1].Time
	}
	return nil
}

// Update runs fn with exclusive access to venue state. If fn returns an error
// nothing is committed and fn must not have mutated anything. Otherwise the
// staged events are numbered, chained, handed to the sink together with the
// staged writes, and appended.
//
// A sink failure is returned wrapped in types.ErrStorage. By then fn has
// already mutated in-memory state, so the caller must treat it as fatal.
func (l *Log) Update(fn func(tx *Tx) error) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("%w: event log closed", types.ErrClosed)
	}

	now := l.clock.Now().UnixMilli()
	if now < l.lastTime {
		now = l.lastTime
	}
	tx := &Tx{time: now}
	if err := fn(tx); err != nil {
		return nil, err
	}

	committed := make([]Event, len(tx.events))
	head := l.head
	seq := uint64(len(l.events))
	for i, e := range tx.events {
		seq++
		e.Seq = seq
		e.Time = now
		e.Hash = ChainHash(head, e)
		head = e.Hash
		committed[i] = e
	}

	if l.sink != nil && (len(committed) > 0 || len(tx.writes) > 0) {
		if err := l.sink.Commit(tx.writes, committed); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
	}

	if len(committed) == 0 {
		return nil, nil
	}
	l.events = append(l.events, committed...)
	l.head = head
	l.lastTime = now
	close(l.changed)
	l.changed = make(chan struct{})

	return append([]Event(nil), committed...), nil
}

// View runs fn under a shared lock so it sees a consistent snapshot of venue
// state. fn must not call Update.
func (l *Log) View(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// Len is the number of committed events, which is also the last Seq.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Head returns the last Seq and the chain hash at that point.
func (l *Log) Head() (uint64, common.Hash) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events)), l.head
}

// Events returns up to limit events starting at Seq from (1-based). A
// non-positive limit means no limit.
func (l *Log) Events(from uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	evs, _ := l.since(from, limit)
	return evs
}

// Filter returns the committed events for which keep returns true, in order.
func (l *Log) Filter(keep func(Event) bool) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// since copies events from Seq from and returns the channel that will be
// closed on the next commit. Caller holds at least a read lock.
func (l *Log) since(from uint64, limit int) ([]Event, <-chan struct{}) {
	if from == 0 {
		from = 1
	}
	n := uint64(len(l.events))
	if from > n {
		return nil, l.changed
	}
	end := n
	if limit > 0 && from-1+uint64(limit) < end {
		end = from - 1 + uint64(limit)
	}
	out := make([]Event, end-from+1)
	copy(out, l.events[from-1:end])
	return out, l.changed
}

// Verify recomputes the hash chain over the whole log.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyChain(l.events)
}

// Close stops accepting updates and ends all subscriptions once they have
// drained.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.changed)
}

func verifyChain(evs []Event) error {
	var head common.Hash
	var lastTime int64
	for i, e := range evs {
		if e.Seq != uint64(i+1) {
			return fmt.Errorf("event %d: sequence gap, got seq %d", i+1, e.Seq)
		}
		if e.Time < lastTime {
			return fmt.Errorf("event %d: time went backwards", e.Seq)
		}
		if want := ChainHash(head, e); want != e.Hash {
			return fmt.Errorf("event %d: hash mismatch: have %s want %s", e.Seq, e.Hash.Hex(), want.Hex())
		}
		head = e.Hash
		lastTime = e.Time
	}
	return nil
}

// ChainHash computes keccak256(prev || canonical(e)): the hash e carries when
// it follows an event hashed prev.
func ChainHash(prev common.Hash, e Event) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(prev[:])
	h.Write(e.canonical())
	var out common.Hash
	h.Sum(out[:0])
	return out
}
