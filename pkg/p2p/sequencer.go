package p2p

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/events"
)

// maxPending bounds how far ahead of the next expected event envelopes are
// buffered.
const maxPending = 4096

// sequencer restores commit order from gossip, which may duplicate or reorder
// envelopes. It anchors on the first envelope it sees.
type sequencer struct {
	next    uint64 // 0 until anchored
	head    common.Hash
	pending map[uint64]Envelope
}

func newSequencer() *sequencer {
	return &sequencer{pending: make(map[uint64]Envelope)}
}

// push accepts a verified envelope and returns the events that became
// deliverable, in order.
func (s *sequencer) push(env Envelope) ([]events.Event, error) {
	seq := env.Event.Seq
	if seq == 0 {
		return nil, fmt.Errorf("event without sequence number")
	}
	if s.next == 0 {
		s.next = seq
		s.head = env.Prev
	}
	if seq < s.next {
		return nil, nil // duplicate
	}
	if seq-s.next >= maxPending {
		return nil, fmt.Errorf("seq %d too far ahead of %d", seq, s.next)
	}
	if _, ok := s.pending[seq]; !ok {
		s.pending[seq] = env
	}

	var out []events.Event
	for {
		env, ok := s.pending[s.next]
		if !ok {
			return out, nil
		}
		delete(s.pending, s.next)
		if env.Prev != s.head {
			return out, fmt.Errorf("%w: seq %d does not extend %s", errBadChain, env.Event.Seq, s.head.Hex())
		}
		out = append(out, env.Event)
		s.head = env.Event.Hash
		s.next++
	}
}
