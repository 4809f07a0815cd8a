package p2p

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/events"
)

// EventTopic carries committed events between nodes.
const EventTopic = "coboltblu/events/1"

var (
	errBadSignature = errors.New("envelope signature invalid")
	errBadChain     = errors.New("envelope hash chain broken")
)

// Envelope is the gossip message for one committed event. Prev is the hash of
// the event before it, so a follower can check the chain from any starting
// point.
type Envelope struct {
	Prev  common.Hash  `json:"prev"`
	Event events.Event `json:"event"`
	Node  []byte       `json:"node"` // BLS public key of the publisher
	Sig   []byte       `json:"sig"`
}

// signingBytes binds the topic, the position and the chain head.
func signingBytes(seq uint64, prev, head common.Hash) []byte {
	var buf bytes.Buffer
	buf.WriteString(EventTopic)
	binary.Write(&buf, binary.BigEndian, seq)
	buf.Write(prev[:])
	buf.Write(head[:])
	return buf.Bytes()
}

// Seal signs e and encodes the envelope.
func Seal(signer *crypto.BLSSigner, prev common.Hash, e events.Event) ([]byte, error) {
	env := Envelope{
		Prev:  prev,
		Event: e,
		Node:  signer.PubkeyBytes(),
		Sig:   signer.Sign(signingBytes(e.Seq, prev, e.Hash)),
	}
	return json.Marshal(env)
}

// Open decodes an envelope and checks its signature and that the event
// hashes onto Prev.
func Open(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	pk, err := crypto.ParseBLSPubKey(env.Node)
	if err != nil {
		return Envelope{}, err
	}
	if !crypto.VerifyBLS(pk, env.Sig, signingBytes(env.Event.Seq, env.Prev, env.Event.Hash)) {
		return Envelope{}, errBadSignature
	}
	if events.ChainHash(env.Prev, env.Event) != env.Event.Hash {
		return Envelope{}, fmt.Errorf("%w at seq %d", errBadChain, env.Event.Seq)
	}
	return env, nil
}
