// Package p2p gossips committed events to other nodes over libp2p pubsub.
// The node that owns the venue publishes; read replicas follow.
package p2p

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/events"
)

type Config struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

// Node is a libp2p host joined to the event topic.
type Node struct {
	h     host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	log   *zap.SugaredLogger
}

func NewNode(ctx context.Context, cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}
	topic, err := ps.Join(EventTopic)
	if err != nil {
		h.Close()
		return nil, err
	}

	n := &Node{h: h, ps: ps, topic: topic, log: cfg.Logger}
	for _, bs := range cfg.Bootstrap {
		if err := n.Connect(ctx, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}
	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", EventTopic)
	return n, nil
}

// Connect dials a full /p2p/ multiaddr.
func (n *Node) Connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return n.h.Connect(ctx, *info)
}

func (n *Node) Host() host.Host { return n.h }

// Addrs are the node's listen addresses with its peer id appended, in the
// form Connect and Config.Bootstrap accept.
func (n *Node) Addrs() []string {
	var out []string
	for _, a := range n.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.h.ID()))
	}
	return out
}

// Peers is the number of peers subscribed to the event topic.
func (n *Node) Peers() int { return len(n.topic.ListPeers()) }

func (n *Node) Close() error {
	n.topic.Close()
	return n.h.Close()
}

// Publisher signs and publishes committed events.
type Publisher struct {
	node   *Node
	signer *crypto.BLSSigner
}

func NewPublisher(n *Node, signer *crypto.BLSSigner) *Publisher {
	return &Publisher{node: n, signer: signer}
}

// Publish sends one event. prev is the hash of the event before it.
func (p *Publisher) Publish(ctx context.Context, prev common.Hash, e events.Event) error {
	data, err := Seal(p.signer, prev, e)
	if err != nil {
		return err
	}
	return p.node.topic.Publish(ctx, data)
}

// Run publishes the events of log from Seq from onwards, in order, until ctx
// is done. from == 0 starts after the current head.
func (p *Publisher) Run(ctx context.Context, log *events.Log, from uint64) error {
	if from == 0 {
		from = log.Len() + 1
	}
	var prev common.Hash
	if from > 1 {
		if evs := log.Events(from-1, 1); len(evs) == 1 {
			prev = evs[0].Hash
		}
	}
	sub := log.Subscribe(from)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := p.Publish(ctx, prev, e); err != nil {
				p.node.log.Warnw("gossip_publish_failed", "seq", e.Seq, "err", err)
			}
			prev = e.Hash
		}
	}
}

// Follower receives envelopes, verifies them and delivers events in order.
type Follower struct {
	node      *Node
	sub       *pubsub.Subscription
	publisher []byte // accepted signer; nil accepts any valid signature
	seq       *sequencer
	handler   func(events.Event)
}

// NewFollower subscribes to the event topic. publisher restricts envelopes to
// one node key.
func NewFollower(n *Node, publisher *crypto.BLSPubKey, handler func(events.Event)) (*Follower, error) {
	sub, err := n.topic.Subscribe()
	if err != nil {
		return nil, err
	}
	f := &Follower{node: n, sub: sub, seq: newSequencer(), handler: handler}
	if publisher != nil {
		if f.publisher, err = publisher.MarshalBinary(); err != nil {
			sub.Cancel()
			return nil, err
		}
	}
	return f, nil
}

// Run delivers events until ctx is done.
func (f *Follower) Run(ctx context.Context) error {
	defer f.sub.Cancel()
	for {
		msg, err := f.sub.Next(ctx)
		if err != nil {
			return err
		}
		env, err := Open(msg.Data)
		if err != nil {
			f.node.log.Warnw("gossip_envelope_rejected", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		if f.publisher != nil && string(env.Node) != string(f.publisher) {
			f.node.log.Warnw("gossip_unknown_publisher", "from", msg.ReceivedFrom.String(), "seq", env.Event.Seq)
			continue
		}
		ready, err := f.seq.push(env)
		if err != nil {
			f.node.log.Warnw("gossip_event_rejected", "seq", env.Event.Seq, "err", err)
			continue
		}
		for _, e := range ready {
			f.handler(e)
		}
	}
}
