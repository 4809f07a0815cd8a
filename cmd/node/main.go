package main

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/coboltblu/exchange/params"
	"github.com/coboltblu/exchange/pkg/api"
	"github.com/coboltblu/exchange/pkg/app/dex"
	"github.com/coboltblu/exchange/pkg/crypto"
	"github.com/coboltblu/exchange/pkg/events"
	"github.com/coboltblu/exchange/pkg/p2p"
	"github.com/coboltblu/exchange/pkg/storage"
	"github.com/coboltblu/exchange/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, util.ParseLevel(cfg.Node.LogLevel))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var store *storage.PebbleStore
	if cfg.Node.InMemory {
		store, err = storage.NewMemStore()
	} else {
		store, err = storage.NewPebbleStore(cfg.Node.DataDir)
	}
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "in_memory", cfg.Node.InMemory, "err", err)
	}

	// ---- Venue ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := dex.New(cfg.Venue, dex.Options{
		Store:   store,
		Clock:   util.RealClock{},
		Logger:  sugar.Named("dex"),
		Metrics: dex.NewMetrics(reg),
	})
	if err != nil {
		store.Close()
		sugar.Fatalw("venue_init_failed", "err", err)
	}
	defer app.Close()

	for _, l := range app.Tokens() {
		sugar.Infow("token",
			"symbol", l.Symbol(),
			"name", l.Name(),
			"address", l.Address().Hex(),
			"supply", l.TotalSupply().Dec())
	}

	// ---- Event journal (optional) ----
	if cfg.Node.Journal != "" {
		j, err := storage.OpenJournal(cfg.Node.Journal)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Node.Journal, "err", err)
		}
		defer j.Close()
		sub := app.Log().Subscribe(app.Log().Len() + 1)
		defer sub.Close()
		go func() {
			if err := j.Follow(sub); err != nil {
				sugar.Errorw("journal_failed", "err", err)
			}
		}()
		sugar.Infow("journal_enabled", "path", cfg.Node.Journal)
	}

	// ---- Event gossip (optional) ----
	if cfg.P2P.ListenAddr != "" {
		if err := startGossip(ctx, cfg.P2P, app, sugar.Named("p2p")); err != nil {
			sugar.Fatalw("p2p_init_failed", "err", err)
		}
	}

	// ---- API Server ----
	fatal := make(chan error, 1)
	apiServer := api.NewServer(app, api.Config{
		Addr:        cfg.API.Addr,
		CORSOrigins: cfg.API.CORSOrigins,
		Gatherer:    reg,
		OnFatal: func(err error) {
			select {
			case fatal <- err:
			default:
			}
		},
	}, sugar.Named("api"))

	go func() {
		if err := apiServer.Start(ctx); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"chain_id", cfg.Venue.ChainID,
		"exchange", app.Exchange().Address().Hex(),
		"api_addr", cfg.API.Addr,
		"data_dir", cfg.Node.DataDir,
		"in_memory", cfg.Node.InMemory)

	// Progress logging loop
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	var lastLogged uint64

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("node_stopping")
			return
		case err := <-fatal:
			// memory is ahead of disk; the process must not keep serving
			sugar.Errorw("storage_failure", "err", err)
			stop()
			app.Close()
			logger.Sync()
			os.Exit(1)
		case <-ticker.C:
			n, head := app.Log().Head()
			if n != lastLogged {
				sugar.Infow("venue_progress",
					"events", n,
					"head", head.Hex(),
					"open_orders", app.Exchange().OpenCount())
				lastLogged = n
			}
		}
	}
}

func startGossip(ctx context.Context, cfg params.P2P, app *dex.App, logger *zap.SugaredLogger) error {
	key, err := crypto.NewBLSSignerFromSeed([]byte(cfg.NodeKeySeed))
	if err != nil {
		return err
	}
	node, err := p2p.NewNode(ctx, p2p.Config{
		ListenAddr: cfg.ListenAddr,
		Bootstrap:  cfg.Bootstrap,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	follow, err := cfg.FollowKey()
	if err != nil {
		node.Close()
		return err
	}
	if follow != nil {
		f, err := p2p.NewFollower(node, follow, func(e events.Event) {
			logger.Infow("replica_event", "seq", e.Seq, "kind", e.Kind.String(), "hash", e.Hash.Hex())
		})
		if err != nil {
			node.Close()
			return err
		}
		go func() {
			if err := f.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Errorw("follower_stopped", "err", err)
			}
		}()
		logger.Infow("following_publisher", "key", cfg.Follow)
	}

	pub := p2p.NewPublisher(node, key)
	go func() {
		defer node.Close()
		if err := pub.Run(ctx, app.Log(), 0); err != nil && ctx.Err() == nil {
			logger.Errorw("gossip_stopped", "err", err)
		}
	}()
	logger.Infow("gossip_enabled", "addrs", node.Addrs(), "node_key", hex.EncodeToString(key.PubkeyBytes()))
	return nil
}
