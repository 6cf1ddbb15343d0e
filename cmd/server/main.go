package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trypto13/jeet-tracker/bot"
	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/config"
	"github.com/trypto13/jeet-tracker/history"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/notify"
	"github.com/trypto13/jeet-tracker/pipeline"
	"github.com/trypto13/jeet-tracker/store"
	"github.com/trypto13/jeet-tracker/tracker"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store. Unreachable Mongo at startup is fatal.
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	mongoClient, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	cancel()
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())

	st := store.NewStore(mongoClient.Database("jeet_tracker"))
	if err := st.EnsureIndexes(ctx); err != nil {
		log.Fatalf("mongo indexes: %v", err)
	}
	if err := st.LoadAll(ctx); err != nil {
		log.Fatalf("hydrate cache: %v", err)
	}

	// Chain RPC with a persistent block cache; confirmed blocks are
	// immutable so the cache never needs invalidation.
	rpc := chain.NewClient(cfg.RPCURL)
	cachedRPC, err := chain.NewCachedClient(rpc, filepath.Join(cfg.DataDir, cfg.Network, "block_cache"))
	if err != nil {
		log.Fatalf("block cache: %v", err)
	}
	defer cachedRPC.Close()

	idx := indexer.NewClient(cfg.IndexerURL)

	resolver, err := identity.NewResolver(rpc, cfg.Network)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	trk := tracker.New(rpc, st)
	hist := history.New(idx, st)

	tgBot, err := bot.New(cfg.TelegramToken, st, rpc, idx, resolver, hist, bot.Config{
		Password:    cfg.BotPassword,
		MaxWallets:  cfg.MaxWallets,
		AdminChatID: cfg.AdminChatID,
	})
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	notifier := notify.New(st, tgBot, cfg.MempoolURL)

	orch := pipeline.New(pipeline.Config{
		Store:        st,
		Chain:        cachedRPC,
		Indexer:      idx,
		Resolver:     resolver,
		Tracker:      trk,
		Notifier:     notifier,
		PollInterval: cfg.PollInterval,
	})

	metrics.StartServer(cfg.MetricsAddr)
	metrics.CursorHeight.Set(float64(st.Cursor()))

	go func() {
		if err := tgBot.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[bot] stopped: %v", err)
		}
	}()

	log.Printf("connected: network=%s cursor=%d wallets=%d",
		cfg.Network, st.Cursor(), len(st.TrackedPrimaries()))

	// Blocks until shutdown; in-flight tick completes, cursor is only
	// advanced by fully successful ticks.
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("pipeline: %v", err)
	}
	log.Printf("shutdown complete")
}
