package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/yanun0323/logs"

	"main/internal/cache"
	"main/internal/core"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/ohlc"
	"main/internal/ops"
	"main/internal/outbox"
	"main/internal/store"
	"main/internal/trigger"
	"main/pkg/conn"
)

const (
	subscriberCapacity = 4096
	klineRetention     = 7 * 24 * time.Hour
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("engine: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "config file path")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := os.Getenv("PYROSCOPE_ADDR"); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "exec-engine",
			ServerAddress:   addr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	pg, err := conn.NewPostgres(ctx, conn.PostgresOption{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()

	rdb, err := conn.NewRedis(ctx, conn.RedisOption{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	pgStore := store.NewPG(pg.DB())
	if err := pgStore.Migrate(ctx); err != nil {
		return err
	}

	klines := cache.NewKlineCache(rdb)
	prices := cache.NewPriceCache(rdb)

	book := ohlc.NewBook()
	flusher := ohlc.NewFlusher(book, pgStore, klines)

	ledgerSvc := ledger.NewService(pgStore, pgStore, cfg.Registry)
	triggers := trigger.NewEngine(pgStore, cfg.Registry, ledgerSvc, prices)
	if err := triggers.Load(ctx); err != nil {
		return err
	}

	engine := core.New(book, triggers, ledgerSvc, prices)

	dispatcher := outbox.NewDispatcher(pgStore, outbox.NewRedisPublisher(rdb), ops.EventChannel())
	go dispatcher.Run(ctx, cfg.OutboxInterval)

	// Tick fan-out: bars, trigger evaluation, live price cache.
	distributor := feed.NewDistributor(cfg.Registry)
	defer distributor.Close()

	aggQueue := distributor.Attach("aggregator", subscriberCapacity)
	go aggQueue.Run(ctx, func(tick model.PriceTick) {
		if err := engine.IngestTick(ctx, tick); err != nil {
			logs.Warnf("ingest %s, err: %+v", tick.Symbol, err)
		}
	})

	priceQueue := distributor.Attach("price-cache", subscriberCapacity)
	go priceQueue.Run(ctx, func(tick model.PriceTick) {
		if err := prices.Set(ctx, tick); err != nil {
			logs.Warnf("price cache %s, err: %+v", tick.Symbol, err)
		}
	})

	if cfg.Feeds.Crypto.URL != "" && len(cfg.Feeds.Crypto.Symbols) > 0 {
		crypto := feed.NewBinanceFeed(cfg.Feeds.Crypto.URL, cfg.Feeds.Crypto.Symbols, distributor)
		go crypto.Run(ctx)
		defer crypto.Close()
	}
	fx := feed.NewFXBridge(rdb, cfg.Feeds.FX.Channel, distributor)
	go fx.Run(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.CandleInterval), func() {
		if err := flusher.Flush(ctx, time.Now()); err != nil {
			logs.Errorf("candle flush, err: %+v", err)
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc("0 3 * * *", func() {
		cutoff := time.Now().Add(-klineRetention)
		if err := klines.TrimBefore(ctx, cfg.Registry.Symbols(), cutoff); err != nil {
			logs.Warnf("kline trim, err: %+v", err)
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	logs.Info("execution engine running")
	<-ctx.Done()

	// Drain sealed bars before exit.
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := flusher.Flush(drainCtx, time.Now().Add(time.Minute)); err != nil {
		logs.Errorf("final candle flush, err: %+v", err)
	}
	return nil
}
