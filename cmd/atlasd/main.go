package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"atlas/config"
	"atlas/domain/orderbook"
	"atlas/feed"
	"atlas/infra/journal"
	"atlas/infra/kafka"
	"atlas/infra/metrics"
	"atlas/jobs/broadcaster"
	"atlas/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	// ---------------- Journal ----------------

	j, err := journal.Open(cfg.JournalDir)
	if err != nil {
		log.Fatal("journal open failed", zap.Error(err))
	}
	defer j.Close()

	// ---------------- Domain ----------------

	engineCfg := orderbook.DefaultConfig()
	engineCfg.MaxOrderQuantity = cfg.MaxOrderQuantity
	engineCfg.SelfTradePrevention = cfg.SelfTradePrevention

	engine := orderbook.NewMatchingEngine(engineCfg, cfg.PoolCapacity)

	// Wires the trade callback so every match lands in the journal.
	service.New(engine, j, log)

	// ---------------- Feed ----------------

	handler := feed.NewHandler(feed.Config{
		RingCapacity: cfg.RingCapacity,
		DrainBatch:   cfg.DrainBatch,
		DetectGaps:   true,
	}, engine.Book(), log)
	handler.SetGapCallback(func(expected, received uint64) {
		log.Warn("feed gap", zap.Uint64("expected", expected), zap.Uint64("received", received))
	})
	handler.Start()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	metrics.Register(reg, engine, handler)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error("metrics server exited", zap.Error(err))
		}
	}()

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bc, err := broadcaster.New(j, cfg.KafkaBrokers, cfg.TradeTopic, cfg.FlushInterval, log)
	if err != nil {
		log.Warn("broadcaster disabled", zap.Error(err))
	} else {
		go bc.Run(ctx)
		defer bc.Close()
	}

	// ---------------- Ingest ----------------

	if cfg.Simulate {
		go runSimulator(ctx, handler, log)
	} else {
		source := kafka.NewSource(cfg.KafkaBrokers, cfg.FeedTopic, cfg.FeedGroupID, handler, log)
		go func() {
			if err := source.Run(ctx); err != nil {
				log.Error("feed source exited", zap.Error(err))
			}
		}()
		defer source.Close()
	}

	log.Info("atlas engine running",
		zap.Int("pool_capacity", cfg.PoolCapacity),
		zap.Uint64("ring_capacity", cfg.RingCapacity),
		zap.Bool("simulate", cfg.Simulate),
	)

	// ---------------- Shutdown ----------------

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	cancel()
	handler.Stop()
}

// runSimulator drives the handler from the built-in random-walk stream.
func runSimulator(ctx context.Context, handler *feed.Handler, log *zap.Logger) {
	sim := feed.NewSimulator(feed.DefaultSimulatorConfig())
	log.Info("feed simulator started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg := sim.Next(orderbook.Timestamp(time.Now().UnixNano()))
		for !handler.Enqueue(msg) {
			time.Sleep(time.Millisecond)
		}
	}
}
