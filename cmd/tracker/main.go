package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/config"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/bot"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/fetcher"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/metrics"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/monitor"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/notifier"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/scraper"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using system environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	api, err := bot.Init(cfg.Telegram.Token)
	if err != nil {
		log.Fatalf("init telegram bot: %v", err)
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			log.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := m.Serve(cfg.MetricsAddr); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	registry := scraper.NewRegistry()
	pacer := fetcher.NewPacer(cfg.Fetch.RatePerSecond, cfg.Fetch.JitterFrac)
	fetch := fetcher.New(fetcher.Config{
		Timeout:    cfg.Fetch.Timeout.Std(),
		MaxRetries: cfg.Fetch.MaxRetries,
		Backoff:    cfg.Fetch.Backoff.Std(),
		MaxBackoff: cfg.Fetch.MaxBackoff.Std(),
	}, pacer)

	mon := monitor.New(store, registry, fetch, notifier.NewTelegram(api), m, monitor.Config{
		Interval:     cfg.Check.Interval.Std(),
		Workers:      cfg.Check.Workers,
		DrainTimeout: cfg.Check.DrainTimeout.Std(),
		ChatID:       cfg.Telegram.ChatID,
	})
	go mon.Start(ctx)

	handler := bot.NewHandler(api, store, mon, registry, fetch, cfg.Telegram.ChatID)
	go handler.Run(ctx)

	<-ctx.Done()
	log.Println("shutting down...")

	mon.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown: %v", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Database.DSN != "" {
		return storage.NewPostgres(ctx, cfg.Database.DSN)
	}
	return storage.NewSQLite(cfg.Database.Path)
}
