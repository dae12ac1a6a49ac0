// Package monitor runs the check engine: a drift-corrected periodic
// scheduler and the per-cycle pipeline that fetches, parses, classifies
// and records prices for every active product.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/detector"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/fetcher"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/metrics"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/notifier"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/scraper"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/storage"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Config tunes the scheduler and the worker pool.
type Config struct {
	Interval     time.Duration
	Workers      int
	DrainTimeout time.Duration
	ChatID       int64 // destination for price alerts
}

// Monitor owns the check loop. One cycle runs at a time process-wide;
// a manual trigger during a running cycle is coalesced into at most one
// pending rerun.
type Monitor struct {
	store    storage.Store
	registry *scraper.Registry
	fetch    *fetcher.Fetcher
	notify   notifier.Notifier
	metrics  *metrics.Metrics
	cfg      Config

	runMu   sync.Mutex
	trigger chan struct{}
	stopped chan struct{}
}

// New builds a Monitor. Workers defaults to 10 when unset.
func New(store storage.Store, registry *scraper.Registry, fetch *fetcher.Fetcher, notify notifier.Notifier, m *metrics.Metrics, cfg Config) *Monitor {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Monitor{
		store:    store,
		registry: registry,
		fetch:    fetch,
		notify:   notify,
		metrics:  m,
		cfg:      cfg,
		trigger:  make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

// Start runs cycles until ctx is cancelled. The schedule is anchored to
// absolute fire times: a slow cycle delays only itself, and intervals
// missed entirely while a cycle ran are skipped, never queued up.
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.stopped)
	log.Printf("monitor: started, interval=%s workers=%d", m.cfg.Interval, m.cfg.Workers)

	m.RunCycle(ctx)

	next := time.Now().Add(m.cfg.Interval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("monitor: scheduler stopping")
			return
		case <-timer.C:
			m.RunCycle(ctx)
			next = next.Add(m.cfg.Interval)
			if now := time.Now(); !next.After(now) {
				next = now.Add(m.cfg.Interval)
			}
			timer.Reset(time.Until(next))
		case <-m.trigger:
			m.RunCycle(ctx)
		}
	}
}

// TriggerManual requests an immediate cycle. Requests arriving while a
// cycle is running collapse into a single pending rerun.
func (m *Monitor) TriggerManual() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Wait blocks until the scheduler has exited or the drain timeout
// elapses. Returns false when in-flight checks were abandoned.
func (m *Monitor) Wait() bool {
	select {
	case <-m.stopped:
		return true
	case <-time.After(m.cfg.DrainTimeout):
		log.Printf("monitor: drain timeout after %s, abandoning in-flight checks", m.cfg.DrainTimeout)
		return false
	}
}

// RunCycle checks every active product once through a bounded worker
// pool and returns the aggregated summary.
func (m *Monitor) RunCycle(ctx context.Context) models.CycleSummary {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	sum := models.CycleSummary{RunID: uuid.New(), Start: time.Now().UTC()}

	products, err := m.store.ActiveProducts(ctx)
	if err != nil {
		log.Printf("monitor: cycle %s: list active products: %v", sum.RunID, err)
		sum.End = time.Now().UTC()
		return sum
	}
	sum.Attempted = len(products)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, m.cfg.Workers)
	for _, product := range products {
		product := product
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			m.metrics.CheckStarted()
			defer m.metrics.CheckDone()

			result := m.checkProduct(ctx, product)
			m.metrics.ObserveCheck(result)

			mu.Lock()
			if result.Failed() {
				sum.Failed++
			} else {
				sum.Succeeded++
			}
			if result.Notified {
				sum.Notifications++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	sum.End = time.Now().UTC()
	m.metrics.ObserveCycle(sum)
	log.Printf("monitor: cycle %s done in %s: attempted=%d succeeded=%d failed=%d notified=%d",
		sum.RunID, sum.End.Sub(sum.Start).Truncate(time.Millisecond),
		sum.Attempted, sum.Succeeded, sum.Failed, sum.Notifications)
	return sum
}

// CheckNow checks a single product immediately, serialized against any
// running cycle so a product never has two in-flight checks.
func (m *Monitor) CheckNow(ctx context.Context, id int64) (models.CheckResult, error) {
	product, err := m.store.GetProduct(ctx, id)
	if err != nil {
		return models.CheckResult{}, err
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()
	result := m.checkProduct(ctx, *product)
	m.metrics.ObserveCheck(result)
	return result, nil
}

// checkProduct runs the full pipeline for one product. Every failure is
// contained here: the caller only sees the classified result.
func (m *Monitor) checkProduct(ctx context.Context, product models.Product) models.CheckResult {
	if ctx.Err() != nil {
		return detector.Failure(product.ID)
	}

	ext := m.registry.Find(product.URL)
	if ext == nil {
		log.Printf("monitor: product %d: no extractor handles %s", product.ID, product.URL)
		return m.recordFailure(ctx, product, models.StatusError)
	}

	res := m.fetch.Fetch(ctx, product.URL)
	switch res.Status {
	case fetcher.StatusOK:
	case fetcher.StatusBlocked:
		log.Printf("monitor: product %d: blocked by %s (http %d)", product.ID, ext.Name(), res.HTTPStatus)
		return m.recordFailure(ctx, product, models.StatusBlocked)
	default:
		log.Printf("monitor: product %d: fetch %s after %d attempt(s) (http %d)",
			product.ID, res.Status, res.Attempts, res.HTTPStatus)
		return m.recordFailure(ctx, product, models.StatusError)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		log.Printf("monitor: product %d: parse page: %v", product.ID, err)
		return m.recordFailure(ctx, product, models.StatusError)
	}

	price, err := ext.Price(doc)
	if err != nil {
		log.Printf("monitor: product %d: %v", product.ID, err)
		return m.recordFailure(ctx, product, models.StatusError)
	}

	prev, err := m.store.LastPricedObservation(ctx, product.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("monitor: product %d: load last observation: %v", product.ID, err)
		return detector.Failure(product.ID)
	}

	result := detector.Evaluate(product, prev, price)

	obs := &models.PriceObservation{
		ProductID: product.ID,
		Price:     &price,
		Status:    models.StatusSuccess,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendObservation(ctx, obs); err != nil {
		// Without a durable observation the edge state is unknown, so
		// the product counts as failed and no alert goes out.
		log.Printf("monitor: product %d: append observation: %v", product.ID, err)
		return detector.Failure(product.ID)
	}
	if err := m.store.UpdatePrice(ctx, product.ID, price, obs.Timestamp); err != nil {
		log.Printf("monitor: product %d: update price metadata: %v", product.ID, err)
	}

	if result.ShouldNotify {
		result.Notified = true
		if err := m.notify.Send(ctx, m.cfg.ChatID, alertMessage(product, price)); err != nil {
			log.Printf("monitor: product %d: alert delivery failed: %v", product.ID, err)
		} else {
			log.Printf("monitor: product %d: alert sent, %.2f at or below target %.2f",
				product.ID, price, product.TargetPrice)
		}
	}
	return result
}

// recordFailure appends a priceless observation so the history shows
// when checks happened, not just when they succeeded.
func (m *Monitor) recordFailure(ctx context.Context, product models.Product, status models.ObservationStatus) models.CheckResult {
	obs := &models.PriceObservation{
		ProductID: product.ID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendObservation(ctx, obs); err != nil {
		log.Printf("monitor: product %d: append failure observation: %v", product.ID, err)
	}
	return detector.Failure(product.ID)
}

func alertMessage(product models.Product, price float64) string {
	name := product.Name
	if name == "" {
		name = product.URL
	}
	return fmt.Sprintf(
		"🚨 Price alert!\n\n"+
			"📦 %s\n"+
			"💰 Current price: %.2f\n"+
			"🎯 Target price: %.2f\n\n"+
			"🔗 %s",
		name, price, product.TargetPrice, product.URL,
	)
}
