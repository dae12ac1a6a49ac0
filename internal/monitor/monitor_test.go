package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/fetcher"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/metrics"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/notifier"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/scraper"
	"github.com/ajit-kumar014/price-tracker-telegram/internal/storage"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for exercising the engine.
type fakeStore struct {
	mu        sync.Mutex
	products  map[int64]models.Product
	history   map[int64][]models.PriceObservation
	nextObsID int64
	appendErr error
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore(products ...models.Product) *fakeStore {
	s := &fakeStore{
		products: make(map[int64]models.Product),
		history:  make(map[int64][]models.PriceObservation),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStore) AddProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = int64(len(s.products) + 1)
	s.products[p.ID] = *p
	return nil
}

func (s *fakeStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *fakeStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.ActiveProducts(ctx)
}

func (s *fakeStore) ActiveProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var products []models.Product
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *fakeStore) SetActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Active = active
	s.products[id] = p
	return nil
}

func (s *fakeStore) UpdatePrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.CurrentPrice = price
	p.LastChecked = checkedAt
	if p.LowestPrice == 0 || price < p.LowestPrice {
		p.LowestPrice = price
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	s.products[id] = p
	return nil
}

func (s *fakeStore) AppendObservation(ctx context.Context, obs *models.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.nextObsID++
	obs.ID = s.nextObsID
	s.history[obs.ProductID] = append(s.history[obs.ProductID], *obs)
	return nil
}

func (s *fakeStore) LastPricedObservation(ctx context.Context, productID int64) (*models.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.history[productID]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Price != nil {
			obs := history[i]
			return &obs, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) History(ctx context.Context, productID int64, since time.Time) ([]models.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PriceObservation
	for _, obs := range s.history[productID] {
		if !obs.Timestamp.Before(since) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (s *fakeStore) Stats(ctx context.Context) (models.TrackerStats, error) {
	return models.TrackerStats{}, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeNotifier records every alert it is asked to deliver.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	sendErr  error
}

var _ notifier.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) Send(ctx context.Context, chatID int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// testExtractor reads the price from a #price element.
type testExtractor struct{}

var _ scraper.Extractor = testExtractor{}

func (testExtractor) CanHandle(url string) bool { return true }
func (testExtractor) Name() string              { return "test" }

func (testExtractor) Price(doc *goquery.Document) (float64, error) {
	text := strings.TrimSpace(doc.Find("#price").Text())
	if text == "" {
		return 0, scraper.ErrPriceNotFound
	}
	return strconv.ParseFloat(text, 64)
}

func (testExtractor) Title(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("h1").Text())
}

// priceServer serves a product page whose price can be changed between
// cycles.
type priceServer struct {
	mu    sync.Mutex
	price float64
	srv   *httptest.Server
}

func newPriceServer(price float64) *priceServer {
	ps := &priceServer{price: price}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		fmt.Fprintf(w, `<html><body><h1>Widget</h1><span id="price">%.2f</span></body></html>`, ps.price)
	}))
	return ps
}

func (ps *priceServer) set(price float64) {
	ps.mu.Lock()
	ps.price = price
	ps.mu.Unlock()
}

func newTestMonitor(store storage.Store, notify *fakeNotifier) *Monitor {
	registry := scraper.NewRegistry()
	registry.Register(testExtractor{})
	fetch := fetcher.New(fetcher.Config{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	}, nil)
	return New(store, registry, fetch, notify, metrics.New(), Config{
		Interval: time.Hour,
		Workers:  4,
		ChatID:   99,
	})
}

func TestRunCycleEdgeTriggeredAlert(t *testing.T) {
	ps := newPriceServer(1000)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, Name: "Widget", TargetPrice: 900, Active: true})
	notify := &fakeNotifier{}
	mon := newTestMonitor(store, notify)
	ctx := context.Background()

	for _, price := range []float64{1000, 950} {
		ps.set(price)
		sum := mon.RunCycle(ctx)
		require.Equal(t, 1, sum.Succeeded)
		require.Equal(t, 0, sum.Notifications)
	}
	require.Equal(t, 0, notify.count())

	// Crossing the target fires exactly one alert.
	ps.set(890)
	sum := mon.RunCycle(ctx)
	require.Equal(t, 1, sum.Notifications)
	require.Equal(t, 1, notify.count())
	require.Contains(t, notify.messages[0], "890.00")

	// Staying below target stays quiet, dropping further too.
	for _, price := range []float64{890, 870} {
		ps.set(price)
		sum = mon.RunCycle(ctx)
		require.Equal(t, 0, sum.Notifications)
	}
	require.Equal(t, 1, notify.count())
}

func TestRunCycleHeldBelowTargetNeverAlerts(t *testing.T) {
	ps := newPriceServer(890)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, TargetPrice: 900, Active: true})
	notify := &fakeNotifier{}
	mon := newTestMonitor(store, notify)

	for i := 0; i < 3; i++ {
		mon.RunCycle(context.Background())
	}
	require.Equal(t, 0, notify.count())
}

func TestRunCycleContainsFailingProduct(t *testing.T) {
	good := newPriceServer(100)
	defer good.srv.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	store := newFakeStore(
		models.Product{ID: 1, URL: good.srv.URL, TargetPrice: 50, Active: true},
		models.Product{ID: 2, URL: bad.URL, TargetPrice: 50, Active: true},
		models.Product{ID: 3, URL: good.srv.URL + "/other", TargetPrice: 50, Active: true},
	)
	notify := &fakeNotifier{}
	mon := newTestMonitor(store, notify)

	sum := mon.RunCycle(context.Background())
	require.Equal(t, 3, sum.Attempted)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 1, sum.Failed)

	// The healthy products got priced observations, the failing one a
	// failure record.
	require.Len(t, store.history[1], 1)
	require.NotNil(t, store.history[1][0].Price)
	require.Len(t, store.history[3], 1)
	require.NotNil(t, store.history[3][0].Price)
	require.Len(t, store.history[2], 1)
	require.Nil(t, store.history[2][0].Price)
	require.Equal(t, models.StatusError, store.history[2][0].Status)
}

func TestRunCycleBlockedProductRecordsBlockedObservation(t *testing.T) {
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer blocked.Close()

	store := newFakeStore(models.Product{ID: 1, URL: blocked.URL, TargetPrice: 50, Active: true})
	mon := newTestMonitor(store, &fakeNotifier{})

	sum := mon.RunCycle(context.Background())
	require.Equal(t, 1, sum.Failed)
	require.Len(t, store.history[1], 1)
	require.Equal(t, models.StatusBlocked, store.history[1][0].Status)
	require.Nil(t, store.history[1][0].Price)
}

func TestRunCycleHistoryIsOrdered(t *testing.T) {
	ps := newPriceServer(500)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, TargetPrice: 100, Active: true})
	mon := newTestMonitor(store, &fakeNotifier{})

	for i := 0; i < 3; i++ {
		mon.RunCycle(context.Background())
	}

	history := store.history[1]
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		require.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
		require.Greater(t, history[i].ID, history[i-1].ID)
	}
}

func TestRunCycleAppendFailureDropsAlert(t *testing.T) {
	ps := newPriceServer(890)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, TargetPrice: 900, Active: true})
	notify := &fakeNotifier{}
	mon := newTestMonitor(store, notify)
	ctx := context.Background()

	// Seed a priced observation above target so the next check would
	// normally alert.
	ps.set(1000)
	mon.RunCycle(ctx)

	store.mu.Lock()
	store.appendErr = errors.New("disk full")
	store.mu.Unlock()

	ps.set(890)
	sum := mon.RunCycle(ctx)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 0, sum.Notifications)
	require.Equal(t, 0, notify.count(), "no alert without a durable observation")
}

func TestRunCycleDeliveryFailureDoesNotRetry(t *testing.T) {
	ps := newPriceServer(1000)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, TargetPrice: 900, Active: true})
	notify := &fakeNotifier{sendErr: errors.New("telegram down")}
	mon := newTestMonitor(store, notify)
	ctx := context.Background()

	mon.RunCycle(ctx)
	ps.set(890)
	sum := mon.RunCycle(ctx)

	// The check itself still succeeds and the observation lands.
	require.Equal(t, 1, sum.Succeeded)
	require.Len(t, store.history[1], 2)
}

func TestTriggerManualCoalesces(t *testing.T) {
	store := newFakeStore()
	mon := newTestMonitor(store, &fakeNotifier{})

	mon.TriggerManual()
	mon.TriggerManual()
	mon.TriggerManual()
	require.Len(t, mon.trigger, 1, "pending manual triggers must collapse into one")
}

func TestCheckNow(t *testing.T) {
	ps := newPriceServer(123.45)
	defer ps.srv.Close()

	store := newFakeStore(models.Product{ID: 1, URL: ps.srv.URL, TargetPrice: 100, Active: true})
	mon := newTestMonitor(store, &fakeNotifier{})

	result, err := mon.CheckNow(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.FirstObservation, result.Class)
	require.NotNil(t, result.NewPrice)
	require.InDelta(t, 123.45, *result.NewPrice, 0.001)
	require.Len(t, store.history[1], 1)

	_, err = mon.CheckNow(context.Background(), 42)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	mon := newTestMonitor(store, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	go mon.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.True(t, mon.Wait(), "scheduler must exit promptly on cancellation")
}
