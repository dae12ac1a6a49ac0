package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajit-kumar014/price-tracker-telegram/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addProduct(t *testing.T, s *SQLite, url string, target float64) *models.Product {
	t.Helper()
	p := &models.Product{URL: url, Name: "Test Product", UserID: "7001", TargetPrice: target}
	require.NoError(t, s.AddProduct(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func TestAddAndGetProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := addProduct(t, s, "https://www.amazon.com/dp/B0TEST", 899.99)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.URL, got.URL)
	require.Equal(t, "Test Product", got.Name)
	require.Equal(t, "7001", got.UserID)
	require.Equal(t, 899.99, got.TargetPrice)
	require.True(t, got.Active)
	require.True(t, got.LastChecked.IsZero())

	_, err = s.GetProduct(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddProductDuplicateURL(t *testing.T) {
	s := newTestStore(t)
	addProduct(t, s, "https://www.amazon.com/dp/B0TEST", 100)

	p := &models.Product{URL: "https://www.amazon.com/dp/B0TEST", TargetPrice: 200}
	err := s.AddProduct(context.Background(), p)
	require.ErrorIs(t, err, ErrDuplicateURL)
}

func TestActiveProductsExcludesPaused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := addProduct(t, s, "https://www.amazon.com/dp/A", 100)
	b := addProduct(t, s, "https://www.amazon.com/dp/B", 100)

	require.NoError(t, s.SetActive(ctx, b.ID, false))

	active, err := s.ActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)

	all, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.SetActive(ctx, b.ID, true))
	active, err = s.ActiveProducts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	require.ErrorIs(t, s.SetActive(ctx, 9999, false), ErrNotFound)
}

func TestUpdatePriceMaintainsBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := addProduct(t, s, "https://www.amazon.com/dp/A", 100)

	now := time.Now().UTC()
	require.NoError(t, s.UpdatePrice(ctx, p.ID, 150, now))
	require.NoError(t, s.UpdatePrice(ctx, p.ID, 120, now.Add(time.Minute)))
	require.NoError(t, s.UpdatePrice(ctx, p.ID, 180, now.Add(2*time.Minute)))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 180.0, got.CurrentPrice)
	require.Equal(t, 120.0, got.LowestPrice)
	require.Equal(t, 180.0, got.HighestPrice)
	require.False(t, got.LastChecked.IsZero())
}

func TestObservationsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := addProduct(t, s, "https://www.amazon.com/dp/A", 100)

	base := time.Now().UTC().Truncate(time.Second)
	prices := []float64{150, 140, 95}
	for i, price := range prices {
		v := price
		obs := &models.PriceObservation{
			ProductID: p.ID,
			Price:     &v,
			Status:    models.StatusSuccess,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendObservation(ctx, obs))
		require.NotZero(t, obs.ID)
	}

	history, err := s.History(ctx, p.ID, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		require.True(t, history[i].Timestamp.After(history[i-1].Timestamp))
	}

	// Window filtering.
	recent, err := s.History(ctx, p.ID, base.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.InDelta(t, 95, *recent[0].Price, 0.001)
}

func TestLastPricedObservationSkipsFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := addProduct(t, s, "https://www.amazon.com/dp/A", 100)

	_, err := s.LastPricedObservation(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Now().UTC().Truncate(time.Second)
	price := 150.0
	require.NoError(t, s.AppendObservation(ctx, &models.PriceObservation{
		ProductID: p.ID, Price: &price, Status: models.StatusSuccess, Timestamp: base,
	}))
	// Two failures afterwards must not shadow the priced row.
	require.NoError(t, s.AppendObservation(ctx, &models.PriceObservation{
		ProductID: p.ID, Status: models.StatusBlocked, Timestamp: base.Add(time.Minute),
	}))
	require.NoError(t, s.AppendObservation(ctx, &models.PriceObservation{
		ProductID: p.ID, Status: models.StatusError, Timestamp: base.Add(2 * time.Minute),
	}))

	last, err := s.LastPricedObservation(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, last.Price)
	require.InDelta(t, 150, *last.Price, 0.001)
	require.Equal(t, models.StatusSuccess, last.Status)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := addProduct(t, s, "https://www.amazon.com/dp/A", 100)
	b := addProduct(t, s, "https://www.amazon.com/dp/B", 100)
	require.NoError(t, s.SetActive(ctx, b.ID, false))

	price := 50.0
	require.NoError(t, s.AppendObservation(ctx, &models.PriceObservation{
		ProductID: a.ID, Price: &price, Status: models.StatusSuccess, Timestamp: time.Now().UTC(),
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalProducts)
	require.Equal(t, int64(1), stats.ActiveProducts)
	require.Equal(t, int64(1), stats.Observations)
}
