package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	schooldomain "github.com/dev-orchid/shiksha-sub001/internal/school/domain"
	"github.com/dev-orchid/shiksha-sub001/internal/school/repository"
	"github.com/dev-orchid/shiksha-sub001/internal/school/service"
	"github.com/dev-orchid/shiksha-sub001/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, schooldomain.Service) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&schooldomain.School{}, &schooldomain.SchoolCounter{}))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return conn, service.NewService(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestEnsureIsIdempotent(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, schooldomain.EnsureRequest{Name: "Green Valley High", Currency: "inr"})
	require.NoError(t, err)
	assert.Equal(t, "green-valley-high", first.Code)
	assert.Equal(t, "INR", first.Currency)
	assert.Equal(t, "GVH", first.ReceiptPrefix)

	again, err := svc.Ensure(ctx, schooldomain.EnsureRequest{Name: "Green Valley High", Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Name, got.Name)
}

func TestEnsureValidation(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.Ensure(context.Background(), schooldomain.EnsureRequest{Name: "  ", Currency: "INR"})
	assert.ErrorIs(t, err, schooldomain.ErrInvalidName)
	_, err = svc.Ensure(context.Background(), schooldomain.EnsureRequest{Name: "Sunrise", Currency: "RUPEE"})
	assert.ErrorIs(t, err, schooldomain.ErrInvalidCurrency)
	_, err = svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, schooldomain.ErrSchoolNotFound)
}

func TestReceiptPrefix(t *testing.T) {
	assert.Equal(t, "GVH", service.ReceiptPrefix("green-valley-high"))
	assert.Equal(t, "SUNR", service.ReceiptPrefix("sunrise"))
	assert.Equal(t, "DPS", service.ReceiptPrefix("Delhi Public School"))
}

func TestSequencesAreGapFreeAcrossConcurrentCallers(t *testing.T) {
	conn, _ := setup(t)
	seq := repository.ProvideSequences()
	ctx := context.Background()

	const workers = 8
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				v, err := seq.Next(ctx, tx, 7, schooldomain.CounterReceipt)
				if err != nil {
					return err
				}
				results <- v
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int64]bool{}
	for v := range results {
		assert.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
	}
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}

	// counters are independent per name
	err := conn.Transaction(func(tx *gorm.DB) error {
		v, err := seq.Next(ctx, tx, 7, schooldomain.CounterInvoice)
		assert.Equal(t, int64(1), v)
		return err
	})
	require.NoError(t, err)
}
