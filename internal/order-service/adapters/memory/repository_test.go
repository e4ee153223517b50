package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
)

func newOrder(t *testing.T, userID string, created time.Time) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(userID,
		[]domain.OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(3)}},
		domain.Address{Street: "s", City: "c", State: "st", Zip: "z", Country: "US"},
		created,
	)
	require.NoError(t, err)
	return o
}

func TestRepository_SaveGet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	o := newOrder(t, "u1", time.Now())

	require.NoError(t, repo.Save(ctx, o))
	assert.Error(t, repo.Save(ctx, o), "duplicate ids are rejected")

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)

	got.Lines[0].Quantity = 99
	again, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Lines[0].Quantity, "stored order must not alias returned copies")

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	o := newOrder(t, "u1", time.Now())
	require.NoError(t, repo.Save(ctx, o))

	updated, err := repo.UpdateStatus(ctx, o.ID, ports.StatusUpdate{
		Status:        domain.StatusConfirmed,
		ReservationID: "res-1",
		PaymentID:     "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)
	assert.Equal(t, "res-1", updated.ReservationID)
	assert.Equal(t, "pay-1", updated.PaymentID)

	_, err = repo.UpdateStatus(ctx, o.ID, ports.StatusUpdate{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	cancelled, err := repo.UpdateStatus(ctx, o.ID, ports.StatusUpdate{Status: domain.StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, "res-1", cancelled.ReservationID, "empty references keep stored values")

	_, err = repo.UpdateStatus(ctx, "missing", ports.StatusUpdate{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 5 {
		user := "u1"
		if i%2 == 1 {
			user = "u2"
		}
		o := newOrder(t, user, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Save(ctx, o))
		ids = append(ids, o.ID)
	}

	tests := []struct {
		name   string
		filter ports.ListFilter
		want   []string
	}{
		{name: "all newest first", filter: ports.ListFilter{}, want: []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
		{name: "by user", filter: ports.ListFilter{UserID: "u1"}, want: []string{ids[4], ids[2], ids[0]}},
		{name: "skip and limit", filter: ports.ListFilter{Skip: 1, Limit: 2}, want: []string{ids[3], ids[2]}},
		{name: "skip past end", filter: ports.ListFilter{Skip: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			gotIDs := make([]string, 0, len(got))
			for _, o := range got {
				gotIDs = append(gotIDs, o.ID)
			}
			assert.Equal(t, tt.want, gotIDs)
		})
	}
}
