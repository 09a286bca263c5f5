package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations(creds))

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return repo, cleanup
}

func placedOrder(cartID string) *domain.PlacedOrder {
	return &domain.PlacedOrder{
		CartID:    cartID,
		OrderID:   "order_" + cartID,
		SessionID: "sess_1",
		Total:     2180,
		Currency:  "eur",
		PlacedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestGetPlacedOrder_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	order, err := repo.GetPlacedOrder(context.Background(), "cart_missing")

	assert.ErrorIs(t, err, ErrPlacedOrderNotFound)
	assert.Nil(t, order)
}

func TestRecordPlacedOrder_StoresOrderAndEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.RecordPlacedOrder(ctx, placedOrder("cart_1")))

	got, err := repo.GetPlacedOrder(ctx, "cart_1")
	require.NoError(t, err)
	assert.Equal(t, "order_cart_1", got.OrderID)
	assert.Equal(t, int64(2180), got.Total)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "cart_1", events[0].AggregateID)
	assert.Equal(t, EventOrderPlaced, events[0].EventType)

	var payload OrderPlaced
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "order_cart_1", payload.OrderID)
	assert.Equal(t, events[0].EventID.String(), payload.EventID)
}

func TestRecordPlacedOrder_Duplicate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.RecordPlacedOrder(ctx, placedOrder("cart_1")))
	err := repo.RecordPlacedOrder(ctx, placedOrder("cart_1"))
	assert.ErrorIs(t, err, ErrAlreadyPlaced)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "rolled back insert must not leave an event")
}

func TestMarkEventAsProcessed(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.RecordPlacedOrder(ctx, placedOrder("cart_1")))
	require.NoError(t, repo.RecordPlacedOrder(ctx, placedOrder("cart_2")))

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	assert.Error(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	pending, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cart_2", pending[0].AggregateID)
}
