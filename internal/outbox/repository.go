// Package outbox records placed orders in Postgres together with an
// order-placed event, and publishes pending events to Kafka.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const EventOrderPlaced = "OrderPlaced"

var (
	ErrPlacedOrderNotFound = errors.New("placed order not found")
	ErrAlreadyPlaced       = errors.New("order already recorded for cart")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Event is one row of the outbox table.
type Event struct {
	ID          int64
	EventID     uuid.UUID
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderPlaced is the payload published when a cart became an order.
type OrderPlaced struct {
	EventID   string    `json:"event_id"`
	CartID    string    `json:"cart_id"`
	OrderID   string    `json:"order_id"`
	SessionID string    `json:"session_id,omitempty"`
	Total     int64     `json:"total"`
	Currency  string    `json:"currency"`
	PlacedAt  time.Time `json:"placed_at"`
}

type RepoInterface interface {
	GetPlacedOrder(ctx context.Context, cartID string) (*domain.PlacedOrder, error)
	RecordPlacedOrder(ctx context.Context, order *domain.PlacedOrder) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

func (r *Repository) GetPlacedOrder(ctx context.Context, cartID string) (*domain.PlacedOrder, error) {
	query := `SELECT cart_id, order_id, session_id, total, currency, placed_at
	          FROM placed_orders WHERE cart_id = $1`

	var o domain.PlacedOrder
	err := r.db.QueryRowContext(ctx, query, cartID).Scan(
		&o.CartID,
		&o.OrderID,
		&o.SessionID,
		&o.Total,
		&o.Currency,
		&o.PlacedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlacedOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query placed order: %w", err)
	}
	return &o, nil
}

// RecordPlacedOrder stores the placed order and its OrderPlaced event in one
// transaction, so the event is published if and only if the order is recorded.
func (r *Repository) RecordPlacedOrder(ctx context.Context, order *domain.PlacedOrder) error {
	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now().UTC()
	}

	eventID := uuid.New()
	payload, err := json.Marshal(OrderPlaced{
		EventID:   eventID.String(),
		CartID:    order.CartID,
		OrderID:   order.OrderID,
		SessionID: order.SessionID,
		Total:     order.Total,
		Currency:  order.Currency,
		PlacedAt:  order.PlacedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO placed_orders (cart_id, order_id, session_id, total, currency, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.CartID, order.OrderID, order.SessionID, order.Total, order.Currency, order.PlacedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyPlaced
		}
		return fmt.Errorf("insert placed order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, aggregate_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)`,
		eventID, order.CartID, EventOrderPlaced, string(payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit placed order: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*Event, error) {
	query := `SELECT id, event_id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY created_at, id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW() WHERE id = $1 AND processed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mark event %d processed: no pending event", id)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
