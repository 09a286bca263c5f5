package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Yasirrazaa/inoxcrom-storefront-sub000/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository keeps placed orders and their events in process. It backs
// single-instance setups that run without Postgres.
type MemoryRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.PlacedOrder
	events    []*Event
	processed map[int64]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[string]domain.PlacedOrder),
		processed: make(map[int64]bool),
	}
}

func (m *MemoryRepository) GetPlacedOrder(_ context.Context, cartID string) (*domain.PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[cartID]
	if !ok {
		return nil, ErrPlacedOrderNotFound
	}
	return &o, nil
}

func (m *MemoryRepository) RecordPlacedOrder(_ context.Context, order *domain.PlacedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.CartID]; ok {
		return ErrAlreadyPlaced
	}
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

	m.orders[order.CartID] = *order
	m.events = append(m.events, &Event{
		ID:          int64(len(m.events) + 1),
		EventID:     eventID,
		AggregateID: order.CartID,
		EventType:   EventOrderPlaced,
		Payload:     payload,
		CreatedAt:   order.PlacedAt,
	})
	return nil
}

func (m *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.events {
		if len(out) == limit {
			break
		}
		if !m.processed[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || id > int64(len(m.events)) || m.processed[id] {
		return fmt.Errorf("mark event %d processed: no pending event", id)
	}
	m.processed[id] = true
	return nil
}
