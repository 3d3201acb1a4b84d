package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdoElHodaky/handlex/internal/db/models"
	"github.com/abdoElHodaky/handlex/internal/engine"
	"github.com/abdoElHodaky/handlex/pkg/errors"
)

// PublishFunc delivers one event payload on a channel. Supplied by the
// market data publisher so the repository stays transport-agnostic.
type PublishFunc func(topic string, payload []byte) error

// TradeEventPayload is the wire shape of a TRADE event
type TradeEventPayload struct {
	Trade TradeEventBody   `json:"trade"`
	Book  engine.BookState `json:"book"`
}

// TradeEventBody carries the executed trade inside a TRADE event
type TradeEventBody struct {
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboxRepository handles the transactional outbox. QueueTradeEvent
// joins the caller's transaction; PublishBatch runs autonomously and is
// the only repository method that commits.
type OutboxRepository struct {
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{logger: logger}
}

// QueueTradeEvent writes the TRADE event row carrying the trade and the
// post-trade top of book. Does not commit.
func (r *OutboxRepository) QueueTradeEvent(ctx context.Context, tx *gorm.DB, data engine.TradeData, book engine.BookState) error {
	payload, err := json.Marshal(TradeEventPayload{
		Trade: TradeEventBody{
			Price:     data.Price,
			Quantity:  data.Quantity,
			Timestamp: data.ExecutedAt,
		},
		Book: book,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternalError, "failed to encode trade event")
	}

	event := &models.OutboxEvent{
		EventType: models.EventTypeTrade,
		Symbol:    data.Symbol,
		Payload:   string(payload),
	}
	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseError, "failed to queue trade event")
	}
	return nil
}

// PublishBatch claims up to limit unpublished events with skip-locked
// semantics, publishes each on "<EVENT_TYPE>.<symbol>", and flips the
// claimed set to published in one statement. Multiple workers may run
// concurrently without overlapping claims. Delivery is at-least-once: a
// crash between publish and the flip re-publishes on the next run.
func (r *OutboxRepository) PublishBatch(ctx context.Context, db *gorm.DB, publish PublishFunc, limit int) (int, error) {
	var published int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []*models.OutboxEvent
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("NOT published").
			Order("created_at ASC").
			Limit(limit).
			Find(&events).Error
		if err != nil {
			return errors.Wrap(err, errors.ErrDatabaseError, "failed to claim outbox events")
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(events))
		for _, event := range events {
			topic := fmt.Sprintf("%s.%s", event.EventType, event.Symbol)
			if err := publish(topic, []byte(event.Payload)); err != nil {
				return errors.Wrapf(err, errors.ErrInternalError, "failed to publish on %s", topic)
			}
			ids = append(ids, event.EventID)
		}

		err = tx.Model(&models.OutboxEvent{}).
			Where("event_id IN ?", ids).
			Update("published", true).Error
		if err != nil {
			return errors.Wrap(err, errors.ErrDatabaseError, "failed to mark events published")
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}
