package devbackend

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/pkg/rabbitmq"
)

const publishTimeout = 5 * time.Second

// eventSink publishes session events without failing the request.
type eventSink struct {
	publisher rabbitmq.Publisher
	logger    *slog.Logger
}

func (s eventSink) emit(ctx context.Context, routingKey string, accountID int64, role domain.Role, tokenID string) {
	if s.publisher == nil {
		return
	}
	event := domain.SessionEvent{
		AccountID:  strconv.FormatInt(accountID, 10),
		Role:       role,
		TokenID:    tokenID,
		OccurredAt: time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, domain.SessionEventsExchange, routingKey, event); err != nil {
		s.logger.Warn("failed to publish session event", "routing_key", routingKey, "error", err)
	}
}
