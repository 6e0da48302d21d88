package notifications

import (
	"context"

	"github.com/rs/zerolog"

	"adboard-backend/internal/common/logger"
	"adboard-backend/internal/platform/telegram"
)

// Service delivers user notifications over Telegram private messages.
// Delivery is best effort: a user who blocked the bot only produces a log
// line, never a failed deal operation.
type Service struct {
	tg  *telegram.Client
	log zerolog.Logger
}

func NewService(tg *telegram.Client) *Service {
	return &Service{
		tg:  tg,
		log: logger.With("notifications"),
	}
}

func (s *Service) Notify(ctx context.Context, userID int64, text string) {
	if userID == 0 {
		return
	}
	if err := s.tg.SendNotification(ctx, userID, text); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("notification delivery failed")
	}
}
