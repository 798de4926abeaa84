// internal/app/adapters.go
package app

import (
	"context"

	"go.uber.org/zap"

	"subwatch-service/internal/domain/alert"
	"subwatch-service/internal/service/email"
	"subwatch-service/internal/telegram"
	"subwatch-service/internal/websocket"
)

// botDispatcher adapts the Telegram client to the scheduler's dispatch
// sink. The owner id is the chat id for private chats.
type botDispatcher struct {
	bot *telegram.Client
}

func (d *botDispatcher) Send(ctx context.Context, ownerID int64, text string) error {
	return d.bot.SendMessage(ctx, ownerID, text)
}

// alertFanout forwards scheduler escalations to the operator websocket
// hub and, when configured, to the alert mailbox. Email delivery is best
// effort and must not block a scheduler tick.
type alertFanout struct {
	hub        *websocket.Hub
	mailer     *email.Sender
	alertEmail string
	logger     *zap.Logger
}

func (f *alertFanout) Publish(event alert.Event) {
	f.hub.Publish(event)

	if f.mailer == nil || f.alertEmail == "" {
		return
	}
	go func() {
		if err := f.mailer.SendAlert(f.alertEmail, event); err != nil {
			f.logger.Error("failed to send alert email",
				zap.String("subscription_id", event.SubscriptionID),
				zap.Error(err),
			)
		}
	}()
}
