package telegram

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller returns the webhook or long polling poller selected by cfg.
// Updates the bot never routes are not requested.
func BuildPoller(cfg *config.Config) tele.Poller {
	allowed := []string{"message", "callback_query"}
	if strings.EqualFold(strings.TrimSpace(cfg.Telegram.RunMode), config.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
			AllowedUpdates: allowed,
		}
	}
	timeout := defaultLongPollTimeout
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowed}
}
