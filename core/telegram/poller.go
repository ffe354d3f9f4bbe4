package telegram

import (
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/communibot/core/config"

	tele "gopkg.in/telebot.v4"
)

// buildPoller selects the update transport from config. Normalize has already
// validated run_mode, so anything that is not webhook long-polls.
func buildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}

	timeoutSec := cfg.Telegram.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &tele.LongPoller{Timeout: time.Duration(timeoutSec) * time.Second}
}
