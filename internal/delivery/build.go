package delivery

import (
	"snipcast/internal/config"
	"snipcast/internal/transport"
	"snipcast/internal/transport/email"
	"snipcast/internal/transport/telegram"
	"snipcast/internal/transport/webhook"
	logx "snipcast/pkg/logx"
)

// Build creates a sender for every adapter that is enabled and has
// credentials. Adapters left out are logged at warn level, like a missing
// environment variable would be.
func Build(cfg config.DeliveryConfig, log logx.Logger) []transport.Sender {
	var out []transport.Sender

	e := cfg.Email
	if config.Active(e.Enabled, e.Username != "" && e.Password != "" && len(e.To) > 0) {
		s, err := email.New(email.Config{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: e.Password,
			From:     e.From,
			To:       e.To,
			Timeout:  config.DurationOr(e.Timeout, config.DefaultTimeout),
		}, log)
		if err != nil {
			log.Warn("email disabled", logx.Err(err))
		} else {
			out = append(out, s)
		}
	} else if e.Enabled == nil || *e.Enabled {
		log.Warn("email disabled: EMAIL_USER, EMAIL_PASS or EMAIL_RECEIVER not set")
	}

	w := cfg.Webhook
	if config.Active(w.Enabled, w.URL != "") {
		out = append(out, webhook.New(webhook.Config{
			URL:     w.URL,
			Delay:   config.DurationOr(w.Delay, config.DefaultWebhookDelay),
			Timeout: config.DurationOr(w.Timeout, config.DefaultTimeout),
		}, nil, log))
	} else if w.Enabled == nil || *w.Enabled {
		log.Warn("webhook disabled: DISCORD_WEBHOOK_URL not set")
	}

	tg := cfg.Telegram
	if config.Active(tg.Enabled, tg.Token != "" && tg.ChatID != "") {
		s, err := telegram.New(telegram.Config{
			Token:   tg.Token,
			ChatID:  tg.ChatID,
			APIURL:  tg.APIURL,
			Delay:   config.DurationOr(tg.Delay, config.DefaultTelegramDelay),
			Timeout: config.DurationOr(tg.Timeout, config.DefaultTimeout),
		}, log)
		if err != nil {
			log.Warn("telegram disabled", logx.Err(err))
		} else {
			out = append(out, s)
		}
	} else if tg.Enabled != nil && *tg.Enabled {
		log.Warn("telegram disabled: TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set")
	}
	return out
}
