package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Environment variables consulted by ApplyEnv. The names match the ones the
// deployment already exports.
var envBindings = map[string]string{
	"email.user":       "EMAIL_USER",
	"email.pass":       "EMAIL_PASS",
	"email.receiver":   "EMAIL_RECEIVER",
	"telegram.token":   "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id": "TELEGRAM_CHAT_ID",
	"webhook.url":      "DISCORD_WEBHOOK_URL",
	"stream":           "STREAM_PREFIX",
	"recency_days":     "RECENCY_DAYS",
	"batch_size":       "NUM_SNIPPETS",
}

// NewEnv returns a viper instance bound to the supported environment
// variables, with SNIPCAST_* as a fallback prefix for everything else.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SNIPCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	v.AutomaticEnv()
	return v
}

// ApplyEnv overlays environment values on cfg. Set variables win over the
// file; unset ones leave it untouched.
func ApplyEnv(cfg *Config, v *viper.Viper) {
	if cfg == nil || v == nil {
		return
	}
	setStr := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	setInt := func(key string, dst *int) {
		if n := v.GetInt(key); n > 0 {
			*dst = n
		}
	}

	e := &cfg.Delivery.Email
	prevUser := e.Username
	setStr("email.user", &e.Username)
	setStr("email.pass", &e.Password)
	if e.From == "" || e.From == prevUser {
		e.From = e.Username
	}
	if s := strings.TrimSpace(v.GetString("email.receiver")); s != "" {
		e.To = splitList(s)
	}

	setStr("telegram.token", &cfg.Delivery.Telegram.Token)
	setStr("telegram.chat_id", &cfg.Delivery.Telegram.ChatID)
	setStr("webhook.url", &cfg.Delivery.Webhook.URL)
	setStr("stream", &cfg.Stream)
	setInt("recency_days", &cfg.Selection.RecencyDays)
	setInt("batch_size", &cfg.Selection.BatchSize)
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
