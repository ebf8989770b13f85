package config

import (
	"reflect"

	logx "snipcast/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attributes for the reload log line. Credentials are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 8)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Selection, newCfg.Selection) {
		changed = append(changed, "selection")
		attrs = append(attrs,
			logx.Int("selection.batch_size", newCfg.Selection.BatchSize),
			logx.Int("selection.recency_days", newCfg.Selection.RecencyDays),
		)
	}
	if oldCfg.Stream != newCfg.Stream || !reflect.DeepEqual(oldCfg.Streams, newCfg.Streams) {
		changed = append(changed, "streams")
		attrs = append(attrs, logx.Strings("streams", newCfg.StreamNames()))
	}
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs, logx.String("history.driver", newCfg.History.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		d := newCfg.Delivery
		attrs = append(attrs,
			logx.Bool("delivery.email", Active(d.Email.Enabled, d.Email.Username != "" && len(d.Email.To) > 0)),
			logx.Bool("delivery.webhook", Active(d.Webhook.Enabled, d.Webhook.URL != "")),
			logx.Bool("delivery.telegram", Active(d.Telegram.Enabled, d.Telegram.Token != "" && d.Telegram.ChatID != "")),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", newCfg.Status.Addr),
		)
	}
	return changed, attrs
}
