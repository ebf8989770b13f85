package config

// Config is the on-disk configuration. Every section is optional; Normalize
// fills the defaults that reproduce the single-stream setup.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Selection SelectionConfig `json:"selection"`

	// Stream is the default stream selector (overridden by STREAM_PREFIX and
	// the --stream flag).
	Stream  string                  `json:"stream,omitempty"`
	Streams map[string]StreamConfig `json:"streams,omitempty"`

	History   HistoryConfig   `json:"history"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Status    StatusConfig    `json:"status"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SelectionConfig holds the defaults shared by every stream.
type SelectionConfig struct {
	RecencyDays int `json:"recency_days,omitempty"`
	BatchSize   int `json:"batch_size,omitempty"`
	CharBudget  int `json:"char_budget,omitempty"`

	// Joiner is placed between snippets in a delivered message.
	Joiner string `json:"joiner,omitempty"`
	// Separator is the source-file line token between snippets.
	Separator      string `json:"separator,omitempty"`
	ExactSeparator bool   `json:"exact_separator,omitempty"`
	Exclude        string `json:"exclude,omitempty"`
	RepeatLabel    string `json:"repeat_label,omitempty"`

	// Categories are matched top-down; the first two alternate.
	Categories    []CategoryRule `json:"categories,omitempty"`
	StartCategory string         `json:"start_category,omitempty"`
	OtherDedup    bool           `json:"other_dedup,omitempty"`

	// Strategy is "fill" (deterministic order) or "sample" (random order).
	Strategy string `json:"strategy,omitempty"`
}

type CategoryRule struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Dedup  bool   `json:"dedup,omitempty"`
}

// StreamConfig binds one source file to one history.
type StreamConfig struct {
	Source  string `json:"source,omitempty"`
	History string `json:"history,omitempty"`

	BatchSize  int   `json:"batch_size,omitempty"`
	CharBudget int   `json:"char_budget,omitempty"`
	Chunking   *bool `json:"chunking,omitempty"`

	// Schedule is used by the daemon: cron expression, Go duration or HH:MM.
	Schedule string `json:"schedule,omitempty"`
	Subject  string `json:"subject,omitempty"`
}

// HistoryConfig selects the history backend.
//
// The file driver stores one JSON document per stream (StreamConfig.History).
// The sqlite driver keeps all streams in one database at Path.
type HistoryConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type DeliveryConfig struct {
	Email    EmailConfig    `json:"email"`
	Webhook  WebhookConfig  `json:"webhook"`
	Telegram TelegramConfig `json:"telegram"`
}

// Enabled is a pointer so "omitted" (enabled when credentials are present)
// differs from an explicit false.
type EmailConfig struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Host     string   `json:"host,omitempty"`
	Port     int      `json:"port,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	From     string   `json:"from,omitempty"`
	To       []string `json:"to,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
}

type WebhookConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	URL     string `json:"url,omitempty"`
	Delay   string `json:"delay,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Token   string `json:"token,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
	APIURL  string `json:"api_url,omitempty"`
	Delay   string `json:"delay,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}

// StatusConfig controls the daemon's HTTP status listener.
//
// A non-loopback Addr requires Token unless AllowInsecure is set.
type StatusConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// Active reports whether an adapter should be built: explicitly enabled, or
// not disabled and configured.
func Active(enabled *bool, configured bool) bool {
	if enabled != nil {
		return *enabled && configured
	}
	return configured
}
