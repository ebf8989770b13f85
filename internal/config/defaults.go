package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

const (
	DefaultRecencyDays   = 7
	DefaultBatchSize     = 5
	DefaultCharBudget    = 1900
	DefaultJoiner        = "\n\n---\nIn other news...\n\n"
	DefaultSeparator     = ".."
	DefaultExclude       = "Add new point"
	DefaultRepeatLabel   = "Repeated this week: "
	DefaultSubject       = "🌙 Your Daily Islamic Reminder"
	DefaultSMTPHost      = "smtp.gmail.com"
	DefaultSMTPPort      = 465
	DefaultWebhookDelay  = time.Second
	DefaultTelegramDelay = time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultStatusAddr    = "127.0.0.1:8089"

	legacySource  = "notion.txt"
	legacyHistory = "sent_snippets.json"
)

// DefaultCategories are the two alternating categories of the original feed.
func DefaultCategories() []CategoryRule {
	return []CategoryRule{
		{Name: "allah_says", Prefix: "Allah says\n“If you avoid the major sins which you are forbidden."},
		{Name: "knowing_allah", Prefix: "Knowing Allah, your Rab is the key"},
	}
}

// Default returns a normalized config with no file behind it.
func Default() *Config {
	c := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults. It is idempotent.
func (c *Config) Normalize() {
	s := &c.Selection
	if s.RecencyDays <= 0 {
		s.RecencyDays = DefaultRecencyDays
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.CharBudget == 0 {
		s.CharBudget = DefaultCharBudget
	}
	if s.Joiner == "" {
		s.Joiner = DefaultJoiner
	}
	if strings.TrimSpace(s.Separator) == "" {
		s.Separator = DefaultSeparator
	}
	if s.Exclude == "" {
		s.Exclude = DefaultExclude
	}
	if s.RepeatLabel == "" {
		s.RepeatLabel = DefaultRepeatLabel
	}
	if len(s.Categories) == 0 {
		s.Categories = DefaultCategories()
	}
	if s.StartCategory == "" && len(s.Categories) > 0 {
		s.StartCategory = s.Categories[0].Name
	}
	if s.Strategy == "" {
		s.Strategy = "fill"
	}

	if c.History.Driver == "" {
		c.History.Driver = "file"
	}
	if c.History.Path == "" && isSQLite(c.History.Driver) {
		c.History.Path = "./data/history.db"
	}

	e := &c.Delivery.Email
	if e.Host == "" {
		e.Host = DefaultSMTPHost
	}
	if e.Port == 0 {
		e.Port = DefaultSMTPPort
	}
	if e.Subject == "" {
		e.Subject = DefaultSubject
	}
	if e.From == "" {
		e.From = e.Username
	}

	if c.Status.Addr == "" {
		c.Status.Addr = DefaultStatusAddr
	}
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "sqlite" || d == "sqlite3"
}

// Validate reports configuration errors that would make every run fail.
func (c *Config) Validate() error {
	var errs []error
	s := c.Selection
	if len(s.Categories) < 2 {
		errs = append(errs, fmt.Errorf("selection.categories: need at least 2 rules, got %d", len(s.Categories)))
	}
	seen := map[string]bool{}
	for i, r := range s.Categories {
		name := strings.TrimSpace(r.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("selection.categories[%d]: empty name", i))
		case name == "other":
			errs = append(errs, fmt.Errorf("selection.categories[%d]: %q is reserved", i, name))
		case seen[name]:
			errs = append(errs, fmt.Errorf("selection.categories[%d]: duplicate name %q", i, name))
		}
		if r.Prefix == "" {
			errs = append(errs, fmt.Errorf("selection.categories[%d]: empty prefix", i))
		}
		seen[name] = true
	}
	if len(s.Categories) >= 2 && s.StartCategory != s.Categories[0].Name && s.StartCategory != s.Categories[1].Name {
		errs = append(errs, fmt.Errorf("selection.start_category: %q is not one of the alternating categories", s.StartCategory))
	}
	switch s.Strategy {
	case "fill", "sample":
	default:
		errs = append(errs, fmt.Errorf("selection.strategy: unknown %q", s.Strategy))
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("history.driver: unknown %q", c.History.Driver))
	}
	if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	for _, f := range []struct{ path, raw string }{
		{"delivery.email.timeout", c.Delivery.Email.Timeout},
		{"delivery.webhook.delay", c.Delivery.Webhook.Delay},
		{"delivery.webhook.timeout", c.Delivery.Webhook.Timeout},
		{"delivery.telegram.delay", c.Delivery.Telegram.Delay},
		{"delivery.telegram.timeout", c.Delivery.Telegram.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if st := c.Status; st.Enabled {
		host, _, err := net.SplitHostPort(st.Addr)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("status.addr: %w", err))
		case !isLoopback(host) && st.Token == "" && !st.AllowInsecure:
			errs = append(errs, fmt.Errorf("status.addr: %q is not loopback; set status.token or status.allow_insecure", st.Addr))
		}
	}
	for _, name := range c.StreamNames() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("streams: empty stream name"))
		}
		if c.Streams[name].BatchSize < 0 {
			errs = append(errs, fmt.Errorf("streams.%s.batch_size: must be >= 0", name))
		}
	}
	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// StreamNames returns configured stream names, sorted.
func (c *Config) StreamNames() []string {
	names := make([]string, 0, len(c.Streams))
	for n := range c.Streams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
