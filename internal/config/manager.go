package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	logx "snipcast/pkg/logx"
)

// ConfigManager owns the current configuration: the optional file, the
// environment overlay and, in daemon mode, reloads published to
// subscribers.
type ConfigManager struct {
	path string
	env  *viper.Viper
	log  logx.Logger

	validate func(ctx context.Context, cfg *Config) error
	debounce time.Duration

	mu      sync.RWMutex
	current *Config
	hash    uint64

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

// NewConfigManager reads from path; an empty path means defaults plus env.
// env may be nil.
func NewConfigManager(path string, env *viper.Viper) *ConfigManager {
	return &ConfigManager{
		path:     strings.TrimSpace(path),
		env:      env,
		log:      logx.Nop(),
		debounce: 250 * time.Millisecond,
		subs:     map[chan *Config]struct{}{},
	}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator adds a check that a reloaded config must pass before it is
// committed, on top of Config.Validate.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validate = fn
}

// Parse builds a normalized config without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	cfg := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	if m.path != "" {
		raw, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		cfg = &Config{}
		if err := decodeStrict(m.path, raw, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", m.path, err)
		}
	}
	ApplyEnv(cfg, m.env)
	cfg.Normalize()
	return cfg, nil
}

// decodeStrict rejects unknown keys and anything after the first document.
func decodeStrict(path string, data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	js, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("trailing data after config document")
	default:
		return err
	}
}

// Load parses and validates, then commits.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.current, m.hash = cfg, h
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe returns a channel that receives every committed reload.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish never blocks: a full subscriber drops its oldest pending config
// so the newest always gets through.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload runs once per debounced burst of file events.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
		return
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}

	err = cfg.Validate()
	if err == nil && m.validate != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = m.validate(vctx, cfg)
		cancel()
	}
	if err != nil {
		m.log.Warn("config reload rejected; keeping current", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config reload published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%016x", h)))
}
