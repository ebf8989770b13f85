package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes turns a YAML file into JSON so both formats go through
// the same strict decoder (DisallowUnknownFields). JSON input is returned
// unchanged. The second result is the detected format.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if !isYAMLPath(path) {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return []byte("{}"), "yaml", nil
	}

	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// normalizeYAML stringifies map keys so the tree can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// Redacted returns a copy of cfg with credentials masked.
func Redacted(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cp := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	cp.Delivery.Email.Password = mask(cp.Delivery.Email.Password)
	cp.Delivery.Telegram.Token = mask(cp.Delivery.Telegram.Token)
	cp.Delivery.Webhook.URL = mask(cp.Delivery.Webhook.URL)
	cp.Status.Token = mask(cp.Status.Token)
	return &cp
}

// MarshalYAML renders cfg as YAML using its JSON field names.
func MarshalYAML(cfg *Config) ([]byte, error) {
	j, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(j, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
