// Package settings manages the encrypted configuration documents that
// drive the bot at runtime: the Security Onion connection, per-platform
// chat service credentials and system toggles. Values are sealed before
// they reach the store and unsealed on the way out, so neither the
// database file nor backups contain plaintext credentials.
package settings

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/security-onion-solutions/shallot/internal/auth"
	"github.com/security-onion-solutions/shallot/internal/bus"
	"github.com/security-onion-solutions/shallot/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrUnknownKey is returned for settings keys outside the known set.
var ErrUnknownKey = errors.New("unknown setting key")

// secretFields lists JSON field names masked in List output when the
// caller is not allowed to see plaintext credentials.
var secretFields = []string{"clientSecret", "botToken", "appToken", "signingSecret", "accessToken"}

type seedEntry struct {
	Key         string         `yaml:"key"`
	Description string         `yaml:"description"`
	Value       map[string]any `yaml:"value"`
}

type seedFile struct {
	Settings []seedEntry `yaml:"settings"`
}

// Value is a decrypted settings document as handed to callers.
type Value struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Service seals, unseals and validates settings documents on top of a
// domain.Store. Put emits bus.EventSettingUpdated so running clients
// can reinitialize.
type Service struct {
	store  domain.Store
	sealer *auth.Sealer
	events *bus.EventBus
	logger *slog.Logger
}

func NewService(store domain.Store, sealer *auth.Sealer, events *bus.EventBus, logger *slog.Logger) *Service {
	return &Service{store: store, sealer: sealer, events: events, logger: logger}
}

// knownKeys returns the full set of valid settings keys.
func knownKeys() []string {
	keys := []string{domain.SettingSystem, domain.SettingSecurityOnion}
	for _, p := range domain.ChatPlatforms {
		keys = append(keys, p.SettingsKey())
	}
	return keys
}

func isKnownKey(key string) bool {
	for _, k := range knownKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func isChatKey(key string) bool {
	for _, p := range domain.ChatPlatforms {
		if p.SettingsKey() == key {
			return true
		}
	}
	return false
}

// Seed writes default documents for any known key missing from the
// store. Existing rows are never touched.
func (s *Service) Seed(ctx context.Context) error {
	var seed seedFile
	if err := yaml.Unmarshal(defaultsYAML, &seed); err != nil {
		return fmt.Errorf("parse embedded defaults: %w", err)
	}

	created := 0
	for _, entry := range seed.Settings {
		_, err := s.store.GetSetting(ctx, entry.Key)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		plaintext, err := json.Marshal(entry.Value)
		if err != nil {
			return fmt.Errorf("marshal default for %s: %w", entry.Key, err)
		}
		sealed, err := s.sealer.Seal(plaintext)
		if err != nil {
			return fmt.Errorf("seal default for %s: %w", entry.Key, err)
		}
		err = s.store.PutSetting(ctx, domain.Setting{
			Key:         entry.Key,
			Value:       sealed,
			Description: entry.Description,
		})
		if err != nil {
			return err
		}
		created++
	}

	if created > 0 {
		s.logger.Info("seeded default settings", "count", created)
	}
	return nil
}

// Get returns the decrypted document for key.
func (s *Service) Get(ctx context.Context, key string) (*Value, error) {
	if !isKnownKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	row, err := s.store.GetSetting(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.sealer.Open(row.Value)
	if err != nil {
		return nil, fmt.Errorf("unseal %s: %w", key, err)
	}
	return &Value{
		Key:         row.Key,
		Value:       plaintext,
		Description: row.Description,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// GetRedacted returns the document for key with credential fields
// masked, for callers not allowed plaintext secrets.
func (s *Service) GetRedacted(ctx context.Context, key string) (*Value, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	masked, err := maskSecrets(v.Value)
	if err != nil {
		return nil, fmt.Errorf("mask %s: %w", key, err)
	}
	v.Value = masked
	return v, nil
}

// List returns all decrypted documents. When revealSecrets is false,
// credential fields are masked.
func (s *Service) List(ctx context.Context, revealSecrets bool) ([]Value, error) {
	rows, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, len(rows))
	for _, row := range rows {
		plaintext, err := s.sealer.Open(row.Value)
		if err != nil {
			s.logger.Warn("cannot unseal setting, skipping", "key", row.Key, "err", err)
			continue
		}
		if !revealSecrets {
			plaintext, err = maskSecrets(plaintext)
			if err != nil {
				return nil, fmt.Errorf("mask %s: %w", row.Key, err)
			}
		}
		values = append(values, Value{
			Key:         row.Key,
			Value:       plaintext,
			Description: row.Description,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return values, nil
}

// Put validates, seals and stores a settings document. Enabling one
// chat service disables all others so exactly one bot identity is live
// at a time. Every changed key is announced on the event bus.
func (s *Service) Put(ctx context.Context, key string, value json.RawMessage) (*Value, error) {
	if !isKnownKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := validateShape(key, value); err != nil {
		return nil, err
	}

	if isChatKey(key) {
		var cs domain.ChatServiceSettings
		if err := json.Unmarshal(value, &cs); err != nil {
			return nil, fmt.Errorf("parse chat settings: %w", err)
		}
		if cs.Enabled {
			if err := s.disableOthers(ctx, key); err != nil {
				return nil, err
			}
		}
	}

	description := s.descriptionFor(ctx, key)
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return nil, fmt.Errorf("seal %s: %w", key, err)
	}
	err = s.store.PutSetting(ctx, domain.Setting{
		Key:         key,
		Value:       sealed,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("setting updated", "key", key)
	s.events.Emit(bus.Event{
		Type:    bus.EventSettingUpdated,
		Source:  "settings",
		Payload: map[string]any{"key": key},
	})

	return &Value{Key: key, Value: value, Description: description, UpdatedAt: time.Now()}, nil
}

// disableOthers flips enabled=false on every other chat-service
// document that currently has it set.
func (s *Service) disableOthers(ctx context.Context, keepKey string) error {
	for _, p := range domain.ChatPlatforms {
		key := p.SettingsKey()
		if key == keepKey {
			continue
		}
		row, err := s.store.GetSetting(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		plaintext, err := s.sealer.Open(row.Value)
		if err != nil {
			s.logger.Warn("cannot unseal setting during disable sweep", "key", key, "err", err)
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(plaintext, &doc); err != nil {
			return err
		}
		enabled, _ := doc["enabled"].(bool)
		if !enabled {
			continue
		}
		doc["enabled"] = false
		updated, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		sealed, err := s.sealer.Seal(updated)
		if err != nil {
			return err
		}
		row.Value = sealed
		if err := s.store.PutSetting(ctx, *row); err != nil {
			return err
		}
		s.logger.Info("chat service disabled, another was enabled", "key", key, "enabled_key", keepKey)
		s.events.Emit(bus.Event{
			Type:    bus.EventSettingUpdated,
			Source:  "settings",
			Payload: map[string]any{"key": key},
		})
	}
	return nil
}

func (s *Service) descriptionFor(ctx context.Context, key string) string {
	if row, err := s.store.GetSetting(ctx, key); err == nil && row.Description != "" {
		return row.Description
	}
	var seed seedFile
	if err := yaml.Unmarshal(defaultsYAML, &seed); err == nil {
		for _, entry := range seed.Settings {
			if entry.Key == key {
				return entry.Description
			}
		}
	}
	return ""
}

// validateShape rejects documents that do not parse as the typed
// structure for their key.
func validateShape(key string, value json.RawMessage) error {
	var err error
	switch {
	case key == domain.SettingSystem:
		err = json.Unmarshal(value, &domain.SystemSettings{})
	case key == domain.SettingSecurityOnion:
		err = json.Unmarshal(value, &domain.SecurityOnionSettings{})
	default:
		err = json.Unmarshal(value, &domain.ChatServiceSettings{})
	}
	if err != nil {
		return fmt.Errorf("invalid document for %s: %w", key, err)
	}
	return nil
}

// --- typed accessors ---

func (s *Service) System(ctx context.Context) (domain.SystemSettings, error) {
	var out domain.SystemSettings
	v, err := s.Get(ctx, domain.SettingSystem)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(v.Value, &out)
	return out, err
}

func (s *Service) SecurityOnion(ctx context.Context) (domain.SecurityOnionSettings, error) {
	var out domain.SecurityOnionSettings
	v, err := s.Get(ctx, domain.SettingSecurityOnion)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(v.Value, &out)
	return out, err
}

func (s *Service) ChatService(ctx context.Context, platform domain.Platform) (domain.ChatServiceSettings, error) {
	var out domain.ChatServiceSettings
	v, err := s.Get(ctx, platform.SettingsKey())
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(v.Value, &out)
	return out, err
}

// EnabledChatService returns the platform whose chat service is
// currently enabled, or "" when none is.
func (s *Service) EnabledChatService(ctx context.Context) (domain.Platform, domain.ChatServiceSettings, error) {
	for _, p := range domain.ChatPlatforms {
		cs, err := s.ChatService(ctx, p)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", domain.ChatServiceSettings{}, err
		}
		if cs.Enabled {
			return p, cs, nil
		}
	}
	return "", domain.ChatServiceSettings{}, nil
}

// maskSecrets replaces credential field values with a redacted form
// that keeps the first and last four characters.
func maskSecrets(value json.RawMessage) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, err
	}
	for _, field := range secretFields {
		if raw, ok := doc[field].(string); ok && raw != "" {
			doc[field] = maskString(raw)
		}
	}
	return json.Marshal(doc)
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
