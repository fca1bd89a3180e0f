// Package identity manages the bridge's persisted identity so clients and
// MQTT consumers can tell multiple bridge instances apart.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Info contains the bridge identity information.
type Info struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Target string `json:"target"` // host:port of the controlled device
}

// Service loads and persists the bridge identity.
type Service struct {
	mu         sync.RWMutex
	configPath string
	info       Info
}

// persistedConfig is the format stored on disk.
type persistedConfig struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// NewService loads the identity from configPath, generating and persisting
// a new one when none exists.
func NewService(configPath, target string) (*Service, error) {
	svc := &Service{
		configPath: configPath,
		info:       Info{Target: target},
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := svc.loadConfig(); err != nil {
		log.Debug().Err(err).Msg("No existing bridge identity, generating a new one")
		svc.info.UUID = uuid.New().String()
		svc.info.Name = defaultBridgeName()

		if err := svc.saveConfig(); err != nil {
			return nil, fmt.Errorf("failed to save bridge identity: %w", err)
		}
	}

	log.Info().
		Str("uuid", svc.info.UUID).
		Str("name", svc.info.Name).
		Msg("Bridge identity initialized")

	return svc, nil
}

// loadConfig loads the identity from disk.
func (s *Service) loadConfig() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	var cfg persistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid config format: %w", err)
	}
	if cfg.UUID == "" {
		return fmt.Errorf("config missing UUID")
	}

	s.info.UUID = cfg.UUID
	s.info.Name = cfg.Name
	if s.info.Name == "" {
		s.info.Name = defaultBridgeName()
	}
	return nil
}

// saveConfig persists the identity to disk.
func (s *Service) saveConfig() error {
	data, err := json.MarshalIndent(persistedConfig{
		UUID: s.info.UUID,
		Name: s.info.Name,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath, data, 0644)
}

// GetInfo returns the current identity.
func (s *Service) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// SetName updates the bridge name and persists it.
func (s *Service) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.Name = name
	return s.saveConfig()
}

// defaultBridgeName returns the hostname, falling back to a fixed name.
func defaultBridgeName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "ATV Bridge"
	}
	return hostname
}
