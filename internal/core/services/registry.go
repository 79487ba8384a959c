package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
)

type streamRegistry struct {
	streams map[string]domain.StreamConfig
	order   []string
	mu      sync.RWMutex
}

// NewStreamRegistry validates the given stream configurations and builds
// the registry. The whole load is rejected on the first invalid entry so
// a bad definition never reaches the supervisor.
func NewStreamRegistry(configs []domain.StreamConfig) (ports.Registry, error) {
	r := &streamRegistry{streams: make(map[string]domain.StreamConfig)}
	for _, cfg := range configs {
		if err := ValidateStream(cfg); err != nil {
			return nil, fmt.Errorf("stream %q: %w", cfg.Name, err)
		}
		if _, exists := r.streams[cfg.Name]; exists {
			return nil, fmt.Errorf("stream %q: %w", cfg.Name, domain.ErrDuplicateStream)
		}
		r.streams[cfg.Name] = cfg
		r.order = append(r.order, cfg.Name)
	}
	return r, nil
}

// ValidateStream checks a single stream configuration against the
// registry invariants.
func ValidateStream(cfg domain.StreamConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return domain.ErrEmptyStreamName
	}
	if strings.TrimSpace(cfg.EncoderTemplate) == "" {
		return domain.ErrEmptyEncoderTemplate
	}
	if !strings.Contains(cfg.EncoderTemplate, domain.InputPlaceholder) {
		return domain.ErrMissingInputPlaceholder
	}
	hasWebRTC := cfg.WebRTCURL != ""
	hasRTSP := cfg.RTSPURL != ""
	if hasWebRTC == hasRTSP {
		return domain.ErrAmbiguousInput
	}
	return nil
}

func (r *streamRegistry) List() []domain.StreamConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.StreamConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.streams[name])
	}
	return out
}

func (r *streamRegistry) Get(name string) (domain.StreamConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.streams[name]
	if !exists {
		return domain.StreamConfig{}, domain.ErrStreamNotFound
	}
	return cfg, nil
}

func (r *streamRegistry) Enabled() []domain.StreamConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []domain.StreamConfig
	for _, name := range r.order {
		if cfg := r.streams[name]; cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}
