package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/plan"
)

// KindChannel is the resource_state kind under which channel timetables live.
const KindChannel = "channel"

// PlanStore persists channel timetables on top of Store.
// Pins are runtime overrides and are never written.
type PlanStore struct {
	store *Store
}

// NewPlanStore creates a plan store backed by store.
func NewPlanStore(store *Store) *PlanStore {
	return &PlanStore{store: store}
}

// SaveChannel writes one channel, replacing any previous version.
func (s *PlanStore) SaveChannel(cfg plan.ChannelConfiguration) error {
	payload, err := encodeChannel(cfg)
	if err != nil {
		return err
	}
	if _, err := s.store.Set(KindChannel, cfg.ID, payload); err != nil {
		return fmt.Errorf("failed to save channel %s: %w", cfg.ID, err)
	}
	return nil
}

func encodeChannel(cfg plan.ChannelConfiguration) ([]byte, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: channel id is empty", plan.ErrInvalidArgument)
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channel %s: %w", cfg.ID, err)
	}
	return payload, nil
}

// DeleteChannel removes one channel. Deleting a missing channel is not an error.
func (s *PlanStore) DeleteChannel(id string) error {
	if err := s.store.Delete(KindChannel, id); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", id, err)
	}
	return nil
}

// Save replaces the whole stored plan with cfg atomically.
// An invalid channel or a database error leaves the stored plan as it was.
func (s *PlanStore) Save(cfg plan.Configuration) error {
	records := make(map[string][]byte, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		payload, err := encodeChannel(ch)
		if err != nil {
			return err
		}
		records[ch.ID] = payload
	}
	if err := s.store.ReplaceAll(KindChannel, records); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	log.Debug().Int("channels", len(records)).Msg("Plan saved")
	return nil
}

// Load reads every stored channel, sorted by id.
func (s *PlanStore) Load() (plan.Configuration, error) {
	payloads, _, err := s.store.GetAll(KindChannel)
	if err != nil {
		return plan.Configuration{}, fmt.Errorf("failed to load channels: %w", err)
	}

	ids := make([]string, 0, len(payloads))
	for id := range payloads {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cfg := plan.Configuration{Channels: make([]plan.ChannelConfiguration, 0, len(ids))}
	for _, id := range ids {
		var ch plan.ChannelConfiguration
		if err := json.Unmarshal(payloads[id], &ch); err != nil {
			log.Warn().Err(err).Str("channel", id).Msg("Skipping corrupt stored channel")
			continue
		}
		cfg.Channels = append(cfg.Channels, ch)
	}
	return cfg, nil
}

// Empty reports whether no channel is stored.
func (s *PlanStore) Empty() (bool, error) {
	payloads, _, err := s.store.GetAll(KindChannel)
	if err != nil {
		return false, fmt.Errorf("failed to load channels: %w", err)
	}
	return len(payloads) == 0, nil
}

// Clear removes every stored channel.
func (s *PlanStore) Clear() error {
	if err := s.store.Clear(KindChannel); err != nil {
		return fmt.Errorf("failed to clear channels: %w", err)
	}
	return nil
}
