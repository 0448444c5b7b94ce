package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// Setting keys in the config_settings table.
const (
	settingCEOThreshold     = "approval.ceo_threshold"
	settingTimeoutHours     = "approval.timeout_hours"
	settingReminderSettings = "reminder.settings"
)

// Compiled-in defaults, used until an admin saves an override.
const (
	defaultCEOThreshold = 100000 // major currency units
	defaultTimeoutHours = 48
)

// SettingsStore persists typed settings values.
type SettingsStore interface {
	Get(ctx context.Context, key string, out any) error
	Save(ctx context.Context, key string, value any) error
}

// SettingsService is the process's configuration provider: values live in the
// settings store and are cached in memory, invalidated on save. Concurrent
// reads during a write are tolerated; settings only steer scheduling cadence
// and routing thresholds, never state-machine correctness.
type SettingsService struct {
	store SettingsStore
	log   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]any
}

// NewSettingsService creates a new SettingsService.
func NewSettingsService(store SettingsStore, log zerolog.Logger) *SettingsService {
	return &SettingsService{
		store: store,
		log:   log,
		cache: make(map[string]any),
	}
}

// CEOApprovalThreshold returns the amount above which CEO approval is forced.
func (s *SettingsService) CEOApprovalThreshold(ctx context.Context) int64 {
	if v, ok := s.cached(settingCEOThreshold); ok {
		return v.(int64)
	}
	var threshold int64
	if err := s.store.Get(ctx, settingCEOThreshold, &threshold); err != nil {
		if apperror.CodeOf(err) != apperror.CodeNotFound {
			s.log.Warn().Err(err).Msg("settings: falling back to default CEO threshold")
		}
		threshold = defaultCEOThreshold
	}
	s.put(settingCEOThreshold, threshold)
	return threshold
}

// ApprovalTimeoutHours returns the approval SLA in hours, 0 = unlimited.
func (s *SettingsService) ApprovalTimeoutHours(ctx context.Context) int {
	if v, ok := s.cached(settingTimeoutHours); ok {
		return v.(int)
	}
	var hours int
	if err := s.store.Get(ctx, settingTimeoutHours, &hours); err != nil {
		if apperror.CodeOf(err) != apperror.CodeNotFound {
			s.log.Warn().Err(err).Msg("settings: falling back to default approval timeout")
		}
		hours = defaultTimeoutHours
	}
	s.put(settingTimeoutHours, hours)
	return hours
}

// ReminderSettings returns the escalation policy.
func (s *SettingsService) ReminderSettings(ctx context.Context) repository.ReminderSettings {
	if v, ok := s.cached(settingReminderSettings); ok {
		return v.(repository.ReminderSettings)
	}
	settings := repository.DefaultReminderSettings()
	if err := s.store.Get(ctx, settingReminderSettings, &settings); err != nil {
		if apperror.CodeOf(err) != apperror.CodeNotFound {
			s.log.Warn().Err(err).Msg("settings: falling back to default reminder settings")
		}
		settings = repository.DefaultReminderSettings()
	}
	s.put(settingReminderSettings, settings)
	return settings
}

// SaveReminderSettings replaces the escalation policy.
func (s *SettingsService) SaveReminderSettings(ctx context.Context, settings repository.ReminderSettings) error {
	if err := validateReminderSettings(settings); err != nil {
		return err
	}
	if err := s.store.Save(ctx, settingReminderSettings, settings); err != nil {
		return err
	}
	s.invalidate(settingReminderSettings)
	s.log.Info().Msg("settings: reminder settings replaced")
	return nil
}

// SaveCEOApprovalThreshold replaces the routing threshold.
func (s *SettingsService) SaveCEOApprovalThreshold(ctx context.Context, threshold int64) error {
	if threshold < 0 {
		return apperror.InvalidInput("threshold", "must not be negative")
	}
	if err := s.store.Save(ctx, settingCEOThreshold, threshold); err != nil {
		return err
	}
	s.invalidate(settingCEOThreshold)
	return nil
}

func validateReminderSettings(settings repository.ReminderSettings) error {
	for _, set := range []repository.IntervalSet{settings.High, settings.Medium, settings.Low} {
		if set.InitialDelay <= 0 || set.NormalInterval <= 0 || set.MediumInterval <= 0 || set.UrgentInterval <= 0 {
			return apperror.InvalidInput("intervals", "all intervals must be positive hours")
		}
	}
	for _, d := range settings.TimeControl.WorkingDays.Days {
		if d < 1 || d > 7 {
			return apperror.InvalidInput("workingDays.days", "days are ISO weekday numbers 1-7")
		}
	}
	return nil
}

func (s *SettingsService) cached(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

func (s *SettingsService) put(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = v
}

func (s *SettingsService) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, key)
}
