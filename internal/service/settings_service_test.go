package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/repository"
)

// memSettings stores values the way the JSONB column does: serialized.
type memSettings struct {
	values map[string][]byte
	saves  int
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string][]byte)}
}

func (m *memSettings) Get(_ context.Context, key string, out any) error {
	raw, ok := m.values[key]
	if !ok {
		return apperror.NotFound("setting", key)
	}
	return json.Unmarshal(raw, out)
}

func (m *memSettings) Save(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.saves++
	return nil
}

func TestSettingsDefaults(t *testing.T) {
	svc := NewSettingsService(newMemSettings(), zerolog.Nop())
	ctx := context.Background()

	require.Equal(t, int64(100000), svc.CEOApprovalThreshold(ctx))
	require.Equal(t, 48, svc.ApprovalTimeoutHours(ctx))

	settings := svc.ReminderSettings(ctx)
	require.Equal(t, repository.DefaultReminderSettings(), settings)
	require.Equal(t, 4, settings.High.InitialDelay)
	require.Equal(t, 8, settings.Medium.InitialDelay)
	require.Equal(t, 12, settings.Low.InitialDelay)
}

func TestSettingsSaveInvalidatesCache(t *testing.T) {
	store := newMemSettings()
	svc := NewSettingsService(store, zerolog.Nop())
	ctx := context.Background()

	// Prime the cache with the default.
	require.Equal(t, int64(100000), svc.CEOApprovalThreshold(ctx))

	require.NoError(t, svc.SaveCEOApprovalThreshold(ctx, 250000))
	require.Equal(t, int64(250000), svc.CEOApprovalThreshold(ctx))

	custom := repository.DefaultReminderSettings()
	custom.High.InitialDelay = 2
	require.NoError(t, svc.SaveReminderSettings(ctx, custom))
	require.Equal(t, 2, svc.ReminderSettings(ctx).High.InitialDelay)
}

func TestSettingsReadsAreCached(t *testing.T) {
	store := newMemSettings()
	require.NoError(t, store.Save(context.Background(), "approval.ceo_threshold", int64(50000)))
	store.values["approval.ceo_threshold"] = []byte(`50000`)

	svc := NewSettingsService(store, zerolog.Nop())
	require.Equal(t, int64(50000), svc.CEOApprovalThreshold(context.Background()))

	// Mutating the store behind the cache must not show up until invalidation.
	store.values["approval.ceo_threshold"] = []byte(`70000`)
	require.Equal(t, int64(50000), svc.CEOApprovalThreshold(context.Background()))
}

func TestSaveReminderSettingsValidation(t *testing.T) {
	svc := NewSettingsService(newMemSettings(), zerolog.Nop())
	ctx := context.Background()

	bad := repository.DefaultReminderSettings()
	bad.Medium.NormalInterval = 0
	err := svc.SaveReminderSettings(ctx, bad)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	bad = repository.DefaultReminderSettings()
	bad.TimeControl.WorkingDays.Days = []int{1, 2, 8}
	err = svc.SaveReminderSettings(ctx, bad)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))

	err = svc.SaveCEOApprovalThreshold(ctx, -1)
	require.Equal(t, apperror.CodeInvalidInput, apperror.CodeOf(err))
}
