package local

import (
	"context"
	"strconv"

	"github.com/daehokim/teambudget/internal/client/store"
)

// Settings keys mirrored from the server plus client-only markers.
const (
	settingDefaultMonthlyBudget = "defaultMonthlyBudget"
	settingInitialSyncDone      = "initialSyncCompleted"
)

// SettingsService stores team settings mirrored from the server and
// client-only bookkeeping flags.
type SettingsService struct {
	store *store.Store
}

func NewSettingsService(st *store.Store) *SettingsService {
	return &SettingsService{store: st}
}

// DefaultMonthlyBudget returns the cached default monthly budget amount, or 0
// when the setting was never fetched.
func (s *SettingsService) DefaultMonthlyBudget(ctx context.Context) (int64, error) {
	raw, err := s.store.GetSetting(ctx, settingDefaultMonthlyBudget)
	if err != nil || raw == "" {
		return 0, err
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return amount, nil
}

// SetDefaultMonthlyBudget caches the server's default monthly budget amount.
func (s *SettingsService) SetDefaultMonthlyBudget(ctx context.Context, amount int64) error {
	return s.store.SetSetting(ctx, settingDefaultMonthlyBudget, strconv.FormatInt(amount, 10))
}

// ReplaceAll overwrites the mirrored settings, used after a reset refetch.
func (s *SettingsService) ReplaceAll(ctx context.Context, settings map[string]string) error {
	for key, value := range settings {
		if err := s.store.SetSetting(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// InitialSyncCompleted reports whether the first full sync has finished.
// Recurring budget creation is suppressed until it has.
func (s *SettingsService) InitialSyncCompleted(ctx context.Context) (bool, error) {
	raw, err := s.store.GetSetting(ctx, settingInitialSyncDone)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

// MarkInitialSyncCompleted records that the first full sync finished.
func (s *SettingsService) MarkInitialSyncCompleted(ctx context.Context) error {
	return s.store.SetSetting(ctx, settingInitialSyncDone, "true")
}
