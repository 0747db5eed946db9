// Package settings holds the server's authoritative team settings, most
// importantly the default monthly budget amount used by recurring budget
// creation.
package settings

import (
	"context"
	"strconv"

	apperrors "github.com/daehokim/teambudget/internal/shared/errors"
	"github.com/daehokim/teambudget/pkg/logger"
)

const keyDefaultMonthlyBudget = "defaultMonthlyBudget"

// TeamSettings is the settings document served to clients.
type TeamSettings struct {
	DefaultMonthlyBudget int64             `json:"defaultMonthlyBudget"`
	Values               map[string]string `json:"values"`
}

// Service reads and writes team settings.
type Service struct {
	repo   Repository
	logger *logger.Logger
}

func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log.WithField("service", "settings"),
	}
}

// Get returns the full settings document.
func (s *Service) Get(ctx context.Context) (*TeamSettings, error) {
	values, err := s.repo.All(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load settings", err)
	}

	result := &TeamSettings{Values: values}
	if raw, ok := values[keyDefaultMonthlyBudget]; ok {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperrors.Internal("corrupt default monthly budget setting", err)
		}
		result.DefaultMonthlyBudget = amount
	}
	return result, nil
}

// SetDefaultMonthlyBudget updates the recurring budget amount. Zero disables
// automatic monthly budget creation; negative amounts are rejected.
func (s *Service) SetDefaultMonthlyBudget(ctx context.Context, amount int64) error {
	if amount < 0 {
		return apperrors.Validation("default monthly budget cannot be negative")
	}
	if err := s.repo.Set(ctx, keyDefaultMonthlyBudget, strconv.FormatInt(amount, 10)); err != nil {
		return apperrors.DatabaseError("failed to save default monthly budget", err)
	}
	s.logger.Info("default monthly budget updated", "amount", amount)
	return nil
}

// SetValue upserts an arbitrary settings key.
func (s *Service) SetValue(ctx context.Context, key, value string) error {
	if key == "" {
		return apperrors.Validation("settings key is required")
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		return apperrors.DatabaseError("failed to save setting", err)
	}
	return nil
}
