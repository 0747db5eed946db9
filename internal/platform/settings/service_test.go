package settings_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daehokim/teambudget/internal/platform/settings"
	apperrors "github.com/daehokim/teambudget/internal/shared/errors"
	"github.com/daehokim/teambudget/pkg/logger"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockRepository) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockRepository) All(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

var _ settings.Repository = (*MockRepository)(nil)

func newService(repo *MockRepository) *settings.Service {
	return settings.NewService(repo, logger.New("test", os.Stdout))
}

func TestGet_ParsesDefaultMonthlyBudget(t *testing.T) {
	repo := new(MockRepository)
	repo.On("All", mock.Anything).Return(map[string]string{
		"defaultMonthlyBudget": "500000",
		"teamName":             "플랫폼팀",
	}, nil).Once()

	result, err := newService(repo).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500000), result.DefaultMonthlyBudget)
	assert.Equal(t, "플랫폼팀", result.Values["teamName"])
}

func TestGet_MissingBudgetDefaultsToZero(t *testing.T) {
	repo := new(MockRepository)
	repo.On("All", mock.Anything).Return(map[string]string{}, nil).Once()

	result, err := newService(repo).Get(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.DefaultMonthlyBudget)
}

func TestSetDefaultMonthlyBudget(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Set", mock.Anything, "defaultMonthlyBudget", "300000").Return(nil).Once()

	err := newService(repo).SetDefaultMonthlyBudget(context.Background(), 300000)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSetDefaultMonthlyBudget_RejectsNegative(t *testing.T) {
	repo := new(MockRepository)

	err := newService(repo).SetDefaultMonthlyBudget(context.Background(), -1)
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
	repo.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetValue_RequiresKey(t *testing.T) {
	repo := new(MockRepository)

	err := newService(repo).SetValue(context.Background(), "", "value")
	require.Error(t, err)
	repo.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}
