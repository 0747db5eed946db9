package syncer

import (
	"context"

	"github.com/daehokim/teambudget/internal/client/api"
	"github.com/daehokim/teambudget/internal/event"
)

// ServerAPI is the slice of the server client the engine depends on.
type ServerAPI interface {
	CreateEvent(ctx context.Context, payload event.CreatePayload) (*event.BudgetEvent, error)
	SyncSince(ctx context.Context, since int64) (*api.SyncResponse, error)
	GetSettings(ctx context.Context) (*api.TeamSettings, error)
	BulkCreateEvents(ctx context.Context, payloads []event.CreatePayload) ([]event.BudgetEvent, error)
}
