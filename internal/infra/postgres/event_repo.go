package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daehokim/teambudget/internal/event"
)

// EventRepository implements the server event log on PostgreSQL. Sequences
// come from the table's BIGSERIAL, so they are assigned monotonically no
// matter how many writers race.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new PostgreSQL event repository
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const eventColumns = `sequence, event_type, event_date, year, month, author_name, amount,
	store_name, description, receipt_image, ocr_raw_data, reference_sequence, created_at`

// Insert appends one event and returns it with its assigned sequence.
func (r *EventRepository) Insert(ctx context.Context, p event.CreatePayload) (*event.BudgetEvent, error) {
	query := `
		INSERT INTO budget_events
			(event_type, event_date, year, month, author_name, amount,
			 store_name, description, receipt_image, ocr_raw_data, reference_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + eventColumns

	row := r.pool.QueryRow(ctx, query,
		string(p.EventType), p.EventDate, p.Year, p.Month, p.AuthorName, p.Amount,
		p.StoreName, p.Description, p.ReceiptImage, p.OcrRawData, p.ReferenceSequence,
	)
	created, err := scanEventRow(row)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// BulkInsert appends events inside one transaction, preserving input order.
func (r *EventRepository) BulkInsert(ctx context.Context, payloads []event.CreatePayload) ([]event.BudgetEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO budget_events
			(event_type, event_date, year, month, author_name, amount,
			 store_name, description, receipt_image, ocr_raw_data, reference_sequence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		RETURNING ` + eventColumns

	created := make([]event.BudgetEvent, 0, len(payloads))
	for i := range payloads {
		p := &payloads[i]
		row := tx.QueryRow(ctx, query,
			string(p.EventType), p.EventDate, p.Year, p.Month, p.AuthorName, p.Amount,
			p.StoreName, p.Description, p.ReceiptImage, p.OcrRawData, p.ReferenceSequence,
		)
		e, err := scanEventRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to insert event %d of %d: %w", i+1, len(payloads), err)
		}
		created = append(created, *e)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return created, nil
}

// EventsSince returns events with sequence strictly greater than since.
func (r *EventRepository) EventsSince(ctx context.Context, since int64) ([]event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE sequence > $1 ORDER BY sequence ASC`, eventColumns)
	return r.queryEvents(ctx, query, since)
}

// EventsByMonth returns the month's events ordered by sequence.
func (r *EventRepository) EventsByMonth(ctx context.Context, year, month int) ([]event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE year = $1 AND month = $2 ORDER BY sequence ASC`, eventColumns)
	return r.queryEvents(ctx, query, year, month)
}

// FindBySequence returns one event by its sequence.
func (r *EventRepository) FindBySequence(ctx context.Context, sequence int64) (*event.BudgetEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM budget_events WHERE sequence = $1`, eventColumns)
	e, err := scanEventRow(r.pool.QueryRow(ctx, query, sequence))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, event.ErrEventNotFound
	}
	return e, err
}

// FindReversalOf returns the reversal referencing the sequence, or nil.
func (r *EventRepository) FindReversalOf(ctx context.Context, sequence int64) (*event.BudgetEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM budget_events
		WHERE reference_sequence = $1 AND event_type = $2
		ORDER BY sequence DESC LIMIT 1`, eventColumns)
	e, err := scanEventRow(r.pool.QueryRow(ctx, query, sequence, string(event.TypeExpenseReversal)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// FindDefaultMonthlyBudget returns the month's system BUDGET_IN event.
func (r *EventRepository) FindDefaultMonthlyBudget(ctx context.Context, year, month int) (*event.BudgetEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM budget_events
		WHERE year = $1 AND month = $2 AND event_type = $3 AND author_name = $4 AND description = $5
		LIMIT 1`, eventColumns)
	e, err := scanEventRow(r.pool.QueryRow(ctx, query,
		year, month, string(event.TypeBudgetIn), event.SystemAuthor, event.MonthlyBudgetDescription))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, event.ErrEventNotFound
	}
	return e, err
}

// LatestSequence returns the highest assigned sequence, 0 when empty.
func (r *EventRepository) LatestSequence(ctx context.Context) (int64, error) {
	var latest int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM budget_events`).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest sequence: %w", err)
	}
	return latest, nil
}

// LatestResetSequence returns the newest BUDGET_RESET sequence, 0 when none.
func (r *EventRepository) LatestResetSequence(ctx context.Context) (int64, error) {
	var latest int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM budget_events WHERE event_type = $1`,
		string(event.TypeBudgetReset)).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest reset sequence: %w", err)
	}
	return latest, nil
}

// Count returns the total number of events.
func (r *EventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM budget_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// IsDuplicate reports whether err is a PostgreSQL unique violation.
func (r *EventRepository) IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]event.BudgetEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.BudgetEvent
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEventRow(row pgx.Row) (*event.BudgetEvent, error) {
	var (
		e         event.BudgetEvent
		eventType string
	)
	err := row.Scan(
		&e.Sequence, &eventType, &e.EventDate, &e.Year, &e.Month, &e.AuthorName, &e.Amount,
		&e.StoreName, &e.Description, &e.ReceiptImage, &e.OcrRawData, &e.ReferenceSequence,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.EventType = event.Type(eventType)
	return &e, nil
}
