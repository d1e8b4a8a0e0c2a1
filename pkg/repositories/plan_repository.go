package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// PlanRepository provides data access for plans and their change logs.
// Change log entries are only ever appended, under a row lock, with keys
// strictly later than every existing key.
type PlanRepository interface {
	// Create inserts a plan whose change log holds only the creation marker.
	Create(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	// ListByAccount returns plans newest first.
	ListByAccount(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error)
	// Update applies the non-nil fields and appends {<ts>: changes} to the change log.
	Update(ctx context.Context, id uuid.UUID, update models.PlanUpdate, at time.Time) (*models.Plan, error)
	// AppendChangeLog appends entry without changing any other field. Returns the entry key.
	AppendChangeLog(ctx context.Context, id uuid.UUID, entry map[string]any, at time.Time) (string, error)
	// ArchiveBeyond archives every non-archived plan past the newest keepLatest. Returns the archived IDs.
	ArchiveBeyond(ctx context.Context, accountID uuid.UUID, keepLatest int, at time.Time) ([]uuid.UUID, error)
}

type planRepository struct{}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository() PlanRepository {
	return &planRepository{}
}

var _ PlanRepository = (*planRepository)(nil)

const planColumns = `id, account_id, title, content, status, change_log, created_at, updated_at`

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if plan.Status == "" {
		plan.Status = models.PlanStatusDraft
	}
	if !plan.Status.IsValid() {
		return fmt.Errorf("%w: invalid plan status %q", apperrors.ErrInvalidInput, plan.Status)
	}

	now := time.Now()
	plan.ChangeLog = models.NewChangeLog(now)
	changeLog, err := json.Marshal(plan.ChangeLog)
	if err != nil {
		return fmt.Errorf("failed to marshal change log: %w", err)
	}

	query := `
		INSERT INTO plans (account_id, title, content, status, change_log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`

	err = scope.Conn.QueryRow(ctx, query,
		plan.AccountID,
		plan.Title,
		plan.Content,
		string(plan.Status),
		changeLog,
		now,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	plan, err := scanPlan(scope.Conn.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE account_id = $1`
	if !includeArchived {
		query += ` AND status <> 'archived'`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := scope.Conn.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := make([]*models.Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) Update(ctx context.Context, id uuid.UUID, update models.PlanUpdate, at time.Time) (*models.Plan, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	var plan *models.Plan
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		plan, _, err = applyPlanUpdate(ctx, tx, id, update, update.Changes(), at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) AppendChangeLog(ctx context.Context, id uuid.UUID, entry map[string]any, at time.Time) (string, error) {
	if entry == nil {
		entry = map[string]any{}
	}

	var key string
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		_, key, err = applyPlanUpdate(ctx, tx, id, models.PlanUpdate{}, entry, at)
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (r *planRepository) ArchiveBeyond(ctx context.Context, accountID uuid.UUID, keepLatest int, at time.Time) ([]uuid.UUID, error) {
	if keepLatest < 0 {
		return nil, fmt.Errorf("%w: keep_latest must not be negative", apperrors.ErrInvalidInput)
	}

	archived := make([]uuid.UUID, 0)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id FROM plans
			WHERE account_id = $1 AND status <> 'archived'
			ORDER BY created_at DESC, id DESC
			OFFSET $2
			FOR UPDATE`, accountID, keepLatest)
		if err != nil {
			return fmt.Errorf("failed to query plans to archive: %w", err)
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan plan id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating plans to archive: %w", err)
		}

		status := models.PlanStatusArchived
		update := models.PlanUpdate{Status: &status}
		for _, id := range ids {
			if _, _, err := applyPlanUpdate(ctx, tx, id, update, update.Changes(), at); err != nil {
				return err
			}
			archived = append(archived, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

func (r *planRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// applyPlanUpdate locks the plan row, applies update and appends {key: entry}
// to the change log. The key is strictly later than every existing key.
func applyPlanUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID, update models.PlanUpdate, entry map[string]any, at time.Time) (*models.Plan, string, error) {
	var raw []byte
	err := tx.QueryRow(ctx, `SELECT change_log FROM plans WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to lock plan: %w", err)
	}

	changeLog := models.ChangeLog{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &changeLog); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal change log: %w", err)
		}
	}
	key := changeLog.NextKey(at)

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal change log entry: %w", err)
	}

	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}

	query := `
		UPDATE plans
		SET title = COALESCE($2, title),
		    content = COALESCE($3, content),
		    status = COALESCE($4, status),
		    change_log = change_log || jsonb_build_object($5::text, $6::jsonb),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + planColumns

	plan, err := scanPlan(tx.QueryRow(ctx, query, id, update.Title, update.Content, status, key, entryJSON))
	if err != nil {
		return nil, "", fmt.Errorf("failed to update plan: %w", err)
	}
	return plan, key, nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	var status string
	var changeLog []byte

	err := row.Scan(&p.ID, &p.AccountID, &p.Title, &p.Content, &status, &changeLog, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	p.Status = models.PlanStatus(status)
	p.ChangeLog = models.ChangeLog{}
	if len(changeLog) > 0 {
		if err := json.Unmarshal(changeLog, &p.ChangeLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal change log: %w", err)
		}
	}
	return &p, nil
}
