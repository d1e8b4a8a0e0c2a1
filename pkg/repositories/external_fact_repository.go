package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// ExternalFactRepository provides data access for external facts.
// The (account_id, fact_type) pair is unique; writes go through Upsert.
type ExternalFactRepository interface {
	// Upsert inserts the fact or replaces the content of the existing row for
	// the same account and type. An empty SourceURL keeps the stored one.
	Upsert(ctx context.Context, fact *models.ExternalFact) error
	// UpsertAll upserts every fact in one transaction; on error none is stored.
	UpsertAll(ctx context.Context, facts []*models.ExternalFact) error
	Get(ctx context.Context, accountID uuid.UUID, factType models.FactType) (*models.ExternalFact, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error)
	Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error
}

type externalFactRepository struct{}

// NewExternalFactRepository creates a new ExternalFactRepository.
func NewExternalFactRepository() ExternalFactRepository {
	return &externalFactRepository{}
}

var _ ExternalFactRepository = (*externalFactRepository)(nil)

const externalFactColumns = `id, account_id, fact_type, content, source_url, created_at, updated_at`

// rowQuerier is satisfied by both a pooled connection and a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *externalFactRepository) Upsert(ctx context.Context, fact *models.ExternalFact) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	return upsertFact(ctx, scope.Conn, fact)
}

func (r *externalFactRepository) UpsertAll(ctx context.Context, facts []*models.ExternalFact) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	for _, fact := range facts {
		if err := upsertFact(ctx, tx, fact); err != nil {
			return fmt.Errorf("%s: %w", fact.FactType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertFact(ctx context.Context, q rowQuerier, fact *models.ExternalFact) error {
	if !fact.FactType.IsValid() {
		return fmt.Errorf("%w: unknown fact type %q", apperrors.ErrInvalidInput, fact.FactType)
	}
	content := fact.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	if !json.Valid(content) {
		return fmt.Errorf("%w: fact content is not valid JSON", apperrors.ErrInvalidInput)
	}

	// Single statement against the unique constraint, so concurrent writers
	// for the same (account, type) serialize in the database.
	query := `
		INSERT INTO external_facts (account_id, fact_type, content, source_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, fact_type) DO UPDATE
		SET content = EXCLUDED.content,
		    source_url = CASE WHEN EXCLUDED.source_url <> '' THEN EXCLUDED.source_url
		                      ELSE external_facts.source_url END,
		    updated_at = now()
		RETURNING id, source_url, created_at, updated_at`

	err := q.QueryRow(ctx, query,
		fact.AccountID,
		string(fact.FactType),
		[]byte(content),
		fact.SourceURL,
	).Scan(&fact.ID, &fact.SourceURL, &fact.CreatedAt, &fact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert external fact: %w", err)
	}

	fact.Content = content
	return nil
}

func (r *externalFactRepository) Get(ctx context.Context, accountID uuid.UUID, factType models.FactType) (*models.ExternalFact, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + externalFactColumns + ` FROM external_facts WHERE account_id = $1 AND fact_type = $2`
	fact, err := scanExternalFact(scope.Conn.QueryRow(ctx, query, accountID, string(factType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return fact, nil
}

func (r *externalFactRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + externalFactColumns + `
		FROM external_facts
		WHERE account_id = $1
		ORDER BY updated_at DESC, fact_type`

	rows, err := scope.Conn.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query external facts: %w", err)
	}
	defer rows.Close()

	facts := make([]*models.ExternalFact, 0)
	for rows.Next() {
		fact, err := scanExternalFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating external facts: %w", err)
	}
	return facts, nil
}

func (r *externalFactRepository) Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`DELETE FROM external_facts WHERE account_id = $1 AND fact_type = $2`, accountID, string(factType))
	if err != nil {
		return fmt.Errorf("failed to delete external fact: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanExternalFact(row pgx.Row) (*models.ExternalFact, error) {
	var f models.ExternalFact
	var factType string
	var content []byte

	err := row.Scan(&f.ID, &f.AccountID, &factType, &content, &f.SourceURL, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan external fact: %w", err)
	}

	f.FactType = models.FactType(factType)
	f.Content = json.RawMessage(content)
	return &f, nil
}
