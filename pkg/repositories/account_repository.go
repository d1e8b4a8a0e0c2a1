package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
)

// AccountRepository provides data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByName(ctx context.Context, companyName string) (*models.Account, error)
	List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type accountRepository struct{}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository() AccountRepository {
	return &accountRepository{}
}

var _ AccountRepository = (*accountRepository)(nil)

const accountColumns = `id, company_name, industry, company_size, website, country, description, created_at, updated_at`

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	now := time.Now()
	query := `
		INSERT INTO accounts (company_name, industry, company_size, website, country, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		account.CompanyName,
		account.Industry,
		account.CompanySize,
		account.Website,
		account.Country,
		account.Description,
		now,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) GetByName(ctx context.Context, companyName string) (*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_name = $1`, companyName)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var conditions []string
	var args []any
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("company_name ILIKE $%d", len(args)))
	}
	if filter.Industry != "" {
		args = append(args, filter.Industry)
		conditions = append(conditions, fmt.Sprintf("industry = $%d", len(args)))
	}
	if filter.Country != "" {
		args = append(args, filter.Country)
		conditions = append(conditions, fmt.Sprintf("country = $%d", len(args)))
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		UPDATE accounts
		SET company_name = $2, industry = $3, company_size = $4, website = $5,
		    country = $6, description = $7, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := scope.Conn.QueryRow(ctx, query,
		account.ID,
		account.CompanyName,
		account.Industry,
		account.CompanySize,
		account.Website,
		account.Country,
		account.Description,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	return nil
}

// Delete removes the account; interactions, facts and plans cascade.
func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.CompanyName,
		&a.Industry,
		&a.CompanySize,
		&a.Website,
		&a.Country,
		&a.Description,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}
