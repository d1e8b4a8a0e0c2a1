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

// QuestionTemplateRepository provides data access for the interview question catalog.
type QuestionTemplateRepository interface {
	Create(ctx context.Context, q *models.QuestionTemplate) error
	// CreateIfAbsent inserts q unless a template with the same text exists. Reports whether it inserted.
	CreateIfAbsent(ctx context.Context, q *models.QuestionTemplate) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error)
	// List returns templates ordered by category then display order.
	List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error)
	Update(ctx context.Context, q *models.QuestionTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type questionTemplateRepository struct{}

// NewQuestionTemplateRepository creates a new QuestionTemplateRepository.
func NewQuestionTemplateRepository() QuestionTemplateRepository {
	return &questionTemplateRepository{}
}

var _ QuestionTemplateRepository = (*questionTemplateRepository)(nil)

const questionTemplateColumns = `id, category, question_text, description, is_core, follow_up_questions,
	display_order, is_active, created_at, updated_at`

const insertQuestionTemplate = `
	INSERT INTO question_templates (category, question_text, description, is_core, follow_up_questions, display_order, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (r *questionTemplateRepository) Create(ctx context.Context, q *models.QuestionTemplate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	followUps, err := encodeFollowUps(q.FollowUpQuestions)
	if err != nil {
		return err
	}

	err = scope.Conn.QueryRow(ctx, insertQuestionTemplate+` RETURNING id, created_at, updated_at`,
		q.Category, q.QuestionText, q.Description, q.IsCore, followUps, q.DisplayOrder, q.IsActive,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create question template: %w", err)
	}
	return nil
}

func (r *questionTemplateRepository) CreateIfAbsent(ctx context.Context, q *models.QuestionTemplate) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	followUps, err := encodeFollowUps(q.FollowUpQuestions)
	if err != nil {
		return false, err
	}

	err = scope.Conn.QueryRow(ctx, insertQuestionTemplate+`
		ON CONFLICT (question_text) DO NOTHING
		RETURNING id, created_at, updated_at`,
		q.Category, q.QuestionText, q.Description, q.IsCore, followUps, q.DisplayOrder, q.IsActive,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to seed question template: %w", err)
	}
	return true, nil
}

func (r *questionTemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+questionTemplateColumns+` FROM question_templates WHERE id = $1`, id)
	q, err := scanQuestionTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

func (r *questionTemplateRepository) List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + questionTemplateColumns + ` FROM question_templates WHERE true`
	var args []any
	if activeOnly {
		query += " AND is_active"
	}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY category, display_order, id"

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query question templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.QuestionTemplate, 0)
	for rows.Next() {
		q, err := scanQuestionTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question templates: %w", err)
	}
	return templates, nil
}

func (r *questionTemplateRepository) Update(ctx context.Context, q *models.QuestionTemplate) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	followUps, err := encodeFollowUps(q.FollowUpQuestions)
	if err != nil {
		return err
	}

	query := `
		UPDATE question_templates
		SET category = $2, question_text = $3, description = $4, is_core = $5,
		    follow_up_questions = $6, display_order = $7, is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err = scope.Conn.QueryRow(ctx, query,
		q.ID, q.Category, q.QuestionText, q.Description, q.IsCore, followUps, q.DisplayOrder, q.IsActive,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update question template: %w", err)
	}
	return nil
}

func (r *questionTemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM question_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func encodeFollowUps(followUps []string) ([]byte, error) {
	if followUps == nil {
		followUps = []string{}
	}
	raw, err := json.Marshal(followUps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal follow-up questions: %w", err)
	}
	return raw, nil
}

func scanQuestionTemplate(row pgx.Row) (*models.QuestionTemplate, error) {
	var q models.QuestionTemplate
	var followUps []byte

	err := row.Scan(
		&q.ID,
		&q.Category,
		&q.QuestionText,
		&q.Description,
		&q.IsCore,
		&followUps,
		&q.DisplayOrder,
		&q.IsActive,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan question template: %w", err)
	}

	q.FollowUpQuestions = []string{}
	if len(followUps) > 0 {
		if err := json.Unmarshal(followUps, &q.FollowUpQuestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal follow-up questions: %w", err)
		}
	}
	return &q, nil
}
