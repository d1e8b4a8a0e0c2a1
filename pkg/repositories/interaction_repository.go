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

// InteractionRepository provides data access for question/answer interactions.
// Structured data is validated against its producer contract before every write.
type InteractionRepository interface {
	Create(ctx context.Context, interaction *models.Interaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interaction, error)
	List(ctx context.Context, filter models.InteractionFilter) ([]*models.Interaction, error)
	// LatestByQuestion returns the newest interaction of type t for question, or nil if none exists.
	LatestByQuestion(ctx context.Context, accountID uuid.UUID, t models.InteractionType, question string) (*models.Interaction, error)
	// UpdateAnswer overwrites answer and structured data in place.
	UpdateAnswer(ctx context.Context, interaction *models.Interaction) error
}

type interactionRepository struct{}

// NewInteractionRepository creates a new InteractionRepository.
func NewInteractionRepository() InteractionRepository {
	return &interactionRepository{}
}

var _ InteractionRepository = (*interactionRepository)(nil)

const interactionColumns = `id, account_id, plan_id, interaction_type, question, answer, structured_data, created_at, updated_at`

func (r *interactionRepository) Create(ctx context.Context, interaction *models.Interaction) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	data, err := encodeStructuredData(interaction.Type, interaction.StructuredData)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `
		INSERT INTO interactions (account_id, plan_id, interaction_type, question, answer, structured_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`

	err = scope.Conn.QueryRow(ctx, query,
		interaction.AccountID,
		interaction.PlanID,
		string(interaction.Type),
		interaction.Question,
		interaction.Answer,
		data,
		now,
	).Scan(&interaction.ID, &interaction.CreatedAt, &interaction.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}

	return nil
}

func (r *interactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE id = $1`, id)
	interaction, err := scanInteraction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return interaction, nil
}

func (r *interactionRepository) List(ctx context.Context, filter models.InteractionFilter) ([]*models.Interaction, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	args := []any{filter.AccountID}
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE account_id = $1`

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		query += fmt.Sprintf(" AND interaction_type = ANY($%d)", len(args))
	}
	if filter.Question != "" {
		args = append(args, filter.Question)
		query += fmt.Sprintf(" AND question = $%d", len(args))
	}
	if filter.AnsweredOnly {
		query += " AND question <> '' AND answer <> ''"
	}

	if filter.Ascending {
		query += " ORDER BY created_at ASC, id"
	} else {
		query += " ORDER BY created_at DESC, id"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	interactions := make([]*models.Interaction, 0)
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}

	return interactions, nil
}

func (r *interactionRepository) LatestByQuestion(ctx context.Context, accountID uuid.UUID, t models.InteractionType, question string) (*models.Interaction, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + interactionColumns + `
		FROM interactions
		WHERE account_id = $1 AND interaction_type = $2 AND question = $3
		ORDER BY created_at DESC, id
		LIMIT 1`

	row := scope.Conn.QueryRow(ctx, query, accountID, string(t), question)
	interaction, err := scanInteraction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return interaction, nil
}

func (r *interactionRepository) UpdateAnswer(ctx context.Context, interaction *models.Interaction) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	data, err := encodeStructuredData(interaction.Type, interaction.StructuredData)
	if err != nil {
		return err
	}

	query := `
		UPDATE interactions
		SET answer = $2, structured_data = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err = scope.Conn.QueryRow(ctx, query, interaction.ID, interaction.Answer, data).Scan(&interaction.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update interaction answer: %w", err)
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

// encodeStructuredData validates data for the interaction type and marshals it for JSONB.
func encodeStructuredData(t models.InteractionType, data models.StructuredData) ([]byte, error) {
	if data == nil {
		data = models.StructuredData{}
	}
	if err := data.Validate(models.ProducerFor(t)); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal structured data: %w", err)
	}
	return raw, nil
}

func scanInteraction(row pgx.Row) (*models.Interaction, error) {
	var i models.Interaction
	var interactionType string
	var data []byte

	err := row.Scan(
		&i.ID,
		&i.AccountID,
		&i.PlanID,
		&interactionType,
		&i.Question,
		&i.Answer,
		&data,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}

	i.Type = models.InteractionType(interactionType)
	i.StructuredData = models.StructuredData{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &i.StructuredData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured data: %w", err)
		}
	}
	return &i, nil
}
