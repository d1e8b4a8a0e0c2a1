package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/logging"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// Prefill suggestion messages.
const (
	prefillNoHistoryMessage = "No historical information available for pre-filling"
	prefillFailedMessage    = "Unable to generate pre-fill suggestions"
)

// Separators of a persisted conversation answer.
const (
	conversationSummaryHeader = "Conversation summary:\n"
	conversationRecordsHeader = "\n\nComplete conversation records:\n"
)

// HistoryService exposes read views over an account's stored history and the
// in-place maintenance operations on it.
type HistoryService interface {
	// AccountHistory returns the account with its interactions (newest first), facts and plans.
	AccountHistory(ctx context.Context, accountID uuid.UUID) (*AccountHistory, error)
	// SimplePrefill returns the latest answer per question without calling the generation gateway.
	SimplePrefill(ctx context.Context, accountID uuid.UUID) (*PrefillView, error)
	// Prefill is SimplePrefill plus generated suggestions; a failed generation degrades to a message.
	Prefill(ctx context.Context, accountID uuid.UUID) (*PrefillView, error)
	// PlanHistory returns a plan's change log with a content preview.
	PlanHistory(ctx context.Context, planID uuid.UUID) (*PlanHistory, error)
	// ConversationHistory lists ended interviews, newest first.
	ConversationHistory(ctx context.Context, accountID uuid.UUID) ([]*ConversationRecord, error)
	// UpdateInteractionAnswer overwrites the latest answer to question in place and re-extracts its data.
	UpdateInteractionAnswer(ctx context.Context, accountID uuid.UUID, question, answer string) (*models.Interaction, error)
	// UpdateHistorySummary replaces the summary of the latest interview on question.
	UpdateHistorySummary(ctx context.Context, accountID uuid.UUID, question, summary string) (*models.Interaction, error)
	// RecordPlanChanges appends {changes, timestamp, description} to a plan's change log.
	RecordPlanChanges(ctx context.Context, planID uuid.UUID, changes map[string]any) (string, error)
}

// AccountHistory is the full stored record of one account.
type AccountHistory struct {
	Account       *models.Account                          `json:"account"`
	Interactions  []*models.Interaction                    `json:"interactions"`
	ExternalFacts map[models.FactType]*models.ExternalFact `json:"external_info"`
	Plans         []*models.Plan                           `json:"plans"`
}

// PrefillEntry is the latest stored answer to one question.
type PrefillEntry struct {
	InteractionID  uuid.UUID             `json:"interaction_id"`
	Answer         string                `json:"answer"`
	StructuredData models.StructuredData `json:"structured_data"`
	LastUpdated    time.Time             `json:"last_updated"`
}

// PrefillView maps question text to its latest answer.
type PrefillView struct {
	AccountID      uuid.UUID               `json:"account_id"`
	PrefillData    map[string]PrefillEntry `json:"prefill_data"`
	Suggestions    map[string]any          `json:"suggestions,omitempty"`
	TotalQuestions int                     `json:"total_questions"`
}

// PlanHistory is a plan's audit view.
type PlanHistory struct {
	PlanID         uuid.UUID         `json:"plan_id"`
	Title          string            `json:"title"`
	Status         models.PlanStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	ChangeLog      models.ChangeLog  `json:"change_log"`
	ContentPreview string            `json:"content_preview"`
}

// ConversationRecord summarizes one persisted interview.
type ConversationRecord struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Summary        string    `json:"summary"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type historyService struct {
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	factRepo        repositories.ExternalFactRepository
	planRepo        repositories.PlanRepository
	templateRepo    repositories.QuestionTemplateRepository
	llmClient       llm.LLMClient
	previewLength   int
	logger          *zap.Logger
	now             func() time.Time
}

// NewHistoryService creates a new HistoryService. previewLength bounds plan content previews.
func NewHistoryService(
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	factRepo repositories.ExternalFactRepository,
	planRepo repositories.PlanRepository,
	templateRepo repositories.QuestionTemplateRepository,
	llmClient llm.LLMClient,
	previewLength int,
	logger *zap.Logger,
) HistoryService {
	if previewLength <= 0 {
		previewLength = 500
	}
	return &historyService{
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		factRepo:        factRepo,
		planRepo:        planRepo,
		templateRepo:    templateRepo,
		llmClient:       llmClient,
		previewLength:   previewLength,
		logger:          logger.Named("history-service"),
		now:             time.Now,
	}
}

var _ HistoryService = (*historyService)(nil)

func (s *historyService) AccountHistory(ctx context.Context, accountID uuid.UUID) (*AccountHistory, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{AccountID: accountID})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	facts, err := s.factRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list external facts: %w", err)
	}
	byType := make(map[models.FactType]*models.ExternalFact, len(facts))
	for _, f := range facts {
		byType[f.FactType] = f
	}

	plans, err := s.planRepo.ListByAccount(ctx, accountID, true)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	return &AccountHistory{
		Account:       account,
		Interactions:  interactions,
		ExternalFacts: byType,
		Plans:         plans,
	}, nil
}

func (s *historyService) SimplePrefill(ctx context.Context, accountID uuid.UUID) (*PrefillView, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID:    accountID,
		AnsweredOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	view := &PrefillView{
		AccountID:   accountID,
		PrefillData: make(map[string]PrefillEntry),
	}
	// Newest first, so the first answer seen for a question is its latest.
	for _, i := range interactions {
		if _, seen := view.PrefillData[i.Question]; seen {
			continue
		}
		view.PrefillData[i.Question] = PrefillEntry{
			InteractionID:  i.ID,
			Answer:         i.Answer,
			StructuredData: i.StructuredData,
			LastUpdated:    i.CreatedAt,
		}
	}
	view.TotalQuestions = len(view.PrefillData)
	return view, nil
}

func (s *historyService) Prefill(ctx context.Context, accountID uuid.UUID) (*PrefillView, error) {
	view, err := s.SimplePrefill(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if len(view.PrefillData) == 0 {
		view.Suggestions = map[string]any{"message": prefillNoHistoryMessage}
		return view, nil
	}

	entries := make([]prompts.HistoryEntry, 0, len(view.PrefillData))
	for question, e := range view.PrefillData {
		entries = append(entries, prompts.HistoryEntry{
			InteractionID: e.InteractionID.String(),
			Question:      question,
			Answer:        e.Answer,
			At:            e.LastUpdated,
		})
	}

	text, err := s.llmClient.Generate(ctx, prompts.CRMExpert, prompts.PrefillSuggestions(entries), llm.ModePlain)
	if err != nil {
		s.logger.Warn("Prefill suggestion generation failed",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
		view.Suggestions = map[string]any{"message": prefillFailedMessage}
		return view, nil
	}

	res := extraction.Extract(text, extraction.KindObject)
	view.Suggestions = res.ObjectOr(map[string]any{"message": prefillFailedMessage})
	return view, nil
}

func (s *historyService) PlanHistory(ctx context.Context, planID uuid.UUID) (*PlanHistory, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	return &PlanHistory{
		PlanID:         plan.ID,
		Title:          plan.Title,
		Status:         plan.Status,
		CreatedAt:      plan.CreatedAt,
		UpdatedAt:      plan.UpdatedAt,
		ChangeLog:      plan.ChangeLog,
		ContentPreview: logging.TruncateString(plan.Content, s.previewLength),
	}, nil
}

func (s *historyService) ConversationHistory(ctx context.Context, accountID uuid.UUID) ([]*ConversationRecord, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID: accountID,
		Types:     []models.InteractionType{models.InteractionTypeConversation},
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	records := make([]*ConversationRecord, 0, len(interactions))
	for _, i := range interactions {
		summary, _ := i.StructuredData[models.KeySummary].(string)
		conversationID, _ := i.StructuredData[models.KeyConversationID].(string)
		records = append(records, &ConversationRecord{
			ID:             i.ID,
			ConversationID: conversationID,
			Question:       i.Question,
			Summary:        summary,
			MessageCount:   intValue(i.StructuredData[models.KeyMessageCount]),
			CreatedAt:      i.CreatedAt,
		})
	}
	return records, nil
}

func (s *historyService) UpdateInteractionAnswer(ctx context.Context, accountID uuid.UUID, question, answer string) (*models.Interaction, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: answer is required", apperrors.ErrInvalidInput)
	}

	interaction, err := s.interactionRepo.LatestByQuestion(ctx, accountID, models.InteractionTypeQuestion, question)
	if err != nil {
		return nil, fmt.Errorf("find interaction: %w", err)
	}
	if interaction == nil {
		return nil, apperrors.ErrNotFound
	}

	interaction.Answer = answer
	interaction.StructuredData = extractAnswerData(ctx, s.llmClient, question, answer, s.categoryOf(ctx, question))
	if err := s.interactionRepo.UpdateAnswer(ctx, interaction); err != nil {
		return nil, fmt.Errorf("update answer: %w", err)
	}

	s.logger.Info("Interaction answer updated",
		zap.String("account_id", accountID.String()),
		zap.String("interaction_id", interaction.ID.String()))
	return interaction, nil
}

func (s *historyService) UpdateHistorySummary(ctx context.Context, accountID uuid.UUID, question, summary string) (*models.Interaction, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", apperrors.ErrInvalidInput)
	}

	interaction, err := s.interactionRepo.LatestByQuestion(ctx, accountID, models.InteractionTypeConversation, question)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	if interaction == nil {
		return nil, apperrors.ErrNotFound
	}

	records := ""
	if _, after, ok := strings.Cut(interaction.Answer, conversationRecordsHeader); ok {
		records = after
	}
	interaction.Answer = formatConversationAnswer(summary, records)
	interaction.StructuredData = interaction.StructuredData.Merge(map[string]any{models.KeySummary: summary})

	if err := s.interactionRepo.UpdateAnswer(ctx, interaction); err != nil {
		return nil, fmt.Errorf("update summary: %w", err)
	}
	return interaction, nil
}

func (s *historyService) RecordPlanChanges(ctx context.Context, planID uuid.UUID, changes map[string]any) (string, error) {
	at := s.now()
	key, err := s.planRepo.AppendChangeLog(ctx, planID, planChangeEntry(changes, at), at)
	if err != nil {
		return "", err
	}
	return key, nil
}

// categoryOf returns the catalog category of question, or the default category.
func (s *historyService) categoryOf(ctx context.Context, question string) string {
	templates, err := s.templateRepo.List(ctx, false, "")
	if err != nil {
		return defaultCategory
	}
	for _, t := range templates {
		if t.QuestionText == question {
			return t.Category
		}
	}
	return defaultCategory
}

// planChangeEntry is the change-log value recorded by RecordPlanChanges.
func planChangeEntry(changes map[string]any, at time.Time) map[string]any {
	if changes == nil {
		changes = map[string]any{}
	}
	return map[string]any{
		"changes":     changes,
		"timestamp":   models.FormatChangeLogTime(at),
		"description": fmt.Sprintf("Updated %d items", len(changes)),
	}
}

// formatConversationAnswer renders the persisted answer of an ended interview.
func formatConversationAnswer(summary, records string) string {
	return conversationSummaryHeader + summary + conversationRecordsHeader + records
}

// intValue reads a JSON number that may have been decoded as float64.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
