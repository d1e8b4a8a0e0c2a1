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
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// Canned interview text used when the generation gateway fails.
const (
	openingFallbackFormat = "To get started, could you share what you know about: %s?"
	followUpFallback      = "Could you tell me more about that?"
	summaryFallback       = "(No available summary)"
)

// Degraded interview steps recorded in Conversation.Metadata.
const (
	stepOpening    = "opening"
	stepFollowUp   = "follow_up"
	stepSummary    = "summary"
	stepExtraction = "extraction"
)

// InterviewService drives guided interviews: not-started, active, ended.
// Conversations are held by the caller until End persists them.
type InterviewService interface {
	// Start opens a conversation on seedQuestion, informed by the latest summary for the same question.
	Start(ctx context.Context, accountID uuid.UUID, seedQuestion string, hints map[string]any) (*models.Conversation, error)
	// Continue appends the user's reply and one follow-up question.
	Continue(ctx context.Context, conv *models.Conversation, userMessage string) (*models.Conversation, error)
	// End summarizes the conversation and persists it as one interaction.
	End(ctx context.Context, conv *models.Conversation) (*EndResult, error)
}

// EndResult is the persisted outcome of an interview.
type EndResult struct {
	Conversation   *models.Conversation  `json:"conversation"`
	Interaction    *models.Interaction   `json:"interaction"`
	Summary        string                `json:"summary"`
	StructuredData models.StructuredData `json:"structured_data"`
}

type interviewService struct {
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	llmClient       llm.LLMClient
	logger          *zap.Logger
	now             func() time.Time
}

// NewInterviewService creates a new InterviewService.
func NewInterviewService(
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	llmClient llm.LLMClient,
	logger *zap.Logger,
) InterviewService {
	return &interviewService{
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		llmClient:       llmClient,
		logger:          logger.Named("interview-service"),
		now:             time.Now,
	}
}

var _ InterviewService = (*interviewService)(nil)

func (s *interviewService) Start(ctx context.Context, accountID uuid.UUID, seedQuestion string, hints map[string]any) (*models.Conversation, error) {
	seedQuestion = strings.TrimSpace(seedQuestion)
	if seedQuestion == "" {
		return nil, fmt.Errorf("%w: question is required", apperrors.ErrInvalidInput)
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	previousSummary, err := s.latestSummary(ctx, accountID, seedQuestion)
	if err != nil {
		return nil, err
	}

	startedAt := s.now()
	conv := &models.Conversation{
		ID:              models.NewConversationID(accountID, startedAt),
		AccountID:       accountID,
		SeedQuestion:    seedQuestion,
		PreviousSummary: previousSummary,
		Context:         hints,
		Messages:        []models.Message{},
		Status:          models.ConversationActive,
		StartedAt:       startedAt,
	}
	ctx = llm.WithRequestID(ctx, conv.ID)

	opening, err := s.llmClient.Generate(ctx, prompts.CustomerManager,
		prompts.OpeningQuestion(seedQuestion, previousSummary, hints), llm.ModePlain)
	if err != nil {
		s.degrade(conv, stepOpening, err)
		opening = fmt.Sprintf(openingFallbackFormat, seedQuestion)
	}
	conv.Append(models.RoleAssistant, strings.TrimSpace(opening), s.now())

	s.logger.Info("Interview started",
		zap.String("account_id", accountID.String()),
		zap.String("conversation_id", conv.ID),
		zap.Bool("has_previous_summary", previousSummary != ""))
	return conv, nil
}

func (s *interviewService) Continue(ctx context.Context, conv *models.Conversation, userMessage string) (*models.Conversation, error) {
	if err := requireActive(conv); err != nil {
		return nil, err
	}
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}
	ctx = llm.WithRequestID(ctx, conv.ID)

	lastQuestion, _ := conv.LastByRole(models.RoleAssistant)
	conv.Append(models.RoleUser, userMessage, s.now())

	next, err := s.llmClient.Generate(ctx, prompts.CustomerManager,
		prompts.FollowUpQuestion(lastQuestion.Content, userMessage, conv.Category()), llm.ModePlain)
	if err != nil {
		s.degrade(conv, stepFollowUp, err)
		next = followUpFallback
	}
	conv.Append(models.RoleAssistant, strings.TrimSpace(next), s.now())
	return conv, nil
}

func (s *interviewService) End(ctx context.Context, conv *models.Conversation) (*EndResult, error) {
	if err := requireActive(conv); err != nil {
		return nil, err
	}
	ctx = llm.WithRequestID(ctx, conv.ID)
	transcript := conv.Transcript()

	summary, err := s.llmClient.Generate(ctx, prompts.ConversationSummarist,
		prompts.ConversationSummary(conv.PreviousSummary, transcript), llm.ModePlain)
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		if err == nil {
			err = fmt.Errorf("empty summary")
		}
		s.degrade(conv, stepSummary, err)
		summary = summaryFallback
	}

	data := s.extractConversation(ctx, conv, transcript, summary).Merge(map[string]any{
		models.KeyConversationID: conv.ID,
		models.KeyMessageCount:   len(conv.Messages),
		models.KeySummary:        summary,
	})

	interaction := &models.Interaction{
		AccountID:      conv.AccountID,
		Type:           models.InteractionTypeConversation,
		Question:       conv.SeedQuestion,
		Answer:         formatConversationAnswer(summary, transcript),
		StructuredData: data,
	}
	if err := s.interactionRepo.Create(ctx, interaction); err != nil {
		return nil, fmt.Errorf("persist conversation: %w", err)
	}

	conv.Status = models.ConversationEnded
	s.logger.Info("Interview ended",
		zap.String("account_id", conv.AccountID.String()),
		zap.String("conversation_id", conv.ID),
		zap.Int("message_count", len(conv.Messages)),
		zap.Bool("degraded", len(conv.Metadata) > 0))

	return &EndResult{
		Conversation:   conv,
		Interaction:    interaction,
		Summary:        summary,
		StructuredData: data,
	}, nil
}

// extractConversation returns the structured facts of the transcript, or
// {raw_conversation, summary, extraction_error} when extraction degrades.
func (s *interviewService) extractConversation(ctx context.Context, conv *models.Conversation, transcript, summary string) models.StructuredData {
	var res extraction.Result
	text, err := s.llmClient.Generate(ctx, prompts.DataExtractor,
		prompts.ConversationExtraction(transcript, summary), llm.ModePlain)
	if err != nil {
		res = extraction.Degraded(text, err)
	} else {
		res = extraction.Extract(text, extraction.KindObject)
	}

	if res.Degraded {
		s.degrade(conv, stepExtraction, fmt.Errorf("%s", res.Error))
		return models.StructuredData{
			models.KeyRawConversation: transcript,
			models.KeySummary:         summary,
			models.KeyExtractionError: res.Error,
		}
	}
	return models.StructuredData(res.Object)
}

// latestSummary returns the summary of the newest ended interview on question.
func (s *interviewService) latestSummary(ctx context.Context, accountID uuid.UUID, question string) (string, error) {
	prior, err := s.interactionRepo.LatestByQuestion(ctx, accountID, models.InteractionTypeConversation, question)
	if err != nil {
		return "", fmt.Errorf("find previous conversation: %w", err)
	}
	if prior == nil {
		return "", nil
	}
	summary, _ := prior.StructuredData[models.KeySummary].(string)
	return summary, nil
}

func (s *interviewService) degrade(conv *models.Conversation, step string, err error) {
	conv.RecordDegraded(step, err)
	s.logger.Warn("Interview step degraded to canned output",
		zap.String("conversation_id", conv.ID),
		zap.String("step", step),
		zap.Error(err))
}

func requireActive(conv *models.Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is required", apperrors.ErrInvalidInput)
	}
	if conv.Status != models.ConversationActive {
		return fmt.Errorf("%w: conversation %s is %s", apperrors.ErrInvalidInput, conv.ID, conv.Status)
	}
	return nil
}
