package services

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

//go:embed questions.yaml
var questionCatalogYAML []byte

// Question flow types. Unknown types resolve to FlowComprehensive.
const (
	FlowComprehensive = "comprehensive"
	FlowQuick         = "quick"
	FlowFocused       = "focused"
)

// questionMatchThreshold is the minimum word Jaccard similarity for progress matching.
const questionMatchThreshold = 0.6

// QuestionService manages the interview question catalog and direct Q&A capture.
type QuestionService interface {
	// Seed inserts the core questions that are not yet present, matched by text.
	Seed(ctx context.Context) (*SeedResult, error)
	CoreQuestions(ctx context.Context) ([]*models.QuestionTemplate, error)
	List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error)
	Get(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error)
	Create(ctx context.Context, q *models.QuestionTemplate) error
	Update(ctx context.Context, id uuid.UUID, update QuestionUpdate) (*models.QuestionTemplate, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// SaveAnswer records a direct answer with extracted structured data.
	SaveAnswer(ctx context.Context, accountID uuid.UUID, question, answer string) (*models.Interaction, error)
	// FollowUps returns generated follow-up questions, or an empty list on failure.
	FollowUps(ctx context.Context, question, answer string, hints map[string]any) []string
	// Progress reports how many core questions the account has answered.
	Progress(ctx context.Context, accountID uuid.UUID) (*QuestionProgress, error)
	// Flow returns the static question flow for flowType.
	Flow(flowType string) *QuestionFlow
}

// QuestionUpdate carries optional template changes.
type QuestionUpdate struct {
	Category          *string   `json:"category,omitempty"`
	QuestionText      *string   `json:"question_text,omitempty"`
	Description       *string   `json:"description,omitempty"`
	FollowUpQuestions *[]string `json:"follow_up_questions,omitempty"`
	DisplayOrder      *int      `json:"display_order,omitempty"`
	IsActive          *bool     `json:"is_active,omitempty"`
}

// SeedResult counts the outcome of Seed.
type SeedResult struct {
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
}

// AnsweredQuestion links an interaction to the core question it answers.
type AnsweredQuestion struct {
	QuestionID      uuid.UUID              `json:"question_id"`
	QuestionText    string                 `json:"question_text"`
	InteractionType models.InteractionType `json:"interaction_type"`
	CreatedAt       time.Time              `json:"created_at"`
}

// QuestionProgress summarizes core-question coverage for an account.
type QuestionProgress struct {
	TotalQuestions     int                        `json:"total_questions"`
	AnsweredQuestions  int                        `json:"answered_questions"`
	CompletionRate     float64                    `json:"completion_rate"`
	RemainingQuestions []*models.QuestionTemplate `json:"remaining_questions"`
	AnsweredDetail     []AnsweredQuestion         `json:"answered_questions_detail"`
	TotalInteractions  int                        `json:"total_interactions"`
}

// QuestionFlow is a fixed, phased sequence of interview questions.
type QuestionFlow struct {
	FlowType           string      `yaml:"flow_type" json:"flow_type"`
	Description        string      `yaml:"description" json:"description"`
	EstimatedTime      string      `yaml:"estimated_time" json:"estimated_time"`
	CompletionCriteria string      `yaml:"completion_criteria" json:"completion_criteria"`
	Phases             []FlowPhase `yaml:"phases" json:"phases"`
}

// FlowPhase is one step of a QuestionFlow.
type FlowPhase struct {
	Phase       int      `yaml:"phase" json:"phase"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Questions   []string `yaml:"questions" json:"questions"`
}

type catalogQuestion struct {
	Category          string   `yaml:"category"`
	QuestionText      string   `yaml:"question_text"`
	FollowUpQuestions []string `yaml:"follow_up_questions"`
	DisplayOrder      int      `yaml:"display_order"`
}

type questionCatalog struct {
	CoreQuestions []catalogQuestion `yaml:"core_questions"`
	Flows         []*QuestionFlow   `yaml:"flows"`
}

// loadQuestionCatalog parses the embedded catalog.
func loadQuestionCatalog() (*questionCatalog, error) {
	var catalog questionCatalog
	if err := yaml.Unmarshal(questionCatalogYAML, &catalog); err != nil {
		return nil, fmt.Errorf("parse question catalog: %w", err)
	}
	return &catalog, nil
}

type questionService struct {
	templateRepo    repositories.QuestionTemplateRepository
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	llmClient       llm.LLMClient
	catalog         *questionCatalog
	logger          *zap.Logger
}

// NewQuestionService creates a new QuestionService. It fails only if the embedded catalog is malformed.
func NewQuestionService(
	templateRepo repositories.QuestionTemplateRepository,
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	llmClient llm.LLMClient,
	logger *zap.Logger,
) (QuestionService, error) {
	catalog, err := loadQuestionCatalog()
	if err != nil {
		return nil, err
	}
	return &questionService{
		templateRepo:    templateRepo,
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		llmClient:       llmClient,
		catalog:         catalog,
		logger:          logger.Named("question-service"),
	}, nil
}

var _ QuestionService = (*questionService)(nil)

func (s *questionService) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}
	for _, q := range s.catalog.CoreQuestions {
		inserted, err := s.templateRepo.CreateIfAbsent(ctx, &models.QuestionTemplate{
			Category:          q.Category,
			QuestionText:      q.QuestionText,
			IsCore:            true,
			FollowUpQuestions: q.FollowUpQuestions,
			DisplayOrder:      q.DisplayOrder,
			IsActive:          true,
		})
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", q.QuestionText, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Existing++
		}
	}

	s.logger.Info("Question catalog seeded",
		zap.Int("inserted", result.Inserted),
		zap.Int("existing", result.Existing))
	return result, nil
}

func (s *questionService) CoreQuestions(ctx context.Context) ([]*models.QuestionTemplate, error) {
	all, err := s.templateRepo.List(ctx, true, "")
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	core := make([]*models.QuestionTemplate, 0, len(all))
	for _, q := range all {
		if q.IsCore {
			core = append(core, q)
		}
	}
	return core, nil
}

func (s *questionService) List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error) {
	return s.templateRepo.List(ctx, activeOnly, category)
}

func (s *questionService) Get(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error) {
	return s.templateRepo.GetByID(ctx, id)
}

func (s *questionService) Create(ctx context.Context, q *models.QuestionTemplate) error {
	q.QuestionText = strings.TrimSpace(q.QuestionText)
	q.Category = strings.TrimSpace(q.Category)
	if q.QuestionText == "" || q.Category == "" {
		return fmt.Errorf("%w: question_text and category are required", apperrors.ErrInvalidInput)
	}
	if q.FollowUpQuestions == nil {
		q.FollowUpQuestions = []string{}
	}
	return s.templateRepo.Create(ctx, q)
}

func (s *questionService) Update(ctx context.Context, id uuid.UUID, update QuestionUpdate) (*models.QuestionTemplate, error) {
	q, err := s.templateRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Category != nil {
		q.Category = strings.TrimSpace(*update.Category)
	}
	if update.QuestionText != nil {
		q.QuestionText = strings.TrimSpace(*update.QuestionText)
	}
	if update.Description != nil {
		q.Description = *update.Description
	}
	if update.FollowUpQuestions != nil {
		q.FollowUpQuestions = *update.FollowUpQuestions
	}
	if update.DisplayOrder != nil {
		q.DisplayOrder = *update.DisplayOrder
	}
	if update.IsActive != nil {
		q.IsActive = *update.IsActive
	}
	if q.QuestionText == "" || q.Category == "" {
		return nil, fmt.Errorf("%w: question_text and category are required", apperrors.ErrInvalidInput)
	}

	if err := s.templateRepo.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *questionService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.templateRepo.Delete(ctx, id)
}

func (s *questionService) SaveAnswer(ctx context.Context, accountID uuid.UUID, question, answer string) (*models.Interaction, error) {
	question = strings.TrimSpace(question)
	if question == "" || strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: question and answer are required", apperrors.ErrInvalidInput)
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	category := defaultCategory
	if templates, err := s.templateRepo.List(ctx, false, ""); err == nil {
		if t := matchQuestion(question, templates); t != nil {
			category = t.Category
		}
	}

	interaction := &models.Interaction{
		AccountID:      accountID,
		Type:           models.InteractionTypeQuestion,
		Question:       question,
		Answer:         answer,
		StructuredData: extractAnswerData(ctx, s.llmClient, question, answer, category),
	}
	if err := s.interactionRepo.Create(ctx, interaction); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	return interaction, nil
}

func (s *questionService) FollowUps(ctx context.Context, question, answer string, hints map[string]any) []string {
	text, err := s.llmClient.Generate(ctx, prompts.CustomerManager, prompts.DerivedQuestions(question, answer, hints), llm.ModePlain)
	if err != nil {
		s.logger.Warn("Follow-up generation failed", zap.Error(err))
		return []string{}
	}

	res := extraction.Extract(text, extraction.KindArray)
	if res.Degraded {
		return []string{}
	}
	questions := make([]string, 0, len(res.List))
	for _, v := range res.List {
		if q, ok := v.(string); ok && strings.TrimSpace(q) != "" {
			questions = append(questions, strings.TrimSpace(q))
		}
	}
	return questions
}

func (s *questionService) Progress(ctx context.Context, accountID uuid.UUID) (*QuestionProgress, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	core, err := s.CoreQuestions(ctx)
	if err != nil {
		return nil, err
	}
	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID:    accountID,
		AnsweredOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	answered := make(map[uuid.UUID]bool)
	progress := &QuestionProgress{
		TotalQuestions:     len(core),
		RemainingQuestions: []*models.QuestionTemplate{},
		AnsweredDetail:     []AnsweredQuestion{},
		TotalInteractions:  len(interactions),
	}
	for _, i := range interactions {
		q := matchQuestion(i.Question, core)
		if q == nil {
			continue
		}
		answered[q.ID] = true
		progress.AnsweredDetail = append(progress.AnsweredDetail, AnsweredQuestion{
			QuestionID:      q.ID,
			QuestionText:    i.Question,
			InteractionType: i.Type,
			CreatedAt:       i.CreatedAt,
		})
	}

	for _, q := range core {
		if !answered[q.ID] {
			progress.RemainingQuestions = append(progress.RemainingQuestions, q)
		}
	}
	progress.AnsweredQuestions = len(answered)
	if progress.TotalQuestions > 0 {
		progress.CompletionRate = float64(progress.AnsweredQuestions) / float64(progress.TotalQuestions) * 100
	}
	return progress, nil
}

func (s *questionService) Flow(flowType string) *QuestionFlow {
	var fallback *QuestionFlow
	for _, f := range s.catalog.Flows {
		if f.FlowType == flowType {
			return f
		}
		if f.FlowType == FlowComprehensive {
			fallback = f
		}
	}
	return fallback
}

// matchQuestion finds the template asked by text: exact match first, then
// containment either way, then word Jaccard similarity of at least 0.6.
func matchQuestion(text string, templates []*models.QuestionTemplate) *models.QuestionTemplate {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	for _, q := range templates {
		if q.QuestionText == text {
			return q
		}
	}

	for _, q := range templates {
		if strings.Contains(q.QuestionText, trimmed) || strings.Contains(trimmed, q.QuestionText) {
			return q
		}
	}

	words := questionWords(text)
	if len(words) == 0 {
		return nil
	}
	for _, q := range templates {
		other := questionWords(q.QuestionText)
		if len(other) == 0 {
			continue
		}
		overlap := 0
		for w := range words {
			if _, ok := other[w]; ok {
				overlap++
			}
		}
		union := len(words) + len(other) - overlap
		if float64(overlap)/float64(union) >= questionMatchThreshold {
			return q
		}
	}
	return nil
}

var questionMarks = strings.NewReplacer("?", "", "？", "")

func questionWords(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(questionMarks.Replace(s)) {
		set[w] = struct{}{}
	}
	return set
}
