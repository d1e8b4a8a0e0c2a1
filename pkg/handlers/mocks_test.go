package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// noScope stands in for the database scope middleware.
func noScope(next http.HandlerFunc) http.HandlerFunc { return next }

// mockAccountService is a configurable mock for account handler tests.
type mockAccountService struct {
	accounts  map[uuid.UUID]*models.Account
	err       error
	lastQuery models.AccountFilter
}

func newMockAccountService(accounts ...*models.Account) *mockAccountService {
	m := &mockAccountService{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockAccountService) Create(ctx context.Context, account *models.Account) error {
	if m.err != nil {
		return m.err
	}
	if err := account.Validate(); err != nil {
		return apperrors.ErrInvalidInput
	}
	account.ID = uuid.New()
	m.accounts[account.ID] = account
	return nil
}

func (m *mockAccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

func (m *mockAccountService) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	m.lastQuery = filter
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Account
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockAccountService) Update(ctx context.Context, id uuid.UUID, update services.AccountUpdate) (*models.Account, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Industry != nil {
		a.Industry = *update.Industry
	}
	return a, nil
}

func (m *mockAccountService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.accounts[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

var _ services.AccountService = (*mockAccountService)(nil)

// mockPlanService is a configurable mock for plan handler tests.
type mockPlanService struct {
	plan        *models.Plan
	html        []byte
	err         error
	archiveKeep int
}

func (m *mockPlanService) Generate(ctx context.Context, accountID uuid.UUID, title, description string) (*models.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Plan{ID: uuid.New(), AccountID: accountID, Title: title, Status: models.PlanStatusDraft}, nil
}

func (m *mockPlanService) Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.plan, nil
}

func (m *mockPlanService) List(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.plan == nil {
		return nil, nil
	}
	return []*models.Plan{m.plan}, nil
}

func (m *mockPlanService) Update(ctx context.Context, planID uuid.UUID, update models.PlanUpdate) (*models.Plan, error) {
	if m.err != nil {
		return nil, m.err
	}
	if err := update.Validate(); err != nil {
		return nil, apperrors.ErrInvalidInput
	}
	p := *m.plan
	if update.Title != nil {
		p.Title = *update.Title
	}
	return &p, nil
}

func (m *mockPlanService) ArchiveOld(ctx context.Context, accountID uuid.UUID, keepLatest int) (*services.ArchiveResult, error) {
	m.archiveKeep = keepLatest
	if m.err != nil {
		return nil, m.err
	}
	return &services.ArchiveResult{Message: "Archived 0 plans", ArchivedPlans: []uuid.UUID{}}, nil
}

func (m *mockPlanService) RenderHTML(ctx context.Context, planID uuid.UUID) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.html, nil
}

var _ services.PlanService = (*mockPlanService)(nil)

// mockInterviewService records the conversations it is handed.
type mockInterviewService struct {
	err       error
	continued []*models.Conversation
	ended     []*models.Conversation
}

func (m *mockInterviewService) Start(ctx context.Context, accountID uuid.UUID, seedQuestion string, hints map[string]any) (*models.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	conv := &models.Conversation{
		ID:           "conv_" + accountID.String() + "_1",
		AccountID:    accountID,
		SeedQuestion: seedQuestion,
		Status:       models.ConversationActive,
	}
	conv.Append(models.RoleAssistant, "Opening question?", conv.StartedAt)
	return conv, nil
}

func (m *mockInterviewService) Continue(ctx context.Context, conv *models.Conversation, userMessage string) (*models.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.continued = append(m.continued, conv)
	conv.Append(models.RoleUser, userMessage, conv.StartedAt)
	conv.Append(models.RoleAssistant, "Follow-up?", conv.StartedAt)
	return conv, nil
}

func (m *mockInterviewService) End(ctx context.Context, conv *models.Conversation) (*services.EndResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.ended = append(m.ended, conv)
	conv.Status = models.ConversationEnded
	return &services.EndResult{Conversation: conv, Summary: "summary"}, nil
}

var _ services.InterviewService = (*mockInterviewService)(nil)

// fakeTester returns a fixed gateway check result.
type fakeTester struct {
	result *llm.TestResult
}

func (f *fakeTester) Test(ctx context.Context) *llm.TestResult { return f.result }

var _ llm.ConnectionTester = (*fakeTester)(nil)

// stubFactService embeds the interface; only the methods a test touches are implemented.
type stubFactService struct {
	services.ExternalFactService
	collectedTasks []providers.Task
	upserted       *models.ExternalFact
	facts          []*models.ExternalFact
	deleted        []models.FactType
	err            error
}

func (s *stubFactService) Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error {
	if s.err != nil {
		return s.err
	}
	if !factType.IsValid() {
		return apperrors.ErrInvalidInput
	}
	for _, d := range s.deleted {
		if d == factType {
			return apperrors.ErrNotFound
		}
	}
	s.deleted = append(s.deleted, factType)
	return nil
}

func (s *stubFactService) Collect(ctx context.Context, accountID uuid.UUID, tasks []providers.Task) (*services.CollectResult, error) {
	s.collectedTasks = tasks
	if s.err != nil {
		return nil, s.err
	}
	return &services.CollectResult{
		AccountID: accountID,
		Outcomes:  map[providers.Task]*services.FactOutcome{},
		Exhausted: []providers.Task{},
	}, nil
}

func (s *stubFactService) List(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error) {
	return s.facts, s.err
}

func (s *stubFactService) Upsert(ctx context.Context, accountID uuid.UUID, factType models.FactType, content any, sourceURL string) (*models.ExternalFact, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !factType.IsValid() {
		return nil, apperrors.ErrInvalidInput
	}
	raw, _ := json.Marshal(content)
	s.upserted = &models.ExternalFact{ID: uuid.New(), AccountID: accountID, FactType: factType, Content: raw, SourceURL: sourceURL}
	return s.upserted, nil
}

type stubProfileService struct {
	services.CustomerProfileService
	saved string
	err   error
}

func (s *stubProfileService) Generate(ctx context.Context, accountID uuid.UUID) (*services.CustomerProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.CustomerProfile{AccountID: accountID, Profile: "# Customer Profile Analysis Report\n..."}, nil
}

func (s *stubProfileService) Save(ctx context.Context, accountID uuid.UUID, profile string) (*services.CustomerProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.saved = profile
	return &services.CustomerProfile{AccountID: accountID, Exists: true, Profile: profile}, nil
}

func (s *stubProfileService) Get(ctx context.Context, accountID uuid.UUID) (*services.CustomerProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.CustomerProfile{AccountID: accountID, Exists: s.saved != "", Profile: s.saved}, nil
}

type stubHistoryService struct {
	services.HistoryService
	updatedQuestion string
	updatedSummary  string
	err             error
}

func (s *stubHistoryService) AccountHistory(ctx context.Context, accountID uuid.UUID) (*services.AccountHistory, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.AccountHistory{
		Account:       &models.Account{ID: accountID, CompanyName: "Acme Co", Country: "US"},
		Interactions:  []*models.Interaction{},
		ExternalFacts: map[models.FactType]*models.ExternalFact{},
		Plans:         []*models.Plan{},
	}, nil
}

func (s *stubHistoryService) SimplePrefill(ctx context.Context, accountID uuid.UUID) (*services.PrefillView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.PrefillView{
		AccountID:      accountID,
		PrefillData:    map[string]services.PrefillEntry{"Main products?": {Answer: "Robots"}},
		TotalQuestions: 1,
	}, nil
}

func (s *stubHistoryService) UpdateHistorySummary(ctx context.Context, accountID uuid.UUID, question, summary string) (*models.Interaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.updatedQuestion, s.updatedSummary = question, summary
	return &models.Interaction{ID: uuid.New(), AccountID: accountID, Question: question}, nil
}

type stubRelevanceService struct {
	lastQuestion string
	lastNewData  map[string]any
	err          error
}

func (s *stubRelevanceService) RelevantHistory(ctx context.Context, accountID uuid.UUID, currentQuestion string, hints map[string]any) (*services.RelevantHistory, error) {
	s.lastQuestion = currentQuestion
	if s.err != nil {
		return nil, s.err
	}
	return &services.RelevantHistory{HasHistory: false, RelevantInfo: []services.RelevantItem{}, Source: "keyword"}, nil
}

func (s *stubRelevanceService) DetectChanges(ctx context.Context, accountID uuid.UUID, newFacts map[string]any) (*services.ChangeReport, error) {
	s.lastNewData = newFacts
	if s.err != nil {
		return nil, s.err
	}
	return &services.ChangeReport{HasChanges: true, Changes: []any{"headcount"}, Suggestions: []any{}}, nil
}

var _ services.RelevanceService = (*stubRelevanceService)(nil)

type stubQuestionService struct {
	services.QuestionService
	questions []*models.QuestionTemplate
	answered  []string
	err       error
}

func (s *stubQuestionService) List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.QuestionTemplate
	for _, q := range s.questions {
		if (!activeOnly || q.IsActive) && (category == "" || q.Category == category) {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubQuestionService) Get(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error) {
	for _, q := range s.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *stubQuestionService) SaveAnswer(ctx context.Context, accountID uuid.UUID, question, answer string) (*models.Interaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.answered = append(s.answered, question)
	return &models.Interaction{ID: uuid.New(), AccountID: accountID, Question: question, Answer: answer}, nil
}

func (s *stubQuestionService) FollowUps(ctx context.Context, question, answer string, hints map[string]any) []string {
	return []string{"Which product line grew fastest?"}
}

func (s *stubQuestionService) Flow(flowType string) *services.QuestionFlow {
	if flowType != services.FlowQuick {
		flowType = services.FlowComprehensive
	}
	return &services.QuestionFlow{FlowType: flowType}
}
