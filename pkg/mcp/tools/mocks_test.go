package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/services"
)

// fakeScopes hands out the caller's context and counts cleanups.
type fakeScopes struct {
	err      error
	acquired int
	released int
}

func (f *fakeScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.acquired++
	return ctx, func() { f.released++ }, nil
}

// Stubs embed the service interface; methods a test does not override panic.

type stubFactService struct {
	services.ExternalFactService
	collectedTasks []providers.Task
}

func (s *stubFactService) Fetch(ctx context.Context, accountID uuid.UUID, task providers.Task) (*services.FactOutcome, error) {
	return &services.FactOutcome{Result: &providers.Result{Task: task, Provider: providers.ProviderSearch}}, nil
}

func (s *stubFactService) Collect(ctx context.Context, accountID uuid.UUID, tasks []providers.Task) (*services.CollectResult, error) {
	s.collectedTasks = tasks
	return &services.CollectResult{AccountID: accountID, Exhausted: []providers.Task{}}, nil
}

type stubRelevanceService struct {
	services.RelevanceService
	lastFacts map[string]any
}

func (s *stubRelevanceService) RelevantHistory(ctx context.Context, accountID uuid.UUID, currentQuestion string, hints map[string]any) (*services.RelevantHistory, error) {
	return &services.RelevantHistory{HasHistory: false, RelevantInfo: []services.RelevantItem{}, Source: "keyword"}, nil
}

func (s *stubRelevanceService) DetectChanges(ctx context.Context, accountID uuid.UUID, newFacts map[string]any) (*services.ChangeReport, error) {
	s.lastFacts = newFacts
	return &services.ChangeReport{Changes: []any{}, Suggestions: []any{}}, nil
}

type stubInterviewService struct {
	services.InterviewService
	ended int
}

func (s *stubInterviewService) Start(ctx context.Context, accountID uuid.UUID, seedQuestion string, hints map[string]any) (*models.Conversation, error) {
	if accountID == missingAccount {
		return nil, fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	conv := &models.Conversation{ID: "conv_" + accountID.String(), AccountID: accountID, SeedQuestion: seedQuestion}
	conv.Append(models.RoleAssistant, "Who signs off on purchases?", conv.StartedAt)
	return conv, nil
}

func (s *stubInterviewService) Continue(ctx context.Context, conv *models.Conversation, userMessage string) (*models.Conversation, error) {
	conv.Append(models.RoleUser, userMessage, conv.StartedAt)
	conv.Append(models.RoleAssistant, "Anyone else?", conv.StartedAt)
	return conv, nil
}

func (s *stubInterviewService) End(ctx context.Context, conv *models.Conversation) (*services.EndResult, error) {
	s.ended++
	return &services.EndResult{Conversation: conv, Summary: "The CFO signs off."}, nil
}

type stubPlanService struct {
	services.PlanService
	lastUpdate models.PlanUpdate
	keepLatest int
}

func (s *stubPlanService) Generate(ctx context.Context, accountID uuid.UUID, title, description string) (*models.Plan, error) {
	return &models.Plan{ID: uuid.New(), AccountID: accountID, Title: title, Status: models.PlanStatusDraft}, nil
}

func (s *stubPlanService) Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	return nil, fmt.Errorf("plan %s: %w", planID, apperrors.ErrNotFound)
}

func (s *stubPlanService) Update(ctx context.Context, planID uuid.UUID, update models.PlanUpdate) (*models.Plan, error) {
	s.lastUpdate = update
	return &models.Plan{ID: planID, Status: models.PlanStatusCompleted}, nil
}

func (s *stubPlanService) ArchiveOld(ctx context.Context, accountID uuid.UUID, keepLatest int) (*services.ArchiveResult, error) {
	s.keepLatest = keepLatest
	return &services.ArchiveResult{Message: "Archived 0 plans", ArchivedPlans: []uuid.UUID{}}, nil
}

type stubQuestionService struct {
	services.QuestionService
}

func (s *stubQuestionService) Progress(ctx context.Context, accountID uuid.UUID) (*services.QuestionProgress, error) {
	return nil, errors.New("connection reset")
}

func (s *stubQuestionService) Flow(flowType string) *services.QuestionFlow {
	return &services.QuestionFlow{FlowType: flowType}
}

var missingAccount = uuid.MustParse("00000000-0000-0000-0000-00000000dead")

type toolFixture struct {
	server     *server.MCPServer
	scopes     *fakeScopes
	facts      *stubFactService
	relevance  *stubRelevanceService
	interviews *stubInterviewService
	plans      *stubPlanService
	store      services.ConversationStore
}

func newToolFixture() *toolFixture {
	f := &toolFixture{
		server:     server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true)),
		scopes:     &fakeScopes{},
		facts:      &stubFactService{},
		relevance:  &stubRelevanceService{},
		interviews: &stubInterviewService{},
		plans:      &stubPlanService{},
		store:      services.NewConversationStore(services.DefaultConversationMaxAge),
	}
	RegisterAll(f.server, &ToolDeps{
		Scopes:           f.scopes,
		FactService:      f.facts,
		RelevanceService: f.relevance,
		InterviewService: f.interviews,
		PlanService:      f.plans,
		QuestionService:  &stubQuestionService{},
		Conversations:    f.store,
		Logger:           zap.NewNop(),
	})
	return f
}

type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call invokes a tool through the JSON-RPC entrypoint.
func (f *toolFixture) call(t *testing.T, name string, args map[string]any) toolResponse {
	t.Helper()
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(f.server.HandleMessage(context.Background(), request))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// decode unmarshals the first text content of a successful tool result.
func (r toolResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.Nil(t, r.Error)
	require.NotEmpty(t, r.Result.Content)
	require.NoError(t, json.Unmarshal([]byte(r.Result.Content[0].Text), dst))
}
