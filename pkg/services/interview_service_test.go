package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
)

const seedQuestion = "Cooperation History: What cooperation projects have you had with this company in the past?"

type interviewFixture struct {
	account      *models.Account
	interactions *mockInteractionRepo
	llm          *llm.MockLLMClient
	service      *interviewService
}

func newInterviewFixture(client *llm.MockLLMClient) *interviewFixture {
	clock := newTestClock()
	account := &models.Account{ID: uuid.New(), CompanyName: "Acme Co", Country: "US"}
	interactions := newMockInteractionRepo(clock)
	svc := NewInterviewService(newMockAccountRepo(account), interactions, client, zap.NewNop()).(*interviewService)
	svc.now = clock.Now
	return &interviewFixture{account: account, interactions: interactions, llm: client, service: svc}
}

// scriptedInterviewLLM answers by role.
func scriptedInterviewLLM() *llm.MockLLMClient {
	client := llm.NewMockLLMClient()
	client.GenerateFunc = func(_ context.Context, instructions, input string, _ llm.Mode) (string, error) {
		switch instructions {
		case prompts.CustomerManager:
			if strings.Contains(input, "opening question") {
				return "Which projects have you delivered together?", nil
			}
			return "What was the budget of the ERP rollout?", nil
		case prompts.ConversationSummarist:
			return "Delivered an ERP rollout in 2025.", nil
		case prompts.DataExtractor:
			return `{"projects":["ERP rollout"]}`, nil
		}
		return "", errors.New("unexpected role")
	}
	return client
}

func TestInterviewService_FullConversation(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	ctx := context.Background()

	conv, err := f.service.Start(ctx, f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationActive, conv.Status)
	assert.True(t, strings.HasPrefix(conv.ID, "conv_"+f.account.ID.String()+"_"))
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, models.RoleAssistant, conv.Messages[0].Role)
	assert.Equal(t, "Which projects have you delivered together?", conv.Messages[0].Content)

	conv, err = f.service.Continue(ctx, conv, "We rolled out their ERP last year.")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, models.RoleUser, conv.Messages[1].Role)
	assert.Equal(t, "What was the budget of the ERP rollout?", conv.Messages[2].Content)

	followUpPrompt := f.llm.Inputs()[1]
	assert.Contains(t, followUpPrompt, "Previous Question: Which projects have you delivered together?")
	assert.Contains(t, followUpPrompt, "Customer Response: We rolled out their ERP last year.")
	assert.Contains(t, followUpPrompt, "Question Category: Cooperation History")

	result, err := f.service.End(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationEnded, conv.Status)
	assert.Equal(t, "Delivered an ERP rollout in 2025.", result.Summary)

	require.Len(t, f.interactions.interactions, 1)
	stored := f.interactions.interactions[0]
	assert.Equal(t, models.InteractionTypeConversation, stored.Type)
	assert.Equal(t, seedQuestion, stored.Question)
	assert.True(t, strings.HasPrefix(stored.Answer, "Conversation summary:\nDelivered an ERP rollout in 2025.\n\nComplete conversation records:\n"))
	assert.Contains(t, stored.Answer, "user: We rolled out their ERP last year.")
	assert.Equal(t, conv.ID, stored.StructuredData[models.KeyConversationID])
	assert.Equal(t, 3, stored.StructuredData[models.KeyMessageCount])
	assert.Equal(t, []any{"ERP rollout"}, stored.StructuredData["projects"])
	assert.Empty(t, conv.Metadata)
}

func TestInterviewService_UnreachableGatewayStillPersistsOneRow(t *testing.T) {
	f := newInterviewFixture(llm.NewFailingMockLLMClient(errors.New("connection refused")))
	ctx := context.Background()

	conv, err := f.service.Start(ctx, f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.NotEmpty(t, conv.Messages[0].Content)
	assert.Contains(t, conv.Metadata, "opening_error")

	conv, err = f.service.Continue(ctx, conv, "We did two pilots.")
	require.NoError(t, err)
	assert.Equal(t, followUpFallback, conv.Messages[2].Content)

	result, err := f.service.End(ctx, conv)
	require.NoError(t, err)

	assert.Equal(t, 1, f.interactions.createCalls)
	require.Len(t, f.interactions.interactions, 1)
	stored := f.interactions.interactions[0]
	assert.NotEmpty(t, stored.Answer)
	assert.NotEmpty(t, stored.StructuredData)
	assert.Equal(t, summaryFallback, result.Summary)
	assert.Equal(t, summaryFallback, stored.StructuredData[models.KeySummary])
	assert.Contains(t, stored.StructuredData, models.KeyExtractionError)
	assert.Contains(t, stored.StructuredData, models.KeyRawConversation)
	assert.Contains(t, conv.Metadata, "summary_error")
}

func TestInterviewService_StartUsesLatestSummary(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	f.interactions.add(f.account.ID, models.InteractionTypeConversation, seedQuestion, "old",
		models.StructuredData{models.KeySummary: "First summary", models.KeyMessageCount: 2, models.KeyConversationID: "c1"})
	f.interactions.add(f.account.ID, models.InteractionTypeConversation, seedQuestion, "newer",
		models.StructuredData{models.KeySummary: "Second summary", models.KeyMessageCount: 4, models.KeyConversationID: "c2"})

	conv, err := f.service.Start(context.Background(), f.account.ID, seedQuestion, map[string]any{"region": "EMEA"})
	require.NoError(t, err)

	assert.Equal(t, "Second summary", conv.PreviousSummary)
	assert.Contains(t, f.llm.Inputs()[0], "Historical context from previous conversations: Second summary")
	assert.Contains(t, f.llm.Inputs()[0], `"region":"EMEA"`)

	_, err = f.service.End(context.Background(), conv)
	require.NoError(t, err)
	assert.Contains(t, f.llm.Inputs()[1], "Previous Summary: Second summary")
}

func TestInterviewService_EndedConversationRejected(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	ctx := context.Background()

	conv, err := f.service.Start(ctx, f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	_, err = f.service.End(ctx, conv)
	require.NoError(t, err)

	_, err = f.service.Continue(ctx, conv, "more")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.End(ctx, conv)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Len(t, f.interactions.interactions, 1)
}

func TestInterviewService_DiscardedConversationWritesNothing(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())

	conv, err := f.service.Start(context.Background(), f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	_, err = f.service.Continue(context.Background(), conv, "hello")
	require.NoError(t, err)

	assert.Zero(t, f.interactions.createCalls)
}

func TestInterviewService_Validation(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	ctx := context.Background()

	_, err := f.service.Start(ctx, f.account.ID, "  ", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.Start(ctx, uuid.New(), seedQuestion, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	conv, err := f.service.Start(ctx, f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	_, err = f.service.Continue(ctx, conv, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.Continue(ctx, nil, "hi")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestInterviewService_PersistFailureLeavesConversationActive(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	f.interactions.createErr = errors.New("db down")

	conv, err := f.service.Start(context.Background(), f.account.ID, seedQuestion, nil)
	require.NoError(t, err)

	_, err = f.service.End(context.Background(), conv)
	require.Error(t, err)
	assert.Equal(t, models.ConversationActive, conv.Status)
}

func TestInterviewService_SameSecondStartsStayDistinct(t *testing.T) {
	f := newInterviewFixture(scriptedInterviewLLM())
	fixed := time.Unix(1_700_000_000, 0)
	f.service.now = func() time.Time { return fixed }
	store := NewConversationStore(time.Hour)
	ctx := context.Background()

	contacts := "Key Contacts: Who are the key contacts?"
	first, err := f.service.Start(ctx, f.account.ID, seedQuestion, nil)
	require.NoError(t, err)
	second, err := f.service.Start(ctx, f.account.ID, contacts, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	store.Put(first)
	store.Put(second)

	gotFirst, ok := store.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, seedQuestion, gotFirst.SeedQuestion)
	gotSecond, ok := store.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, contacts, gotSecond.SeedQuestion)
}
