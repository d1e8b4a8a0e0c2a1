//go:build integration

package repositories

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/testhelpers"
)

// setupRepoTest truncates the shared database and returns a scoped context.
func setupRepoTest(t *testing.T) (*testhelpers.TestDB, context.Context) {
	t.Helper()
	tdb := testhelpers.GetTestDB(t)
	tdb.Truncate(t)
	return tdb, tdb.ScopedContext(t)
}

func createAccount(t *testing.T, ctx context.Context, name string) *models.Account {
	t.Helper()
	account := &models.Account{CompanyName: name, Country: "US", Industry: "Manufacturing"}
	require.NoError(t, NewAccountRepository().Create(ctx, account))
	return account
}

func TestAccountRepository_CRUD(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewAccountRepository()

	account := createAccount(t, ctx, "Acme Co")
	assert.NotEqual(t, uuid.Nil, account.ID)

	err := repo.Create(ctx, &models.Account{CompanyName: "Acme Co", Country: "DE"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := repo.GetByName(ctx, "Acme Co")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	got.Website = "https://acme.example"
	require.NoError(t, repo.Update(ctx, got))

	createAccount(t, ctx, "Globex")
	list, err := repo.List(ctx, models.AccountFilter{Search: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://acme.example", list[0].Website)

	require.NoError(t, repo.Delete(ctx, account.ID))
	_, err = repo.GetByID(ctx, account.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, account.ID), apperrors.ErrNotFound)
}

func TestAccountRepository_DeleteCascades(t *testing.T) {
	_, ctx := setupRepoTest(t)
	account := createAccount(t, ctx, "Acme Co")

	require.NoError(t, NewExternalFactRepository().Upsert(ctx, &models.ExternalFact{
		AccountID: account.ID, FactType: models.FactTypeNews, Content: json.RawMessage(`[]`),
	}))
	require.NoError(t, NewPlanRepository().Create(ctx, &models.Plan{AccountID: account.ID, Title: "t", Content: "c"}))
	require.NoError(t, NewInteractionRepository().Create(ctx, &models.Interaction{
		AccountID: account.ID, Type: models.InteractionTypeQuestion, Question: "q", Answer: "a",
		StructuredData: models.StructuredData{},
	}))

	require.NoError(t, NewAccountRepository().Delete(ctx, account.ID))

	facts, err := NewExternalFactRepository().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, facts)
	plans, err := NewPlanRepository().ListByAccount(ctx, account.ID, true)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestExternalFactRepository_UpsertKeepsOneRow(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewExternalFactRepository()
	account := createAccount(t, ctx, "Acme Co")

	first := &models.ExternalFact{
		AccountID: account.ID,
		FactType:  models.FactTypeCompanyProfile,
		Content:   json.RawMessage(`{"industry": "Robotics"}`),
		SourceURL: "https://source.example/1",
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.ExternalFact{
		AccountID: account.ID,
		FactType:  models.FactTypeCompanyProfile,
		Content:   json.RawMessage(`{"industry": "Aerospace"}`),
	}
	require.NoError(t, repo.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID, "second write must update the existing row")
	assert.Equal(t, "https://source.example/1", second.SourceURL, "empty source URL keeps the stored one")

	facts, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.JSONEq(t, `{"industry": "Aerospace"}`, string(facts[0].Content))
}

func TestExternalFactRepository_ConcurrentUpserts(t *testing.T) {
	tdb, ctx := setupRepoTest(t)
	repo := NewExternalFactRepository()
	account := createAccount(t, ctx, "Acme Co")

	// The shared pool holds five connections; one is already held by ctx.
	const workers = 4
	workerCtxs := make([]context.Context, workers)
	for i := range workerCtxs {
		workerCtxs[i] = tdb.ScopedContext(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerCtx context.Context) {
			defer wg.Done()
			errs <- repo.Upsert(workerCtx, &models.ExternalFact{
				AccountID: account.ID,
				FactType:  models.FactTypeCustomerProfile,
				Content:   json.RawMessage(`{"profile": "v"}`),
			})
		}(workerCtxs[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	facts, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestExternalFactRepository_Validation(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewExternalFactRepository()
	account := createAccount(t, ctx, "Acme Co")

	err := repo.Upsert(ctx, &models.ExternalFact{AccountID: account.ID, FactType: "weather", Content: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = repo.Get(ctx, account.ID, models.FactTypeMarketInfo)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExternalFactRepository_UpsertAllIsAtomic(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewExternalFactRepository()
	account := createAccount(t, ctx, "Acme Co")

	err := repo.UpsertAll(ctx, []*models.ExternalFact{
		{AccountID: account.ID, FactType: models.FactTypeNews, Content: json.RawMessage(`{"summary": "s"}`)},
		{AccountID: account.ID, FactType: "weather", Content: json.RawMessage(`{}`)},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	facts, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, facts, "a failed batch must not leave earlier rows behind")

	batch := []*models.ExternalFact{
		{AccountID: account.ID, FactType: models.FactTypeCompanyProfile, Content: json.RawMessage(`{}`)},
		{AccountID: account.ID, FactType: models.FactTypeNews, Content: json.RawMessage(`{}`)},
	}
	require.NoError(t, repo.UpsertAll(ctx, batch))
	for _, fact := range batch {
		assert.NotEqual(t, uuid.Nil, fact.ID)
	}
	facts, err = repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}

func TestExternalFactRepository_Delete(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewExternalFactRepository()
	account := createAccount(t, ctx, "Acme Co")

	require.NoError(t, repo.Upsert(ctx, &models.ExternalFact{
		AccountID: account.ID, FactType: models.FactTypeMarketInfo, Content: json.RawMessage(`{}`),
	}))
	require.NoError(t, repo.Delete(ctx, account.ID, models.FactTypeMarketInfo))
	assert.ErrorIs(t, repo.Delete(ctx, account.ID, models.FactTypeMarketInfo), apperrors.ErrNotFound)
}

func TestInteractionRepository_CreateListAndUpdateAnswer(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewInteractionRepository()
	account := createAccount(t, ctx, "Acme Co")

	for _, q := range []string{"first", "second"} {
		require.NoError(t, repo.Create(ctx, &models.Interaction{
			AccountID:      account.ID,
			Type:           models.InteractionTypeQuestion,
			Question:       q,
			Answer:         q + " answer",
			StructuredData: models.StructuredData{"k": q},
		}))
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, repo.Create(ctx, &models.Interaction{
		AccountID: account.ID,
		Type:      models.InteractionTypeConversation,
		Question:  "first",
		Answer:    "Conversation summary:\nok",
		StructuredData: models.StructuredData{
			models.KeySummary: "ok", models.KeyMessageCount: 2, models.KeyConversationID: "conv_x_1",
		},
	}))

	newest, err := repo.List(ctx, models.InteractionFilter{AccountID: account.ID, Types: []models.InteractionType{models.InteractionTypeQuestion}})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "second", newest[0].Question)

	oldest, err := repo.List(ctx, models.InteractionFilter{AccountID: account.ID, Ascending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "first", oldest[0].Question)

	latest, err := repo.LatestByQuestion(ctx, account.ID, models.InteractionTypeConversation, "first")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "ok", latest.StructuredData[models.KeySummary])

	missing, err := repo.LatestByQuestion(ctx, account.ID, models.InteractionTypeConversation, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	target := newest[1]
	target.Answer = "revised"
	target.StructuredData = models.StructuredData{"k": "revised"}
	require.NoError(t, repo.UpdateAnswer(ctx, target))

	reloaded, err := repo.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", reloaded.Answer)
	assert.Equal(t, "revised", reloaded.StructuredData["k"])

	all, err := repo.List(ctx, models.InteractionFilter{AccountID: account.ID})
	require.NoError(t, err)
	assert.Len(t, all, 3, "update must not add rows")
}

func TestInteractionRepository_RejectsInvalidStructuredData(t *testing.T) {
	_, ctx := setupRepoTest(t)
	account := createAccount(t, ctx, "Acme Co")

	err := NewInteractionRepository().Create(ctx, &models.Interaction{
		AccountID:      account.ID,
		Type:           models.InteractionTypeConversation,
		Question:       "q",
		Answer:         "a",
		StructuredData: models.StructuredData{"summary": "missing the rest"},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPlanRepository_UpdateAlwaysAppends(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewPlanRepository()
	account := createAccount(t, ctx, "Acme Co")

	plan := &models.Plan{AccountID: account.ID, Title: "Plan", Content: "# Plan"}
	require.NoError(t, repo.Create(ctx, plan))
	assert.Equal(t, models.PlanStatusDraft, plan.Status)
	assert.Contains(t, plan.ChangeLog, models.ChangeLogCreatedKey)

	completed := models.PlanStatusCompleted
	at := time.Now()
	_, err := repo.Update(ctx, plan.ID, models.PlanUpdate{Status: &completed}, at)
	require.NoError(t, err)
	updated, err := repo.Update(ctx, plan.ID, models.PlanUpdate{Status: &completed}, at)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, updated.Status)
	entries := updated.ChangeLog.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Timestamp.After(entries[0].Timestamp))
	assert.Equal(t, map[string]any{"status": "completed"}, entries[0].Changes)

	noop, err := repo.Update(ctx, plan.ID, models.PlanUpdate{}, time.Now())
	require.NoError(t, err)
	assert.Len(t, noop.ChangeLog.Entries(), 3)
	assert.Equal(t, "# Plan", noop.Content)

	_, err = repo.Update(ctx, uuid.New(), models.PlanUpdate{}, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPlanRepository_AppendChangeLog(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewPlanRepository()
	account := createAccount(t, ctx, "Acme Co")

	plan := &models.Plan{AccountID: account.ID, Title: "Plan", Content: "# Plan"}
	require.NoError(t, repo.Create(ctx, plan))

	key, err := repo.AppendChangeLog(ctx, plan.ID, map[string]any{"note": "reviewed"}, time.Now())
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"note": "reviewed"}, got.ChangeLog[key])
}

func TestPlanRepository_ArchiveBeyond(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewPlanRepository()
	account := createAccount(t, ctx, "Acme Co")

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		plan := &models.Plan{AccountID: account.ID, Title: "Plan", Content: "c"}
		require.NoError(t, repo.Create(ctx, plan))
		ids = append(ids, plan.ID)
		time.Sleep(5 * time.Millisecond)
	}

	archived, err := repo.ArchiveBeyond(ctx, account.ID, 3, time.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ids[0], ids[1]}, archived)

	all, err := repo.ListByAccount(ctx, account.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 5, "archival never deletes")

	active, err := repo.ListByAccount(ctx, account.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 3)
	for _, p := range active {
		assert.NotEqual(t, models.PlanStatusArchived, p.Status)
	}

	again, err := repo.ArchiveBeyond(ctx, account.ID, 3, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQuestionTemplateRepository_SeedIsIdempotent(t *testing.T) {
	_, ctx := setupRepoTest(t)
	repo := NewQuestionTemplateRepository()

	q := &models.QuestionTemplate{
		Category:          "Cooperation History",
		QuestionText:      "What projects have we delivered together?",
		IsCore:            true,
		FollowUpQuestions: []string{"Which went best?"},
		DisplayOrder:      1,
		IsActive:          true,
	}
	inserted, err := repo.CreateIfAbsent(ctx, q)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *q
	inserted, err = repo.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	q.IsActive = false
	require.NoError(t, repo.Update(ctx, q))

	active, err := repo.List(ctx, true, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx, false, "Cooperation History")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"Which went best?"}, all[0].FollowUpQuestions)
}
