package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/providers"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// FactFetcher is the provider fallback router as seen by the fact service.
type FactFetcher interface {
	FetchFact(ctx context.Context, task providers.Task, account providers.AccountContext) *providers.Result
}

var _ FactFetcher = (*providers.Router)(nil)

// ExternalFactService gathers external facts through the provider chain and
// stores one fact per (account, type).
type ExternalFactService interface {
	// Fetch runs one task and upserts the result, placeholder included.
	Fetch(ctx context.Context, accountID uuid.UUID, task providers.Task) (*FactOutcome, error)
	// Collect runs tasks concurrently, then upserts each result.
	Collect(ctx context.Context, accountID uuid.UUID, tasks []providers.Task) (*CollectResult, error)
	// Upsert stores content as the account's fact of factType.
	Upsert(ctx context.Context, accountID uuid.UUID, factType models.FactType, content any, sourceURL string) (*models.ExternalFact, error)
	Get(ctx context.Context, accountID uuid.UUID, factType models.FactType) (*models.ExternalFact, error)
	// Delete removes the account's fact of factType.
	Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error
	List(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error)
	// Facts returns the decoded content of every stored fact keyed by type.
	Facts(ctx context.Context, accountID uuid.UUID) (map[models.FactType]any, error)
}

// FactOutcome is one task's router result plus the stored fact.
type FactOutcome struct {
	Result *providers.Result    `json:"result"`
	Fact   *models.ExternalFact `json:"fact"`
}

// CollectResult summarizes a multi-task collection.
type CollectResult struct {
	AccountID uuid.UUID                       `json:"account_id"`
	Outcomes  map[providers.Task]*FactOutcome `json:"outcomes"`
	Exhausted []providers.Task                `json:"exhausted"`
	Elapsed   time.Duration                   `json:"elapsed"`
}

// NewsSnapshot is the stored content of a news fact.
type NewsSnapshot struct {
	CompanyName string    `json:"company_name"`
	TimeRange   string    `json:"time_range"`
	NewsCount   int       `json:"news_count"`
	NewsData    []any     `json:"news_data"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

type externalFactService struct {
	factRepo    repositories.ExternalFactRepository
	accountRepo repositories.AccountRepository
	router      FactFetcher
	llmClient   llm.LLMClient
	logger      *zap.Logger
	now         func() time.Time
}

// NewExternalFactService creates a new ExternalFactService.
func NewExternalFactService(
	factRepo repositories.ExternalFactRepository,
	accountRepo repositories.AccountRepository,
	router FactFetcher,
	llmClient llm.LLMClient,
	logger *zap.Logger,
) ExternalFactService {
	return &externalFactService{
		factRepo:    factRepo,
		accountRepo: accountRepo,
		router:      router,
		llmClient:   llmClient,
		logger:      logger.Named("external-fact-service"),
		now:         time.Now,
	}
}

var _ ExternalFactService = (*externalFactService)(nil)

func (s *externalFactService) Fetch(ctx context.Context, accountID uuid.UUID, task providers.Task) (*FactOutcome, error) {
	result, err := s.Collect(ctx, accountID, []providers.Task{task})
	if err != nil {
		return nil, err
	}
	return result.Outcomes[task], nil
}

func (s *externalFactService) Collect(ctx context.Context, accountID uuid.UUID, tasks []providers.Task) (*CollectResult, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		tasks = providers.AllTasks
	}

	start := s.now()
	accountCtx := providers.AccountContext{
		CompanyName: account.CompanyName,
		Industry:    account.Industry,
	}

	// Fetching needs no database connection, so tasks run in parallel. The
	// request-scoped connection is not safe for concurrent use; writes happen
	// afterwards on this goroutine.
	contents := make([]any, len(tasks))
	results := make([]*providers.Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			res := s.router.FetchFact(gctx, task, accountCtx)
			results[i] = res
			contents[i] = res.Value
			if task == providers.TaskNews {
				contents[i] = s.newsSnapshot(gctx, account.CompanyName, res.List())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	collected := &CollectResult{
		AccountID: accountID,
		Outcomes:  make(map[providers.Task]*FactOutcome, len(tasks)),
		Exhausted: []providers.Task{},
	}
	facts := make([]*models.ExternalFact, len(tasks))
	for i, task := range tasks {
		raw, err := json.Marshal(contents[i])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", task, err)
		}
		facts[i] = &models.ExternalFact{AccountID: accountID, FactType: task.FactType(), Content: raw}
	}
	// All or nothing: a failed write leaves the previously stored facts untouched.
	if err := s.factRepo.UpsertAll(ctx, facts); err != nil {
		return nil, fmt.Errorf("store external facts: %w", err)
	}

	for i, task := range tasks {
		collected.Outcomes[task] = &FactOutcome{Result: results[i], Fact: facts[i]}
		if results[i].Exhausted {
			collected.Exhausted = append(collected.Exhausted, task)
		}
	}
	collected.Elapsed = s.now().Sub(start)

	s.logger.Info("External facts collected",
		zap.String("account_id", accountID.String()),
		zap.Int("tasks", len(tasks)),
		zap.Int("exhausted", len(collected.Exhausted)),
		zap.Duration("elapsed", collected.Elapsed))

	return collected, nil
}

// newsSnapshot wraps collected news with a generated prose summary.
func (s *externalFactService) newsSnapshot(ctx context.Context, companyName string, items []any) *NewsSnapshot {
	if items == nil {
		items = []any{}
	}
	snapshot := &NewsSnapshot{
		CompanyName: companyName,
		TimeRange:   fmt.Sprintf("%d months", providers.DefaultNewsMonths),
		NewsCount:   len(items),
		NewsData:    items,
		GeneratedAt: s.now().UTC(),
	}

	if len(items) == 0 {
		snapshot.Summary = fmt.Sprintf("No relevant news information about %s available.", companyName)
		return snapshot
	}

	newsItems := make([]prompts.NewsItem, 0, len(items))
	for _, raw := range items {
		item, _ := raw.(map[string]any)
		newsItems = append(newsItems, prompts.NewsItem{
			Title:   jsonutil.FlexibleString(item["title"]),
			Summary: jsonutil.FlexibleString(item["summary"]),
			Date:    jsonutil.FlexibleString(item["date"]),
		})
	}

	summary, err := s.llmClient.Generate(ctx, prompts.NewsSummaryAnalyst, prompts.NewsSummary(companyName, newsItems), llm.ModePlain)
	if err != nil {
		s.logger.Warn("News summary generation failed",
			zap.String("company_name", companyName),
			zap.Error(err))
		summary = fmt.Sprintf("%d news items collected about %s; summary unavailable.", len(items), companyName)
	}
	snapshot.Summary = summary
	return snapshot
}

func (s *externalFactService) Upsert(ctx context.Context, accountID uuid.UUID, factType models.FactType, content any, sourceURL string) (*models.ExternalFact, error) {
	if !factType.IsValid() {
		return nil, fmt.Errorf("%w: unknown fact type %q", apperrors.ErrInvalidInput, factType)
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("%w: fact content is not JSON-serializable: %v", apperrors.ErrInvalidInput, err)
	}

	fact := &models.ExternalFact{
		AccountID: accountID,
		FactType:  factType,
		Content:   raw,
		SourceURL: sourceURL,
	}
	if err := s.factRepo.Upsert(ctx, fact); err != nil {
		return nil, fmt.Errorf("upsert %s fact: %w", factType, err)
	}
	return fact, nil
}

func (s *externalFactService) Get(ctx context.Context, accountID uuid.UUID, factType models.FactType) (*models.ExternalFact, error) {
	return s.factRepo.Get(ctx, accountID, factType)
}

func (s *externalFactService) Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error {
	if !factType.IsValid() {
		return fmt.Errorf("%w: unknown fact type %q", apperrors.ErrInvalidInput, factType)
	}
	if err := s.factRepo.Delete(ctx, accountID, factType); err != nil {
		return err
	}
	s.logger.Info("External fact deleted",
		zap.String("account_id", accountID.String()),
		zap.String("fact_type", string(factType)))
	return nil
}

func (s *externalFactService) List(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.factRepo.ListByAccount(ctx, accountID)
}

func (s *externalFactService) Facts(ctx context.Context, accountID uuid.UUID) (map[models.FactType]any, error) {
	facts, err := s.factRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make(map[models.FactType]any, len(facts))
	for _, f := range facts {
		content, err := f.DecodeContent()
		if err != nil {
			s.logger.Warn("Skipping undecodable fact",
				zap.String("account_id", accountID.String()),
				zap.String("fact_type", string(f.FactType)),
				zap.Error(err))
			continue
		}
		out[f.FactType] = content
	}
	return out, nil
}
