package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// DefaultKeepLatest is the number of plans ArchiveOld leaves active by default.
const DefaultKeepLatest = 3

// Interview categories used to group answers in the plan prompt.
const (
	CategoryCooperationHistory = "cooperation_history"
	CategoryProductsServices   = "products_services"
	CategoryChallenges         = "challenges"
	CategoryKeyContacts        = "key_contacts"
	CategoryFuturePlans        = "future_plans"
	CategoryResourceNeeds      = "resource_needs"
)

type categoryKeywords struct {
	category    string
	displayName string
	keywords    []string
}

// planCategories is checked in order; the first category with a keyword
// contained in the lowercased question wins.
var planCategories = []categoryKeywords{
	{CategoryCooperationHistory, "Cooperation History", []string{"cooperation", "project", "history"}},
	{CategoryProductsServices, "Products Services", []string{"product", "service", "sold"}},
	{CategoryChallenges, "Challenges", []string{"challenges", "issue", "difficulty"}},
	{CategoryKeyContacts, "Key Contacts", []string{"contact", "key person"}},
	{CategoryFuturePlans, "Future Plans", []string{"plan", "next step", "future"}},
	{CategoryResourceNeeds, "Resource Needs", []string{"resource", "support", "missing"}},
}

// CategorizeQuestion maps a question to its plan category, defaulting to cooperation history.
func CategorizeQuestion(question string) string {
	lower := strings.ToLower(question)
	for _, c := range planCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return CategoryCooperationHistory
}

// PlanService synthesizes strategic plans and manages their lifecycle.
type PlanService interface {
	// Generate writes a plan from everything known about the account. Generation
	// failures fall back to a fixed template; the plan is always created.
	Generate(ctx context.Context, accountID uuid.UUID, title, description string) (*models.Plan, error)
	Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error)
	List(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error)
	// Update applies the provided fields and always appends a change-log entry.
	Update(ctx context.Context, planID uuid.UUID, update models.PlanUpdate) (*models.Plan, error)
	// ArchiveOld archives every non-archived plan beyond the newest keepLatest.
	ArchiveOld(ctx context.Context, accountID uuid.UUID, keepLatest int) (*ArchiveResult, error)
	// RenderHTML converts the plan's Markdown content to HTML.
	RenderHTML(ctx context.Context, planID uuid.UUID) ([]byte, error)
}

// ArchiveResult reports which plans ArchiveOld archived.
type ArchiveResult struct {
	Message       string      `json:"message"`
	ArchivedPlans []uuid.UUID `json:"archived_plans"`
}

type planService struct {
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	factRepo        repositories.ExternalFactRepository
	planRepo        repositories.PlanRepository
	llmClient       llm.LLMClient
	keepLatest      int
	logger          *zap.Logger
	now             func() time.Time
}

// NewPlanService creates a new PlanService. keepLatest is the ArchiveOld default.
func NewPlanService(
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	factRepo repositories.ExternalFactRepository,
	planRepo repositories.PlanRepository,
	llmClient llm.LLMClient,
	keepLatest int,
	logger *zap.Logger,
) PlanService {
	if keepLatest <= 0 {
		keepLatest = DefaultKeepLatest
	}
	return &planService{
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		factRepo:        factRepo,
		planRepo:        planRepo,
		llmClient:       llmClient,
		keepLatest:      keepLatest,
		logger:          logger.Named("plan-service"),
		now:             time.Now,
	}
}

var _ PlanService = (*planService)(nil)

func (s *planService) Generate(ctx context.Context, accountID uuid.UUID, title, description string) (*models.Plan, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	input, err := s.planInput(ctx, account, description)
	if err != nil {
		return nil, err
	}

	content, err := s.llmClient.Generate(ctx, prompts.StrategicAccountManager(account.CompanyName),
		prompts.StrategicPlan(*input), llm.ModePlain)
	content = strings.TrimSpace(content)
	if err != nil || content == "" {
		s.logger.Warn("Plan generation failed, using fallback template",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
		content = fallbackPlan(account, s.now())
	}

	if strings.TrimSpace(title) == "" {
		title = account.CompanyName + " Strategic Customer Plan"
	}
	plan := &models.Plan{
		AccountID: accountID,
		Title:     title,
		Content:   content,
		Status:    models.PlanStatusDraft,
	}
	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	s.logger.Info("Plan generated",
		zap.String("account_id", accountID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.Int("content_length", len(content)))
	return plan, nil
}

// planInput gathers external facts, categorized answers and the customer profile.
func (s *planService) planInput(ctx context.Context, account *models.Account, description string) (*prompts.PlanInput, error) {
	input := &prompts.PlanInput{
		CompanyName:  account.CompanyName,
		Industry:     account.Industry,
		CompanySize:  account.CompanySize,
		Website:      account.Website,
		Description:  account.Description,
		Requirements: description,
	}

	facts, err := s.factRepo.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list external facts: %w", err)
	}
	for _, f := range facts {
		content, err := f.DecodeContent()
		if err != nil {
			s.logger.Warn("Skipping undecodable external fact",
				zap.String("account_id", account.ID.String()),
				zap.String("fact_type", string(f.FactType)),
				zap.Error(err))
			continue
		}
		switch f.FactType {
		case models.FactTypeCompanyProfile:
			input.CompanyProfile = asObject(content, "company_profile")
		case models.FactTypeNews:
			input.News = asObject(content, "news")
		case models.FactTypeMarketInfo:
			input.Market = asObject(content, "market_info")
		case models.FactTypeCustomerProfile:
			input.CustomerProfile = profileText(content)
		}
	}

	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID: account.ID,
		Types:     []models.InteractionType{models.InteractionTypeQuestion},
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	input.QA = categorizeAnswers(interactions)
	return input, nil
}

// categorizeAnswers groups interactions under every plan category, in category order.
func categorizeAnswers(interactions []*models.Interaction) []prompts.QACategory {
	grouped := make(map[string][]prompts.QAItem, len(planCategories))
	for _, i := range interactions {
		c := CategorizeQuestion(i.Question)
		grouped[c] = append(grouped[c], prompts.QAItem{Question: i.Question, Answer: i.Answer})
	}

	categories := make([]prompts.QACategory, 0, len(planCategories))
	for _, c := range planCategories {
		categories = append(categories, prompts.QACategory{Name: c.displayName, Items: grouped[c.category]})
	}
	return categories
}

func (s *planService) Get(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	return s.planRepo.GetByID(ctx, planID)
}

func (s *planService) List(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.planRepo.ListByAccount(ctx, accountID, includeArchived)
}

func (s *planService) Update(ctx context.Context, planID uuid.UUID, update models.PlanUpdate) (*models.Plan, error) {
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, err.Error())
	}

	plan, err := s.planRepo.Update(ctx, planID, update, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Plan updated",
		zap.String("plan_id", planID.String()),
		zap.Int("fields", len(update.Changes())))
	return plan, nil
}

func (s *planService) ArchiveOld(ctx context.Context, accountID uuid.UUID, keepLatest int) (*ArchiveResult, error) {
	if keepLatest <= 0 {
		keepLatest = s.keepLatest
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	archived, err := s.planRepo.ArchiveBeyond(ctx, accountID, keepLatest, s.now())
	if err != nil {
		return nil, fmt.Errorf("archive plans: %w", err)
	}
	if archived == nil {
		archived = []uuid.UUID{}
	}

	s.logger.Info("Old plans archived",
		zap.String("account_id", accountID.String()),
		zap.Int("keep_latest", keepLatest),
		zap.Int("archived", len(archived)))
	return &ArchiveResult{
		Message:       fmt.Sprintf("Archived %d plans", len(archived)),
		ArchivedPlans: archived,
	}, nil
}

func (s *planService) RenderHTML(ctx context.Context, planID uuid.UUID) ([]byte, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	return RenderMarkdown(plan.Content), nil
}

// RenderMarkdown converts Markdown to HTML with tables and heading ids enabled.
func RenderMarkdown(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return markdown.ToHTML([]byte(md), p, renderer)
}

// fallbackPlanTemplate is used when the plan cannot be generated.
var fallbackPlanTemplate = template.Must(template.New("plan").Parse(`# Strategic Customer Plan - {{.CompanyName}}

## 1. Company Overview

**Company Name:** {{.CompanyName}}
**Industry:** {{.Industry}}
**Company Size:** {{.CompanySize}}

### Company Description
{{.Description}}

---

## 2. Current Situation Analysis
To be analyzed

## 3. Action Plan
- Short-term goals (1-3 months): To be developed
- Medium-term goals (3-6 months): To be developed
- Long-term goals (6-12 months): To be developed

## 4. Risk Assessment
To be identified

## 5. Success Metrics (KPIs)
To be determined

---

*Plan Generation Time: {{.GeneratedAt}}*
*Note: This is a basic template. Plan generation failed.*
`))

func fallbackPlan(account *models.Account, at time.Time) string {
	var buf bytes.Buffer
	err := fallbackPlanTemplate.Execute(&buf, map[string]string{
		"CompanyName": account.CompanyName,
		"Industry":    orDefault(account.Industry, "Unknown"),
		"CompanySize": orDefault(account.CompanySize, "Unknown"),
		"Description": orDefault(account.Description, "No description available"),
		"GeneratedAt": at.Format(time.DateTime),
	})
	if err != nil {
		return "# Strategic Customer Plan - " + account.CompanyName
	}
	return buf.String()
}

// asObject returns content as a mapping; lists are wrapped under key.
func asObject(content any, key string) map[string]any {
	switch v := content.(type) {
	case map[string]any:
		return v
	case []any:
		return map[string]any{key: v}
	case nil:
		return nil
	default:
		return map[string]any{key: v}
	}
}

// profileText unwraps the {"profile": ...} customer profile content.
func profileText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case map[string]any:
		if p, ok := v["profile"].(string); ok {
			return p
		}
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
