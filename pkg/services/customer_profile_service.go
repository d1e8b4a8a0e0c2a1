package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/logging"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

const (
	profileReportHeader  = "# Customer Profile Analysis Report\n\n"
	profileValueLimit    = 100
	profileNonMapLimit   = 200
	noExternalCollected  = "No external information collected"
	noInternalCollected  = "No internal information collected"
	customerProfileField = "profile"
)

// CustomerProfileService writes and stores the narrative customer profile of an account.
type CustomerProfileService interface {
	// Generate builds a profile report from stored facts and answers. It does not store it.
	Generate(ctx context.Context, accountID uuid.UUID) (*CustomerProfile, error)
	// Save stores profile as the account's single customer_profile fact.
	Save(ctx context.Context, accountID uuid.UUID, profile string) (*CustomerProfile, error)
	// Get returns the stored profile; Exists is false when none was saved.
	Get(ctx context.Context, accountID uuid.UUID) (*CustomerProfile, error)
}

// CustomerProfile is a generated or stored profile report.
type CustomerProfile struct {
	AccountID uuid.UUID  `json:"account_id"`
	Exists    bool       `json:"exists"`
	Profile   string     `json:"profile"`
	Degraded  bool       `json:"degraded,omitempty"`
	FactID    *uuid.UUID `json:"profile_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type customerProfileService struct {
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	factRepo        repositories.ExternalFactRepository
	templateRepo    repositories.QuestionTemplateRepository
	llmClient       llm.LLMClient
	logger          *zap.Logger
}

// NewCustomerProfileService creates a new CustomerProfileService.
func NewCustomerProfileService(
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	factRepo repositories.ExternalFactRepository,
	templateRepo repositories.QuestionTemplateRepository,
	llmClient llm.LLMClient,
	logger *zap.Logger,
) CustomerProfileService {
	return &customerProfileService{
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		factRepo:        factRepo,
		templateRepo:    templateRepo,
		llmClient:       llmClient,
		logger:          logger.Named("customer-profile-service"),
	}
}

var _ CustomerProfileService = (*customerProfileService)(nil)

func (s *customerProfileService) Generate(ctx context.Context, accountID uuid.UUID) (*CustomerProfile, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	external, err := s.externalInfo(ctx, accountID)
	if err != nil {
		return nil, err
	}
	internal, err := s.internalInfo(ctx, accountID)
	if err != nil {
		return nil, err
	}

	input := prompts.ProfileInput{
		ExternalSummary: summarizeExternal(external),
		InternalSummary: summarizeInternal(internal),
		ExternalCount:   len(external),
		InternalCount:   len(internal),
		ExternalRaw:     external,
		InternalRaw:     internal,
	}

	result := &CustomerProfile{AccountID: accountID}
	text, err := s.llmClient.Generate(ctx, prompts.CustomerAnalyst, prompts.CustomerProfile(input), llm.ModePlain)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.logger.Warn("Customer profile generation failed, using fallback template",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
		result.Profile = fallbackProfile(external, internal)
		result.Degraded = true
		return result, nil
	}

	result.Profile = profileReportHeader + text
	return result, nil
}

func (s *customerProfileService) Save(ctx context.Context, accountID uuid.UUID, profile string) (*CustomerProfile, error) {
	if strings.TrimSpace(profile) == "" {
		return nil, fmt.Errorf("%w: customer_profile is required", apperrors.ErrInvalidInput)
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	content, err := json.Marshal(map[string]string{customerProfileField: profile})
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	fact := &models.ExternalFact{
		AccountID: accountID,
		FactType:  models.FactTypeCustomerProfile,
		Content:   content,
	}
	if err := s.factRepo.Upsert(ctx, fact); err != nil {
		return nil, fmt.Errorf("save customer profile: %w", err)
	}

	s.logger.Info("Customer profile saved", zap.String("account_id", accountID.String()))
	return profileFromFact(fact), nil
}

func (s *customerProfileService) Get(ctx context.Context, accountID uuid.UUID) (*CustomerProfile, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	fact, err := s.factRepo.Get(ctx, accountID, models.FactTypeCustomerProfile)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &CustomerProfile{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, err
	}
	return profileFromFact(fact), nil
}

// externalInfo returns the decoded facts other than the customer profile, keyed by type.
func (s *customerProfileService) externalInfo(ctx context.Context, accountID uuid.UUID) (map[string]any, error) {
	facts, err := s.factRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list external facts: %w", err)
	}
	external := make(map[string]any, len(facts))
	for _, f := range facts {
		if f.FactType == models.FactTypeCustomerProfile {
			continue
		}
		content, err := f.DecodeContent()
		if err != nil || content == nil {
			continue
		}
		external[string(f.FactType)] = content
	}
	return external, nil
}

// internalInfo maps each answered question, or its catalog category when the
// question is in the catalog, to the latest answer.
func (s *customerProfileService) internalInfo(ctx context.Context, accountID uuid.UUID) (map[string]any, error) {
	interactions, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID:    accountID,
		AnsweredOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	templates, err := s.templateRepo.List(ctx, true, "")
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	internal := make(map[string]any)
	for _, i := range interactions {
		key := i.Question
		if t := matchQuestion(i.Question, templates); t != nil {
			key = t.Category
		}
		if _, seen := internal[key]; !seen {
			internal[key] = i.Answer
		}
	}
	return internal, nil
}

func profileFromFact(f *models.ExternalFact) *CustomerProfile {
	p := &CustomerProfile{
		AccountID: f.AccountID,
		Exists:    true,
		FactID:    &f.ID,
		CreatedAt: &f.CreatedAt,
		UpdatedAt: &f.UpdatedAt,
	}
	if content, err := f.DecodeContent(); err == nil {
		p.Profile = profileText(content)
	}
	return p
}

// summarizeExternal renders "### type:" blocks with "- key: value" lines.
func summarizeExternal(external map[string]any) string {
	if len(external) == 0 {
		return noExternalCollected
	}
	var b strings.Builder
	for _, infoType := range sortedKeys(external) {
		b.WriteString(fmt.Sprintf("\n### %s:\n", infoType))
		content := external[infoType]
		obj, ok := content.(map[string]any)
		if !ok {
			b.WriteString(fmt.Sprintf("- %s\n", logging.TruncateString(jsonutil.FlexibleString(content), profileNonMapLimit)))
			continue
		}
		for _, key := range sortedKeys(obj) {
			b.WriteString(fmt.Sprintf("- %s: %s\n", key, logging.TruncateString(jsonutil.FlexibleString(obj[key]), profileValueLimit)))
		}
	}
	return b.String()
}

// summarizeInternal renders "- key: value" lines.
func summarizeInternal(internal map[string]any) string {
	if len(internal) == 0 {
		return noInternalCollected
	}
	var b strings.Builder
	for _, key := range sortedKeys(internal) {
		b.WriteString(fmt.Sprintf("- %s: %s\n", key, logging.TruncateString(jsonutil.FlexibleString(internal[key]), profileValueLimit)))
	}
	return b.String()
}

// fallbackProfile is a minimal report built only from collected values.
func fallbackProfile(external, internal map[string]any) string {
	companyName, industry := "Unknown company", "Unknown industry"
	if profile, ok := external[string(models.FactTypeCompanyProfile)].(map[string]any); ok {
		if v := jsonutil.FlexibleString(profile["company_name"]); v != "" {
			companyName = v
		}
		if v := jsonutil.FlexibleString(profile["industry"]); v != "" {
			industry = v
		}
	}

	value := func(key, def string) string {
		if len(internal) == 0 {
			return "To be collected"
		}
		if v := jsonutil.FlexibleString(internal[key]); v != "" {
			return v
		}
		return def
	}

	var b strings.Builder
	b.WriteString(profileReportHeader)
	b.WriteString("## Company Basic Overview\n")
	b.WriteString(fmt.Sprintf("- Company Name: %s\n", companyName))
	b.WriteString(fmt.Sprintf("- Industry: %s\n", industry))
	b.WriteString("- Company Overview: Based on collected external information\n\n")
	b.WriteString("## Business Characteristics Analysis\n")
	b.WriteString(fmt.Sprintf("- Cooperation History: %s\n", value("Cooperation History", "See conversation records")))
	b.WriteString(fmt.Sprintf("- Products & Services: %s\n", value("Products & Services", "To be supplemented")))
	b.WriteString(fmt.Sprintf("- Key Pain Points: %s\n\n", value("Challenges & Issues", "To be understood")))
	b.WriteString("## Key Decision Makers\n")
	b.WriteString(fmt.Sprintf("- Contact Information: %s\n\n", value("Key Contacts", "To be collected")))
	b.WriteString("## Next Steps\n")
	b.WriteString(fmt.Sprintf("- Future Requirements: %s\n", value("Future Plans", "To be planned")))
	b.WriteString(fmt.Sprintf("- Resource Support: %s\n\n", value("Resource Needs", "To be assessed")))
	b.WriteString("**Note:** This profile is a quick generation version. Add more information for a detailed analysis.\n")
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
