package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// Relevance sources.
const (
	RelevanceSourceAI      = "ai"
	RelevanceSourceKeyword = "keyword"
	RelevanceSourceNone    = "none"
)

const (
	defaultHistoryLimit = 20
	defaultRelevantTopK = 5
)

// RelevanceService ranks prior answers against a new question and diffs new
// facts against what the account's history already says.
type RelevanceService interface {
	// RelevantHistory never fails on generation errors; it falls back to keyword overlap.
	RelevantHistory(ctx context.Context, accountID uuid.UUID, currentQuestion string, hints map[string]any) (*RelevantHistory, error)
	// DetectChanges returns empty lists, not an error, when the diff cannot be generated.
	DetectChanges(ctx context.Context, accountID uuid.UUID, newFacts map[string]any) (*ChangeReport, error)
}

// RelevantItem is one ranked prior interaction.
type RelevantItem struct {
	InteractionID  string                `json:"interaction_id"`
	Question       string                `json:"question"`
	Answer         string                `json:"answer"`
	RelevanceScore float64               `json:"relevance_score"`
	Reason         string                `json:"reason,omitempty"`
	CreatedAt      *time.Time            `json:"created_at,omitempty"`
	StructuredData models.StructuredData `json:"structured_data,omitempty"`
}

// RelevantHistory is the bounded, ranked result of RelevantHistory.
type RelevantHistory struct {
	HasHistory         bool           `json:"has_history"`
	RelevantInfo       []RelevantItem `json:"relevant_info"`
	TotalInteractions  int            `json:"total_interactions"`
	Source             string         `json:"source"`
	NeedsUpdate        []any          `json:"needs_update,omitempty"`
	FollowUpDirections []any          `json:"follow_up_directions,omitempty"`
}

// ChangeReport is the diff between accumulated history and new facts.
type ChangeReport struct {
	HasChanges  bool  `json:"has_changes"`
	Changes     []any `json:"changes"`
	Suggestions []any `json:"suggestions"`
}

// StructuredData renders the report in the change-detection producer shape.
func (r *ChangeReport) StructuredData() models.StructuredData {
	return models.StructuredData{
		models.KeyChanges:     r.Changes,
		models.KeySuggestions: r.Suggestions,
	}
}

type relevanceService struct {
	accountRepo     repositories.AccountRepository
	interactionRepo repositories.InteractionRepository
	llmClient       llm.LLMClient
	historyLimit    int
	topK            int
	logger          *zap.Logger
}

// NewRelevanceService creates a new RelevanceService. Non-positive limits use the defaults (20 and 5).
func NewRelevanceService(
	accountRepo repositories.AccountRepository,
	interactionRepo repositories.InteractionRepository,
	llmClient llm.LLMClient,
	historyLimit, topK int,
	logger *zap.Logger,
) RelevanceService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if topK <= 0 {
		topK = defaultRelevantTopK
	}
	return &relevanceService{
		accountRepo:     accountRepo,
		interactionRepo: interactionRepo,
		llmClient:       llmClient,
		historyLimit:    historyLimit,
		topK:            topK,
		logger:          logger.Named("relevance-service"),
	}
}

var _ RelevanceService = (*relevanceService)(nil)

func (s *relevanceService) RelevantHistory(ctx context.Context, accountID uuid.UUID, currentQuestion string, hints map[string]any) (*RelevantHistory, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	history, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID: accountID,
		Types:     []models.InteractionType{models.InteractionTypeQuestion},
		Limit:     s.historyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	if len(history) == 0 {
		return &RelevantHistory{
			RelevantInfo: []RelevantItem{},
			Source:       RelevanceSourceNone,
		}, nil
	}

	result := &RelevantHistory{
		HasHistory:        true,
		TotalInteractions: len(history),
	}

	items, extra, err := s.rankWithModel(ctx, currentQuestion, history, hints)
	if err == nil {
		result.RelevantInfo = items
		result.Source = RelevanceSourceAI
		result.NeedsUpdate = listField(extra, "needs_update")
		result.FollowUpDirections = listField(extra, "follow_up_directions")
		return result, nil
	}
	s.logger.Warn("Relevance ranking degraded to keyword overlap",
		zap.String("account_id", accountID.String()),
		zap.Error(err))

	result.RelevantInfo = KeywordRank(currentQuestion, history, s.topK)
	result.Source = RelevanceSourceKeyword
	return result, nil
}

// rankWithModel asks the generation gateway for a ranking. Any failure,
// including a degraded extraction, is returned as an error.
func (s *relevanceService) rankWithModel(ctx context.Context, currentQuestion string, history []*models.Interaction, hints map[string]any) ([]RelevantItem, map[string]any, error) {
	entries := make([]prompts.HistoryEntry, 0, len(history))
	byID := make(map[string]*models.Interaction, len(history))
	for _, h := range history {
		entries = append(entries, prompts.HistoryEntry{
			InteractionID: h.ID.String(),
			Question:      h.Question,
			Answer:        h.Answer,
			At:            h.CreatedAt,
		})
		byID[h.ID.String()] = h
	}

	text, err := s.llmClient.Generate(ctx, prompts.CRMExpert, prompts.Relevance(currentQuestion, entries, hints), llm.ModePlain)
	if err != nil {
		return nil, nil, err
	}

	res := extraction.Extract(text, extraction.KindObject)
	if res.Degraded {
		return nil, nil, fmt.Errorf("extraction failed: %s", res.Error)
	}
	raw, ok := res.Object["relevant_info"].([]any)
	if !ok {
		return nil, nil, fmt.Errorf("response has no relevant_info list")
	}

	items := make([]RelevantItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		item := RelevantItem{
			InteractionID:  stringField(m, "interaction_id"),
			Question:       stringField(m, "question"),
			Answer:         stringField(m, "answer"),
			RelevanceScore: floatField(m, "relevance_score"),
			Reason:         stringField(m, "reason"),
		}
		if h, ok := byID[item.InteractionID]; ok {
			created := h.CreatedAt
			item.CreatedAt = &created
			item.StructuredData = h.StructuredData
			if item.Question == "" {
				item.Question = h.Question
			}
			if item.Answer == "" {
				item.Answer = h.Answer
			}
		}
		items = append(items, item)
		if len(items) == s.topK {
			break
		}
	}
	return items, res.Object, nil
}

// KeywordRank scores each interaction by the number of lowercase whitespace
// tokens it shares with currentQuestion, drops zero scores and returns the
// topK best, ties keeping history order.
func KeywordRank(currentQuestion string, history []*models.Interaction, topK int) []RelevantItem {
	current := tokenSet(currentQuestion)

	items := make([]RelevantItem, 0, len(history))
	for _, h := range history {
		words := tokenSet(h.Question + " " + h.Answer)
		overlap := 0
		for w := range current {
			if _, ok := words[w]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		created := h.CreatedAt
		items = append(items, RelevantItem{
			InteractionID:  h.ID.String(),
			Question:       h.Question,
			Answer:         h.Answer,
			RelevanceScore: float64(overlap),
			CreatedAt:      &created,
			StructuredData: h.StructuredData,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	if topK > 0 && len(items) > topK {
		items = items[:topK]
	}
	return items
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func (s *relevanceService) DetectChanges(ctx context.Context, accountID uuid.UUID, newFacts map[string]any) (*ChangeReport, error) {
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	history, err := s.interactionRepo.List(ctx, models.InteractionFilter{
		AccountID: accountID,
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}

	accumulated := FoldStructuredData(history)
	empty := &ChangeReport{Changes: []any{}, Suggestions: []any{}}
	if accumulated.Equal(newFacts) {
		return empty, nil
	}

	text, err := s.llmClient.Generate(ctx, prompts.DataAnalyst, prompts.ChangeAnalysis(accumulated, newFacts), llm.ModePlain)
	if err != nil {
		s.logger.Warn("Change detection unavailable",
			zap.String("account_id", accountID.String()),
			zap.Error(err))
		return empty, nil
	}

	res := extraction.Extract(text, extraction.KindObject)
	if res.Degraded {
		s.logger.Warn("Change detection response unparseable",
			zap.String("account_id", accountID.String()),
			zap.String("error", res.Error))
		return empty, nil
	}

	report := &ChangeReport{
		Changes:     listField(res.Object, models.KeyChanges),
		Suggestions: listField(res.Object, models.KeySuggestions),
	}
	if err := report.StructuredData().Validate(models.ProducerChangeDetection); err != nil {
		return empty, nil
	}
	report.HasChanges = len(report.Changes) > 0
	return report, nil
}

// FoldStructuredData merges the structured data of interactions in the given
// order, later keys winning. Degraded extraction wrappers are skipped.
func FoldStructuredData(interactions []*models.Interaction) models.StructuredData {
	folded := models.StructuredData{}
	for _, i := range interactions {
		if _, degraded := i.StructuredData[models.KeyExtractionError]; degraded {
			continue
		}
		folded = folded.Merge(i.StructuredData)
	}
	return folded
}

// listField returns m[key] as a list, or an empty non-nil list.
func listField(m map[string]any, key string) []any {
	if l, ok := m[key].([]any); ok {
		return l
	}
	return []any{}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
