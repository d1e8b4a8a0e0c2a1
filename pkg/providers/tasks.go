package providers

import (
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
)

// Task names a fact-gathering task.
type Task string

const (
	TaskCompanyProfile Task = "company_profile"
	TaskNews           Task = "company_news"
	TaskMarketInfo     Task = "market_info"
)

// AllTasks lists the tasks in collection order.
var AllTasks = []Task{TaskCompanyProfile, TaskNews, TaskMarketInfo}

// TasksFor maps a collection info type ("all", "company_profile", "news",
// "market_info") to tasks. An empty info type means all.
func TasksFor(infoType string) ([]Task, bool) {
	switch infoType {
	case "", "all":
		return AllTasks, true
	case "company_profile":
		return []Task{TaskCompanyProfile}, true
	case "news", string(TaskNews):
		return []Task{TaskNews}, true
	case "market_info":
		return []Task{TaskMarketInfo}, true
	}
	return nil, false
}

// FactType is the ExternalFact type a task's result is stored under.
func (t Task) FactType() models.FactType {
	switch t {
	case TaskNews:
		return models.FactTypeNews
	case TaskMarketInfo:
		return models.FactTypeMarketInfo
	default:
		return models.FactTypeCompanyProfile
	}
}

// DefaultNewsMonths is the news window used when AccountContext has no range.
const DefaultNewsMonths = 6

// Profile field defaults.
const (
	ToBeConfirmed = "To be confirmed"
	ToBeAnalyzed  = "To be analyzed"
	Unknown       = "Unknown"
)

// AccountContext is what a provider is told about the account.
type AccountContext struct {
	CompanyName string
	Industry    string
	Start       time.Time
	End         time.Time
}

// newsWindow returns the configured range, defaulting to the last six months before now.
func (a AccountContext) newsWindow(now time.Time) (time.Time, time.Time) {
	start, end := a.Start, a.End
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.AddDate(0, -DefaultNewsMonths, 0)
	}
	return start, end
}

// taskSpec describes how each task is asked for and what counts as an acceptable answer.
type taskSpec struct {
	kind         extraction.Kind
	instructions string
	query        func(AccountContext) string // search-mode prompt
	fallback     func(AccountContext) string // plain-mode prompt
	payload      func(AccountContext) map[string]any
	// normalize returns the canonical value, or false when v lacks the expected shape.
	normalize   func(v any, account AccountContext) (any, bool)
	placeholder func(account AccountContext, reason string) any
}

var profileFields = []string{"company_name", "industry", "company_size", "website", "description"}

var marketFields = []string{"industry", "trends", "competitors", "opportunities", "risks"}

var taskSpecs = map[Task]taskSpec{
	TaskCompanyProfile: {
		kind:         extraction.KindObject,
		instructions: prompts.DataAnalyst,
		query:        func(a AccountContext) string { return prompts.CompanyProfileQuery(a.CompanyName) },
		fallback:     func(a AccountContext) string { return prompts.CompanyProfileFallback(a.CompanyName) },
		payload: func(a AccountContext) map[string]any {
			return map[string]any{"company_name": a.CompanyName}
		},
		normalize: normalizeProfile,
		placeholder: func(a AccountContext, reason string) any {
			return map[string]any{
				"company_name": a.CompanyName,
				"industry":     Unknown,
				"company_size": Unknown,
				"website":      Unknown,
				"description":  "Unable to get detailed company information",
				"error":        reason,
			}
		},
	},
	TaskNews: {
		kind:         extraction.KindArray,
		instructions: prompts.NewsAnalyst,
		query: func(a AccountContext) string {
			start, end := a.newsWindow(time.Now())
			return prompts.NewsQuery(a.CompanyName, start, end)
		},
		fallback: func(a AccountContext) string { return prompts.NewsFallback(a.CompanyName, DefaultNewsMonths) },
		payload: func(a AccountContext) map[string]any {
			start, end := a.newsWindow(time.Now())
			return map[string]any{
				"company_name": a.CompanyName,
				"start_date":   start.Format(time.DateOnly),
				"end_date":     end.Format(time.DateOnly),
			}
		},
		normalize: normalizeNews,
		placeholder: func(AccountContext, string) any {
			return []any{}
		},
	},
	TaskMarketInfo: {
		kind:         extraction.KindObject,
		instructions: prompts.MarketAnalyst,
		query:        func(a AccountContext) string { return prompts.MarketQuery(a.CompanyName, a.Industry) },
		fallback:     func(a AccountContext) string { return prompts.MarketFallback(a.CompanyName, a.Industry) },
		payload: func(a AccountContext) map[string]any {
			return map[string]any{"company_name": a.CompanyName, "industry": a.Industry}
		},
		normalize: normalizeMarket,
		placeholder: func(a AccountContext, reason string) any {
			industry := a.Industry
			if industry == "" {
				industry = Unknown
			}
			return map[string]any{
				"industry":      industry,
				"trends":        "Unable to get market information",
				"competitors":   []any{},
				"opportunities": []any{},
				"risks":         []any{},
				"error":         reason,
			}
		},
	},
}

func specFor(task Task) (taskSpec, error) {
	spec, ok := taskSpecs[task]
	if !ok {
		return taskSpec{}, fmt.Errorf("unknown task %q", task)
	}
	return spec, nil
}

// hasAnyKey reports whether obj carries at least one of keys with a non-nil value.
func hasAnyKey(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return true
		}
	}
	return false
}

func normalizeProfile(v any, a AccountContext) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || !hasAnyKey(obj, profileFields) {
		return nil, false
	}
	out := map[string]any{}
	for _, field := range profileFields {
		s := jsonutil.FlexibleString(obj[field])
		if s == "" {
			s = ToBeConfirmed
			if field == "company_name" && a.CompanyName != "" {
				s = a.CompanyName
			}
		}
		out[field] = s
	}
	return out, true
}

func normalizeNews(v any, _ AccountContext) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		// Some gateways wrap the list: {"news": [...]}.
		if obj, isObj := v.(map[string]any); isObj {
			list, ok = obj["news"].([]any)
		}
	}
	if !ok {
		return nil, false
	}

	items := make([]any, 0, len(list))
	for _, raw := range list {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, map[string]any{
			"title":   jsonutil.FlexibleString(item["title"]),
			"summary": jsonutil.FlexibleString(item["summary"]),
			"date":    jsonutil.FlexibleString(item["date"]),
			"source":  jsonutil.FlexibleString(item["source"]),
		})
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

func normalizeMarket(v any, a AccountContext) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || !hasAnyKey(obj, marketFields) {
		return nil, false
	}
	industry := jsonutil.FlexibleString(obj["industry"])
	if industry == "" {
		industry = a.Industry
	}
	if industry == "" {
		industry = Unknown
	}
	trends := obj["trends"]
	if trends == nil || trends == "" {
		trends = ToBeAnalyzed
	}
	return map[string]any{
		"industry":      industry,
		"trends":        trends,
		"competitors":   listOrEmpty(obj["competitors"]),
		"opportunities": listOrEmpty(obj["opportunities"]),
		"risks":         listOrEmpty(obj["risks"]),
	}, true
}

func listOrEmpty(v any) any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case string:
		if val == "" {
			return []any{}
		}
	}
	return v
}
