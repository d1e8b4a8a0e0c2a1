package prompts

import (
	"fmt"
	"strings"
	"time"
)

// HistoryEntry is one prior Q&A shown to the relevance and prefill prompts.
type HistoryEntry struct {
	InteractionID string
	Question      string
	Answer        string
	At            time.Time
}

// Relevance asks which prior answers relate to the current question.
// The response must be a JSON object with a relevant_info array.
func Relevance(currentQuestion string, history []HistoryEntry, context map[string]any) string {
	ctx := "None"
	if len(context) > 0 {
		ctx = compactJSON(context)
	}

	var prompt strings.Builder
	prompt.WriteString("Based on the following historical Q&A records, find information related to the current question.\n\n")
	prompt.WriteString(fmt.Sprintf("Current question: %s\n\n", currentQuestion))
	prompt.WriteString("Historical records:\n")
	for _, h := range history {
		prompt.WriteString(fmt.Sprintf("ID: %s\nQuestion: %s\nAnswer: %s\nTime: %s\n\n",
			h.InteractionID, h.Question, h.Answer, h.At.Format(time.DateOnly)))
	}
	prompt.WriteString(fmt.Sprintf("Context information: %s\n\n", ctx))
	prompt.WriteString("Return a JSON object of the form:\n")
	prompt.WriteString(`{"relevant_info": [{"interaction_id": "...", "question": "...", "answer": "...", "relevance_score": 1-10, "reason": "..."}], `)
	prompt.WriteString(`"needs_update": ["..."], "follow_up_directions": ["..."]}`)
	prompt.WriteString("\nOrder relevant_info from most to least relevant and include only records listed above.")
	return prompt.String()
}

// ChangeAnalysis asks for a diff between accumulated and new facts.
// The response must be a JSON object with changes and suggestions arrays.
func ChangeAnalysis(historical, current map[string]any) string {
	var prompt strings.Builder
	prompt.WriteString("Compare the following historical data and new data to detect changes.\n\n")
	prompt.WriteString(fmt.Sprintf("Historical data:\n%s\n\n", indentJSON(historical)))
	prompt.WriteString(fmt.Sprintf("New data:\n%s\n\n", indentJSON(current)))
	prompt.WriteString("Please analyze:\n")
	prompt.WriteString("1. Specific change content\n")
	prompt.WriteString("2. Importance level of changes\n")
	prompt.WriteString("3. Suggested update strategy\n\n")
	prompt.WriteString("Return a JSON object of the form:\n")
	prompt.WriteString(`{"changes": [{"field": "...", "old_value": "...", "new_value": "...", "importance": "high|medium|low"}], "suggestions": ["..."]}`)
	prompt.WriteString("\nUse empty arrays when nothing changed.")
	return prompt.String()
}

// PrefillSuggestions asks which prior answers are still valid.
func PrefillSuggestions(history []HistoryEntry) string {
	var prompt strings.Builder
	prompt.WriteString("Based on the following historical Q&A records, generate pre-fill suggestions:\n\n")
	for _, h := range history {
		prompt.WriteString(fmt.Sprintf("Question: %s\nAnswer: %s\nLast Updated: %s\n\n",
			h.Question, h.Answer, h.At.Format(time.RFC3339)))
	}
	prompt.WriteString("Please analyze and return:\n")
	prompt.WriteString("1. Which information may be outdated and needs updating\n")
	prompt.WriteString("2. Which information is still valid and can be pre-filled\n")
	prompt.WriteString("3. Suggested update priority\n")
	prompt.WriteString("4. Missing important information\n\n")
	prompt.WriteString("Return results as a JSON object.")
	return prompt.String()
}
