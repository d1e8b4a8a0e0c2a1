package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-accounts/pkg/extraction"
	"github.com/ekaya-inc/ekaya-accounts/pkg/llm"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/prompts"
)

// defaultCategory labels answers whose question is not in the catalog.
const defaultCategory = "General"

// extractAnswerData turns one answer into structured data. A failed generation
// or unparseable output yields {raw_answer, extraction_error}.
func extractAnswerData(ctx context.Context, client llm.LLMClient, question, answer, category string) models.StructuredData {
	if category == "" {
		category = defaultCategory
	}

	var res extraction.Result
	text, err := client.Generate(ctx, prompts.DataExtractor, prompts.AnswerExtraction(question, answer, category), llm.ModePlain)
	if err != nil {
		res = extraction.Degraded(text, err)
	} else {
		res = extraction.Extract(text, extraction.KindObject)
	}

	if res.Degraded {
		return models.StructuredData{
			models.KeyRawAnswer:       answer,
			models.KeyExtractionError: res.Error,
		}
	}
	return models.StructuredData(res.Object)
}
