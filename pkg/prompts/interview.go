package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NoPreviousSummary stands in for a missing summary in the summary prompt.
const NoPreviousSummary = "No previous summary available"

// OpeningQuestion asks for the first question of an interview on seed.
func OpeningQuestion(seed, previousSummary string, context map[string]any) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("You are starting a conversation with a customer to gather information about: %s\n\n", seed))
	if previousSummary != "" {
		prompt.WriteString(fmt.Sprintf("Historical context from previous conversations: %s\n\n", previousSummary))
	} else {
		prompt.WriteString("This is the first conversation on this topic.\n\n")
	}
	if len(context) > 0 {
		prompt.WriteString(fmt.Sprintf("Additional context: %s\n\n", compactJSON(context)))
	}
	prompt.WriteString("Generate an opening question to initiate this conversation. The question should:\n")
	prompt.WriteString("1. Be professional and friendly\n")
	prompt.WriteString("2. Encourage the customer to share detailed information\n")
	prompt.WriteString(fmt.Sprintf("3. Be specific to the topic: %s\n", seed))
	prompt.WriteString("4. Be open-ended to allow for comprehensive responses\n\n")
	prompt.WriteString("Please provide a single opening question:")
	return prompt.String()
}

// FollowUpQuestion asks for the next interview question.
func FollowUpQuestion(previousQuestion, customerResponse, category string) string {
	if customerResponse == "" {
		customerResponse = "No response yet"
	}
	var prompt strings.Builder
	prompt.WriteString("Based on the customer's previous response, generate one follow-up question to gain deeper understanding.\n\n")
	prompt.WriteString(fmt.Sprintf("Previous Question: %s\n", previousQuestion))
	prompt.WriteString(fmt.Sprintf("Customer Response: %s\n", customerResponse))
	prompt.WriteString(fmt.Sprintf("Question Category: %s\n\n", category))
	prompt.WriteString("Requirements:\n")
	prompt.WriteString("1. The question should be based on the customer's response\n")
	prompt.WriteString("2. Dig deeper into specific points mentioned\n")
	prompt.WriteString("3. Explore potential opportunities or challenges\n")
	prompt.WriteString("4. Maintain professional tone\n")
	prompt.WriteString("5. Avoid repetitive questions\n\n")
	prompt.WriteString("Please provide only the question:")
	return prompt.String()
}

// ConversationSummary asks for a summary layered on top of the previous one.
func ConversationSummary(previousSummary, transcript string) string {
	if previousSummary == "" {
		previousSummary = NoPreviousSummary
	}
	var prompt strings.Builder
	prompt.WriteString("Summarize the following conversation between the customer manager and customer, extracting key information and insights.\n\n")
	prompt.WriteString(fmt.Sprintf("Previous Summary: %s\n\n", previousSummary))
	prompt.WriteString(fmt.Sprintf("Current Conversation:\n%s\n\n", transcript))
	prompt.WriteString("Requirements:\n")
	prompt.WriteString("1. Integrate with previous summary if provided\n")
	prompt.WriteString("2. Extract key information and insights\n")
	prompt.WriteString("3. Identify important details and action items\n")
	prompt.WriteString("4. Maintain professional tone\n")
	prompt.WriteString("5. Structure the summary clearly\n\n")
	prompt.WriteString("Please provide a comprehensive summary:")
	return prompt.String()
}

// extractionChecklist is shared by the conversation and answer extraction prompts.
const extractionChecklist = "Please extract the following information (if exists):\n" +
	"1. Key people (name, position, contact information)\n" +
	"2. Products/Services names\n" +
	"3. Time information (dates, time ranges)\n" +
	"4. Amount/budget information\n" +
	"5. Project names\n" +
	"6. Challenges/Issues description\n" +
	"7. Plans/goals\n" +
	"8. Other key information\n\n" +
	"Return the extracted information as a single JSON object."

// ConversationExtraction asks for structured facts from a finished interview.
func ConversationExtraction(transcript, summary string) string {
	var prompt strings.Builder
	prompt.WriteString("Extract structured information from the following conversation:\n\n")
	prompt.WriteString(fmt.Sprintf("Conversation content:\n%s\n\n", transcript))
	prompt.WriteString(fmt.Sprintf("Summary:\n%s\n\n", summary))
	prompt.WriteString(extractionChecklist)
	return prompt.String()
}

// AnswerExtraction asks for structured facts from one captured answer.
func AnswerExtraction(question, answer, category string) string {
	var prompt strings.Builder
	prompt.WriteString("Extract structured information from the following Q&A:\n\n")
	prompt.WriteString(fmt.Sprintf("Question category: %s\n", category))
	prompt.WriteString(fmt.Sprintf("Question: %s\n", question))
	prompt.WriteString(fmt.Sprintf("Answer: %s\n\n", answer))
	prompt.WriteString(extractionChecklist)
	return prompt.String()
}

// DerivedQuestions asks for follow-up questions to a captured answer.
func DerivedQuestions(question, answer string, context map[string]any) string {
	ctx := "None"
	if len(context) > 0 {
		ctx = compactJSON(context)
	}
	var prompt strings.Builder
	prompt.WriteString("Based on the following question and answer, generate 3-5 related derived questions to get deeper information:\n\n")
	prompt.WriteString(fmt.Sprintf("Original question: %s\n", question))
	prompt.WriteString(fmt.Sprintf("Answer: %s\n\n", answer))
	prompt.WriteString(fmt.Sprintf("Context information: %s\n\n", ctx))
	prompt.WriteString("Please generate specific, targeted questions to help better understand the customer situation.\n")
	prompt.WriteString("Return the question list as a JSON array of strings.")
	return prompt.String()
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
