// Package prompts holds the role instructions and prompt builders shared by
// the fact router and the services.
package prompts

import "fmt"

// Role instructions sent as the system message.
const (
	CustomerManager = "You are a professional customer manager, skilled at understanding customer needs through in-depth questioning. " +
		"You must strictly ask questions based on the provided information and cannot fabricate any details."
	CRMExpert             = "You are a professional customer relationship management expert, skilled at analyzing the relevance of historical information."
	BusinessAnalyst       = "You are a professional business information analyst, skilled at extracting basic company information from public sources."
	NewsAnalyst           = "You are a professional business news analyst, skilled at generating news summaries that align with actual situations."
	NewsSummaryAnalyst    = "You are a professional business analyst, skilled at extracting key information from news and generating comprehensive summaries."
	MarketAnalyst         = "You are a professional market analyst, skilled at analyzing industry trends and competitive landscape."
	CustomerAnalyst       = "You are a professional customer analysis expert, skilled at generating professional customer profile analysis reports based on collected information."
	ConversationSummarist = "You are a professional customer relationship management expert, skilled at summarizing customer conversations."
	DataExtractor         = "You are a professional information extraction expert, skilled at extracting structured data from conversations. Please output only JSON."
	HistoryAnalyst        = "You are a professional customer relationship management expert, skilled at analyzing the timeliness and effectiveness of historical information."
	DataAnalyst           = "You are a professional data analyst, skilled at detecting and analyzing data changes. Please output only JSON."
)

// StrategicAccountManager returns the plan writer role for a company.
func StrategicAccountManager(companyName string) string {
	return fmt.Sprintf("As a strategic account management expert, based on the following customer profile information, "+
		"generate a professional strategic action plan for %s.", companyName)
}
