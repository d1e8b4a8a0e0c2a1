package prompts

import (
	"fmt"
	"strings"
	"time"
)

// CompanyProfileQuery asks for a company's basic facts as a JSON object.
func CompanyProfileQuery(companyName string) string {
	return fmt.Sprintf("Search and summarize basic information about %s, "+
		"output JSON with fields: company_name, industry, company_size, website, description.", companyName)
}

// CompanyProfileFallback is the plain-generation variant of CompanyProfileQuery.
func CompanyProfileFallback(companyName string) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Please summarize basic information about the company %q, including:\n", companyName))
	prompt.WriteString("1. Company industry\n")
	prompt.WriteString("2. Company size (number of employees, annual revenue, etc.)\n")
	prompt.WriteString("3. Official website URL\n")
	prompt.WriteString("4. Company description (100-200 words)\n\n")
	prompt.WriteString("Return a JSON object with fields: company_name, industry, company_size, website, description.")
	return prompt.String()
}

// NewsQuery asks for news items between start and end as a JSON array.
func NewsQuery(companyName string, start, end time.Time) string {
	return fmt.Sprintf("Search news related to %s from %s to %s, "+
		"output JSON array, each item include: title, summary, date, source",
		companyName, start.Format(time.DateOnly), end.Format(time.DateOnly))
}

// NewsFallback is the plain-generation variant of NewsQuery.
func NewsFallback(companyName string, months int) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Please provide news titles and summaries for the company %q in the last %d months, covering:\n", companyName, months))
	prompt.WriteString("1. Business development dynamics\n")
	prompt.WriteString("2. Product releases\n")
	prompt.WriteString("3. Cooperation news\n")
	prompt.WriteString("4. Market performance\n")
	prompt.WriteString("5. Personnel changes\n\n")
	prompt.WriteString("Return a JSON array; each item includes: title, summary, date, source.")
	return prompt.String()
}

// NewsItem is one news entry rendered into the summary prompt.
type NewsItem struct {
	Title   string
	Summary string
	Date    string
}

// NewsSummary asks for a prose summary of collected news.
func NewsSummary(companyName string, items []NewsItem) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Please generate a comprehensive summary for the following news about %q, highlighting:\n", companyName))
	prompt.WriteString("1. Main business dynamics\n2. Market performance\n3. Development trends\n4. Key events\n\n")
	prompt.WriteString("News content:\n")
	for _, item := range items {
		prompt.WriteString(fmt.Sprintf("Title: %s\nSummary: %s\nDate: %s\n\n", item.Title, item.Summary, item.Date))
	}
	prompt.WriteString("Please generate a 200-300 word summary.")
	return prompt.String()
}

// MarketQuery asks for market context as a JSON object.
func MarketQuery(companyName, industry string) string {
	return fmt.Sprintf("Search and analyze market situation of %s in industry (%s), "+
		"output JSON with fields: industry, trends, competitors, opportunities, risks",
		companyName, orUnknown(industry))
}

// MarketFallback is the plain-generation variant of MarketQuery.
func MarketFallback(companyName, industry string) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Please analyze the market situation of %q in industry %q, including:\n", companyName, orUnknown(industry)))
	prompt.WriteString("1. Industry development trends\n2. Main competitors\n3. Market opportunities\n4. Potential risks\n\n")
	prompt.WriteString("Return a JSON object with fields: industry, trends, competitors, opportunities, risks.")
	return prompt.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
