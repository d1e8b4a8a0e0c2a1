package prompts

import (
	"fmt"
	"strings"
)

// QAItem is one answered interview question.
type QAItem struct {
	Question string
	Answer   string
}

// QACategory groups answered questions under a display name.
type QACategory struct {
	Name  string
	Items []QAItem
}

// PlanInput carries everything the plan writer sees.
type PlanInput struct {
	CompanyName  string
	Industry     string
	CompanySize  string
	Website      string
	Description  string
	Requirements string

	CustomerProfile string
	CompanyProfile  map[string]any
	News            map[string]any
	Market          map[string]any
	QA              []QACategory
}

// StrategicPlan builds the single consolidated plan prompt.
func StrategicPlan(in PlanInput) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Please generate a comprehensive strategic customer plan for %s based on ALL the following collected information:\n\n", in.CompanyName))

	prompt.WriteString("## 1. Customer Profile Analysis\n\n")
	if strings.TrimSpace(in.CustomerProfile) != "" {
		prompt.WriteString(in.CustomerProfile)
	} else {
		prompt.WriteString("No customer profile provided")
	}
	prompt.WriteString("\n\n")

	prompt.WriteString("## 2. External Information (Market, News, Company Data)\n")
	external := 0
	for _, section := range []struct {
		title string
		data  map[string]any
	}{
		{"Company Profile", in.CompanyProfile},
		{"Recent News", in.News},
		{"Market Information", in.Market},
	} {
		if len(section.data) == 0 {
			continue
		}
		external++
		prompt.WriteString(fmt.Sprintf("\n### %s:\n%s\n", section.title, indentJSON(section.data)))
	}
	if external == 0 {
		prompt.WriteString("\nNo external information collected\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## 3. Internal Information (Q&A Records)\n")
	answered := 0
	for _, cat := range in.QA {
		if len(cat.Items) == 0 {
			continue
		}
		answered++
		prompt.WriteString(fmt.Sprintf("\n### %s:\n", cat.Name))
		for _, item := range cat.Items {
			prompt.WriteString(fmt.Sprintf("Q: %s\nA: %s\n\n", item.Question, item.Answer))
		}
	}
	if answered == 0 {
		prompt.WriteString("\nNo internal information (Q&A) collected\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## 4. Basic Company Information\n\n")
	prompt.WriteString(fmt.Sprintf("- Company Name: %s\n", in.CompanyName))
	prompt.WriteString(fmt.Sprintf("- Industry: %s\n", orDefault(in.Industry, "Unknown")))
	prompt.WriteString(fmt.Sprintf("- Company Size: %s\n", orDefault(in.CompanySize, "Unknown")))
	prompt.WriteString(fmt.Sprintf("- Website: %s\n", orDefault(in.Website, "N/A")))
	prompt.WriteString(fmt.Sprintf("- Description: %s\n", orDefault(in.Description, "No description")))

	if strings.TrimSpace(in.Requirements) != "" {
		prompt.WriteString(fmt.Sprintf("\n### Specific Plan Requirements:\n%s\n", in.Requirements))
	}

	prompt.WriteString("\n## Instructions:\n\n")
	prompt.WriteString("Based on ALL the information above (customer profile, external data, and internal Q&A records), generate a detailed strategic plan that includes:\n\n")
	prompt.WriteString("1. **Executive Summary** - Overview of the customer and strategic priorities\n")
	prompt.WriteString("2. **Customer Situation Analysis** - Based on customer profile and collected data\n")
	prompt.WriteString("3. **Market Position & Competitive Analysis** - Based on external market information\n")
	prompt.WriteString("4. **Key Insights from Q&A** - Important findings from internal conversations\n")
	prompt.WriteString("5. **Strategic Objectives** - Clear, measurable goals\n")
	prompt.WriteString("6. **Action Plan**\n")
	prompt.WriteString("   - Short-term actions (1-3 months)\n")
	prompt.WriteString("   - Medium-term actions (3-6 months)\n")
	prompt.WriteString("   - Long-term actions (6-12 months)\n")
	prompt.WriteString("7. **Resource Requirements** - Based on identified gaps and needs\n")
	prompt.WriteString("8. **Risk Assessment** - Potential risks and mitigation strategies\n")
	prompt.WriteString("9. **Success Metrics (KPIs)** - How to measure progress\n")
	prompt.WriteString("10. **Next Steps** - Immediate actions to take\n\n")
	prompt.WriteString("Reference and use ALL the provided data in your analysis and recommendations. Do not ignore any section.\n\n")
	prompt.WriteString("Generate the plan in well-structured Markdown format.")

	return prompt.String()
}

// ProfileInput carries the summarized inputs of the customer profile report.
type ProfileInput struct {
	ExternalSummary string
	InternalSummary string
	ExternalCount   int
	InternalCount   int
	ExternalRaw     map[string]any
	InternalRaw     map[string]any
}

// CustomerProfile builds the customer profile analysis prompt.
func CustomerProfile(in ProfileInput) string {
	var prompt strings.Builder
	prompt.WriteString("Please generate a detailed customer profile analysis report based on the following collected customer data.\n\n")
	prompt.WriteString("Data source and completeness check:\n")
	prompt.WriteString(fmt.Sprintf("- External Information (%d items): %s\n", in.ExternalCount, firstLine(in.ExternalSummary, 100)))
	prompt.WriteString(fmt.Sprintf("- Internal Information (%d items): %s\n\n", in.InternalCount, firstLine(in.InternalSummary, 100)))
	prompt.WriteString(fmt.Sprintf("## External Information Summary:\n%s\n\n", in.ExternalSummary))
	prompt.WriteString(fmt.Sprintf("## Internal Information Summary:\n%s\n\n", in.InternalSummary))
	prompt.WriteString(fmt.Sprintf("### External Information raw data:\n%s\n\n", indentJSON(in.ExternalRaw)))
	prompt.WriteString(fmt.Sprintf("### Internal Information raw data:\n%s\n\n", indentJSON(in.InternalRaw)))
	prompt.WriteString("The report must include these sections, each based on the data above:\n\n")
	for i, section := range ProfileSections {
		prompt.WriteString(fmt.Sprintf("%d. **%s**\n", i+1, section))
	}
	prompt.WriteString("\nAnalysis requirements:\n")
	prompt.WriteString("- Reference specific conversation content or company data\n")
	prompt.WriteString("- Use facts and data, not generic or hypothetical descriptions\n")
	prompt.WriteString("- Do not fabricate content not present in the input data\n")
	prompt.WriteString("- If there is no data for an item, state it directly")
	return prompt.String()
}

// ProfileSections are the headings of the customer profile report.
var ProfileSections = []string{
	"Company Basic Overview",
	"Business Characteristics and Scale",
	"Technical Requirements and Preferences",
	"Decision Characteristics and Process",
	"Cooperation History and Experience",
	"Future Development Requirements",
	"Key Pain Points and Challenges",
	"Decision Team Structure",
	"Budget Cycle and Investment",
	"Cooperation Value Points",
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func firstLine(s string, max int) string {
	line, _, _ := strings.Cut(strings.TrimLeft(s, "\n"), "\n")
	if len(line) > max {
		return line[:max]
	}
	return line
}
