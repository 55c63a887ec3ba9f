// Package render turns engine results into human-readable markdown.
package render

import (
	"fmt"
	"strings"

	"outing/internal/orchestrator"
	"outing/internal/schema"
)

// Markdown renders a final plan for one intent.
func Markdown(intent *schema.NormalizedIntent, plan *schema.FinalPlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s — %s\n\n", planTitle(intent), intent.City)

	tw := intent.TimeWindow
	if tw.StartLocal != "" || tw.EndLocal != "" {
		fmt.Fprintf(&b, "**Time Window:** %s %s–%s\n",
			strings.TrimSpace(tw.Day), tw.StartLocal, tw.EndLocal)
	}
	fmt.Fprintf(&b, "**Travel Limit:** %d minutes\n", intent.MaxTravelMinutes)
	if intent.OriginLatLng != "" {
		fmt.Fprintf(&b, "**Origin:** %s\n", intent.OriginLatLng)
	}
	b.WriteString("\n")

	b.WriteString("## Primary Pick\n")
	fmt.Fprintf(&b, "**%s**  \n%s\n\n", plan.Primary.Name, plan.Primary.Address)
	b.WriteString("Why it fits:\n")
	for _, r := range plan.Primary.Rationale {
		fmt.Fprintf(&b, "- %s\n", r)
	}

	b.WriteString("\n## Backups\n")
	for i, backup := range plan.Backups {
		fmt.Fprintf(&b, "%d. **%s** — %s\n", i+1, backup.Name, backup.Address)
		for _, r := range backup.Rationale {
			fmt.Fprintf(&b, "   - %s\n", r)
		}
	}

	b.WriteString("\n## Suggested Schedule\n")
	fmt.Fprintf(&b, "- Arrive: %s\n", plan.Schedule.ArriveAt)
	fmt.Fprintf(&b, "- Leave: %s\n", plan.Schedule.LeaveAt)

	b.WriteString("\n## Tips\n")
	for _, tip := range plan.Tips {
		fmt.Fprintf(&b, "- %s\n", tip)
	}

	b.WriteString("\n## Assumptions\n")
	for _, a := range plan.Assumptions {
		fmt.Fprintf(&b, "- %s\n", a)
	}

	return b.String()
}

// Result renders any run outcome, including failures. The CLI pipes this
// through a terminal markdown renderer.
func Result(res *orchestrator.Result) string {
	switch res.Status {
	case orchestrator.StatusOK:
		var b strings.Builder
		b.WriteString(Markdown(res.Intent, res.Plan))
		if res.Cost != nil {
			b.WriteString("\n## Cost\n")
			fmt.Fprintf(&b, "- LLM tokens: %d (%.6f USD)\n",
				res.Cost.LLM.TotalTokens, res.Cost.LLM.CostUSD)
			fmt.Fprintf(&b, "- Venue API calls: %d (%.6f USD)\n",
				res.Cost.Places.APICalls, res.Cost.Places.CostUSD)
			fmt.Fprintf(&b, "- Total: %.6f USD\n", res.Cost.TotalCostUSD)
		}
		return b.String()

	case orchestrator.StatusNoResult:
		var b strings.Builder
		b.WriteString("# No Matching Venues\n\n")
		if res.EvalReport != nil && len(res.EvalReport.HardViolations) > 0 {
			fmt.Fprintf(&b, "Reason: `%s`\n\n", strings.Join(res.EvalReport.HardViolations, ", "))
		}
		if res.EvalReport != nil && len(res.EvalReport.ReplanSuggestions) > 0 {
			b.WriteString("Try one of:\n")
			for _, s := range res.EvalReport.ReplanSuggestions {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
		return b.String()

	default:
		var b strings.Builder
		b.WriteString("# Request Failed\n\n")
		if res.Err != nil {
			fmt.Fprintf(&b, "- Code: `%s`\n- Message: %s\n", res.Err.Code, res.Err.Message)
			if res.Err.RequestID != "" {
				fmt.Fprintf(&b, "- Request ID: `%s`\n", res.Err.RequestID)
			}
		}
		return b.String()
	}
}

func planTitle(intent *schema.NormalizedIntent) string {
	activity := strings.TrimSpace(intent.ActivityType)
	if activity == "" {
		return "Outing Plan"
	}
	return titleCase(activity) + " Plan"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
