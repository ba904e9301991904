package verify

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// totalKeywords mark an amount description as a stated total.
var totalKeywords = []string{
	"total", "sum", "aggregate", "grand total", "amount due", "overall",
}

// breakdownKeywords mark an amount description as part of an itemized
// breakdown of a stated total.
var breakdownKeywords = []string{
	"including", "includes", "included", "breakdown", "itemized",
	"consisting", "comprised", "of which", "component", "plus",
}

// CrossValidate checks extracted monetary amounts for internal consistency:
// every amount must verify against the document, amounts sharing a numeric
// value under different descriptions are reported as duplicates, and each
// stated total is compared against the sum of the itemized breakdown.
func CrossValidate(amounts []model.ExtractedItem, document string) *model.FinancialFindings {
	findings := &model.FinancialFindings{}

	var all []parsedAmount

	// Independent document verification, one inconsistency per miss.
	for _, item := range amounts {
		display := item.ValueString()
		if display == "" {
			display = fmt.Sprint(item.Value)
		}
		desc := amountDescription(item)

		ok, _ := Amount(document, display)
		if ok {
			findings.VerifiedAmounts = append(findings.VerifiedAmounts, display)
		} else {
			findings.UnverifiedAmounts = append(findings.UnverifiedAmounts, display)
			findings.InconsistenciesFound++
			findings.Inconsistencies = append(findings.Inconsistencies, model.Inconsistency{
				Type:        "unverified_amount",
				Severity:    "medium",
				Description: fmt.Sprintf("amount %q not found in document", display),
			})
		}

		if v, okParse := ParseAmount(display); okParse {
			all = append(all, parsedAmount{value: v, display: display, description: desc})
		}
	}

	// Duplicate values under conflicting descriptions. Informational only.
	byValue := make(map[string][]parsedAmount)
	for _, p := range all {
		key := fmt.Sprintf("%.2f", p.value)
		byValue[key] = append(byValue[key], p)
	}
	keys := make([]string, 0, len(byValue))
	for k := range byValue {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		group := byValue[k]
		if len(group) < 2 {
			continue
		}
		descs := distinctDescriptions(group)
		if len(descs) < 2 {
			continue
		}
		findings.DuplicateAmounts = append(findings.DuplicateAmounts, model.DuplicateAmount{
			Amount:       group[0].display,
			Descriptions: descs,
		})
	}

	// Totals vs itemized breakdowns. Mismatch beyond a cent is high severity.
	var breakdownSum float64
	var haveBreakdown bool
	for _, p := range all {
		if hasKeyword(p.description, breakdownKeywords) {
			breakdownSum += p.value
			haveBreakdown = true
		}
	}
	if haveBreakdown {
		for _, p := range all {
			if !hasKeyword(p.description, totalKeywords) {
				continue
			}
			diff := math.Abs(p.value - breakdownSum)
			matched := diff <= 0.01
			findings.TotalVsBreakdownChecks = append(findings.TotalVsBreakdownChecks, model.TotalBreakdownCheck{
				TotalDescription: p.description,
				TotalAmount:      p.value,
				BreakdownSum:     breakdownSum,
				Matched:          matched,
			})
			if !matched {
				findings.InconsistenciesFound++
				findings.Inconsistencies = append(findings.Inconsistencies, model.Inconsistency{
					Type:     "total_mismatch",
					Severity: "high",
					Description: fmt.Sprintf("stated total %s does not match itemized sum %s",
						formatUSD(p.value), formatUSD(breakdownSum)),
					Difference: formatUSD(diff),
				})
			}
		}
	}

	return findings
}

// parsedAmount is one amount with its numeric value and the description
// text scanned for total/breakdown keywords.
type parsedAmount struct {
	value       float64
	display     string
	description string
}

// amountDescription assembles the text scanned for total/breakdown keywords.
// The source excerpt carries the description; the raw value string is
// included for items extracted as "Total: $300" in one piece.
func amountDescription(item model.ExtractedItem) string {
	desc := item.SourceText
	if s := item.ValueString(); s != "" {
		desc += " " + s
	}
	return desc
}

func hasKeyword(s string, keywords []string) bool {
	s = NormalizeText(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func distinctDescriptions(group []parsedAmount) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range group {
		d := NormalizeText(p.description)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, strings.TrimSpace(p.description))
	}
	return out
}

func formatUSD(v float64) string {
	return "$" + groupThousands(v)
}
