package safety

import (
	"encoding/json"
	"strings"

	"eventcrawler/packages/domain"
)

// Tier records which stage of the response parser produced a result. Small
// local models routinely wrap their JSON in prose or drop it entirely, so
// parsing runs structured → heuristic → default, each tier independently
// testable.
type Tier string

const (
	TierStructured Tier = "structured"
	TierHeuristic  Tier = "heuristic"
	TierDefault    Tier = "default"
)

type safetyVerdict struct {
	Safe   bool
	Reason string
	Tier   Tier
}

type structuredSafety struct {
	Safe     *bool  `json:"safe"`
	Accepted *bool  `json:"accepted"`
	Reason   string `json:"reason"`
}

// parseSafetyResponse never fails: any output that cannot be understood
// resolves to safe. The filter's job is narrow (explicit sexual/drug content
// only) and a false negative is cheaper than blocking a legitimate event.
func parseSafetyResponse(raw string) safetyVerdict {
	if blob := extractJSONObject(raw); blob != "" {
		var parsed structuredSafety
		if err := json.Unmarshal([]byte(blob), &parsed); err == nil {
			if parsed.Safe != nil {
				return safetyVerdict{Safe: *parsed.Safe, Reason: parsed.Reason, Tier: TierStructured}
			}
			if parsed.Accepted != nil {
				return safetyVerdict{Safe: *parsed.Accepted, Reason: parsed.Reason, Tier: TierStructured}
			}
		}
	}

	lower := strings.ToLower(raw)
	for _, marker := range []string{"unsafe", "not safe", "reject"} {
		if strings.Contains(lower, marker) {
			return safetyVerdict{Safe: false, Reason: "model flagged content", Tier: TierHeuristic}
		}
	}
	if strings.Contains(lower, "safe") || strings.Contains(lower, "accept") {
		return safetyVerdict{Safe: true, Tier: TierHeuristic}
	}

	return safetyVerdict{Safe: true, Tier: TierDefault}
}

type structuredCategories struct {
	Categories []string `json:"categories"`
}

// parseCategoryResponse resolves to a single default category when nothing
// parses; it never returns an empty list.
func parseCategoryResponse(raw string) ([]domain.Category, Tier) {
	if blob := extractJSONArray(raw); blob != "" {
		var names []string
		if err := json.Unmarshal([]byte(blob), &names); err == nil {
			if cats := matchCategories(names); len(cats) > 0 {
				return cats, TierStructured
			}
		}
	}
	if blob := extractJSONObject(raw); blob != "" {
		var parsed structuredCategories
		if err := json.Unmarshal([]byte(blob), &parsed); err == nil {
			if cats := matchCategories(parsed.Categories); len(cats) > 0 {
				return cats, TierStructured
			}
		}
	}

	upper := strings.ToUpper(raw)
	var found []domain.Category
	for _, c := range domain.AllCategories {
		if c == domain.CategoryOther {
			continue
		}
		if strings.Contains(upper, string(c)) {
			found = append(found, c)
		}
	}
	if len(found) > 0 {
		return found, TierHeuristic
	}

	return []domain.Category{domain.CategoryOther}, TierDefault
}

func matchCategories(names []string) []domain.Category {
	var out []domain.Category
	seen := make(map[domain.Category]struct{})
	for _, name := range names {
		cat, ok := domain.ParseCategory(name)
		if !ok {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	return out
}

// extractJSONObject pulls the first top-level {...} span out of surrounding
// prose. Balance counting instead of regex: model output nests objects.
func extractJSONObject(raw string) string {
	return extractBalanced(raw, '{', '}')
}

func extractJSONArray(raw string) string {
	return extractBalanced(raw, '[', ']')
}

func extractBalanced(raw string, open, closer byte) string {
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
