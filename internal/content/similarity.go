package content

import (
	"strings"
	"unicode"
)

// TitleSimilarity is the Jaccard overlap of the two titles' character
// trigram sets after case and whitespace folding.
func TitleSimilarity(left, right string) float64 {
	return jaccard(trigramSet(left), trigramSet(right))
}

// SetSimilarity is |A∩B| / |A∪B|. Two empty sets score 0.
func SetSimilarity(left, right []string) float64 {
	return jaccard(stringSet(left, false), stringSet(right, false))
}

// TagSimilarity compares tags case-insensitively.
func TagSimilarity(left, right []string) float64 {
	return jaccard(stringSet(left, true), stringSet(right, true))
}

func jaccard(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}

	intersection := 0
	for token := range left {
		if _, ok := right[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(left) + len(right) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func stringSet(values []string, fold bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if fold {
			trimmed = strings.ToLower(trimmed)
		}
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return set
}

func trigramSet(text string) map[string]struct{} {
	normalized := normalizeText(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	if len(runes) < 3 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i <= len(runes)-3; i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

func normalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
