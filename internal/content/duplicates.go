package content

import (
	"math"
	"sort"
	"strings"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
)

type Field string

const (
	FieldTitle Field = "title"
	FieldTags  Field = "tags"
	FieldURLs  Field = "urls"
)

var allFields = []Field{FieldTitle, FieldTags, FieldURLs}

const DefaultDuplicateThreshold = 0.8

type DuplicateOptions struct {
	Threshold       float64
	Fields          []Field
	TargetContentID string
}

type DuplicateMatch struct {
	Content       db.ContentItem    `json:"content"`
	DuplicateOfID string            `json:"duplicate_of_id"`
	Similarity    float64           `json:"similarity"`
	MatchedFields []Field           `json:"matched_fields"`
	FieldScores   map[Field]float64 `json:"field_scores"`
}

// ParseFields accepts a comma separated field list. Empty input means all
// fields.
func ParseFields(raw string) ([]Field, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make([]Field, 0, len(allFields))
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		field := Field(trimmed)
		switch field {
		case FieldTitle, FieldTags, FieldURLs:
		default:
			return nil, validation("unknown duplicate field", map[string]any{"field": trimmed})
		}
		out = append(out, field)
	}
	return out, nil
}

func normalizeDuplicateOptions(opts DuplicateOptions) (DuplicateOptions, error) {
	if math.IsNaN(opts.Threshold) || opts.Threshold < 0 || opts.Threshold > 1 {
		return DuplicateOptions{}, validation("threshold must be between 0 and 1", map[string]any{"threshold": opts.Threshold})
	}

	opts.TargetContentID = strings.TrimSpace(opts.TargetContentID)
	if len(opts.Fields) == 0 {
		opts.Fields = append([]Field(nil), allFields...)
		return opts, nil
	}

	seen := make(map[Field]struct{}, len(opts.Fields))
	fields := make([]Field, 0, len(opts.Fields))
	for _, field := range opts.Fields {
		switch field {
		case FieldTitle, FieldTags, FieldURLs:
		default:
			return DuplicateOptions{}, validation("unknown duplicate field", map[string]any{"field": string(field)})
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		fields = append(fields, field)
	}
	opts.Fields = fields
	return opts, nil
}

// FindDuplicates compares one user's library. With a target it compares every
// other item to the target; otherwise it compares all pairs. A field counts
// only when its score reaches the threshold, and an item's similarity is the
// mean of its matched fields.
func FindDuplicates(items []db.ContentItem, opts DuplicateOptions) ([]DuplicateMatch, error) {
	normalized, err := normalizeDuplicateOptions(opts)
	if err != nil {
		return nil, err
	}
	if len(items) <= 1 {
		return []DuplicateMatch{}, nil
	}

	matches := make([]DuplicateMatch, 0)
	if normalized.TargetContentID != "" {
		targetIndex := -1
		for i := range items {
			if items[i].ID == normalized.TargetContentID {
				targetIndex = i
				break
			}
		}
		if targetIndex < 0 {
			return nil, notFound("target content not found", map[string]any{"content_id": normalized.TargetContentID})
		}
		target := items[targetIndex]
		for i := range items {
			if i == targetIndex {
				continue
			}
			if match, ok := compareItems(target, items[i], normalized); ok {
				matches = append(matches, match)
			}
		}
	} else {
		for i := 0; i < len(items); i++ {
			for j := i + 1; j < len(items); j++ {
				if match, ok := compareItems(items[i], items[j], normalized); ok {
					matches = append(matches, match)
				}
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

func compareItems(reference, candidate db.ContentItem, opts DuplicateOptions) (DuplicateMatch, bool) {
	scores := make(map[Field]float64, len(opts.Fields))
	matched := make([]Field, 0, len(opts.Fields))
	total := 0.0

	for _, field := range opts.Fields {
		var score float64
		switch field {
		case FieldTitle:
			score = TitleSimilarity(reference.Title, candidate.Title)
		case FieldTags:
			score = TagSimilarity(reference.Tags, candidate.Tags)
		case FieldURLs:
			score = SetSimilarity(reference.URLStrings(), candidate.URLStrings())
		}
		scores[field] = score
		if score >= opts.Threshold {
			matched = append(matched, field)
			total += score
		}
	}

	if len(matched) == 0 {
		return DuplicateMatch{}, false
	}
	return DuplicateMatch{
		Content:       candidate,
		DuplicateOfID: reference.ID,
		Similarity:    total / float64(len(matched)),
		MatchedFields: matched,
		FieldScores:   scores,
	}, true
}
