package content

import (
	"unicode/utf8"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
)

// mergePlan is the folded result of combining a primary with its
// secondaries. It is computed before any write.
type mergePlan struct {
	Fields  db.MergedFields
	AllURLs []string
	NewURLs []string
	Items   int
}

// planMerge folds items in input order: primary first, then secondaries as
// the caller listed them.
//
//   - URLs and tags are first-seen unions.
//   - publish date is the earliest non-null date, else the primary's.
//   - title is the longest by character count, ties to the earliest item.
//   - description starts at the primary's and only a strictly longer
//     non-empty one replaces it.
func planMerge(primary db.ContentItem, secondaries []db.ContentItem) mergePlan {
	ordered := make([]db.ContentItem, 0, 1+len(secondaries))
	ordered = append(ordered, primary)
	ordered = append(ordered, secondaries...)

	plan := mergePlan{Items: len(ordered)}

	urlSeen := make(map[string]struct{})
	tagSeen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, item := range ordered {
		for _, u := range item.URLStrings() {
			if _, ok := urlSeen[u]; ok {
				continue
			}
			urlSeen[u] = struct{}{}
			plan.AllURLs = append(plan.AllURLs, u)
		}
		for _, tag := range db.NormalizeTags(item.Tags) {
			if _, ok := tagSeen[tag]; ok {
				continue
			}
			tagSeen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}

	onPrimary := make(map[string]struct{}, len(primary.URLs))
	for _, u := range primary.URLStrings() {
		onPrimary[u] = struct{}{}
	}
	for _, u := range plan.AllURLs {
		if _, ok := onPrimary[u]; !ok {
			plan.NewURLs = append(plan.NewURLs, u)
		}
	}

	publishDate := primary.PublishDate
	for _, item := range ordered {
		if item.PublishDate == nil {
			continue
		}
		if publishDate == nil || item.PublishDate.Before(*publishDate) {
			publishDate = item.PublishDate
		}
	}

	title := primary.Title
	for _, item := range ordered[1:] {
		if utf8.RuneCountInString(item.Title) > utf8.RuneCountInString(title) {
			title = item.Title
		}
	}

	description := primary.Description
	for _, item := range ordered[1:] {
		if item.Description == "" {
			continue
		}
		if utf8.RuneCountInString(item.Description) > utf8.RuneCountInString(description) {
			description = item.Description
		}
	}

	plan.Fields = db.MergedFields{
		Title:       title,
		Description: description,
		PublishDate: publishDate,
		Tags:        tags,
	}
	return plan
}

func (p mergePlan) metadata() map[string]any {
	return map[string]any{
		"item_count":    p.Items,
		"url_count":     len(p.AllURLs),
		"new_url_count": len(p.NewURLs),
		"tag_count":     len(p.Fields.Tags),
	}
}
