package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	payloadschema "github.com/guilleojeda/community-content-tracker-sub003/internal/schema"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/search"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

const maxBodyBytes = 1 << 20

type mergeRequest struct {
	PrimaryID    string   `json:"primary_id"`
	ContentIDs   []string `json:"content_ids,omitempty"`
	SecondaryIDs []string `json:"secondary_ids,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

type claimRequest struct {
	Force bool `json:"force"`
}

type updateRequest struct {
	ExpectedVersion *int64     `json:"expected_version"`
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	ContentType     *string    `json:"content_type,omitempty"`
	Visibility      *string    `json:"visibility,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
	OriginalAuthor  *string    `json:"original_author,omitempty"`
	PublishDate     *time.Time `json:"publish_date,omitempty"`
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParams()
	fieldErrors := map[string]string{}

	mode, err := search.ParseMode(query.Get("mode"))
	if err != nil {
		fieldErrors["mode"] = "must be keyword, vector or list"
	}
	levels, err := visibility.ParseList(query.Get("visibility"))
	if err != nil {
		fieldErrors["visibility"] = err.Error()
	}
	from, err := parseTimeFilter(query.Get("from"), false)
	if err != nil {
		fieldErrors["from"] = err.Error()
	}
	to, err := parseTimeFilter(query.Get("to"), true)
	if err != nil {
		fieldErrors["to"] = err.Error()
	}
	limit, err := parsePositiveInt(query.Get("limit"), db.DefaultSearchLimit, 1, db.MaxSearchLimit)
	if err != nil {
		fieldErrors["limit"] = err.Error()
	}
	offset, err := parsePositiveInt(query.Get("offset"), 0, 0, 1_000_000)
	if err != nil {
		fieldErrors["offset"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	resp, err := s.search.Search(c.Request().Context(), search.Request{
		Viewer:       viewerFromContext(c),
		Mode:         mode,
		Query:        query.Get("q"),
		ContentTypes: splitList(query.Get("types")),
		Tags:         splitList(query.Get("tags")),
		Visibilities: levels,
		From:         from,
		To:           to,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return s.respondError(c, err, "search content")
	}
	return success(c, resp)
}

func (s *Server) handleDuplicates(c echo.Context) error {
	query := c.QueryParams()
	fieldErrors := map[string]string{}

	threshold := content.DefaultDuplicateThreshold
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fieldErrors["threshold"] = "must be a number"
		} else {
			threshold = parsed
		}
	}
	fields, err := content.ParseFields(query.Get("fields"))
	if err != nil {
		fieldErrors["fields"] = "must list title, tags or urls"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	matches, err := s.content.FindDuplicates(c.Request().Context(), viewerFromContext(c), content.DuplicateOptions{
		Threshold:       threshold,
		Fields:          fields,
		TargetContentID: query.Get("target"),
	})
	if err != nil {
		return s.respondError(c, err, "find duplicates")
	}
	return success(c, map[string]any{
		"threshold":  threshold,
		"duplicates": matches,
	})
}

func (s *Server) handleMerge(c echo.Context) error {
	var body mergeRequest
	if err := decodeJSONBody(c, &body); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if len(body.ContentIDs) > 0 && len(body.SecondaryIDs) > 0 {
		return failValidation(c, map[string]string{"content_ids": "send either content_ids or secondary_ids"})
	}

	req := content.MergeRequest{PrimaryID: body.PrimaryID, SecondaryIDs: body.SecondaryIDs, Reason: body.Reason}
	if len(body.ContentIDs) > 0 {
		converted, err := content.MergeRequestFromContentIDs(body.PrimaryID, body.ContentIDs, body.Reason)
		if err != nil {
			return s.respondError(c, err, "merge content")
		}
		req = converted
	}

	result, err := s.content.Merge(c.Request().Context(), viewerFromContext(c), req)
	if err != nil {
		return s.respondError(c, err, "merge content")
	}
	return success(c, result)
}

func (s *Server) handleUnmerge(c echo.Context) error {
	result, err := s.content.Unmerge(c.Request().Context(), viewerFromContext(c), c.Param("merge_id"))
	if err != nil {
		return s.respondError(c, err, "undo merge")
	}
	return success(c, result)
}

func (s *Server) handleMergeHistory(c echo.Context) error {
	record, err := s.content.GetMergeHistory(c.Request().Context(), viewerFromContext(c), c.Param("merge_id"))
	if err != nil {
		return s.respondError(c, err, "load merge history")
	}
	return success(c, record)
}

func (s *Server) handleContentMerges(c echo.Context) error {
	records, err := s.content.ListMergeHistory(c.Request().Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		return s.respondError(c, err, "load merge history")
	}
	return success(c, map[string]any{"items": records})
}

func (s *Server) handleGet(c echo.Context) error {
	item, err := s.content.Get(c.Request().Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		if content.IsKind(err, content.KindNotFound) {
			return failNotFound(c, "Content not found")
		}
		return s.respondError(c, err, "load content")
	}
	return success(c, item)
}

// handleCreate accepts the import payload shape. Non-admins always own what
// they create.
func (s *Server) handleCreate(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}
	payload, err := payloadschema.ValidateContentPayload(json.RawMessage(raw))
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	viewer := viewerFromContext(c)
	if !viewer.IsAdmin || strings.TrimSpace(payload.UserID) == "" {
		payload.UserID = viewer.UserID
		payload.IsClaimed = true
	}
	in, err := payload.NewContent()
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	item, err := s.content.Create(c.Request().Context(), viewer.UserID, in)
	if err != nil {
		return s.respondError(c, err, "create content")
	}
	return successWithStatus(c, http.StatusCreated, item)
}

func (s *Server) handleUpdate(c echo.Context) error {
	var body updateRequest
	if err := decodeJSONBody(c, &body); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if body.ExpectedVersion == nil {
		return failValidation(c, map[string]string{"expected_version": "is required"})
	}

	patch := db.ContentPatch{
		Title:          body.Title,
		Description:    body.Description,
		ContentType:    body.ContentType,
		Tags:           body.Tags,
		OriginalAuthor: body.OriginalAuthor,
		PublishDate:    body.PublishDate,
	}
	if body.Visibility != nil {
		level, err := visibility.Parse(*body.Visibility)
		if err != nil {
			return failValidation(c, map[string]string{"visibility": err.Error()})
		}
		patch.Visibility = &level
	}

	item, err := s.content.Update(c.Request().Context(), viewerFromContext(c), c.Param("id"), patch, *body.ExpectedVersion)
	if err != nil {
		return s.respondError(c, err, "update content")
	}
	return success(c, item)
}

func (s *Server) handleClaim(c echo.Context) error {
	var body claimRequest
	if c.Request().ContentLength != 0 {
		if err := decodeJSONBody(c, &body); err != nil && !errors.Is(err, io.EOF) {
			return failValidation(c, map[string]string{"body": err.Error()})
		}
	}

	item, err := s.content.Claim(c.Request().Context(), viewerFromContext(c), c.Param("id"), body.Force)
	if err != nil {
		return s.respondError(c, err, "claim content")
	}
	return success(c, item)
}

func (s *Server) handleDelete(c echo.Context) error {
	hard, err := parseBoolParam(c.QueryParam("hard"))
	if err != nil {
		return failValidation(c, map[string]string{"hard": err.Error()})
	}

	id := c.Param("id")
	if err := s.content.Delete(c.Request().Context(), viewerFromContext(c), id, hard); err != nil {
		return s.respondError(c, err, "delete content")
	}
	return success(c, map[string]any{
		"id":           id,
		"hard_deleted": hard,
	})
}

func (s *Server) handleRestore(c echo.Context) error {
	item, err := s.content.Restore(c.Request().Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		return s.respondError(c, err, "restore content")
	}
	return success(c, item)
}
