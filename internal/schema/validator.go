package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

//go:embed content_item.schema.json
var contentItemSchemaJSON string

type ContentItem struct {
	PayloadVersion string   `json:"payload_version"`
	ID             string   `json:"id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	ContentType    string   `json:"content_type"`
	Visibility     string   `json:"visibility,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	URLs           []string `json:"urls"`
	OriginalAuthor string   `json:"original_author,omitempty"`
	PublishDate    *string  `json:"publish_date,omitempty"`
	IsClaimed      bool     `json:"is_claimed,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateContentPayload(payload json.RawMessage) (*ContentItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ContentItem
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// NewContent converts a validated payload into a store insert. Visibility
// defaults to private.
func (c *ContentItem) NewContent() (db.NewContent, error) {
	level := visibility.Private
	if strings.TrimSpace(c.Visibility) != "" {
		parsed, err := visibility.Parse(c.Visibility)
		if err != nil {
			return db.NewContent{}, err
		}
		level = parsed
	}

	var publishDate *time.Time
	if c.PublishDate != nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*c.PublishDate))
		if err != nil {
			return db.NewContent{}, fmt.Errorf("publish_date must be RFC3339: %w", err)
		}
		parsed = parsed.UTC()
		publishDate = &parsed
	}

	return db.NewContent{
		ID:             strings.TrimSpace(c.ID),
		UserID:         strings.TrimSpace(c.UserID),
		Title:          strings.TrimSpace(c.Title),
		Description:    strings.TrimSpace(c.Description),
		ContentType:    strings.ToLower(strings.TrimSpace(c.ContentType)),
		Visibility:     level,
		Tags:           c.Tags,
		OriginalAuthor: strings.TrimSpace(c.OriginalAuthor),
		PublishDate:    publishDate,
		IsClaimed:      c.IsClaimed && strings.TrimSpace(c.UserID) != "",
		URLs:           c.URLs,
	}, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("content_item.schema.json", strings.NewReader(contentItemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("content_item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(item *ContentItem) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if item.IsClaimed && strings.TrimSpace(item.UserID) == "" {
		return fmt.Errorf("is_claimed requires user_id")
	}

	for i, raw := range item.URLs {
		if err := validateURI(fmt.Sprintf("urls[%d]", i), raw); err != nil {
			return err
		}
	}
	if item.PublishDate != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PublishDate)); err != nil {
			return fmt.Errorf("publish_date must be RFC3339: %w", err)
		}
	}
	for i, tag := range item.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("tags[%d] must not be empty", i)
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", fieldName)
	}
	return nil
}
