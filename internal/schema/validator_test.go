package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

func TestValidateContentPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"user_id":"u1",
		"title":"Intro to Lambda",
		"description":"Cold starts explained",
		"content_type":"Blog",
		"visibility":"AWS_COMMUNITY",
		"tags":["aws","lambda"],
		"urls":["https://example.com/lambda","https://example.com/lambda"],
		"publish_date":"2025-01-01T00:00:00Z",
		"is_claimed":true
	}`)

	item, err := ValidateContentPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	in, err := item.NewContent()
	if err != nil {
		t.Fatalf("convert payload: %v", err)
	}
	if in.ContentType != "blog" {
		t.Fatalf("expected content_type=blog, got %q", in.ContentType)
	}
	if in.Visibility != visibility.AWSCommunity {
		t.Fatalf("expected aws_community, got %q", in.Visibility)
	}
	if in.PublishDate == nil || in.PublishDate.Year() != 2025 {
		t.Fatalf("expected parsed publish date, got %v", in.PublishDate)
	}
	if !in.IsClaimed {
		t.Fatalf("expected claimed content")
	}
}

func TestValidateContentPayload_DefaultsToPrivate(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"t","content_type":"video","urls":["https://example.com/v"]}`)

	item, err := ValidateContentPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	in, err := item.NewContent()
	if err != nil {
		t.Fatalf("convert payload: %v", err)
	}
	if in.Visibility != visibility.Private {
		t.Fatalf("expected private default, got %q", in.Visibility)
	}
}

func TestValidateContentPayload_MissingURLs(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"t","content_type":"blog"}`)

	if _, err := ValidateContentPayload(payload); err == nil {
		t.Fatalf("expected validation to fail for missing urls")
	}
}

func TestValidateContentPayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"   ","content_type":"blog","urls":["https://example.com"]}`)

	_, err := ValidateContentPayload(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateContentPayload_RejectsUnknownFields(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"t","content_type":"blog","urls":["https://example.com"],"score":3}`)

	if _, err := ValidateContentPayload(payload); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestValidateContentPayload_ClaimNeedsOwner(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"t","content_type":"blog","urls":["https://example.com"],"is_claimed":true}`)

	_, err := ValidateContentPayload(payload)
	if err == nil || !strings.Contains(err.Error(), "is_claimed requires user_id") {
		t.Fatalf("expected claim semantic error, got %v", err)
	}
}

func TestValidateContentPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","title":"t","content_type":"blog","urls":["https://example.com"]} {}`)

	if _, err := ValidateContentPayload(payload); err == nil {
		t.Fatalf("expected trailing content to be rejected")
	}
}
