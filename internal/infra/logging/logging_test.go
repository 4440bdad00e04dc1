//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithConversationID(ctx, "conv-1")
	ctx = WithRequestID(ctx, "req-1")
	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	if line["job_id"] != "job-1" || line["conversation_id"] != "conv-1" || line["request_id"] != "req-1" {
		t.Errorf("expected job fields in %v", line)
	}
	if _, ok := line["job_type"]; ok {
		t.Error("unset fields must not be logged")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("secret", false); got != "***" {
		t.Errorf("expected ***, got %s", got)
	}
	if got := Redact("a long message body", false); got != "a lo...dy" {
		t.Errorf("unexpected preview %s", got)
	}
	if got := Redact("kept", true); got != "kept" {
		t.Errorf("dev mode must not redact, got %s", got)
	}
}
