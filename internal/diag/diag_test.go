package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"flowset/internal/contract"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{errors.New("boom"), CodeUnknown},
		{fmt.Errorf("wrap: %w", context.Canceled), CodeCancel},
		{&contract.CardinalityError{Got: 3, Want: 400}, CodeCardinality},
		{&contract.WriteError{RecordID: "a", Err: errors.New("disk full")}, CodeWrite},
		{&contract.WriteError{RecordID: "a", Err: contract.ErrSealed}, CodeWrite},
		{fmt.Errorf("x: %w", contract.ErrMissingSource), CodeMissingSource},
		{contract.ErrNoFlowExtracted, CodeNoFlow},
		{fmt.Errorf("%w: %w", contract.ErrDecode, errors.New("ffprobe error")), CodeDecode},
		{contract.ErrUnknownLabel, CodeUnknownLabel},
		{&os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, CodeIO},
	}
	for i, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("case %d (%v): got %s want %s", i, c.err, got, c.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warn": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expect error for unknown level")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("chunk: dropped")
	logger.Warn("chunk: record skipped", "code", CodeMissingSource)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expect only the warning, got %q", buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if ev["msg"] != "chunk: record skipped" || ev["code"] != string(CodeMissingSource) {
		t.Fatalf("unexpected event %v", ev)
	}
}
