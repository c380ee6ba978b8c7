package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestPrettyHandler_Attrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: LevelDebug}, false))

	tests := []struct {
		name string
		log  func()
		want []string
	}{
		{
			name: "with_attrs",
			log:  func() { l.With("doc", "ch1.xhtml").Info("batch done", "start", 0) },
			want: []string{"INFO", "batch done", "doc=ch1.xhtml", "start=0"},
		},
		{
			name: "group_applies_to_later_attrs",
			log:  func() { l.With("run", 1).WithGroup("usage").With("prompt_tokens", 10).Info("usage", "total_tokens", 15) },
			want: []string{"run=1", "usage.prompt_tokens=10", "usage.total_tokens=15"},
		},
		{
			name: "nested_groups",
			log:  func() { l.WithGroup("outer").WithGroup("inner").Info("msg", "key", "val") },
			want: []string{"outer.inner.key=val"},
		},
		{
			name: "inline_group",
			log:  func() { l.Info("msg", slog.Group("range", "start", 2, "end", 4)) },
			want: []string{"range.start=2", "range.end=4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestPrettyHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: LevelWarn}, false))
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRedactAttr(t *testing.T) {
	tests := []struct {
		name   string
		attr   slog.Attr
		redact bool
	}{
		{"api_key", slog.String("api_key", "anything"), true},
		{"book_markup", slog.String("markup", "<p>Hello</p>"), true},
		{"translated_text", slog.String("translated_text", "Bonjour"), true},
		{"openai_key_in_value", slog.String("error", "bad key sk-1234567890abcdef"), true},
		{"gemini_key_in_value", slog.String("detail", "AIzaSyA1234567890abcdef"), true},
		{"bearer_in_value", slog.String("message", "Bearer abc.def"), true},
		{"doc_name", slog.String("doc", "OEBPS/ch1.xhtml"), false},
		{"output_path", slog.String("path", "/tmp/book_ko.epub"), false},
		{"token_count", slog.Int("total_tokens", 42), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactAttr(nil, tt.attr)
			if (got.Value.String() == redacted) != tt.redact {
				t.Fatalf("redacted=%v, want %v (value %q)", got.Value.String() == redacted, tt.redact, got.Value.String())
			}
		})
	}
}

func captureStderr(t *testing.T) func() string {
	t.Helper()
	prev := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	return func() string {
		_ = w.Close()
		os.Stderr = prev
		out, _ := io.ReadAll(r)
		return string(out)
	}
}

func stubTerminal(t *testing.T, tty bool) {
	t.Helper()
	prev := isTerminal
	isTerminal = func(int) bool { return tty }
	t.Cleanup(func() {
		isTerminal = prev
		Init(LevelInfo, nil)
	})
}

func TestInit_NoColorWhenNotTTY(t *testing.T) {
	stubTerminal(t, false)
	done := captureStderr(t)
	Init(LevelInfo, nil)
	Info("test message", "key", "value")
	if out := done(); strings.Contains(out, "\033[") {
		t.Fatalf("unexpected ANSI codes in output: %q", out)
	}
}

func TestInit_LogFile(t *testing.T) {
	stubTerminal(t, true)
	done := captureStderr(t)
	var logBuf bytes.Buffer
	Init(LevelInfo, &logBuf)
	With("doc", "ch2.xhtml").Warn("kept original", "api_key", "secret-value")
	Debug("not written")
	out := done()

	if strings.Contains(out, "\033[") {
		t.Fatalf("console must be plain when a log file is set: %q", out)
	}
	lines := strings.Split(strings.TrimSpace(logBuf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one JSON line, got %q", logBuf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if rec["doc"] != "ch2.xhtml" || rec["api_key"] != redacted || rec["msg"] != "kept original" {
		t.Fatalf("unexpected record %v", rec)
	}
}
