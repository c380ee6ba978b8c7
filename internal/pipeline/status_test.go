package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/oukeidos/ebt/internal/progress"
)

func TestStatusAndClearProgress(t *testing.T) {
	dir := t.TempDir()
	input := writeBook(t, dir, "no markup here")
	useTranslator(t, &echoTranslator{})

	cfg := testConfig(dir, input)
	res, err := RunTranslation(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	report, err := Status(cfg)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.ProgressPath != res.ProgressPath || len(report.Packages) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	pkg := report.Packages[0]
	if pkg.Summary.Succeeded != 1 || pkg.Summary.Fallback != 1 {
		t.Fatalf("summary = %+v", pkg.Summary)
	}
	if len(pkg.Documents) != 2 || pkg.Documents[0].Name != chapterOne || pkg.Documents[1].Status != progress.StatusFailedFallback {
		t.Fatalf("documents = %+v", pkg.Documents)
	}
	if pkg.Documents[1].Error == "" {
		t.Fatal("fallback document should carry its reason")
	}

	other := cfg
	other.InputPath = writeBook(t, t.TempDir(), chapterTwoBody)
	if report, err := Status(other); err != nil || len(report.Packages) != 0 {
		t.Fatalf("unrelated input should report nothing: %+v, %v", report, err)
	}

	n, err := ClearProgress(cfg)
	if err != nil || n != 1 {
		t.Fatalf("ClearProgress() = %d, %v", n, err)
	}
	if _, err := os.Stat(res.ProgressPath); !os.IsNotExist(err) {
		t.Fatalf("progress file should be removed, stat err = %v", err)
	}
}

func TestStatusRequiresLocation(t *testing.T) {
	if _, err := Status(Config{}); err == nil {
		t.Fatal("expected error without a progress location")
	}
}
