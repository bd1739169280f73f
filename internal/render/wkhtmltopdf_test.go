package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"websnatch/internal/config"
)

// writeStub drops a fake wkhtmltopdf shell script into a temp dir and
// returns its path.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "wkhtmltopdf")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return p
}

func stubEngine(t *testing.T, body string) *Wkhtmltopdf {
	t.Helper()
	cfg := config.Default()
	cfg.PDF.WkhtmltopdfPath = writeStub(t, body)
	return NewWkhtmltopdf(cfg)
}

func testJob(t *testing.T) Job {
	t.Helper()
	job, err := NewJob(config.Default(), "", "", 0.75)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	job.HTML = "<html><body>hello</body></html>"
	return job
}

func TestWkhtmltopdf_MissingBinaryExplicitPath(t *testing.T) {
	cfg := config.Default()
	cfg.PDF.WkhtmltopdfPath = "/definitely/missing/wkhtmltopdf"
	_, err := NewWkhtmltopdf(cfg).Render(context.Background(), testJob(t))
	if !errors.Is(err, ErrRendererNotFound) {
		t.Fatalf("got %v, want ErrRendererNotFound", err)
	}
}

func TestWkhtmltopdf_MissingBinaryOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := NewWkhtmltopdf(config.Default()).Render(context.Background(), testJob(t))
	if !errors.Is(err, ErrRendererNotFound) {
		t.Fatalf("got %v, want ErrRendererNotFound", err)
	}
}

func TestWkhtmltopdf_RenderSuccess(t *testing.T) {
	eng := stubEngine(t, `cat >/dev/null; printf '%%PDF-1.4 stub-output'`)

	pdf, err := eng.Render(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !IsPDF(pdf) {
		t.Fatalf("output is not a pdf: %q", pdf)
	}
}

func TestWkhtmltopdf_ArgumentOrder(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	eng := stubEngine(t, `echo "$@" > `+argsFile+`; cat >/dev/null; printf '%%PDF-1.4'`)

	job := testJob(t)
	if _, err := eng.Render(context.Background(), job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	got := strings.TrimSpace(string(raw))
	want := "--page-size A4 --margin-top 0.75in --margin-right 0.75in --margin-bottom 0.75in --margin-left 0.75in --encoding UTF-8 --no-stop-slow-scripts --javascript-delay 1000 - -"
	if got != want {
		t.Fatalf("argument mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestWkhtmltopdf_URLJobPassesURLThrough(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	eng := stubEngine(t, `echo "$@" > `+argsFile+`; printf '%%PDF-1.4'`)

	job := testJob(t)
	job.HTML = ""
	job.URL = "https://example.com/page"
	if _, err := eng.Render(context.Background(), job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	raw, _ := os.ReadFile(argsFile)
	got := strings.TrimSpace(string(raw))
	if !strings.HasSuffix(got, "https://example.com/page -") {
		t.Fatalf("expected URL input and stdout output, got %q", got)
	}
	if strings.Contains(got, " - -") {
		t.Fatalf("stdin marker should be absent for URL jobs: %q", got)
	}
}

func TestWkhtmltopdf_LandscapeAddsOrientationFlag(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	eng := stubEngine(t, `echo "$@" > `+argsFile+`; cat >/dev/null; printf '%%PDF-1.4'`)

	job, err := NewJob(config.Default(), "A4", "landscape", 0.5)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	job.HTML = "<html><body>wide</body></html>"
	if _, err := eng.Render(context.Background(), job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	raw, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(raw), "--orientation Landscape") {
		t.Fatalf("missing orientation flag: %q", raw)
	}
	if !strings.Contains(string(raw), "--margin-top 0.50in") {
		t.Fatalf("missing margin value: %q", raw)
	}
}

func TestWkhtmltopdf_CustomPaperUsesExplicitDimensions(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	cfg := config.Default()
	cfg.PDF.PaperSizes["Card"] = config.PaperSize{Width: 3.5, Height: 2.0}
	cfg.PDF.WkhtmltopdfPath = writeStub(t, `echo "$@" > `+argsFile+`; cat >/dev/null; printf '%%PDF-1.4'`)

	job, err := NewJob(cfg, "Card", "", 0.75)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	job.HTML = "<html><body>card</body></html>"
	if _, err := NewWkhtmltopdf(cfg).Render(context.Background(), job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	raw, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(raw), "--page-width 3.50in --page-height 2.00in") {
		t.Fatalf("expected explicit dimensions for custom paper: %q", raw)
	}
	if strings.Contains(string(raw), "--page-size") {
		t.Fatalf("custom paper should not use --page-size: %q", raw)
	}
}

func TestWkhtmltopdf_StdinCarriesHTML(t *testing.T) {
	inFile := filepath.Join(t.TempDir(), "stdin")
	eng := stubEngine(t, `cat > `+inFile+`; printf '%%PDF-1.4'`)

	job := testJob(t)
	job.HTML = "<html><body>payload-marker</body></html>"
	if _, err := eng.Render(context.Background(), job); err != nil {
		t.Fatalf("Render: %v", err)
	}

	raw, err := os.ReadFile(inFile)
	if err != nil {
		t.Fatalf("read stdin capture: %v", err)
	}
	if !strings.Contains(string(raw), "payload-marker") {
		t.Fatalf("stdin did not carry the html: %q", raw)
	}
}

func TestWkhtmltopdf_ExitCodeAndStderr(t *testing.T) {
	eng := stubEngine(t, `cat >/dev/null; echo "Error: could not load page" >&2; exit 3`)

	_, err := eng.Render(context.Background(), testJob(t))
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want ExitError", err)
	}
	if ee.Code != 3 {
		t.Fatalf("unexpected exit code: %d", ee.Code)
	}
	if !strings.Contains(ee.Stderr, "could not load page") {
		t.Fatalf("stderr not captured: %q", ee.Stderr)
	}
}

func TestWkhtmltopdf_NonPDFOutput(t *testing.T) {
	eng := stubEngine(t, `cat >/dev/null; printf 'not a pdf'`)

	_, err := eng.Render(context.Background(), testJob(t))
	if !errors.Is(err, ErrNoPDF) {
		t.Fatalf("got %v, want ErrNoPDF", err)
	}
}

func TestWkhtmltopdf_ContextTimeoutKillsProcess(t *testing.T) {
	eng := stubEngine(t, `exec sleep 5`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := eng.Render(ctx, testJob(t))
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("process was not killed promptly")
	}
}
