package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"websnatch/internal/history"
)

// writeStubRenderer drops a fake wkhtmltopdf script into a temp dir. It
// swallows stdin and prints PDF magic bytes on stdout, like the real
// binary in - / - mode.
func writeStubRenderer(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "wkhtmltopdf")
	script := "#!/bin/sh\ncat >/dev/null\nprintf '%%PDF-1.4 stub output'\n"
	if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return p
}

// writeTestConfig writes a config pointing at the stub renderer and a
// temp history dir, so tests never touch the real XDG data dir.
func writeTestConfig(t *testing.T, rendererPath, historyDir string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `
pdf:
  wkhtmltopdf_path: "` + rendererPath + `"
history:
  dir: "` + historyDir + `"
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRoot_ReachableURLProducesPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><head><title>t</title></head><body>hello world</body></html>")
	}))
	defer srv.Close()

	histDir := t.TempDir()
	cfgPath := writeTestConfig(t, writeStubRenderer(t), histDir)
	outPath := filepath.Join(t.TempDir(), "page.pdf")

	out, err := runCmd(t, srv.URL, "-c", cfgPath, "-o", outPath)
	if err != nil {
		t.Fatalf("snatch failed: %v (output: %s)", err, out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) == 0 || !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("expected non-empty PDF file, got %q", data)
	}
	if !strings.Contains(out, "Saved "+outPath) {
		t.Fatalf("expected success message, got %q", out)
	}

	db, err := history.Open(histDir, history.DefaultOptions())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer db.Close()
	recs, err := db.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("history recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != history.StatusOK || recs[0].OutputPath != outPath {
		t.Fatalf("unexpected history record: %+v", recs)
	}
}

func TestRoot_GeneratedOutputName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>hello world</body></html>")
	}))
	defer srv.Close()

	cfgPath := writeTestConfig(t, writeStubRenderer(t), t.TempDir())
	t.Chdir(t.TempDir())

	out, err := runCmd(t, srv.URL+"/articles/some-story.html", "-c", cfgPath)
	if err != nil {
		t.Fatalf("snatch failed: %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "Using generated output name: ") {
		t.Fatalf("expected generated name message, got %q", out)
	}

	matches, err := filepath.Glob("*_some_story_*.pdf")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one generated pdf, got %v (err %v)", matches, err)
	}
}

func TestRoot_DirectModePassesURLToRenderer(t *testing.T) {
	cfgPath := writeTestConfig(t, writeStubRenderer(t), t.TempDir())
	outPath := filepath.Join(t.TempDir(), "direct.pdf")

	out, err := runCmd(t, "https://example.com/page", "-c", cfgPath, "-o", outPath, "--direct")
	if err != nil {
		t.Fatalf("direct snatch failed: %v (output: %s)", err, out)
	}
	if data, err := os.ReadFile(outPath); err != nil || !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("expected PDF at %s, err %v", outPath, err)
	}
}

func TestRoot_UnreachableURLFailsWithoutOutput(t *testing.T) {
	cfgPath := writeTestConfig(t, writeStubRenderer(t), t.TempDir())
	outPath := filepath.Join(t.TempDir(), "never.pdf")

	// Port 1 is essentially never listening.
	_, err := runCmd(t, "http://127.0.0.1:1/", "-c", cfgPath, "-o", outPath)
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if !strings.Contains(err.Error(), "fetch failed") {
		t.Fatalf("expected fetch failure, got %v", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err %v", statErr)
	}
}

func TestRoot_MissingRendererFailsClearly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>hello world</body></html>")
	}))
	defer srv.Close()

	cfgPath := writeTestConfig(t, "/definitely/missing/wkhtmltopdf", t.TempDir())
	outPath := filepath.Join(t.TempDir(), "never.pdf")

	_, err := runCmd(t, srv.URL, "-c", cfgPath, "-o", outPath)
	if err == nil {
		t.Fatalf("expected renderer error")
	}
	if !strings.Contains(err.Error(), "wkhtmltopdf not found") {
		t.Fatalf("expected clear missing-renderer message, got %v", err)
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err %v", statErr)
	}
}

func TestRoot_RejectsBadArgs(t *testing.T) {
	if _, err := runCmd(t); err == nil {
		t.Fatalf("expected error for missing url")
	}
	if _, err := runCmd(t, "one", "two"); err == nil {
		t.Fatalf("expected error for multiple urls")
	}
	cfgPath := writeTestConfig(t, writeStubRenderer(t), t.TempDir())
	if _, err := runCmd(t, "ftp://example.com", "-c", cfgPath); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestHistoryCmd_ListsConversions(t *testing.T) {
	histDir := t.TempDir()
	db, err := history.Open(histDir, history.DefaultOptions())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	if _, err := db.Insert(context.Background(), &history.Record{
		URL:        "https://example.com/a",
		Engine:     "wkhtmltopdf",
		Status:     history.StatusOK,
		OutputPath: "a.pdf",
		PDFBytes:   42,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	cfgPath := writeTestConfig(t, writeStubRenderer(t), histDir)
	out, err := runCmd(t, "history", "-c", cfgPath, "-n", "5")
	if err != nil {
		t.Fatalf("history cmd failed: %v", err)
	}
	if !strings.Contains(out, "https://example.com/a") || !strings.Contains(out, "a.pdf") {
		t.Fatalf("expected record in output, got %q", out)
	}
}
