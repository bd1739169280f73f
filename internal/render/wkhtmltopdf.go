package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"websnatch/internal/config"
	"websnatch/internal/logging"
)

const wkhtmltopdfBinary = "wkhtmltopdf"

// Wkhtmltopdf renders through the external wkhtmltopdf binary. HTML goes
// in on stdin, the PDF comes back on stdout, so no intermediate files are
// written and a failed run leaves nothing behind.
type Wkhtmltopdf struct {
	path string
}

// NewWkhtmltopdf returns the subprocess engine. An empty
// pdf.wkhtmltopdf_path falls back to a $PATH lookup.
func NewWkhtmltopdf(cfg config.Config) *Wkhtmltopdf {
	return &Wkhtmltopdf{path: cfg.PDF.WkhtmltopdfPath}
}

// Name implements Engine.
func (w *Wkhtmltopdf) Name() string { return EngineWkhtmltopdf }

// Render implements Engine. The subprocess is killed when ctx expires.
func (w *Wkhtmltopdf) Render(ctx context.Context, job Job) ([]byte, error) {
	bin, err := w.lookup()
	if err != nil {
		return nil, err
	}

	args := w.args(job)
	logging.Debug("executing renderer", "bin", bin, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, bin, args...)
	if job.URL == "" {
		cmd.Stdin = strings.NewReader(job.HTML)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("render: wkhtmltopdf: %w", ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, &ExitError{Code: ee.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return nil, fmt.Errorf("render: run %s: %w", bin, err)
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		logging.Warn("wkhtmltopdf stderr", "output", msg)
	}

	pdf := stdout.Bytes()
	if !IsPDF(pdf) {
		return nil, ErrNoPDF
	}
	return pdf, nil
}

func (w *Wkhtmltopdf) lookup() (string, error) {
	if w.path != "" {
		if _, err := os.Stat(w.path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrRendererNotFound, w.path)
		}
		return w.path, nil
	}
	bin, err := exec.LookPath(wkhtmltopdfBinary)
	if err != nil {
		return "", ErrRendererNotFound
	}
	return bin, nil
}

// Paper names wkhtmltopdf resolves on its own. Anything else is passed
// as explicit page dimensions.
var wkhtmltopdfPapers = []string{"A3", "A4", "A5", "A6", "Letter", "Legal", "Tabloid"}

func knownPaper(name string) bool {
	for _, p := range wkhtmltopdfPapers {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// args builds the wkhtmltopdf command line. Input is the job URL or "-"
// for stdin; output is always "-" for stdout.
func (w *Wkhtmltopdf) args(job Job) []string {
	margin := fmt.Sprintf("%.2fin", job.Margin)
	encoding := job.Encoding
	if encoding == "" {
		encoding = "UTF-8"
	}

	var args []string
	if knownPaper(job.PaperName) {
		args = append(args, "--page-size", job.PaperName)
	} else {
		args = append(args,
			"--page-width", fmt.Sprintf("%.2fin", job.Paper.Width),
			"--page-height", fmt.Sprintf("%.2fin", job.Paper.Height),
		)
	}
	args = append(args,
		"--margin-top", margin,
		"--margin-right", margin,
		"--margin-bottom", margin,
		"--margin-left", margin,
		"--encoding", encoding,
		"--no-stop-slow-scripts",
		"--javascript-delay", strconv.FormatInt(job.JavascriptDelay.Milliseconds(), 10),
	)
	if job.Orientation == OrientationLandscape {
		args = append(args, "--orientation", "Landscape")
	}

	input := "-"
	if job.URL != "" {
		input = job.URL
	}
	return append(args, input, "-")
}
