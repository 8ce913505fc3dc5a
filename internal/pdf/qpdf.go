package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrLinearizerNotFound is returned when the qpdf binary cannot be found.
var ErrLinearizerNotFound = errors.New("pdf: qpdf not found")

// qpdf exits with 3 when it succeeded with warnings.
const qpdfExitWarnings = 3

// QPDF linearizes documents with the qpdf command line tool.
type QPDF struct {
	// Path is the qpdf binary. Default: "qpdf" looked up on PATH.
	Path string
}

func (q QPDF) path() string {
	if q.Path == "" {
		return "qpdf"
	}
	return q.Path
}

// Available reports whether the qpdf binary can be found.
func (q QPDF) Available() bool {
	_, err := exec.LookPath(q.path())
	return err == nil
}

// Linearize writes a linearized copy of the PDF at in to out.
func (q QPDF) Linearize(ctx context.Context, in, out string) error {
	bin, err := exec.LookPath(q.path())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinearizerNotFound, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--linearize", in, out)
	cmd.Stderr = &stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == qpdfExitWarnings {
		return nil
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("qpdf --linearize: %w", err)
		}
		return fmt.Errorf("qpdf --linearize: %w: %s", err, msg)
	}
	return nil
}
