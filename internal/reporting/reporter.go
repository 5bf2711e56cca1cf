// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/ceqfill/internal/survey"
)

// Reporter writes the outcome of a run to an output.
type Reporter interface {
	// Write records the final state of a run.
	Write(st *survey.RunState) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	switch format {
	case "json", "yaml", "text", "":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer), nil
}

// NewWriter creates a reporter over w, which it takes ownership of.
func NewWriter(format string, w io.WriteCloser) Reporter {
	switch format {
	case "yaml":
		return &encodingReporter{w: w, encode: encodeYAML}
	case "text":
		return &textReporter{w: w}
	default:
		return &encodingReporter{w: w, encode: encodeJSON}
	}
}

type encodingReporter struct {
	w      io.WriteCloser
	encode func(io.Writer, *survey.RunState) error
}

func (r *encodingReporter) Write(st *survey.RunState) error {
	if err := r.encode(r.w, st); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}

func (r *encodingReporter) Close() error { return r.w.Close() }

func encodeJSON(w io.Writer, st *survey.RunState) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func encodeYAML(w io.Writer, st *survey.RunState) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return err
	}
	return enc.Close()
}

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(st *survey.RunState) error {
	RenderSummary(r.w, st)
	return nil
}

func (r *textReporter) Close() error { return r.w.Close() }
