package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/yairfalse/vigil/pkg/finding"
)

// JSONEmitter writes each finding as one JSON line.
type JSONEmitter struct {
	enc *json.Encoder
}

// NewJSONEmitter creates a JSON lines emitter. The caller owns w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

// Emit writes the findings of the report.
func (e *JSONEmitter) Emit(_ context.Context, report finding.Report) error {
	for _, f := range report.Findings {
		if err := e.enc.Encode(f); err != nil {
			return fmt.Errorf("encode finding %s: %w", finding.Key(f), err)
		}
	}
	return nil
}

// Close is a no-op.
func (e *JSONEmitter) Close() error {
	return nil
}
