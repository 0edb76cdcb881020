package mission

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/menta2k/minescan/pkg/types"
)

const (
	// BoxesKey holds the detection boxes as [x_min, y_min, x_max, y_max] lists in [0,1]
	BoxesKey = "bounding_boxes"
	// ProbabilitiesKey holds one confidence per box, in the same order
	ProbabilitiesKey = "probabilities"
)

// ParseMetadata decodes a metadata document into its top-level fields. Field
// values are kept as raw JSON so they survive a rewrite unchanged.
func ParseMetadata(doc []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataParse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrMetadataParse)
	}
	return fields, nil
}

// MergeDetections sets the bounding_boxes and probabilities fields of doc
// from result and returns the rewritten document. Every other field keeps its
// value. An image without detections gets two empty lists.
func MergeDetections(doc []byte, result types.Result) ([]byte, error) {
	fields, err := ParseMetadata(doc)
	if err != nil {
		return nil, err
	}

	boxes, err := json.Marshal(result.Boxes())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BoxesKey, err)
	}
	probs, err := json.Marshal(result.Confidences())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ProbabilitiesKey, err)
	}
	fields[BoxesKey] = boxes
	fields[ProbabilitiesKey] = probs

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}
