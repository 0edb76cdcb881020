package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/menta2k/minescan/pkg/client"
	"github.com/menta2k/minescan/pkg/types"
)

// DefaultPrompt asks a vision-language model for landmine boxes in xyxyn layout
const DefaultPrompt = `You are a landmine locator for grayscale drone thermal imagery.

Return JSON only:
{
  "detections": [
    {"box": [0.0, 0.0, 0.0, 0.0], "confidence": 0.0}
  ]
}

HARD RULES
- "box" is [x_min, y_min, x_max, y_max] normalized to [0,1] (NOT pixels).
- One entry per suspected landmine, surface-laid or buried (compact thermal anomalies).
- "confidence" is your probability in [0,1] that the box contains a landmine.
- If nothing is found, return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionDetector queries a vision-language model once per image of the batch
type VisionDetector struct {
	client client.VisionClient
	model  string
	prompt string
}

// NewVisionDetector creates a detector with a vision client
func NewVisionDetector(c client.VisionClient, model string) *VisionDetector {
	return &VisionDetector{client: c, model: model, prompt: DefaultPrompt}
}

// WithPrompt replaces the default prompt
func (d *VisionDetector) WithPrompt(prompt string) *VisionDetector {
	d.prompt = prompt
	return d
}

// Detect sends every image to the model in input order
func (d *VisionDetector) Detect(ctx context.Context, paths []string) ([]types.Result, error) {
	results := make([]types.Result, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		raw, err := d.client.Query(ctx, d.model, d.prompt, base64.StdEncoding.EncodeToString(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		dets, err := ParseModelDetections(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		results = append(results, types.Result{Path: p, Detections: dets})
	}
	return results, nil
}

type modelDetection struct {
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
	Label      string    `json:"label"`
}

type modelResponse struct {
	Detections []modelDetection `json:"detections"`
}

// ParseModelDetections parses a model reply. Replies that are not JSON or
// carry malformed boxes are errors.
func ParseModelDetections(raw string) ([]types.Detection, error) {
	cleaned := sanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("model returned non-JSON response: %.80q", raw)
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	dets := make([]types.Detection, 0, len(resp.Detections))
	for i, md := range resp.Detections {
		if len(md.Box) != 4 {
			return nil, fmt.Errorf("detection %d has %d box coordinates, want 4", i, len(md.Box))
		}
		label := md.Label
		if label == "" {
			label = "landmine"
		}
		dets = append(dets, types.Detection{
			Box:        normalizeBox(types.Box{XMin: md.Box[0], YMin: md.Box[1], XMax: md.Box[2], YMax: md.Box[3]}),
			Confidence: clamp(md.Confidence, 0, 1),
			Label:      label,
		})
	}
	return dets, nil
}

// normalizeBox ensures box coordinates are within [0,1] bounds.
// Models occasionally answer in percent; those are scaled down first.
func normalizeBox(b types.Box) types.Box {
	if b.XMax > 1 || b.YMax > 1 {
		if b.XMax <= 100 && b.YMax <= 100 {
			b = types.Box{XMin: b.XMin / 100, YMin: b.YMin / 100, XMax: b.XMax / 100, YMax: b.YMax / 100}
		}
	}
	return b.Clamp()
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
