package detector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultMaxTokens      = 1024
)

const detectSystemPrompt = `You classify road surface damage in photos for a navigation safety service. Damage labels: pothole, alligator_crack, longitudinal_crack, transverse_crack, rough_road, flooding, debris. Respond with a valid JSON object: {"detections": [{"label": "<label>", "confidence": <0.0-1.0>}]}. List every distinct damage type visible. If the photo shows no road damage, respond {"detections": []}.`

const detectUserPrompt = `Classify the road damage in this photo.`

// AnthropicOption configures the Claude-backed detector.
type AnthropicOption func(*AnthropicClient)

// WithModel overrides the default vision model.
func WithModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the reply token budget.
func WithMaxTokens(n int) AnthropicOption {
	return func(c *AnthropicClient) {
		c.maxTokens = int64(n)
	}
}

// AnthropicClient classifies road photos with Claude vision.
type AnthropicClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a detector backed by the Anthropic API.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:     defaultAnthropicModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Detect sends the image to Claude and parses the JSON classification.
func (c *AnthropicClient) Detect(ctx context.Context, image []byte, mime string) ([]Detection, error) {
	if len(image) == 0 {
		return nil, eris.New("detector: empty image")
	}
	encoded := base64.StdEncoding.EncodeToString(image)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: detectSystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(
				sdk.NewImageBlockBase64(mime, encoded),
				sdk.NewTextBlock(detectUserPrompt),
			),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "detector: classify image")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return parseDetections(text.String())
}

// parseDetections decodes a model reply into detections, dropping
// blank or "none" labels and clamping confidences to [0, 1].
func parseDetections(text string) ([]Detection, error) {
	text = cleanJSON(text)

	var result struct {
		Detections []Detection `json:"detections"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, eris.Wrap(err, "detector: parse reply")
	}

	out := make([]Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		d.Label = strings.ToLower(strings.TrimSpace(d.Label))
		if d.Label == "" || d.Label == "none" {
			continue
		}
		if d.Confidence < 0 {
			d.Confidence = 0
		}
		if d.Confidence > 1 {
			d.Confidence = 1
		}
		out = append(out, d)
	}
	return out, nil
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
