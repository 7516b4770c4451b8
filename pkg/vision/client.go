// Package vision identifies collectibles from images using an Anthropic
// vision model.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// Client defines the vision-model operations used by the identification
// engine.
type Client interface {
	IdentifyImage(ctx context.Context, req IdentifyRequest) (*IdentifyResponse, error)
}

// IdentifyRequest carries one image plus lookup hints.
type IdentifyRequest struct {
	Image     []byte
	MediaType string // "image/jpeg", "image/png", "image/webp"; default jpeg
	Category  string // "coins", "banknotes", "bullion"
}

// IdentifyResponse holds the model's structured identification.
type IdentifyResponse struct {
	// Raw is the model's JSON identification object, validated to be
	// well-formed JSON but otherwise source-specific.
	Raw json.RawMessage
	// Confidence is the model's self-reported confidence in [0,1], zero
	// if the model did not report one.
	Confidence float64
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.extraOpts = append(c.extraOpts, option.WithBaseURL(url))
	}
}

type sdkClient struct {
	client    sdk.Client
	model     string
	extraOpts []option.RequestOption
}

// NewClient creates a vision client backed by the official SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{model: defaultModel}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.extraOpts...)...)
	return c
}

const promptTemplate = `You are an expert numismatist. Identify the %s in this image.
Respond with only a JSON object with these keys (omit any you cannot determine):
name, year, country, denomination, composition, grade, rarity,
variants (array of strings), estimated_value ({"low": n, "high": n}),
confidence (0 to 1).`

func (c *sdkClient) IdentifyImage(ctx context.Context, req IdentifyRequest) (*IdentifyResponse, error) {
	if len(req.Image) == 0 {
		return nil, eris.New("vision: empty image")
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	imageBlock := sdk.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(req.Image))
	textBlock := sdk.NewTextBlock(fmt.Sprintf(promptTemplate, req.Category))

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1024,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(imageBlock, textBlock)},
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	raw, err := extractJSON(text.String())
	if err != nil {
		return nil, err
	}

	var probe struct {
		Confidence float64 `json:"confidence"`
	}
	// Raw is already known to be valid JSON; the probe only pulls the
	// optional confidence field.
	_ = json.Unmarshal(raw, &probe)

	return &IdentifyResponse{Raw: raw, Confidence: probe.Confidence}, nil
}

// ErrMalformedOutput indicates the model responded but its output could
// not be parsed into an identification object.
var ErrMalformedOutput = errors.New("vision: malformed model output")

// extractJSON pulls the first JSON object out of model output, tolerating
// surrounding prose or markdown fences.
func extractJSON(s string) (json.RawMessage, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, eris.Wrapf(ErrMalformedOutput, "no JSON object in response: %.80s", s)
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil, eris.Wrap(ErrMalformedOutput, "invalid JSON object")
	}
	return json.RawMessage(candidate), nil
}
