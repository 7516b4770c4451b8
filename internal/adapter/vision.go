package adapter

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/resilience"
	"github.com/collectscope/identify-cli/pkg/vision"
)

// VisionAdapter fronts the vision-model identification source. It handles
// all categories since the model identifies from the image alone.
type VisionAdapter struct {
	name   string
	client vision.Client
}

func NewVisionAdapter(name string, client vision.Client) *VisionAdapter {
	return &VisionAdapter{name: name, client: client}
}

func (a *VisionAdapter) Name() string { return a.name }

func (a *VisionAdapter) Categories() []model.Category {
	return []model.Category{model.CategoryCoins, model.CategoryBanknotes, model.CategoryBullion}
}

func (a *VisionAdapter) Lookup(ctx context.Context, req model.Request) (*RawResult, error) {
	if len(req.Image) == 0 {
		return nil, resilience.NewSourceError(model.ErrKindMalformedInput,
			eris.New("vision adapter: image bytes required"))
	}

	resp, err := a.client.IdentifyImage(ctx, vision.IdentifyRequest{
		Image:    req.Image,
		Category: string(req.Category),
	})
	if err != nil {
		return nil, classifyVisionError(err)
	}
	return &RawResult{Payload: resp.Raw, Confidence: resp.Confidence}, nil
}

func classifyVisionError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if kind := resilience.KindFromHTTPStatus(apiErr.StatusCode); kind != "" {
			return resilience.NewSourceError(kind, err)
		}
	}
	if errors.Is(err, vision.ErrMalformedOutput) {
		return resilience.NewSourceError(model.ErrKindMalformedResponse, err)
	}
	// Timeouts and connection failures classify through KindOf heuristics.
	return err
}
