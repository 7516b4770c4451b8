package adapter

import (
	"context"
	"errors"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/pkg/grading"
)

// GradingAdapter fronts a grading-service certification database. It only
// covers coins: banknote and bullion certifications use different registries.
type GradingAdapter struct {
	name   string
	client grading.Client
}

func NewGradingAdapter(name string, client grading.Client) *GradingAdapter {
	return &GradingAdapter{name: name, client: client}
}

func (a *GradingAdapter) Name() string { return a.name }

func (a *GradingAdapter) Categories() []model.Category {
	return []model.Category{model.CategoryCoins}
}

func (a *GradingAdapter) Lookup(ctx context.Context, req model.Request) (*RawResult, error) {
	resp, err := a.client.CertLookup(ctx, grading.CertRequest{
		ImageHash: req.ContentFingerprint(),
		Category:  string(req.Category),
	})
	if err != nil {
		var statusErr *grading.StatusError
		if errors.As(err, &statusErr) {
			return nil, statusToSourceError(statusErr.StatusCode, err)
		}
		return nil, classifyDecodeError(err)
	}
	return &RawResult{Payload: resp.Cert, Confidence: resp.Confidence}, nil
}
