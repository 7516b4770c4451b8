package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/resilience"
	"github.com/collectscope/identify-cli/pkg/auctions"
)

// AuctionAdapter fronts the auction-archive lookup source, matching items
// against historical sale records by content fingerprint.
type AuctionAdapter struct {
	name   string
	client auctions.Client
	cats   []model.Category
}

func NewAuctionAdapter(name string, client auctions.Client, cats ...model.Category) *AuctionAdapter {
	if len(cats) == 0 {
		cats = []model.Category{model.CategoryCoins, model.CategoryBanknotes, model.CategoryBullion}
	}
	return &AuctionAdapter{name: name, client: client, cats: cats}
}

func (a *AuctionAdapter) Name() string { return a.name }

func (a *AuctionAdapter) Categories() []model.Category { return a.cats }

func (a *AuctionAdapter) Lookup(ctx context.Context, req model.Request) (*RawResult, error) {
	resp, err := a.client.Lookup(ctx, auctions.LookupRequest{
		ImageHash: req.ContentFingerprint(),
		Category:  string(req.Category),
	})
	if err != nil {
		var statusErr *auctions.StatusError
		if errors.As(err, &statusErr) {
			return nil, statusToSourceError(statusErr.StatusCode, err)
		}
		return nil, classifyDecodeError(err)
	}
	// An empty match falls through to the caller's payload validation and
	// is recorded as malformed_response rather than an empty success.
	return &RawResult{Payload: resp.Match, Confidence: resp.Confidence}, nil
}

// statusToSourceError maps a failed HTTP status onto the error taxonomy.
func statusToSourceError(statusCode int, err error) error {
	kind := resilience.KindFromHTTPStatus(statusCode)
	if kind == "" {
		kind = model.ErrKindTransientNetwork
	}
	return resilience.NewSourceError(kind, err)
}

// classifyDecodeError marks JSON decoding failures as malformed_response;
// everything else classifies downstream through KindOf.
func classifyDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return resilience.NewSourceError(model.ErrKindMalformedResponse, err)
	}
	return err
}
