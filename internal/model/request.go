package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Depth is the caller-chosen effort level controlling how many sources are
// consulted for a request.
type Depth string

const (
	DepthBasic         Depth = "basic"
	DepthComprehensive Depth = "comprehensive"
	DepthDeep          Depth = "deep"
)

// ParseDepth normalizes a user-supplied depth string. Returns false for
// unknown depths.
func ParseDepth(s string) (Depth, bool) {
	switch Depth(strings.ToLower(strings.TrimSpace(s))) {
	case DepthBasic:
		return DepthBasic, true
	case DepthComprehensive:
		return DepthComprehensive, true
	case DepthDeep:
		return DepthDeep, true
	default:
		return "", false
	}
}

// Rank orders depths from cheapest to most thorough. A cached result
// produced at a higher rank satisfies a request at a lower rank.
func (d Depth) Rank() int {
	switch d {
	case DepthBasic:
		return 1
	case DepthComprehensive:
		return 2
	case DepthDeep:
		return 3
	default:
		return 0
	}
}

// Request is one incoming identification request. Immutable; discarded after
// the response is returned. Only its fingerprint and outcome may be cached.
type Request struct {
	// Image holds the raw image bytes, when the caller uploaded content
	// directly. ImageHandle is an opaque reference (URL, object key) when
	// the bytes live elsewhere. Exactly one should be set.
	Image       []byte
	ImageHandle string

	Category Category
	Depth    Depth

	// Fingerprint optionally carries a precomputed content fingerprint for
	// cache lookup. When empty, ContentFingerprint derives one.
	Fingerprint string
}

// ContentFingerprint returns the cache key for this request's content:
// the declared fingerprint when present, otherwise a sha256 of the image
// bytes (or handle).
func (r Request) ContentFingerprint() string {
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	h := sha256.New()
	if len(r.Image) > 0 {
		h.Write(r.Image)
	} else {
		h.Write([]byte(r.ImageHandle))
	}
	return hex.EncodeToString(h.Sum(nil))
}
