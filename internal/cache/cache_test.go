package cache

import (
	"testing"
	"time"

	"github.com/collectscope/identify-cli/internal/model"
)

func resultWith(attempted int, confidence float64) model.ConsensusResult {
	return model.ConsensusResult{
		SourcesAttempted:  attempted,
		SourcesSuccessful: attempted,
		Confidence:        confidence,
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c := New(time.Hour)
	r := resultWith(5, 0.8)

	c.Put("fp1", model.DepthBasic, r)
	got, hit := c.Get("fp1", model.DepthBasic)
	if !hit {
		t.Fatal("expected hit")
	}
	if got.Confidence != 0.8 || got.SourcesAttempted != 5 {
		t.Errorf("got %+v", got)
	}

	if _, hit := c.Get("other", model.DepthBasic); hit {
		t.Error("unexpected hit for unknown fingerprint")
	}
}

func TestCache_SameDepthRoundTripEveryDepth(t *testing.T) {
	// A put at any depth must be served back at that same depth even
	// when only a handful of sources produced it.
	for _, depth := range []model.Depth{model.DepthBasic, model.DepthComprehensive, model.DepthDeep} {
		c := New(time.Hour)
		c.Put("fp", depth, resultWith(3, 0.7))

		got, hit := c.Get("fp", depth)
		if !hit {
			t.Errorf("depth %s: expected same-depth hit", depth)
			continue
		}
		if got.SourcesAttempted != 3 {
			t.Errorf("depth %s: got %+v", depth, got)
		}
	}
}

func TestCache_DeepSatisfiesBasic(t *testing.T) {
	c := New(time.Hour)
	c.Put("fp", model.DepthDeep, resultWith(15, 0.9))

	if _, hit := c.Get("fp", model.DepthBasic); !hit {
		t.Error("deep entry must satisfy a basic request")
	}
	if _, hit := c.Get("fp", model.DepthComprehensive); !hit {
		t.Error("deep entry must satisfy a comprehensive request")
	}
}

func TestCache_BasicNeverSatisfiesDeep(t *testing.T) {
	c := New(time.Hour)
	c.Put("fp", model.DepthBasic, resultWith(5, 0.8))

	if _, hit := c.Get("fp", model.DepthDeep); hit {
		t.Error("a cheap basic result must not satisfy a deep request")
	}
	if _, hit := c.Get("fp", model.DepthComprehensive); hit {
		t.Error("a basic result must not satisfy a comprehensive request")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	c := New(10*time.Minute)
	c.nowFunc = func() time.Time { return now }

	c.Put("fp", model.DepthBasic, resultWith(5, 0.8))
	if _, hit := c.Get("fp", model.DepthBasic); !hit {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(11 * time.Minute)
	if _, hit := c.Get("fp", model.DepthBasic); hit {
		t.Error("expected miss after TTL")
	}

	if purged := c.PurgeExpired(); purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if c.Len() != 0 {
		t.Errorf("len = %d after purge", c.Len())
	}
}

func TestCache_LastWriterWins(t *testing.T) {
	c := New(time.Hour)
	c.Put("fp", model.DepthBasic, resultWith(5, 0.5))
	c.Put("fp", model.DepthBasic, resultWith(5, 0.9))

	got, hit := c.Get("fp", model.DepthBasic)
	if !hit || got.Confidence != 0.9 {
		t.Errorf("got %+v, want last write", got)
	}
}
