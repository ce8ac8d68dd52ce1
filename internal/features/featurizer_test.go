package features

import (
	"testing"
	"time"

	"github.com/rawblock/threatscore/pkg/models"
)

type fakeIntel struct {
	dynamicDNS map[string]bool
	matches    map[string]models.IntelMatch
}

func (f fakeIntel) IsDynamicDNS(domain string) bool { return f.dynamicDNS[domain] }

func (f fakeIntel) Lookup(domain string) (models.IntelMatch, bool) {
	m, ok := f.matches[domain]
	return m, ok
}

func newTestFeaturizer() *Featurizer {
	cfg := Config{
		BrandList:      []string{"paypal", "google", "microsoft"},
		SuspiciousTLDs: []string{"xyz", "top"},
		CacheCapacity:  100,
		CacheTTL:       time.Minute,
	}
	intel := fakeIntel{
		dynamicDNS: map[string]bool{"host.dyndns.example": true},
		matches: map[string]models.IntelMatch{
			"miner.example": {Category: models.CategoryCryptojacking, Confidence: 0.85},
		},
	}
	return New(cfg, intel)
}

func TestExtractBasicDimensions(t *testing.T) {
	f := newTestFeaturizer()
	fv, hit := f.Extract("paypa1-secure.xyz", "")
	if hit {
		t.Fatalf("expected first call to be a cache miss")
	}
	if fv.Get("domain_length") != float64(len("paypa1-secure.xyz")) {
		t.Errorf("unexpected domain_length: %v", fv.Get("domain_length"))
	}
	if fv.Get("dash_count") != 1 {
		t.Errorf("expected 1 dash, got %v", fv.Get("dash_count"))
	}
	if fv.Get("digit_count") != 1 {
		t.Errorf("expected 1 digit, got %v", fv.Get("digit_count"))
	}
	if fv.Get("suspicious_tld") != 1.0 {
		t.Errorf("expected suspicious_tld hit for .xyz")
	}
}

func TestExtractCacheHit(t *testing.T) {
	f := newTestFeaturizer()
	_, hit := f.Extract("example.com", "")
	if hit {
		t.Fatalf("expected first call to miss")
	}
	fv2, hit2 := f.Extract("example.com", "")
	if !hit2 {
		t.Fatalf("expected second call to hit cache")
	}
	if fv2.Domain != "example.com" {
		t.Errorf("unexpected cached domain: %s", fv2.Domain)
	}
}

func TestExtractHomoglyph(t *testing.T) {
	f := newTestFeaturizer()
	fv, _ := f.Extract("xn--pypal-4ve.com", "")
	if fv.Get("homoglyph_score") != 1.0 {
		t.Errorf("expected homoglyph hit for punycode domain")
	}
}

func TestExtractTyposquat(t *testing.T) {
	f := newTestFeaturizer()
	fv, _ := f.Extract("paypal-secure-login.com", "")
	if fv.Get("typosquat_score") <= 0.7 {
		t.Errorf("expected high typosquat similarity to paypal, got %v", fv.Get("typosquat_score"))
	}
}

func TestExtractDynamicDNSAndCryptojacking(t *testing.T) {
	f := newTestFeaturizer()
	fv, _ := f.Extract("host.dyndns.example", "")
	if fv.Get("dynamic_dns") != 1.0 {
		t.Errorf("expected dynamic_dns flag set")
	}

	fv2, _ := f.Extract("miner.example", "")
	if fv2.Get("cryptojacking_hit") != 1.0 {
		t.Errorf("expected cryptojacking_hit flag set")
	}
}
