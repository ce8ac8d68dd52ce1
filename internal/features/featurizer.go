// Package features turns a raw domain/URL pair into the fixed-dimension
// context vector the student model and bandit consume, caching results so
// a repeated lookup never re-runs extraction.
package features

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"github.com/xrash/smetrics"
	"golang.org/x/net/idna"

	"github.com/rawblock/threatscore/internal/cache"
	"github.com/rawblock/threatscore/pkg/models"
)

// IntelSource is the subset of intel.Store the featurizer needs: dynamic
// DNS membership and cryptojacking block-list hits feed directly into the
// context vector (the hard-intel gate itself still runs independently).
type IntelSource interface {
	IsDynamicDNS(domain string) bool
	Lookup(domain string) (models.IntelMatch, bool)
}

// Featurizer extracts FeatureVectors and caches them by (domain, url).
type Featurizer struct {
	brands     []string
	suspicious map[string]struct{}
	intel      IntelSource
	cache      *cache.Cache[string, models.FeatureVector]
}

// Config carries the tunables a Featurizer needs at construction.
type Config struct {
	BrandList      []string
	SuspiciousTLDs []string
	CacheCapacity  int
	CacheTTL       time.Duration
}

// New builds a Featurizer backed by intel for the dynamic-DNS and
// cryptojacking lookups folded into the context vector.
func New(cfg Config, intel IntelSource) *Featurizer {
	suspicious := make(map[string]struct{}, len(cfg.SuspiciousTLDs))
	for _, tld := range cfg.SuspiciousTLDs {
		suspicious[strings.ToLower(tld)] = struct{}{}
	}
	return &Featurizer{
		brands:     cfg.BrandList,
		suspicious: suspicious,
		intel:      intel,
		cache:      cache.New[string, models.FeatureVector](cfg.CacheCapacity, cfg.CacheTTL),
	}
}

func cacheKey(domain, url string) string {
	return domain + "|" + url
}

// Extract returns the context vector for domain (and, optionally, url),
// serving from cache when available. A cache hit is pure: no part of the
// extraction pipeline below runs again.
func (f *Featurizer) Extract(domain, url string) (models.FeatureVector, bool) {
	key := cacheKey(domain, url)
	if v, ok := f.cache.Get(key); ok {
		return v, true
	}

	norm := normalize(domain)
	fv := models.FeatureVector{Domain: norm}

	registrable := registrableLabel(norm)

	fv.Values[idx("domain_length")] = float64(len(norm))
	fv.Values[idx("digit_count")] = float64(countFunc(norm, unicode.IsDigit))
	fv.Values[idx("dash_count")] = float64(strings.Count(norm, "-"))
	fv.Values[idx("entropy")] = shannonEntropy(norm)
	fv.Values[idx("vowel_ratio")] = ratio(norm, isVowel)
	fv.Values[idx("consonant_ratio")] = ratio(norm, isConsonant)
	fv.Values[idx("max_consecutive_consonants")] = float64(maxConsecutive(norm, isConsonant))
	fv.Values[idx("homoglyph_score")] = homoglyphScore(norm)
	fv.Values[idx("typosquat_score")] = f.typosquatScore(registrable)
	fv.Values[idx("dga_score")] = dgaScore(norm)
	fv.Values[idx("suspicious_tld")] = f.suspiciousTLDScore(norm)
	fv.Values[idx("dynamic_dns")] = boolFeature(f.intel != nil && f.intel.IsDynamicDNS(norm))
	fv.Values[idx("parked_domain")] = 0 // deferred to the offline analyzer: no hot-path WHOIS/content fetch
	fv.Values[idx("cname_cloaking")] = 0 // deferred: requires a live DNS chase, not safe on the hot path
	fv.Values[idx("dns_rebinding")] = 0  // deferred: requires repeated resolution over time
	fv.Values[idx("cryptojacking_hit")] = f.cryptojackingHit(norm)

	f.cache.Put(key, fv)
	return fv, false
}

func idx(name string) int {
	for i, n := range models.FeatureOrder {
		if n == name {
			return i
		}
	}
	panic("features: unknown feature name " + name)
}

func normalize(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if ascii, err := idna.ToASCII(domain); err == nil {
		return ascii
	}
	return domain
}

func registrableLabel(domain string) string {
	dom, err := publicsuffix.Parse(domain)
	if err != nil {
		return domain
	}
	return dom.SLD
}

func countFunc(s string, pred func(rune) bool) int {
	n := 0
	for _, r := range s {
		if pred(r) {
			n++
		}
	}
	return n
}

func ratio(s string, pred func(rune) bool) float64 {
	letters := 0
	hits := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if pred(r) {
				hits++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hits) / float64(letters)
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func isConsonant(r rune) bool {
	return unicode.IsLetter(r) && !isVowel(r)
}

func maxConsecutive(s string, pred func(rune) bool) int {
	best, cur := 0, 0
	for _, r := range s {
		if pred(r) {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

// shannonEntropy computes byte-frequency Shannon entropy, matching the
// original engine's byte-oriented (not rune-oriented) definition.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	var h float64
	n := float64(len(s))
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// homoglyphScore returns 1.0 when the domain contains "xn--" (a punycode
// label) or any non-ASCII code point, and 0 otherwise. It does not tell
// scripts apart and does not scale by the share of suspicious code points.
func homoglyphScore(domain string) float64 {
	if strings.Contains(domain, "xn--") {
		return 1.0
	}
	for _, r := range domain {
		if r > unicode.MaxASCII {
			return 1.0
		}
	}
	return 0.0
}

// typosquatScore is the best Jaro-Winkler similarity between registrable
// and any entry in the configured brand list.
func (f *Featurizer) typosquatScore(registrable string) float64 {
	best := 0.0
	for _, brand := range f.brands {
		sim := smetrics.JaroWinkler(registrable, brand, 0.7, 4)
		if sim > best {
			best = sim
		}
	}
	return best
}

// dgaScore is a fixed-weight composite heuristic: high entropy, low
// vowel ratio, and long consonant runs are each individually weak DGA
// signals but compound meaningfully together.
func dgaScore(domain string) float64 {
	label := domain
	if i := strings.IndexByte(domain, '.'); i > 0 {
		label = domain[:i]
	}
	score := 0.0
	if shannonEntropy(label) > 3.5 {
		score += 0.4
	}
	if ratio(label, isVowel) < 0.2 {
		score += 0.3
	}
	if maxConsecutive(label, isConsonant) >= 5 {
		score += 0.3
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (f *Featurizer) suspiciousTLDScore(domain string) float64 {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 {
		return 0
	}
	tld := domain[i+1:]
	if _, ok := f.suspicious[tld]; ok {
		return 1.0
	}
	return 0.0
}

func (f *Featurizer) cryptojackingHit(domain string) float64 {
	if f.intel == nil {
		return 0
	}
	match, ok := f.intel.Lookup(domain)
	if ok && match.Category == models.CategoryCryptojacking {
		return 1.0
	}
	return 0.0
}

func boolFeature(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
