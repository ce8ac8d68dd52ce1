// Package intel implements the hard-intelligence gate: fixed-confidence
// block-list lookups with suffix-match semantics and atomic snapshot
// refresh, modeled on the teacher's background mempool poller (ticker +
// bounded per-tick work + context cancellation) but swapping an immutable
// snapshot instead of mutating shared maps in place.
package intel

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/idna"

	"github.com/rawblock/threatscore/internal/logging"
	"github.com/rawblock/threatscore/pkg/models"
)

// Source is one configured hard-intel feed.
type Source struct {
	Name       string
	Category   models.IntelCategory
	Confidence float64
	FilePath   string
	URL        string
}

// Fetcher retrieves a fresh copy of a source's host list. The concrete
// HTTP implementation is HTTPFetcher; tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, source Source) ([]string, error)
}

type snapshot struct {
	sets       map[string]map[string]struct{} // source name -> host set
	dynamicDNS map[string]struct{}
}

// Store is the hard-intelligence gate. Lookup is lock-free on the hot
// path: refreshes build a brand new snapshot and swap it in atomically,
// so a reader never observes a partially-updated source.
type Store struct {
	sources []Source
	current atomic.Pointer[snapshot]
	fetcher Fetcher
	log     *logging.Logger
}

// New constructs a Store from static sources loaded once at startup. Call
// StartRefresh to keep it warm against fetcher.
func New(sources []Source, fetcher Fetcher, log *logging.Logger) *Store {
	s := &Store{sources: sources, fetcher: fetcher, log: log}
	s.current.Store(&snapshot{sets: map[string]map[string]struct{}{}, dynamicDNS: map[string]struct{}{}})
	return s
}

// LoadFromDisk reads every source's FilePath (if set) into the initial
// snapshot. Missing files are treated as empty sets, not errors — a
// freshly deployed engine with no seeded block lists should still start.
func (s *Store) LoadFromDisk(dynamicDNSPath string) error {
	snap := &snapshot{sets: map[string]map[string]struct{}{}, dynamicDNS: map[string]struct{}{}}
	for _, src := range s.sources {
		set, err := readHostFile(src.FilePath)
		if err != nil {
			return err
		}
		snap.sets[src.Name] = set
	}
	if dynamicDNSPath != "" {
		set, err := readHostFile(dynamicDNSPath)
		if err != nil {
			return err
		}
		snap.dynamicDNS = set
	}
	s.current.Store(snap)
	return nil
}

func readHostFile(path string) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	if path == "" {
		return set, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		norm, err := normalizeHost(line)
		if err != nil {
			continue
		}
		set[norm] = struct{}{}
	}
	return set, scanner.Err()
}

func normalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	ascii, err := idna.ToASCII(host)
	if err != nil {
		return host, nil
	}
	return ascii, nil
}

// Lookup checks domain against every configured source using suffix-match
// semantics: an exact match or a match against any ancestor label suffix
// counts as a hit. The highest-confidence match across all matching
// sources is returned.
func (s *Store) Lookup(domain string) (models.IntelMatch, bool) {
	norm, err := normalizeHost(domain)
	if err != nil {
		norm = strings.ToLower(domain)
	}
	snap := s.current.Load()

	var best models.IntelMatch
	found := false
	for _, src := range s.sources {
		set := snap.sets[src.Name]
		if set == nil {
			continue
		}
		if matched, ok := suffixMatch(norm, set); ok {
			if !found || src.Confidence > best.Confidence {
				best = models.IntelMatch{
					Source:     src.Name,
					Category:   src.Category,
					Confidence: src.Confidence,
					MatchedOn:  matched,
				}
				found = true
			}
		}
	}
	return best, found
}

// IsDynamicDNS reports whether domain falls under a known dynamic-DNS
// provider's zone, using the same suffix-match rule as Lookup.
func (s *Store) IsDynamicDNS(domain string) bool {
	norm, err := normalizeHost(domain)
	if err != nil {
		norm = strings.ToLower(domain)
	}
	snap := s.current.Load()
	_, ok := suffixMatch(norm, snap.dynamicDNS)
	return ok
}

// suffixMatch checks domain itself, then each progressively shorter
// dot-joined suffix, against set. Returns the matched label and true on
// the first hit (most specific first).
func suffixMatch(domain string, set map[string]struct{}) (string, bool) {
	if len(set) == 0 {
		return "", false
	}
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels); i++ {
		candidate := strings.Join(labels[i:], ".")
		if _, ok := set[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// StartRefresh launches a background goroutine that re-fetches every
// source with a URL on interval, atomically swapping in a new snapshot on
// success. A source whose fetch fails keeps its prior entries — refresh
// failure is logged and never invalidates existing intelligence.
func (s *Store) StartRefresh(ctx context.Context, interval time.Duration) {
	if s.fetcher == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshOnce(ctx)
			}
		}
	}()
}

func (s *Store) refreshOnce(ctx context.Context) {
	prev := s.current.Load()
	next := &snapshot{sets: map[string]map[string]struct{}{}, dynamicDNS: prev.dynamicDNS}
	for name, set := range prev.sets {
		next.sets[name] = set
	}

	for _, src := range s.sources {
		if src.URL == "" {
			continue
		}
		hosts, err := s.fetcher.Fetch(ctx, src)
		if err != nil {
			if s.log != nil {
				s.log.Warn("intel refresh failed, keeping prior snapshot", "source", src.Name, "error", err.Error())
			}
			continue
		}
		set := make(map[string]struct{}, len(hosts))
		for _, h := range hosts {
			norm, err := normalizeHost(h)
			if err != nil {
				continue
			}
			set[norm] = struct{}{}
		}
		next.sets[src.Name] = set
	}
	s.current.Store(next)
}
