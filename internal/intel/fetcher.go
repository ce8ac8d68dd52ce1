package intel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	retryablehttp "github.com/projectdiscovery/retryablehttp-go"
)

// HTTPFetcher retrieves a source's newline-delimited host list over HTTP,
// retrying transient failures the way darshakkanani-stormfinder's
// resolver client does.
type HTTPFetcher struct {
	client *retryablehttp.Client
}

// NewHTTPFetcher builds a Fetcher using retryablehttp's default retry
// policy (exponential backoff, a handful of attempts).
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: retryablehttp.NewClient(retryablehttp.DefaultOptionsSpraying)}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, source Source) ([]string, error) {
	if source.URL == "" {
		return nil, fmt.Errorf("intel: source %s has no refresh URL", source.Name)
	}
	req, err := retryablehttp.NewRequest("GET", source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("intel: build request for %s: %w", source.Name, err)
	}
	req = req.WithContext(ctx)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intel: fetch %s: %w", source.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("intel: fetch %s: status %d", source.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("intel: read body for %s: %w", source.Name, err)
	}

	var hosts []string
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, scanner.Err()
}
