// Package peers fetches peer lists from a remote registry. The
// registry is a plain-text endpoint serving one multiaddr per line;
// this package downloads the list and sorts the lines into usable and
// malformed addresses.
package peers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"github.com/berth-sh/berth/internal/logging"
)

// Client fetches peer lists from a registry endpoint.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a registry client. timeout bounds each fetch;
// values <= 0 fall back to 10 seconds.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.Component("peers"),
	}
}

// Fetch downloads the peer list at url. The body is split on
// newlines, each line is trimmed, and blank lines are dropped; order
// is preserved and no address validation happens here. A non-2xx
// response is an error, an empty body is an empty list.
func (c *Client) Fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}

	c.logger.Debug().Str("url", logging.RedactURL(url)).Msg("Fetching peer list")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch peer list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer registry returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read peer list: %w", err)
	}

	list := SplitList(string(body))
	c.logger.Debug().
		Str("url", logging.RedactURL(url)).
		Int("peers", len(list)).
		Msg("Fetched peer list")
	return list, nil
}

// SplitList splits a raw peer list body into its non-blank lines.
func SplitList(body string) []string {
	lines := strings.Split(body, "\n")
	list := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		list = append(list, line)
	}
	return list
}

// ValidAddrs partitions lines into parseable multiaddrs and rejects,
// both in input order.
func ValidAddrs(lines []string) (valid, invalid []string) {
	for _, line := range lines {
		if _, err := ma.NewMultiaddr(line); err != nil {
			invalid = append(invalid, line)
			continue
		}
		valid = append(valid, line)
	}
	return valid, invalid
}
