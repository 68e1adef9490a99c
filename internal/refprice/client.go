package refprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
)

// Client fetches the full reference price table from the external price
// service. One GET returns the whole table keyed by canonical item name.
type Client struct {
	url        string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a reference price service client.
func NewClient(url, authToken string) *Client {
	return &Client{
		url:       url,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// FetchTable retrieves the current table. A 5xx answer maps to
// domain.ErrUpstreamFault so callers can treat it as "no data this cycle".
func (c *Client) FetchTable(ctx context.Context) (domain.ReferenceTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("refprice: create request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refprice: fetch table: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("refprice: status %d: %w", resp.StatusCode, domain.ErrUpstreamFault)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refprice: unexpected status %d", resp.StatusCode)
	}

	var table domain.ReferenceTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("refprice: decode table: %w", err)
	}
	return table, nil
}
