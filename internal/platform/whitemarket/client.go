// Package whitemarket is the client layer for the marketplace partner API:
// a GraphQL-style query endpoint for account and order operations, a
// websocket push channel for live listing updates, and an SSE stream used as
// the fallback transport.
package whitemarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
)

// partnerTokenHeader authenticates the token-acquisition call; every other
// call authenticates with the bearer token obtained from it.
const partnerTokenHeader = "X-Partner-Token"

// TokenProvider supplies the current bearer token, or "" when none is held.
// Implemented by the session manager.
type TokenProvider func() string

// Client is the REST client for the partner GraphQL endpoint. All operations
// go through the single query endpoint; the current bearer token is attached
// when present.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      TokenProvider
}

// NewClient creates a partner API client for the given endpoint.
func NewClient(endpoint string, token TokenProvider) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query string `json:"query"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// AcquireToken exchanges the static partner API key for a bearer token.
func (c *Client) AcquireToken(ctx context.Context, apiKey string) (string, error) {
	const query = `mutation { auth_token { accessToken } }`

	data, err := c.doQuery(ctx, query, map[string]string{partnerTokenHeader: apiKey})
	if err != nil {
		return "", fmt.Errorf("whitemarket: acquire token: %w", err)
	}

	var result struct {
		AuthToken struct {
			AccessToken string `json:"accessToken"`
		} `json:"auth_token"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whitemarket: decode token: %w", err)
	}
	if result.AuthToken.AccessToken == "" {
		return "", fmt.Errorf("whitemarket: acquire token: %w", domain.ErrUnauthorized)
	}
	return result.AuthToken.AccessToken, nil
}

// Profile returns the account's display name.
func (c *Client) Profile(ctx context.Context) (string, error) {
	const query = `query { person_profile { steamName } }`

	data, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return "", fmt.Errorf("whitemarket: profile: %w", err)
	}

	var result struct {
		PersonProfile struct {
			SteamName string `json:"steamName"`
		} `json:"person_profile"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whitemarket: decode profile: %w", err)
	}
	return result.PersonProfile.SteamName, nil
}

// Balance returns the account's wallet balance in major units.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	const query = `query { wallet_balances { value } }`

	data, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("whitemarket: balance: %w", err)
	}

	var result struct {
		WalletBalances []struct {
			Value float64 `json:"value,string"`
		} `json:"wallet_balances"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("whitemarket: decode balance: %w", err)
	}
	if len(result.WalletBalances) == 0 {
		return 0, nil
	}
	return result.WalletBalances[0].Value, nil
}

// Listing is one market listing returned by NewestListings.
type Listing struct {
	ID    string
	Name  string
	Price float64
}

// NewestListings queries the most recently created listings inside the given
// price bounds, newest first.
func (c *Client) NewestListings(ctx context.Context, priceMin, priceMax float64, first int) ([]Listing, error) {
	query := fmt.Sprintf(`query { market_list( search: { appId: CSGO, priceFrom: { value: "%.2f", currency: USD }, priceTo: { value: "%.2f", currency: USD }, sort: { field: CREATED, type: DESC } }, forwardPagination: { first: %d } ) { edges { node { id price { value } item { description { nameHash } } } } } }`,
		priceMin, priceMax, first)

	data, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("whitemarket: newest listings: %w", err)
	}

	var result struct {
		MarketList struct {
			Edges []struct {
				Node struct {
					ID    string `json:"id"`
					Price struct {
						Value float64 `json:"value,string"`
					} `json:"price"`
					Item struct {
						Description struct {
							NameHash string `json:"nameHash"`
						} `json:"description"`
					} `json:"item"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"market_list"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whitemarket: decode listings: %w", err)
	}

	listings := make([]Listing, 0, len(result.MarketList.Edges))
	for _, edge := range result.MarketList.Edges {
		listings = append(listings, Listing{
			ID:    edge.Node.ID,
			Name:  edge.Node.Item.Description.NameHash,
			Price: edge.Node.Price.Value,
		})
	}
	return listings, nil
}

// Buy submits a purchase for the listing at the given maximum price. A
// rejection from the marketplace is returned as an unsuccessful result with
// the upstream reason, not as an error.
func (c *Client) Buy(ctx context.Context, listingID string, maxPrice float64) (domain.PurchaseResult, error) {
	query := fmt.Sprintf(`mutation { market_buy( id: "%s", maxPriceInput: { value: "%.2f", currency: USD } ) { id } }`,
		listingID, maxPrice)

	data, err := c.doQuery(ctx, query, nil)
	if err != nil {
		var gqlErr *GraphQLError
		if errors.As(err, &gqlErr) {
			return domain.PurchaseResult{Success: false, Reason: gqlErr.Message}, nil
		}
		return domain.PurchaseResult{}, fmt.Errorf("whitemarket: buy %s: %w", listingID, err)
	}

	var result struct {
		MarketBuy struct {
			ID string `json:"id"`
		} `json:"market_buy"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("whitemarket: decode buy result: %w", err)
	}
	return domain.PurchaseResult{OrderID: result.MarketBuy.ID, Success: true}, nil
}

// GraphQLError is a structured error reported by the partner endpoint inside
// a 200 response.
type GraphQLError struct {
	Message string
}

func (e *GraphQLError) Error() string {
	return "whitemarket: graphql: " + e.Message
}

// doQuery posts a GraphQL query and returns the data payload. extraHeaders
// are attached on top of the defaults; the bearer token is attached when the
// provider holds one.
func (c *Client) doQuery(ctx context.Context, query string, extraHeaders map[string]string) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrUpstreamFault)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gql graphqlResponse
	if err := json.Unmarshal(respBody, &gql); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gql.Errors) > 0 {
		return nil, &GraphQLError{Message: gql.Errors[0].Message}
	}
	return gql.Data, nil
}
