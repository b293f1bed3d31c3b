package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// maxRedirectHops bounds the manual redirect-follow loop. A healthy cluster
// answers in one hop (directory -> storage node); anything past this is a
// routing loop, not a transfer.
const maxRedirectHops = 10

// Client is a persistent HTTP session against a single menmos node. Redirects
// are never followed by the transport itself: the transfer protocol re-issues
// requests manually so the blob metadata header and multipart body survive
// each hop.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string
	logger     *slog.Logger
}

// New creates a client for the node reachable at host (e.g.
// "http://localhost:3030"). Every request carries authToken verbatim in the
// Authorization header.
func New(host, authToken string, logger *slog.Logger) (*Client, error) {
	baseURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host %q: %w", host, err)
	}

	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		authToken:  authToken,
		logger:     logger.WithGroup("client"),
	}, nil
}

// Host returns the base URL this client addresses.
func (c *Client) Host() string {
	return c.baseURL.String()
}

// Request is the generic JSON helper used by the non-transfer operations.
// A 200 decodes the response body into target (when non-nil). A 307 is passed
// through untouched so redirect-aware callers can observe it; every other
// status fails with *UnexpectedStatusError carrying the response body.
func (c *Client) Request(ctx context.Context, method, path string, body, target any) error {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: path})

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.authToken)

	c.logger.Debug("Sending request", "method", method, "url", reqURL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s %s failed: %w", method, reqURL.String(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if target != nil {
			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				return fmt.Errorf("failed to decode response body for %s %s: %w", method, path, err)
			}
		}
		return nil
	case http.StatusTemporaryRedirect:
		return nil
	default:
		return readStatusError(resp)
	}
}

// Query runs a metadata query on the directory.
func (c *Client) Query(ctx context.Context, q QueryRequest) (QueryResponse, error) {
	var resp QueryResponse
	if err := c.Request(ctx, http.MethodPost, "/query", q, &resp); err != nil {
		return QueryResponse{}, err
	}
	return resp, nil
}

// ListMetadata reports aggregated tag and key/value counts. Nil filters list
// everything. The endpoint takes its filters as a JSON body on a GET, which
// is unusual but part of the menmosd contract.
func (c *Client) ListMetadata(ctx context.Context, tags, metaKeys []string) (MetadataList, error) {
	var resp MetadataList
	body := listMetadataRequest{Tags: tags, MetaKeys: metaKeys}
	if err := c.Request(ctx, http.MethodGet, "/metadata", body, &resp); err != nil {
		return MetadataList{}, err
	}
	return resp, nil
}

// ListStorageNodes returns the storage nodes currently registered with the
// directory.
func (c *Client) ListStorageNodes(ctx context.Context) (ListStorageNodesResponse, error) {
	var resp ListStorageNodesResponse
	if err := c.Request(ctx, http.MethodGet, "/node/storage", nil, &resp); err != nil {
		return ListStorageNodesResponse{}, err
	}
	return resp, nil
}

func readStatusError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		bodyBytes = nil
	}
	return &UnexpectedStatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
}
