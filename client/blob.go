package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
)

// blobMetaHeader is the side channel carrying the base64-encoded JSON blob
// descriptor alongside the multipart body.
const blobMetaHeader = "x-blob-meta"

// PushOptions tunes a single push call. The zero value follows redirects.
type PushOptions struct {
	// DisableRedirects turns a 307 from the directory into a failure instead
	// of re-issuing the request against the storage node. Used to verify that
	// the directory does not commit metadata before the storage node has
	// acknowledged the write.
	DisableRedirects bool
}

// PushBlob uploads contents with the given descriptor, following temporary
// redirects from the directory to the storage node that owns the blob. The
// multipart body is rebuilt on every hop: encoders are single-use, and an
// automatic redirect would replay the drained body and drop the metadata
// header.
func (c *Client) PushBlob(ctx context.Context, contents []byte, meta BlobMeta, opts PushOptions) (PushResponse, error) {
	meta = meta.withDefaults()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return PushResponse{}, fmt.Errorf("failed to marshal blob meta: %w", err)
	}
	encodedMeta := base64.StdEncoding.EncodeToString(metaJSON)

	target := c.baseURL.ResolveReference(&url.URL{Path: "/blob"})

	for hop := 0; hop < maxRedirectHops; hop++ {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("src", meta.Name)
		if err != nil {
			return PushResponse{}, fmt.Errorf("failed to create multipart body: %w", err)
		}
		if _, err := part.Write(contents); err != nil {
			return PushResponse{}, fmt.Errorf("failed to write multipart body: %w", err)
		}
		if err := mw.Close(); err != nil {
			return PushResponse{}, fmt.Errorf("failed to finalize multipart body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), &buf)
		if err != nil {
			return PushResponse{}, fmt.Errorf("failed to create push request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", c.authToken)
		req.Header.Set(blobMetaHeader, encodedMeta)

		c.logger.Debug("Pushing blob", "url", target.String(), "size", meta.Size, "hop", hop+1)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return PushResponse{}, fmt.Errorf("push request to %s failed: %w", target.String(), err)
		}

		if resp.StatusCode == http.StatusTemporaryRedirect && !opts.DisableRedirects {
			next, err := c.redirectTarget(target, resp)
			if err != nil {
				return PushResponse{}, err
			}
			target = next
			continue
		}

		if resp.StatusCode != http.StatusOK {
			err := readStatusError(resp)
			resp.Body.Close()
			return PushResponse{}, err
		}

		var pushResp PushResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&pushResp)
		resp.Body.Close()
		if decodeErr != nil {
			return PushResponse{}, fmt.Errorf("failed to decode push response: %w", decodeErr)
		}
		c.logger.Debug("Blob pushed", "id", pushResp.ID)
		return pushResp, nil
	}

	return PushResponse{}, fmt.Errorf("%w: gave up after %d hops pushing to %s", ErrTooManyRedirects, maxRedirectHops, c.baseURL)
}

// DeleteBlob removes a blob by id, following redirects the same way as
// PushBlob. There is no body to re-attach, but the method and authorization
// header must still be preserved across hops.
func (c *Client) DeleteBlob(ctx context.Context, blobID string) (MessageResponse, error) {
	// Blob ids are opaque; escape so an id carrying path metacharacters cannot
	// address a different resource.
	target := c.baseURL.ResolveReference(&url.URL{
		Path:    "/blob/" + blobID,
		RawPath: "/blob/" + url.PathEscape(blobID),
	})

	for hop := 0; hop < maxRedirectHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
		if err != nil {
			return MessageResponse{}, fmt.Errorf("failed to create delete request: %w", err)
		}
		req.Header.Set("Authorization", c.authToken)

		c.logger.Debug("Deleting blob", "url", target.String(), "hop", hop+1)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return MessageResponse{}, fmt.Errorf("delete request to %s failed: %w", target.String(), err)
		}

		if resp.StatusCode == http.StatusTemporaryRedirect {
			next, err := c.redirectTarget(target, resp)
			if err != nil {
				return MessageResponse{}, err
			}
			target = next
			continue
		}

		if resp.StatusCode != http.StatusOK {
			err := readStatusError(resp)
			resp.Body.Close()
			return MessageResponse{}, err
		}

		var deleteResp MessageResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&deleteResp)
		resp.Body.Close()
		if decodeErr != nil {
			return MessageResponse{}, fmt.Errorf("failed to decode delete response: %w", decodeErr)
		}
		return deleteResp, nil
	}

	return MessageResponse{}, fmt.Errorf("%w: gave up after %d hops deleting %s", ErrTooManyRedirects, maxRedirectHops, blobID)
}

// redirectTarget resolves the Location header of a 307 against the current
// target and drains the redirect response.
func (c *Client) redirectTarget(current *url.URL, resp *http.Response) (*url.URL, error) {
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("%w: from %s", ErrMissingLocation, current.String())
	}
	next, err := current.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect Location %q: %w", loc, err)
	}

	c.logger.Debug("Following redirect", "from", current.String(), "to", next.String())
	return next, nil
}
