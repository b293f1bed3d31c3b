package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBlobMetaHeader(t *testing.T, r *http.Request) BlobMeta {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(r.Header.Get(blobMetaHeader))
	require.NoError(t, err)
	var meta BlobMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	return meta
}

func readMultipartSrc(t *testing.T, r *http.Request) []byte {
	t.Helper()
	require.NoError(t, r.ParseMultipartForm(1<<20))
	file, _, err := r.FormFile("src")
	require.NoError(t, err)
	defer file.Close()
	contents, err := io.ReadAll(file)
	require.NoError(t, err)
	return contents
}

func TestPushBlobFollowsRedirectAndRebuildsBody(t *testing.T) {
	contents := []byte("THIS IS A TEST")

	// The storage node receives the transfer after the coordinator's 307. It
	// must see the full multipart body and the metadata header again: the
	// first request's body was already consumed by the coordinator hop.
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test", r.Header.Get("Authorization"))

		meta := decodeBlobMetaHeader(t, r)
		assert.Equal(t, uint64(len(contents)), meta.Size)
		assert.Equal(t, "File", meta.BlobType)
		assert.NotNil(t, meta.Tags)
		assert.NotNil(t, meta.Metadata)
		assert.NotNil(t, meta.Parents)

		assert.Equal(t, contents, readMultipartSrc(t, r))

		w.Write([]byte(`{"id": "blob-42"}`))
	}))
	defer storage.Close()

	coordinatorHits := 0
	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coordinatorHits++
		assert.Equal(t, "/blob", r.URL.Path)
		// Drain the body like a real server would before redirecting.
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Location", storage.URL+"/blob")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer coordinator.Close()

	c := newTestClient(t, coordinator.URL)

	resp, err := c.PushBlob(context.Background(), contents, BlobMeta{
		Size: uint64(len(contents)),
		Name: "test.txt",
	}, PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, "blob-42", resp.ID)
	assert.Equal(t, 1, coordinatorHits)
}

func TestPushBlobWithoutRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := decodeBlobMetaHeader(t, r)
		assert.Equal(t, []string{"important"}, meta.Tags)
		assert.Equal(t, map[string]string{"extension": "txt"}, meta.Metadata)
		w.Write([]byte(`{"id": "blob-7"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	resp, err := c.PushBlob(context.Background(), []byte("hello"), BlobMeta{
		Tags:     []string{"important"},
		Metadata: map[string]string{"extension": "txt"},
		Size:     5,
		Name:     "hello.txt",
	}, PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, "blob-7", resp.ID)
}

func TestPushBlobRedirectsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://localhost:1/blob")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PushBlob(context.Background(), []byte("hello"), BlobMeta{Size: 5, Name: "h.txt"}, PushOptions{
		DisableRedirects: true,
	})
	require.Error(t, err)
	assert.True(t, IsRedirectRefused(err))
}

func TestPushBlobUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad token"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PushBlob(context.Background(), []byte("hello"), BlobMeta{Size: 5, Name: "h.txt"}, PushOptions{})
	require.Error(t, err)

	var statusErr *UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, "bad token", statusErr.Body)
}

func TestPushBlobTooManyRedirects(t *testing.T) {
	hits := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Location", srv.URL+"/blob")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PushBlob(context.Background(), []byte("hello"), BlobMeta{Size: 5, Name: "h.txt"}, PushOptions{})
	require.ErrorIs(t, err, ErrTooManyRedirects)
	assert.Equal(t, maxRedirectHops, hits)
}

func TestPushBlobRedirectMissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.PushBlob(context.Background(), []byte("hello"), BlobMeta{Size: 5, Name: "h.txt"}, PushOptions{})
	require.ErrorIs(t, err, ErrMissingLocation)
}

func TestDeleteBlobFollowsRedirect(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/blob/blob-42", r.URL.Path)
		assert.Equal(t, "test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"message": "deleted"}`))
	}))
	defer storage.Close()

	coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Location", storage.URL+"/blob/blob-42")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer coordinator.Close()

	c := newTestClient(t, coordinator.URL)

	resp, err := c.DeleteBlob(context.Background(), "blob-42")
	require.NoError(t, err)
	assert.Equal(t, "deleted", resp.Message)
}

func TestDeleteBlobEscapesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An id carrying path metacharacters must arrive as one escaped path
		// segment, not as extra path components.
		assert.Equal(t, "/blob/weird%2Fid%3Fx", r.URL.EscapedPath())
		w.Write([]byte(`{"message": "deleted"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	resp, err := c.DeleteBlob(context.Background(), "weird/id?x")
	require.NoError(t, err)
	assert.Equal(t, "deleted", resp.Message)
}

func TestDeleteBlobUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such blob"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.DeleteBlob(context.Background(), "missing")
	var statusErr *UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestBlobMetaDefaults(t *testing.T) {
	meta := BlobMeta{Size: 3, Name: "x"}.withDefaults()

	assert.Equal(t, blobTypeFile, meta.BlobType)
	assert.NotNil(t, meta.Tags)
	assert.NotNil(t, meta.Metadata)
	assert.NotNil(t, meta.Parents)

	// The wire form must carry empty collections, not nulls.
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags": [], "metadata": {}, "parents": [], "size": 3, "name": "x", "blob_type": "File"}`, string(data))
}
