package scenarios

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/menmos/harness/client"
	"github.com/menmos/harness/cluster"
)

// Scenario is one smoke check run against a freshly booted cluster.
type Scenario struct {
	Name         string
	StorageNodes int
	Run          func(ctx context.Context, c *cluster.Cluster) error
}

// Document is a small fixture helper: a blob body plus the descriptor fields
// a scenario cares about.
type Document struct {
	Body    string
	Meta    map[string]string
	Tags    []string
	Parents []string
}

func pushDocuments(ctx context.Context, c *cluster.Cluster, docs []Document) error {
	for i, doc := range docs {
		meta := client.BlobMeta{
			Tags:     doc.Tags,
			Metadata: doc.Meta,
			Parents:  doc.Parents,
			Size:     uint64(len(doc.Body)),
			Name:     fmt.Sprintf("doc-%d.txt", i),
		}
		if _, err := c.Directory.Push(ctx, []byte(doc.Body), meta, client.PushOptions{}); err != nil {
			return fmt.Errorf("failed to push document %d: %w", i, err)
		}
	}
	return nil
}

// All returns the full smoke suite.
func All() []Scenario {
	return []Scenario{
		{Name: "directory starts healthy", StorageNodes: 0, Run: directoryStartsHealthy},
		{Name: "fresh directory reports no blobs", StorageNodes: 0, Run: freshDirectoryEmpty},
		{Name: "storage node registers with directory", StorageNodes: 1, Run: storageNodeRegisters},
		{Name: "push, query and fetch roundtrip", StorageNodes: 1, Run: pushRoundtrip},
		{Name: "push without storage ack commits nothing", StorageNodes: 1, Run: pushWithoutAck},
		{Name: "delete removes blob from queries", StorageNodes: 1, Run: deleteRemovesBlob},
		{Name: "metadata counts aggregate across blobs", StorageNodes: 1, Run: metadataAggregation},
	}
}

func directoryStartsHealthy(ctx context.Context, c *cluster.Cluster) error {
	if !c.Directory.IsHealthy(ctx) {
		return fmt.Errorf("directory reports unhealthy after startup")
	}
	return nil
}

func freshDirectoryEmpty(ctx context.Context, c *cluster.Cluster) error {
	results, err := c.Directory.QueryAll(ctx)
	if err != nil {
		return err
	}
	if results.Total != 0 {
		return fmt.Errorf("expected an empty index, got total=%d", results.Total)
	}
	return nil
}

func storageNodeRegisters(ctx context.Context, c *cluster.Cluster) error {
	nodes, err := c.Directory.ListStorageNodes(ctx)
	if err != nil {
		return err
	}
	if len(nodes.StorageNodes) != 1 {
		return fmt.Errorf("expected 1 registered storage node, got %d", len(nodes.StorageNodes))
	}
	return nil
}

func pushRoundtrip(ctx context.Context, c *cluster.Cluster) error {
	body := []byte("THIS IS A TEST")

	pushed, err := c.Directory.Push(ctx, body, client.BlobMeta{
		Size: uint64(len(body)),
		Name: "roundtrip.txt",
	}, client.PushOptions{})
	if err != nil {
		return err
	}

	results, err := c.Directory.QueryAll(ctx)
	if err != nil {
		return err
	}
	if results.Total != 1 {
		return fmt.Errorf("expected total=1 after push, got %d", results.Total)
	}
	hit := results.Hits[0]
	if hit.ID != pushed.ID {
		return fmt.Errorf("query hit id %q does not match pushed id %q", hit.ID, pushed.ID)
	}

	// The hit URL is pre-signed; fetching it needs no auth header.
	resp, err := http.Get(hit.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch signed url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signed url fetch returned status %d", resp.StatusCode)
	}
	fetched, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if !bytes.Equal(fetched, body) {
		return fmt.Errorf("fetched contents %q do not match pushed contents %q", fetched, body)
	}
	return nil
}

func pushWithoutAck(ctx context.Context, c *cluster.Cluster) error {
	body := []byte("THIS IS A TEST")

	_, err := c.Directory.Push(ctx, body, client.BlobMeta{
		Size: uint64(len(body)),
		Name: "noack.txt",
	}, client.PushOptions{DisableRedirects: true})
	if err == nil {
		return fmt.Errorf("push with redirects disabled unexpectedly succeeded")
	}
	if !client.IsRedirectRefused(err) {
		return fmt.Errorf("expected a refused redirect, got: %w", err)
	}

	// The directory must not have committed metadata for the aborted push.
	results, err := c.Directory.QueryAll(ctx)
	if err != nil {
		return err
	}
	if results.Total != 0 || len(results.Hits) != 0 {
		return fmt.Errorf("aborted push left metadata behind: total=%d hits=%d", results.Total, len(results.Hits))
	}
	return nil
}

func deleteRemovesBlob(ctx context.Context, c *cluster.Cluster) error {
	body := []byte("THIS IS A TEST")

	pushed, err := c.Directory.Push(ctx, body, client.BlobMeta{
		Size: uint64(len(body)),
		Name: "doomed.txt",
	}, client.PushOptions{})
	if err != nil {
		return err
	}

	results, err := c.Directory.QueryAll(ctx)
	if err != nil {
		return err
	}
	if results.Total != 1 || results.Hits[0].ID != pushed.ID {
		return fmt.Errorf("blob not visible before delete: total=%d", results.Total)
	}

	if _, err := c.Directory.Delete(ctx, pushed.ID); err != nil {
		return err
	}

	results, err = c.Directory.QueryAll(ctx)
	if err != nil {
		return err
	}
	if results.Total != 0 || len(results.Hits) != 0 {
		return fmt.Errorf("blob still visible after delete: total=%d hits=%d", results.Total, len(results.Hits))
	}
	return nil
}

func metadataAggregation(ctx context.Context, c *cluster.Cluster) error {
	docs := []Document{
		{Body: "asdf", Meta: map[string]string{"extension": "txt", "key": "yeet"}},
		{Body: "asdf", Meta: map[string]string{"extension": "txt", "key": "yeet"}},
		{Body: "asdf", Meta: map[string]string{"extension": "txt", "key": "yeet"}},
		{Body: "asdf", Meta: map[string]string{"extension": "jpg", "key": "yeet"}},
		{Body: "asdf", Meta: map[string]string{"extension": "jpg", "key": "yeet"}},
		{Body: "asdf", Meta: map[string]string{"extension": "png", "key": "yeet"}},
	}
	if err := pushDocuments(ctx, c, docs); err != nil {
		return err
	}

	metadata, err := c.Directory.ListMetadata(ctx, nil, nil)
	if err != nil {
		return err
	}

	wantExtensions := map[string]int{"txt": 3, "jpg": 2, "png": 1}
	for ext, want := range wantExtensions {
		if got := metadata.Meta["extension"][ext]; got != want {
			return fmt.Errorf("expected %d blobs with extension=%s, got %d", want, ext, got)
		}
	}
	if got := metadata.Meta["key"]["yeet"]; got != len(docs) {
		return fmt.Errorf("expected %d blobs with key=yeet, got %d", len(docs), got)
	}
	return nil
}
