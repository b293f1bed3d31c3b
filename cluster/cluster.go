package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/menmos/harness/client"
	"github.com/menmos/harness/config"
	"github.com/menmos/harness/node"
)

const (
	registrationPollInterval = 100 * time.Millisecond
	registrationMaxAttempts  = 20
)

// Cluster is a running test topology: one directory and zero or more storage
// nodes, with ordered setup and teardown. One cluster serves one test
// scenario; scenarios run sequentially, so nothing here is safe for
// concurrent use.
type Cluster struct {
	Directory *node.Directory
	Storage   []*node.Storage

	logger *slog.Logger
}

// Start boots the directory first (storage nodes must register against a
// running coordinator), then each storage node in turn, waiting for every
// node to appear in the directory's registry before moving on. A setup
// failure tears down whatever already started and is returned to the caller;
// a half-started fixture is never handed out.
func Start(ctx context.Context, cfg *config.Config, storageNodes int, logger *slog.Logger) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	directory, err := node.NewDirectory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		Directory: directory,
		logger:    logger.WithGroup("cluster"),
	}

	for i := 0; i < storageNodes; i++ {
		s, err := node.NewStorage(ctx, cfg, "", cfg.StoragePort+i, logger)
		if err != nil {
			c.Stop()
			return nil, err
		}
		c.Storage = append(c.Storage, s)

		if err := waitForRegistration(ctx, directory, i+1); err != nil {
			c.Stop()
			return nil, err
		}
	}

	return c, nil
}

// Stop tears the cluster down in reverse order: storage nodes first, the
// directory last. Teardown is best-effort by contract; a node that fails to
// stop is logged and skipped so every other node still gets a stop attempt.
func (c *Cluster) Stop() {
	for _, s := range c.Storage {
		if err := s.Stop(); err != nil {
			c.logger.Warn("Failed to stop storage node", "node", s.Name(), "error", err)
		}
	}
	if c.Directory != nil {
		if err := c.Directory.Stop(); err != nil {
			c.logger.Warn("Failed to stop directory node", "error", err)
		}
	}
}

type storageNodeLister interface {
	ListStorageNodes(ctx context.Context) (client.ListStorageNodesResponse, error)
}

// waitForRegistration polls the directory until it reports at least want
// storage nodes. A freshly booted storage node is healthy before the
// directory knows about it; handing the fixture out earlier makes the first
// push race the registration.
func waitForRegistration(ctx context.Context, directory storageNodeLister, want int) error {
	for attempt := 0; attempt < registrationMaxAttempts; attempt++ {
		nodes, err := directory.ListStorageNodes(ctx)
		if err != nil {
			return err
		}
		if len(nodes.StorageNodes) >= want {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registrationPollInterval):
		}
	}

	return fmt.Errorf("storage node did not register with the directory after %d attempts", registrationMaxAttempts)
}
