package node

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/menmos/harness/client"
	"github.com/menmos/harness/config"
	"github.com/menmos/harness/process"
)

// Directory runs a menmosd coordinator in an isolated temporary directory and
// exposes the cluster's domain operations. Clients always address the
// directory; it redirects byte transfers to the storage node that owns the
// blob, so storage facades expose no domain operations of their own.
type Directory struct {
	sup     *process.Supervisor
	client  *client.Client
	dataDir string
	logger  *slog.Logger
}

// NewDirectory generates the node configuration, launches the directory
// binary, and blocks until it passes its health gate.
func NewDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Directory, error) {
	dataDir, err := os.MkdirTemp("", "menmosd-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create directory data dir")
	}

	cfgPath, err := writeConfig(dataDir, buildDirectoryConfig(dataDir, cfg.DirectoryPort, cfg.Credentials))
	if err != nil {
		return nil, err
	}

	dirLogger := logger.WithGroup("directory")
	sup := process.NewSupervisor(cfg.DirectoryBin, []string{"--cfg", cfgPath}, cfg.DirectoryPort, process.Options{
		StartupTimeout:     cfg.StartupTimeout,
		PollInterval:       cfg.PollInterval,
		PortReleaseTimeout: cfg.PortReleaseTimeout,
	}, dirLogger)

	cl, err := client.New(sup.Host(), cfg.Credentials.RegistrationSecret, dirLogger)
	if err != nil {
		return nil, err
	}

	d := &Directory{
		sup:     sup,
		client:  cl,
		dataDir: dataDir,
		logger:  dirLogger,
	}

	if err := sup.Start(ctx); err != nil {
		// A failed health gate can leave a launched process behind; reap it so
		// the port is free for the next fixture.
		if stopErr := sup.Stop(); stopErr != nil {
			dirLogger.Warn("Failed to stop directory process after failed start", "error", stopErr)
		}
		return nil, errors.Wrap(err, "directory node failed to start")
	}

	dirLogger.Info("Directory node running", "host", sup.Host(), "data_dir", dataDir)
	return d, nil
}

// Host returns the directory's base URL.
func (d *Directory) Host() string {
	return d.sup.Host()
}

// State reports the underlying process state.
func (d *Directory) State() process.State {
	return d.sup.State()
}

// IsHealthy probes the directory's health endpoint once.
func (d *Directory) IsHealthy(ctx context.Context) bool {
	return d.sup.IsHealthy(ctx)
}

// Stop gracefully shuts the directory down.
func (d *Directory) Stop() error {
	return d.sup.Stop()
}

// Push uploads a blob through the directory, following its redirect to the
// owning storage node unless opts disables that.
func (d *Directory) Push(ctx context.Context, contents []byte, meta client.BlobMeta, opts client.PushOptions) (client.PushResponse, error) {
	return d.client.PushBlob(ctx, contents, meta, opts)
}

// Delete removes a blob by id.
func (d *Directory) Delete(ctx context.Context, blobID string) (client.MessageResponse, error) {
	return d.client.DeleteBlob(ctx, blobID)
}

// Query runs a metadata query.
func (d *Directory) Query(ctx context.Context, q client.QueryRequest) (client.QueryResponse, error) {
	return d.client.Query(ctx, q)
}

// QueryAll runs the default query: everything, first page, signed URLs.
func (d *Directory) QueryAll(ctx context.Context) (client.QueryResponse, error) {
	return d.client.Query(ctx, client.QueryRequest{From: 0, Size: 30, SignURLs: true})
}

// ListMetadata reports aggregated tag and key/value counts.
func (d *Directory) ListMetadata(ctx context.Context, tags, metaKeys []string) (client.MetadataList, error) {
	return d.client.ListMetadata(ctx, tags, metaKeys)
}

// ListStorageNodes returns the storage nodes registered with this directory.
func (d *Directory) ListStorageNodes(ctx context.Context) (client.ListStorageNodesResponse, error) {
	return d.client.ListStorageNodes(ctx)
}
