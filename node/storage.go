package node

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/menmos/harness/config"
	"github.com/menmos/harness/process"
)

// Storage runs an amphora storage node that registers itself against a
// running directory. It holds blob bytes but exposes no domain operations:
// clients reach it only through the directory's redirects.
type Storage struct {
	sup     *process.Supervisor
	name    string
	dataDir string
	logger  *slog.Logger
}

// NewStorage generates the node configuration (including the empty
// certificate directory the server's TLS layer expects), launches the storage
// binary on the given port, and blocks until it passes its health gate. An
// empty name gets a unique generated one so multi-node fixtures don't
// collide.
func NewStorage(ctx context.Context, cfg *config.Config, name string, port int, logger *slog.Logger) (*Storage, error) {
	if name == "" {
		name = "amphora-" + uuid.NewString()[:8]
	}

	dataDir, err := os.MkdirTemp("", "amphora-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage data dir")
	}
	if err := os.Mkdir(filepath.Join(dataDir, "certs"), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create certificate dir")
	}

	cfgPath, err := writeConfig(dataDir, buildStorageConfig(dataDir, name, port, cfg.DirectoryPort, cfg.Credentials))
	if err != nil {
		return nil, err
	}

	storageLogger := logger.WithGroup("storage").With("node", name)
	sup := process.NewSupervisor(cfg.StorageBin, []string{"--cfg", cfgPath}, port, process.Options{
		StartupTimeout:     cfg.StartupTimeout,
		PollInterval:       cfg.PollInterval,
		PortReleaseTimeout: cfg.PortReleaseTimeout,
	}, storageLogger)

	s := &Storage{
		sup:     sup,
		name:    name,
		dataDir: dataDir,
		logger:  storageLogger,
	}

	if err := sup.Start(ctx); err != nil {
		// A failed health gate can leave a launched process behind; reap it so
		// the port is free for the next fixture.
		if stopErr := sup.Stop(); stopErr != nil {
			storageLogger.Warn("Failed to stop storage process after failed start", "error", stopErr)
		}
		return nil, errors.Wrapf(err, "storage node %s failed to start", name)
	}

	storageLogger.Info("Storage node running", "host", sup.Host(), "data_dir", dataDir)
	return s, nil
}

// Name returns the node's logical name, as it registers with the directory.
func (s *Storage) Name() string {
	return s.name
}

// Host returns the storage node's base URL.
func (s *Storage) Host() string {
	return s.sup.Host()
}

// State reports the underlying process state.
func (s *Storage) State() process.State {
	return s.sup.State()
}

// Stop gracefully shuts the storage node down.
func (s *Storage) Stop() error {
	return s.sup.Stop()
}
