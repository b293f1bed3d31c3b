package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultDirectoryPort, cfg.DirectoryPort)
	assert.Equal(t, DefaultStoragePort, cfg.StoragePort)
	assert.Equal(t, "test", cfg.Credentials.RegistrationSecret)
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	content := `
directoryBin: /opt/menmos/menmosd
storageBin: /opt/menmos/amphora
directoryPort: 4040
storagePort: 4041
credentials:
  registrationSecret: sekrit
  adminPassword: hunter2
  encryptionKey: 0123456789abcdef0123456789abcdef
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/menmos/menmosd", cfg.DirectoryBin)
	assert.Equal(t, 4040, cfg.DirectoryPort)
	assert.Equal(t, "sekrit", cfg.Credentials.RegistrationSecret)
	assert.Equal(t, "hunter2", cfg.Credentials.AdminPassword)
	// Unset timing fields keep their defaults.
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileUnreadable)
}

func TestLoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	require.NoError(t, os.WriteFile(path, []byte("directoryBin: [unclosed"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrConfigFileUnmarshallable)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr error
	}{
		{
			name:    "missing directory binary",
			mutate:  func(cfg *Config) { cfg.DirectoryBin = "" },
			wantErr: ErrDirectoryBinMissing,
		},
		{
			name:    "missing storage binary",
			mutate:  func(cfg *Config) { cfg.StorageBin = "" },
			wantErr: ErrStorageBinMissing,
		},
		{
			name:    "missing registration secret",
			mutate:  func(cfg *Config) { cfg.Credentials.RegistrationSecret = "" },
			wantErr: ErrRegistrationSecretMissing,
		},
		{
			name:    "missing admin password",
			mutate:  func(cfg *Config) { cfg.Credentials.AdminPassword = "" },
			wantErr: ErrAdminPasswordMissing,
		},
		{
			name:    "missing encryption key",
			mutate:  func(cfg *Config) { cfg.Credentials.EncryptionKey = "" },
			wantErr: ErrEncryptionKeyMissing,
		},
		{
			name:    "colliding ports",
			mutate:  func(cfg *Config) { cfg.StoragePort = cfg.DirectoryPort },
			wantErr: ErrPortInvalid,
		},
		{
			name:    "negative port",
			mutate:  func(cfg *Config) { cfg.DirectoryPort = -1 },
			wantErr: ErrPortInvalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.wantErr)
		})
	}
}

func TestValidateBackfillsTimings(t *testing.T) {
	cfg := Default()
	cfg.StartupTimeout = 0
	cfg.PollInterval = -time.Second
	cfg.PortReleaseTimeout = 0

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultPortReleaseTimeout, cfg.PortReleaseTimeout)
}

func TestWithBinDir(t *testing.T) {
	cfg := Default().WithBinDir("/builds/menmos")
	assert.Equal(t, filepath.Join("/builds/menmos", "menmosd"), cfg.DirectoryBin)
	assert.Equal(t, filepath.Join("/builds/menmos", "amphora"), cfg.StorageBin)
}
