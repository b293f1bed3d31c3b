package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDirectoryPort = 3030
	DefaultStoragePort   = 3031

	DefaultStartupTimeout     = 10 * time.Second
	DefaultPollInterval       = 500 * time.Millisecond
	DefaultPortReleaseTimeout = 2 * time.Second
)

// Credentials are the fixed secrets shared by every node in a test cluster.
// They are configuration values on purpose: the harness must never bake them
// into facade code where a production caller could inherit them.
type Credentials struct {
	RegistrationSecret string `yaml:"registrationSecret"`
	AdminPassword      string `yaml:"adminPassword"`
	EncryptionKey      string `yaml:"encryptionKey"`
}

type Config struct {
	DirectoryBin string `yaml:"directoryBin"`
	StorageBin   string `yaml:"storageBin"`

	DirectoryPort int `yaml:"directoryPort"`
	StoragePort   int `yaml:"storagePort"` // first storage node; subsequent nodes increment

	Credentials Credentials `yaml:"credentials"`

	StartupTimeout     time.Duration `yaml:"startupTimeout"`
	PollInterval       time.Duration `yaml:"pollInterval"`
	PortReleaseTimeout time.Duration `yaml:"portReleaseTimeout"`
}

var (
	ErrConfigFileUnreadable      = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable  = errors.New("config file is unmarshallable")
	ErrDirectoryBinMissing       = errors.New("directoryBin is missing in config")
	ErrStorageBinMissing         = errors.New("storageBin is missing in config")
	ErrRegistrationSecretMissing = errors.New("credentials.registrationSecret is missing in config")
	ErrAdminPasswordMissing      = errors.New("credentials.adminPassword is missing in config")
	ErrEncryptionKeyMissing      = errors.New("credentials.encryptionKey is missing in config")
	ErrPortInvalid               = errors.New("ports must be positive and distinct")
)

// Default returns the conventional local-dev layout: server binaries in the
// sibling cargo target directory and the stock menmos ports.
func Default() *Config {
	binDir := filepath.Join("..", "target", "debug")
	return &Config{
		DirectoryBin:  filepath.Join(binDir, "menmosd"),
		StorageBin:    filepath.Join(binDir, "amphora"),
		DirectoryPort: DefaultDirectoryPort,
		StoragePort:   DefaultStoragePort,
		Credentials: Credentials{
			RegistrationSecret: "test",
			AdminPassword:      "test",
			EncryptionKey:      "t1fhrIw48oLxhJavFY5GRbrANiI9uBL8",
		},
		StartupTimeout:     DefaultStartupTimeout,
		PollInterval:       DefaultPollInterval,
		PortReleaseTimeout: DefaultPortReleaseTimeout,
	}
}

func Load(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DirectoryBin == "" {
		return ErrDirectoryBinMissing
	}
	if c.StorageBin == "" {
		return ErrStorageBinMissing
	}
	if c.Credentials.RegistrationSecret == "" {
		return ErrRegistrationSecretMissing
	}
	if c.Credentials.AdminPassword == "" {
		return ErrAdminPasswordMissing
	}
	if c.Credentials.EncryptionKey == "" {
		return ErrEncryptionKeyMissing
	}
	if c.DirectoryPort <= 0 || c.StoragePort <= 0 || c.DirectoryPort == c.StoragePort {
		return ErrPortInvalid
	}

	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PortReleaseTimeout <= 0 {
		c.PortReleaseTimeout = DefaultPortReleaseTimeout
	}

	return nil
}

// WithBinDir points both server binaries at a single build directory.
func (c *Config) WithBinDir(dir string) *Config {
	c.DirectoryBin = filepath.Join(dir, "menmosd")
	c.StorageBin = filepath.Join(dir, "amphora")
	return c
}
