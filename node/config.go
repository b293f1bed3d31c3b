package node

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/menmos/harness/config"
)

// The structures below mirror the JSON configuration schema the menmos server
// binaries consume. The shape is an external contract: field names and
// nesting are dictated by the servers, not by the harness.

type nodeSection struct {
	Name               string              `json:"name,omitempty"`
	DBPath             string              `json:"db_path"`
	RegistrationSecret string              `json:"registration_secret"`
	AdminPassword      string              `json:"admin_password"`
	EncryptionKey      string              `json:"encryption_key"`
	BlobStorage        *blobStorageSection `json:"blob_storage,omitempty"`
}

type blobStorageSection struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type directoryRef struct {
	URL  string `json:"url"`
	Port int    `json:"port"`
}

type directoryServerSection struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

type storageServerSection struct {
	CertificateStoragePath string `json:"certificate_storage_path"`
	SubnetMask             string `json:"subnet_mask"`
	Port                   int    `json:"port"`
}

type directoryConfig struct {
	Node   nodeSection            `json:"node"`
	Server directoryServerSection `json:"server"`
}

type storageConfig struct {
	Directory directoryRef         `json:"directory"`
	Node      nodeSection          `json:"node"`
	Server    storageServerSection `json:"server"`
}

func buildDirectoryConfig(dataDir string, port int, creds config.Credentials) directoryConfig {
	return directoryConfig{
		Node: nodeSection{
			DBPath:             filepath.Join(dataDir, "db"),
			RegistrationSecret: creds.RegistrationSecret,
			AdminPassword:      creds.AdminPassword,
			EncryptionKey:      creds.EncryptionKey,
		},
		Server: directoryServerSection{
			Type: "HTTP",
			Port: port,
		},
	}
}

func buildStorageConfig(dataDir, name string, port, directoryPort int, creds config.Credentials) storageConfig {
	return storageConfig{
		Directory: directoryRef{
			URL:  "http://localhost",
			Port: directoryPort,
		},
		Node: nodeSection{
			Name:               name,
			DBPath:             filepath.Join(dataDir, "db"),
			RegistrationSecret: creds.RegistrationSecret,
			AdminPassword:      creds.AdminPassword,
			EncryptionKey:      creds.EncryptionKey,
			BlobStorage: &blobStorageSection{
				Type: "Directory",
				Path: filepath.Join(dataDir, "blobs"),
			},
		},
		Server: storageServerSection{
			CertificateStoragePath: filepath.Join(dataDir, "certs"),
			SubnetMask:             "255.255.255.0",
			Port:                   port,
		},
	}
}

// writeConfig serializes a node configuration into its data directory. The
// file is written once at facade construction and never mutated afterwards.
func writeConfig(dataDir string, cfg any) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal node config")
	}

	path := filepath.Join(dataDir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write node config to %s", path)
	}
	return path, nil
}
