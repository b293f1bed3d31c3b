package client

import "encoding/json"

const blobTypeFile = "File"

// BlobMeta is the blob descriptor attached to every push, serialized to JSON
// and carried base64-encoded in the x-blob-meta header. Its shape is dictated
// by the menmosd wire protocol.
type BlobMeta struct {
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
	Parents  []string          `json:"parents"`
	Size     uint64            `json:"size"`
	Name     string            `json:"name"`
	BlobType string            `json:"blob_type"`
}

// withDefaults fills in the blob type and replaces nil collections so the
// serialized descriptor carries [] and {} rather than null.
func (m BlobMeta) withDefaults() BlobMeta {
	if m.BlobType == "" {
		m.BlobType = blobTypeFile
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	if m.Parents == nil {
		m.Parents = []string{}
	}
	return m
}

type PushResponse struct {
	ID string `json:"id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type QueryRequest struct {
	Expression string `json:"expression,omitempty"`
	From       int    `json:"from"`
	Size       int    `json:"size"`
	SignURLs   bool   `json:"sign_urls"`
}

type Hit struct {
	ID   string   `json:"id"`
	Meta BlobMeta `json:"meta"`
	URL  string   `json:"url"`
}

type QueryResponse struct {
	Count int   `json:"count"`
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

type listMetadataRequest struct {
	Tags     []string `json:"tags"`
	MetaKeys []string `json:"meta_keys"`
}

// MetadataList aggregates tag and key/value usage counts across all indexed
// blobs.
type MetadataList struct {
	Tags map[string]int            `json:"tags"`
	Meta map[string]map[string]int `json:"meta"`
}

type StorageNodeInfo struct {
	ID           string          `json:"id"`
	Port         int             `json:"port"`
	RedirectInfo json.RawMessage `json:"redirect_info"`
	Size         uint64          `json:"size"`
	Available    uint64          `json:"available_space"`
}

type ListStorageNodesResponse struct {
	StorageNodes []StorageNodeInfo `json:"storage_nodes"`
}
