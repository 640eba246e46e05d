package model

import (
	"time"
)

// LayerSource records which commit of a versioned layer fed a
// materialization.
type LayerSource struct {
	Layer    Layer  `json:"layer" yaml:"layer"`
	CommitID string `json:"commitID" yaml:"commitID"`
	_        struct{}
}

// FileRecord pins the content hash a materialized file had when written.
type FileRecord struct {
	Path string `json:"path" yaml:"path"`
	Hash string `json:"hash" yaml:"hash"`
	_    struct{}
}

// WorkspaceMetadata is recorded after a successful materialization and read
// by the validator to detect drift: files are listed in write order.
type WorkspaceMetadata struct {
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Sources   []LayerSource `json:"sources" yaml:"sources"`
	Files     []FileRecord  `json:"files" yaml:"files"`
	_         struct{}
}

// HashForPath looks up the recorded hash of a materialized path
func (m WorkspaceMetadata) HashForPath(pth string) (string, bool) {
	for _, f := range m.Files {
		if f.Path == pth {
			return f.Hash, true
		}
	}
	return "", false
}
