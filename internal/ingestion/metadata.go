package ingestion

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata describes one source file as it was read.
type Metadata struct {
	File      string `json:"file"`      // logical source name, e.g. "companies"
	Path      string `json:"path"`      // path as given by the caller
	Timestamp string `json:"timestamp"` // RFC3339 format
	Hash      string `json:"hash"`      // SHA256 hex digest of the raw bytes
	Rows      int    `json:"rows"`      // data rows, header excluded
}

func newMetadata(file, path, hash string, rows int) *Metadata {
	return &Metadata{
		File:      file,
		Path:      path,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Hash:      hash,
		Rows:      rows,
	}
}

// ToJSON marshals Metadata to pretty-printed JSON
func (m *Metadata) ToJSON() ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	return jsonBytes, nil
}
