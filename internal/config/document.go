package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/version"
)

// FormatVersion tags the configuration document schema.
const FormatVersion = "nmrbrew/1"

// maxDocumentSize caps configuration files at 1MB.
const maxDocumentSize = 1 * 1024 * 1024

// Document is the persisted form of a pipeline configuration: the core
// annotation block plus one options mapping per stage identity.
type Document struct {
	Version    string                     `json:"version"`
	AppVersion string                     `json:"app_version,omitempty"`
	Created    time.Time                  `json:"created"`
	Core       Core                       `json:"core"`
	Tools      map[string]json.RawMessage `json:"tools"`
}

// NewDocument returns an empty document stamped with the given time.
func NewDocument(created time.Time) *Document {
	return &Document{
		Version:    FormatVersion,
		AppVersion: version.Version,
		Created:    created.UTC(),
		Core:       EmptyCore(),
		Tools:      map[string]json.RawMessage{},
	}
}

// Validate checks the version tag and the core block.
func (d *Document) Validate() error {
	if d.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %q", ErrInvalidConfig, d.Version)
	}
	if err := d.Core.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadDocument reads a configuration document. The file must carry a
// .nmrbrew or .json extension and be under 1MB.
func LoadDocument(fsys fsutil.FileSystem, path string) (*Document, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".nmrbrew", ".json":
	default:
		return nil, fmt.Errorf("config file must have .nmrbrew or .json extension, got %q", ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxDocumentSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if doc.Core.SampleClasses == nil || doc.Core.ClassColors == nil {
		doc.Core = doc.Core.Clone()
	}
	if doc.Tools == nil {
		doc.Tools = map[string]json.RawMessage{}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveDocument writes doc as indented JSON.
func SaveDocument(fsys fsutil.FileSystem, path string, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
