package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is an opaque settings/auxiliary/template payload forwarded to the
// generation service as JSON.
type Document map[string]any

// GenerateRequest bundles the documents for one submission.
type GenerateRequest struct {
	Settings      Document
	AuxiliaryData Document // optional
	Template      Document // optional
}

// PreviewArtifact describes one preview produced by a finished job.
type PreviewArtifact struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Kind     string `json:"kind"`
}

// CLIOptions holds user-configurable runtime options resolved from flags,
// environment, and config file.
type CLIOptions struct {
	ServerURL      string
	BackendVersion string
	OutDir         string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Verbose        bool

	NoUI     bool // Disable TUI when true
	Download bool // Download as soon as the job completes
	Wait     bool // Track the job after submission
}

// LoadDocument reads a YAML or JSON file into a Document. JSON is accepted
// because it is valid YAML.
func LoadDocument(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return normalize(doc).(Document), nil
}

// normalize converts nested map[any]any values (possible with non-string YAML
// keys) into map[string]any so the document always encodes as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case Document:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
