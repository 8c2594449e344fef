package remoteconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Document is the remote configuration served to game clients. Platform
// overrides are merged over the base config and flags.
type Document struct {
	Config    map[string]any      `yaml:"config"`
	Flags     map[string]any      `yaml:"flags"`
	Platforms map[string]Override `yaml:"platforms"`
}

// Override replaces individual keys for one platform.
type Override struct {
	Config map[string]any `yaml:"config"`
	Flags  map[string]any `yaml:"flags"`
}

// Resolved is the per-request view of a Document.
type Resolved struct {
	Config map[string]any `json:"config"`
	Flags  map[string]any `json:"flags"`
}

// Service resolves remote config documents.
type Service struct {
	doc    Document
	logger *slog.Logger
}

// Load reads the document at path, or the embedded defaults when path is empty.
func Load(path string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw := defaultDocument
	source := "embedded"
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read remote config: %w", err)
		}
		raw, source = data, path
	}
	doc, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("remote config loaded", "component", "remote_config", "source", source, "platforms", len(doc.Platforms))
	return &Service{doc: doc, logger: logger.With("component", "remote_config")}, nil
}

// Parse decodes a YAML document.
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse remote config: %w", err)
	}
	if doc.Config == nil && doc.Flags == nil {
		return Document{}, errors.New("parse remote config: document has neither config nor flags")
	}
	return doc, nil
}

// Resolve returns the config for a client platform and version.
func (s *Service) Resolve(platform, appVersion string) Resolved {
	out := Resolved{
		Config: maps.Clone(s.doc.Config),
		Flags:  maps.Clone(s.doc.Flags),
	}
	if out.Config == nil {
		out.Config = map[string]any{}
	}
	if out.Flags == nil {
		out.Flags = map[string]any{}
	}
	if override, ok := s.doc.Platforms[strings.ToLower(strings.TrimSpace(platform))]; ok {
		maps.Copy(out.Config, override.Config)
		maps.Copy(out.Flags, override.Flags)
	}
	s.logger.Debug("remote config resolved", "platform", platform, "app_version", appVersion)
	return out
}
