package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Active   string          `toml:"active,omitempty"`
	Cursor   int64           `toml:"cursor,omitempty"`
	SavedAt  string          `toml:"saved_at,omitempty"`
	Sessions []sessionSchema `toml:"sessions"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported sessions schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type sessionSchema struct {
	Topic        string                     `toml:"topic"`
	Expiry       string                     `toml:"expiry"`
	Acknowledged bool                       `toml:"acknowledged"`
	Peer         peerSchema                 `toml:"peer"`
	Namespaces   map[string]namespaceSchema `toml:"namespaces,omitempty"`
}

type peerSchema struct {
	Name        string   `toml:"name,omitempty"`
	Description string   `toml:"description,omitempty"`
	URL         string   `toml:"url,omitempty"`
	Icons       []string `toml:"icons,omitempty"`
}

type namespaceSchema struct {
	Chains   []string `toml:"chains,omitempty"`
	Methods  []string `toml:"methods,omitempty"`
	Events   []string `toml:"events,omitempty"`
	Accounts []string `toml:"accounts,omitempty"`
}
