// Package policy decides where a piece of content may travel. Every
// decision fails closed: unknown kinds are never shareable publicly.
package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tables are the deployment constants the classifier consults. They are
// injected at construction and never mutated afterwards.
type Tables struct {
	NeverShareableKinds       []int    `json:"neverShareableKinds" yaml:"never_shareable_kinds"`
	PrivateByDefaultKinds     []int    `json:"privateByDefaultKinds" yaml:"private_by_default_kinds"`
	PublicKinds               []int    `json:"publicKinds" yaml:"public_kinds"`
	RestrictedGroupTags       []string `json:"restrictedGroupTags" yaml:"restricted_group_tags"`
	PrivateTopics             []string `json:"privateTopics" yaml:"private_topics"`
	PrivateIdentifierPrefixes []string `json:"privateIdentifierPrefixes" yaml:"private_identifier_prefixes"`
}

// DefaultTables returns the built-in deployment tables.
func DefaultTables() Tables {
	return Tables{
		// DMs (NIP-04), seals, chat messages (NIP-17), gift wraps
		NeverShareableKinds: []int{4, 13, 14, 1059, 1060},
		// DMs plus journal-like app records (NIP-78)
		PrivateByDefaultKinds: []int{4, 14, 30078},
		// profile, note, follow list, reaction, relay list
		PublicKinds:               []int{0, 1, 3, 7, 10002},
		RestrictedGroupTags:       []string{"h", "tribe", "group"},
		PrivateTopics:             []string{"private", "journal", "health", "therapy", "mood", "members-only"},
		PrivateIdentifierPrefixes: []string{"private-", "journal-"},
	}
}

// LoadTables reads tables from a YAML or JSON file (by extension). A missing
// file yields DefaultTables; an unreadable or invalid one is an error.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("policy file not found, using defaults", "path", path)
			return DefaultTables(), nil
		}
		return Tables{}, fmt.Errorf("read policy tables: %w", err)
	}

	var tables Tables
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &tables)
	default:
		err = yaml.Unmarshal(data, &tables)
	}
	if err != nil {
		return Tables{}, fmt.Errorf("parse policy tables %s: %w", path, err)
	}

	slog.Info("loaded policy tables",
		"path", path,
		"never_shareable", len(tables.NeverShareableKinds),
		"private_by_default", len(tables.PrivateByDefaultKinds),
		"public", len(tables.PublicKinds),
		"private_topics", len(tables.PrivateTopics))
	return tables, nil
}
