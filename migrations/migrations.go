// Package migrations embeds the PostgreSQL schema for the ledger backend.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Migration is one numbered schema step.
type Migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// All returns every embedded migration in ascending version order.
func All() ([]Migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int64]*Migration)
	for _, e := range entries {
		name := e.Name()
		var down bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
		case strings.HasSuffix(name, ".down.sql"):
			down = true
		default:
			continue
		}

		ver, err := VersionFromFile(name)
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", name, err)
		}
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}

		m, ok := byVersion[ver]
		if !ok {
			m = &Migration{Version: ver}
			byVersion[ver] = m
		}
		if down {
			m.Down = string(body)
		} else {
			m.Name = strings.TrimSuffix(name, ".up.sql")
			m.Up = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %d has no up script", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// VersionFromFile extracts the leading integer from a migration filename.
// "001_ledger_accounts.up.sql" → 1
func VersionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format %q", filename)
	}
	return strconv.ParseInt(prefix, 10, 64)
}
