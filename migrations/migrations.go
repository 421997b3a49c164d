// Package migrations embeds the SQL schema scripts.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Script is one forward migration.
type Script struct {
	Version string
	SQL     string
}

// Up returns the forward migrations ordered by version.
func Up() ([]Script, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Script, 0, len(names))
	for _, name := range names {
		b, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Script{Version: strings.TrimSuffix(name, ".up.sql"), SQL: string(b)})
	}
	return out, nil
}
