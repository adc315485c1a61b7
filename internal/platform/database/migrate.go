package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
)

// Migrate applies embedded schema files in lexical order. The schema uses
// IF NOT EXISTS guards so reapplying on every startup is safe.
func (p *Pool) Migrate(ctx context.Context, files fs.FS) error {
	if p == nil || p.db == nil {
		return nil
	}

	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := p.db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
