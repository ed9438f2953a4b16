package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	markUp             = "-- +goose Up"
	markDown           = "-- +goose Down"
	markStatementBegin = "-- +goose StatementBegin"
	markStatementEnd   = "-- +goose StatementEnd"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every .sql file in dir before goose sees it: the
// <version>_<name>.sql filename, unique versions, Up before Down, and
// balanced StatementBegin/StatementEnd blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkMigration(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}

	if len(seen) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	return nil
}

func checkMigration(body string) error {
	up := strings.Index(body, markUp)
	if up < 0 {
		return fmt.Errorf("missing %q", markUp)
	}
	down := strings.Index(body, markDown)
	if down < 0 {
		return fmt.Errorf("missing %q", markDown)
	}
	if down < up {
		return fmt.Errorf("declares Down before Up")
	}
	for _, section := range []string{body[up:down], body[down:]} {
		if strings.Count(section, markStatementBegin) != strings.Count(section, markStatementEnd) {
			return fmt.Errorf("unbalanced StatementBegin/StatementEnd")
		}
	}
	return nil
}
