package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	markUp    = "-- +goose Up"
	markDown  = "-- +goose Down"
	markBegin = "-- +goose StatementBegin"
	markEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every migration file in dir and reports all problems
// found, not just the first.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks the .sql files at the root of fsys: filenames follow
// YYYYMMDDHHMMSS_name.sql, versions are unique, Up precedes Down and
// statement blocks are balanced.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	owner := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := sqlFileRe.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, dup := owner[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name))
		}
		owner[match[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		for _, issue := range sqlIssues(string(body)) {
			problems = multierr.Append(problems, fmt.Errorf("migration %q: %s", name, issue))
		}
	}
	return problems
}

func sqlIssues(body string) []string {
	var issues []string
	up, down := strings.Index(body, markUp), strings.Index(body, markDown)
	switch {
	case up < 0:
		issues = append(issues, fmt.Sprintf("missing %q", markUp))
	case down < 0:
		issues = append(issues, fmt.Sprintf("missing %q", markDown))
	case down < up:
		issues = append(issues, fmt.Sprintf("%q precedes %q", markDown, markUp))
	}
	if begins, ends := strings.Count(body, markBegin), strings.Count(body, markEnd); begins != ends {
		issues = append(issues, fmt.Sprintf("unbalanced statement blocks: %d begin, %d end", begins, ends))
	}
	return issues
}
