package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Set names one of the two migration trees.
type Set string

const (
	SetAdmin  Set = "admin"
	SetTenant Set = "tenant"
)

// ParseSet accepts the -set flag values.
func ParseSet(raw string) (Set, error) {
	switch Set(strings.ToLower(strings.TrimSpace(raw))) {
	case SetAdmin:
		return SetAdmin, nil
	case SetTenant:
		return SetTenant, nil
	default:
		return "", fmt.Errorf("unknown migration set %q (want admin or tenant)", raw)
	}
}

// Dir is the on-disk location of the set's migrations.
func (s Set) Dir() string {
	if s == SetTenant {
		return TenantDir
	}
	return AdminDir
}

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes an empty goose migration for set into dir as
// <YYYYMMDDHHMMSS>_<name>.sql. Tenant migrations run once per partition with
// search_path pointing at it, so their template warns against qualified names.
func CreateSQLMigration(dir string, set Set, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = strings.Trim(nameSanitizeRe.ReplaceAllString(safe, "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("migration name %q is empty once sanitised", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	}

	scope := "admin partition (tenants, users)"
	if set == SetTenant {
		scope = "every tenant partition; leave table names unqualified"
	}
	body := fmt.Sprintf(`-- %s: applies to the %s
-- +goose Up
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd
`, safe, scope)

	if err := os.WriteFile(fullpath, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}
