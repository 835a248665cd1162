package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var scaffoldNameRe = regexp.MustCompile(`[^a-z0-9_]+`)

// VersionAt formats a timestamp as a migration version.
func VersionAt(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// Scaffold writes a new migration source file into dir and returns
// its path. The version is derived from now, so files sort in
// creation order.
func Scaffold(dir, name string, now time.Time) (string, error) {
	slug := scaffoldNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "", fmt.Errorf("scaffold: migration name %q reduces to nothing", name)
	}

	version := VersionAt(now)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.go", version, slug))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("scaffold: %s already exists", path)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scaffold: %w", err)
	}

	src := fmt.Sprintf(`package migrations

import (
	"context"

	"github.com/hollis-dev/basalt/internal/migrate"
)

func init() {
	Set.MustRegister(migrate.Migration{
		Version: %q,
		Name:    %q,
		Up: func(ctx context.Context, env migrate.Env) error {
			// TODO: implement %s
			return nil
		},
		Down: func(ctx context.Context, env migrate.Env) error {
			return nil
		},
	})
}
`, version, slug, slug)

	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		return "", fmt.Errorf("scaffold: %w", err)
	}
	return path, nil
}
