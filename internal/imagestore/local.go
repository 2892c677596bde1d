package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes images into a directory that the HTTP server exposes under URLPrefix.
type Local struct {
	Dir       string
	URLPrefix string
}

// NewLocal returns a Local store; urlPrefix is trimmed of trailing slashes.
func NewLocal(dir, urlPrefix string) *Local {
	return &Local{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (l *Local) Save(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.Dir, key), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return l.URLPrefix + "/" + key, nil
}
