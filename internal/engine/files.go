package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kestrelfaas/kestrel/internal/domain"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// maxFileNameLen caps a staged file's name length after sanitization.
const maxFileNameLen = 255

// stageFiles writes files into a fresh per-invocation directory under
// baseDir and returns the directory, the staged records and a cleanup func.
// File names are sanitized before touching disk (see sanitizeFileName), so
// a crafted name like "../../etc/passwd" collapses to a harmless sibling
// file instead of escaping the staging directory.
func stageFiles(baseDir string, files []domain.FileInput) (string, []domain.StagedFile, func(), error) {
	if len(files) == 0 {
		return "", nil, func() {}, nil
	}

	dir, err := os.MkdirTemp(baseDir, "invoke-*")
	if err != nil {
		return "", nil, func() {}, fmt.Errorf("stage files: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	staged := make([]domain.StagedFile, 0, len(files))
	for _, f := range files {
		name := sanitizeFileName(f.Name)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Bytes, 0o600); err != nil {
			cleanup()
			return "", nil, func() {}, fmt.Errorf("stage file %q: %w", f.Name, err)
		}
		staged = append(staged, domain.StagedFile{
			Name:        name,
			ContentType: f.ContentType,
			Path:        path,
			Size:        len(f.Bytes),
		})
	}
	return dir, staged, cleanup, nil
}

// sanitizeFileName keeps only the last path element (filepath.Base), strips
// all leading dots, replaces any character outside the safe set with "_",
// so hidden-file and path-escape names collapse to a
// harmless sibling, caps the result at maxFileNameLen characters, and falls
// back to "file.bin" when nothing safe is left.
func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	for len(base) > 0 && base[0] == '.' {
		base = base[1:]
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if len(base) > maxFileNameLen {
		base = base[:maxFileNameLen]
	}
	if base == "" {
		return "file.bin"
	}
	return base
}
