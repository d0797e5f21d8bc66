// Package assetstore persists FunctionAsset documents and resolves
// UploadManifest ingestion requests into them.
package assetstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelfaas/kestrel/internal/atomicfile"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/idgen"
	"github.com/kestrelfaas/kestrel/internal/logging"
)

// Mirror is an optional best-effort remote backup for function assets. A
// nil Mirror disables backup entirely.
type Mirror interface {
	Put(id string, data []byte)
	Delete(id string)
}

// Store persists FunctionAsset documents as one pretty-printed JSON file
// per function under {baseDir}/functions/{id}.json.
type Store struct {
	baseDir string
	mirror  Mirror
}

// New constructs a Store rooted at baseDir (typically ".faas"). mirror may
// be nil.
func New(baseDir string, mirror Mirror) *Store {
	return &Store{baseDir: baseDir, mirror: mirror}
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.baseDir, "functions", id+".json")
}

// Save writes asset atomically (temp file + rename) so readers never
// observe a torn document, and best-effort mirrors it remotely if a mirror
// is configured.
func (s *Store) Save(asset *domain.FunctionAsset) error {
	data, err := json.MarshalIndent(asset, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.pathFor(asset.ID), data, 0o644); err != nil {
		return err
	}
	if s.mirror != nil {
		s.mirror.Put(asset.ID, data)
	}
	return nil
}

// Load reads and decodes the asset with the given id. The second return
// value is false when no such asset exists.
func (s *Store) Load(id string) (*domain.FunctionAsset, bool, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var asset domain.FunctionAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, false, err
	}
	return &asset, true, nil
}

// List scans the functions directory and decodes every asset found there.
// A decode failure for one file is logged and the file skipped, rather than
// failing the whole listing.
func (s *Store) List() ([]*domain.FunctionAsset, error) {
	dir := filepath.Join(s.baseDir, "functions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var assets []*domain.FunctionAsset
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		asset, ok, err := s.Load(id)
		if err != nil {
			logging.Op().Warn("assetstore: skipping unreadable asset", "id", id, "error", err)
			continue
		}
		if ok {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

// Delete removes the persisted asset and its mirror copy, if any. It is not
// an error to delete an id that does not exist.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if s.mirror != nil {
		s.mirror.Delete(id)
	}
	return nil
}

// ToAsset resolves an UploadManifest into a FunctionAsset: it reads
// source/sourceFile (and each dependency's source/file) relative to cwd,
// and mints a UUIDv7 id when the manifest omits one.
func (s *Store) ToAsset(cwd string, manifest *domain.UploadManifest) (*domain.FunctionAsset, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	source := manifest.SourceCode
	if source == "" {
		resolved, err := readRelative(cwd, manifest.SourceFile)
		if err != nil {
			return nil, &domain.InvalidManifestError{Reason: "sourceFile: " + err.Error()}
		}
		source = resolved
	}
	if strings.TrimSpace(source) == "" {
		return nil, &domain.InvalidManifestError{Reason: "resolved source is empty"}
	}

	deps := make([]domain.Dependency, 0, len(manifest.Dependencies))
	for _, d := range manifest.Dependencies {
		depSource := d.SourceCode
		if depSource == "" {
			resolved, err := readRelative(cwd, d.File)
			if err != nil {
				return nil, &domain.InvalidManifestError{Reason: "dependency " + d.Name + " file: " + err.Error()}
			}
			depSource = resolved
		}
		deps = append(deps, domain.Dependency{Name: d.Name, SourceCode: depSource})
	}

	id := manifest.ID
	if id == "" {
		id = idgen.NewV7()
	}

	functionName := manifest.FunctionName
	if functionName == "" {
		functionName = "handler"
	}

	return &domain.FunctionAsset{
		ID:             id,
		LanguageID:     manifest.LanguageID,
		FunctionName:   functionName,
		JsEvalAsModule: manifest.JsEvalAsModule,
		SourceCode:     source,
		Dependencies:   deps,
	}, nil
}

func readRelative(cwd, relPath string) (string, error) {
	path := relPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, relPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseManifest decodes a JSONC-encoded UploadManifest.
func ParseManifest(data []byte) (*domain.UploadManifest, error) {
	stripped := stripJSONC(data)
	var manifest domain.UploadManifest
	if err := json.Unmarshal(stripped, &manifest); err != nil {
		return nil, &domain.InvalidJSONError{Reason: err.Error()}
	}
	return &manifest, nil
}
