// Package ingest loads enrollment photos from an operator directory tree and
// feeds them to the engine in bulk.
//
// The tree has one directory per identity, named by its UUID:
//
//	<root>/<identity-uuid>/identity.yaml   optional: display_name, category
//	<root>/<identity-uuid>/*.jpg|*.jpeg|*.png
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/your-org/facegate/internal/models"
)

const metaFile = "identity.yaml"

// Batch is the set of photos found for one identity.
type Batch struct {
	IdentityID  uuid.UUID
	DisplayName string
	Category    models.Category
	Files       []string
}

type identityMeta struct {
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
}

// IsImageFile reports whether name has an extension the engine can decode.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Scan walks root one level deep. Directories whose name is not a UUID are
// skipped and reported in the returned list.
func Scan(root string) ([]Batch, []string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", root, err)
	}

	var (
		batches []Batch
		skipped []string
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}

		dir := filepath.Join(root, entry.Name())
		batch, err := scanIdentity(dir, id)
		if err != nil {
			return nil, nil, err
		}
		if len(batch.Files) == 0 {
			skipped = append(skipped, entry.Name())
			continue
		}
		batches = append(batches, batch)
	}

	slices.SortFunc(batches, func(a, b Batch) int {
		return strings.Compare(a.IdentityID.String(), b.IdentityID.String())
	})
	return batches, skipped, nil
}

func scanIdentity(dir string, id uuid.UUID) (Batch, error) {
	batch := Batch{IdentityID: id, Category: models.CategoryOwner}

	meta, err := readMeta(filepath.Join(dir, metaFile))
	if err != nil {
		return Batch{}, err
	}
	if meta.DisplayName != "" {
		batch.DisplayName = meta.DisplayName
	}
	if meta.Category != "" {
		f, err := models.ParseGalleryFilter(meta.Category)
		if err != nil || f.IsAll() {
			return Batch{}, fmt.Errorf("%s: invalid category %q", dir, meta.Category)
		}
		batch.Category = f.Category
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return Batch{}, fmt.Errorf("read %s: %w", dir, err)
	}
	for _, f := range files {
		if !f.IsDir() && IsImageFile(f.Name()) {
			batch.Files = append(batch.Files, filepath.Join(dir, f.Name()))
		}
	}
	slices.Sort(batch.Files)
	return batch, nil
}

func readMeta(path string) (identityMeta, error) {
	var meta identityMeta
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", path, err)
	}
	return meta, nil
}
