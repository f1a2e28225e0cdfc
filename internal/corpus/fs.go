package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UngroupedID is the group assigned to images sitting directly in the corpus
// root.
const UngroupedID = "ungrouped"

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// FS is a filesystem-backed corpus. Each top-level subdirectory of the root
// is one group (one event folder); the image ID is the slash-relative path
// under the root.
type FS struct {
	root string
}

// NewFS creates a filesystem corpus rooted at dir.
func NewFS(dir string) (*FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", dir)
	}
	return &FS{root: dir}, nil
}

// ListImageIDs walks the corpus and returns all image paths sorted.
func (c *FS) ListImageIDs() ([]string, error) {
	var ids []string

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories like .thumbnails
			if d.Name() != "." && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// ReadImage returns the raw bytes of an image. IDs pointing outside the
// corpus root are rejected.
func (c *FS) ReadImage(imageID string) ([]byte, error) {
	rel := filepath.FromSlash(imageID)
	if filepath.IsAbs(rel) || rel != filepath.Clean(rel) || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("invalid image ID: %s", imageID)
	}

	data, err := os.ReadFile(filepath.Join(c.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", imageID, err)
	}
	return data, nil
}

// GroupOf returns the first path segment, or UngroupedID for images in the
// root itself.
func (c *FS) GroupOf(imageID string) string {
	imageID = strings.TrimPrefix(filepath.ToSlash(imageID), "./")
	if i := strings.Index(imageID, "/"); i > 0 {
		return imageID[:i]
	}
	return UngroupedID
}

// AllGroupIDs returns every group that currently contains at least one image.
func (c *FS) AllGroupIDs() ([]string, error) {
	ids, err := c.ListImageIDs()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var groups []string
	for _, id := range ids {
		g := c.GroupOf(id)
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}

	sort.Strings(groups)
	return groups, nil
}

// ImagesOf returns all images belonging to a group.
func (c *FS) ImagesOf(groupID string) ([]string, error) {
	ids, err := c.ListImageIDs()
	if err != nil {
		return nil, err
	}

	var images []string
	for _, id := range ids {
		if c.GroupOf(id) == groupID {
			images = append(images, id)
		}
	}
	return images, nil
}

// Verify interface compliance
var (
	_ Library = (*FS)(nil)
	_ Groups  = (*FS)(nil)
)
