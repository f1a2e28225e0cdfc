// Package corpus enumerates the image collection and its grouping structure.
// Image IDs are stable identifiers; for the filesystem implementation they
// are slash-separated paths relative to the corpus root.
package corpus

// Library provides read access to the raw images.
type Library interface {
	// ListImageIDs returns every image in the corpus in a stable order.
	ListImageIDs() ([]string, error)

	// ReadImage returns the raw bytes of an image.
	ReadImage(imageID string) ([]byte, error)
}

// Groups exposes the partition of the corpus into groups. Every image
// belongs to exactly one group.
type Groups interface {
	// AllGroupIDs returns every group in the corpus, sorted.
	AllGroupIDs() ([]string, error)

	// GroupOf returns the group an image belongs to.
	GroupOf(imageID string) string

	// ImagesOf returns the image IDs belonging to a group.
	ImagesOf(groupID string) ([]string, error)
}
