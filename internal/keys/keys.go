// Package keys maps a catalog item's identity and assets version to the
// object store keys of its original and derived renditions.
package keys

import "fmt"

// Set holds the canonical object keys for one (id, version) pair
type Set struct {
	Original string
	Web      string
	Thumb    string
}

// Derive returns the key set for id at version.
//
// The id appears both as the directory and as the file stem, and the
// version is fixed to the "_v" suffix, so two different pairs never map to
// the same key.
func Derive(id string, version int) Set {
	base := fmt.Sprintf("%s_v%d", id, version)
	return Set{
		Original: fmt.Sprintf("originals/%s/%s.jpg", id, base),
		Web:      fmt.Sprintf("web/%s/%s.webp", id, base),
		Thumb:    fmt.Sprintf("thumbs/%s/%s.webp", id, base),
	}
}

// All returns the keys in original, web, thumb order
func (s Set) All() []string {
	return []string{s.Original, s.Web, s.Thumb}
}
