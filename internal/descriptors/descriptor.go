// Package descriptors enumerates catalog descriptor files and loads the
// identity and assets version each one declares.
package descriptors

import (
	"os"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"
)

// Descriptor is the part of a catalog item record the pipeline depends on
type Descriptor struct {
	// Path is the location the descriptor was loaded from
	Path string

	// ID is the globally unique item identity
	ID string

	// Version is the assets generation, starting at 1
	Version int
}

// Load reads and parses the descriptor at path
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, ErrSource.New("read %s: %v", path, err)
	}
	return Parse(path, data)
}

// Parse validates data as a descriptor document. Fields other than id and
// assets.version are ignored.
func Parse(path string, data []byte) (Descriptor, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Descriptor{}, ErrValidation.New("%s: invalid YAML: %v", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return Descriptor{}, ErrValidation.New("%s: descriptor is not a mapping", path)
	}

	doc := root.Content[0]

	id, err := parseID(lookup(doc, "id"))
	if err != nil {
		return Descriptor{}, ErrValidation.New("%s: %v", path, err)
	}
	version, err := parseVersion(lookup(doc, "assets"))
	if err != nil {
		return Descriptor{}, ErrValidation.New("%s: %v", path, err)
	}

	return Descriptor{Path: path, ID: id, Version: version}, nil
}

// lookup returns the value stored under key in a mapping node, or nil when
// the key is absent. Aliases are followed.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		value := mapping.Content[i+1]
		for value.Kind == yaml.AliasNode && value.Alias != nil {
			value = value.Alias
		}
		return value
	}
	return nil
}

func parseID(node *yaml.Node) (string, error) {
	if node == nil || node.Tag == "!!null" {
		return "", errs.New("missing id")
	}
	if node.Kind != yaml.ScalarNode || node.Tag != "!!str" {
		return "", errs.New("id must be a string")
	}
	if node.Value == "" {
		return "", errs.New("id must not be empty")
	}
	return node.Value, nil
}

func parseVersion(assets *yaml.Node) (int, error) {
	if assets == nil || assets.Tag == "!!null" {
		return 0, errs.New("missing assets.version")
	}
	if assets.Kind != yaml.MappingNode {
		return 0, errs.New("assets must be a mapping")
	}

	node := lookup(assets, "version")
	if node == nil || node.Tag == "!!null" {
		return 0, errs.New("missing assets.version")
	}
	if node.Kind != yaml.ScalarNode || node.Tag != "!!int" {
		return 0, errs.New("assets.version must be an integer")
	}

	var version int
	if err := node.Decode(&version); err != nil {
		return 0, errs.New("assets.version must be an integer: %v", err)
	}
	if version < 1 {
		return 0, errs.New("assets.version must be at least 1, got %d", version)
	}
	return version, nil
}
