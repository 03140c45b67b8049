package descriptors

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// NoRevision is the all-zero revision CI systems report when a push has no
// prior commit. Used as the "from" endpoint it selects every descriptor.
const NoRevision = "0000000000000000000000000000000000000000"

// Differ lists the paths changed between two revisions
type Differ interface {
	ChangedPaths(ctx context.Context, from, to string) ([]string, error)
}

// Selection picks which descriptors a run considers
type Selection struct {
	// All selects every descriptor in the content directory
	All bool

	// From and To select descriptors changed between two revisions.
	// Both must be set.
	From string
	To   string
}

// Source enumerates descriptor files in a content directory
type Source struct {
	contentDir string
	differ     Differ
	log        *zap.Logger
}

// NewSource creates a source over contentDir. differ may be nil when only
// the "all" mode is used.
func NewSource(log *zap.Logger, contentDir string, differ Differ) *Source {
	return &Source{
		contentDir: contentDir,
		differ:     differ,
		log:        log,
	}
}

// Select resolves sel into an ordered list of descriptor paths. An empty
// result means there is nothing to do.
func (s *Source) Select(ctx context.Context, sel Selection) ([]string, error) {
	info, err := os.Stat(s.contentDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("no content directory found", zap.String("content_dir", s.contentDir))
			return nil, nil
		}
		return nil, ErrSource.New("stat %s: %v", s.contentDir, err)
	}
	if !info.IsDir() {
		return nil, ErrSource.New("%s is not a directory", s.contentDir)
	}

	switch {
	case sel.All:
		return s.All()
	case sel.From != "" && sel.To != "":
		return s.Changed(ctx, sel.From, sel.To)
	default:
		s.log.Info("no change range provided, use --all or --changed-from/--changed-to")
		return nil, nil
	}
}

// All returns every descriptor file directly inside the content directory,
// sorted by path. Symlinks are followed; dangling links and links to
// directories are skipped.
func (s *Source) All() ([]string, error) {
	entries, err := os.ReadDir(s.contentDir)
	if err != nil {
		return nil, ErrSource.New("list %s: %v", s.contentDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if !IsDescriptorFile(entry.Name()) {
			continue
		}
		p := filepath.Join(s.contentDir, entry.Name())
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Changed returns the descriptor files under the content directory that
// differ between from and to and still exist on disk. Deleted descriptors
// are dropped silently.
func (s *Source) Changed(ctx context.Context, from, to string) ([]string, error) {
	if from == NoRevision {
		return s.All()
	}
	if s.differ == nil {
		return nil, ErrSource.New("no differ configured for changed-revision mode")
	}

	changed, err := s.differ.ChangedPaths(ctx, from, to)
	if err != nil {
		return nil, ErrSource.Wrap(err)
	}

	root, err := filepath.Abs(s.contentDir)
	if err != nil {
		return nil, ErrSource.Wrap(err)
	}

	seen := make(map[string]struct{}, len(changed))
	var paths []string
	for _, changedPath := range changed {
		p := filepath.Clean(changedPath)
		if _, dup := seen[p]; dup {
			continue
		}
		if !IsDescriptorFile(p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil || !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s.log.Debug("resolved changed descriptors",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("changed", len(changed)),
		zap.Int("descriptors", len(paths)))
	return paths, nil
}

// IsDescriptorFile reports whether name has a descriptor extension
func IsDescriptorFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}
