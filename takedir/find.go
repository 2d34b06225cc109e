package takedir

import (
	"io/fs"
	"path/filepath"

	"golang.org/x/exp/slices"
)

// FindWorkerDirs walks the given root and returns all directories which look like save worker directories, i.e.
// containing either a manifest or shard directories. The result is sorted.
func FindWorkerDirs(root string) ([]string, error) {
	found := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir() && path != root && shardDirGlob.Match(entry.Name()):
			found[filepath.Dir(path)] = true
			return filepath.SkipDir
		case !entry.IsDir() && entry.Name() == ManifestFileName:
			found[filepath.Dir(path)] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(found))
	for dir := range found {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return dirs, nil
}
