package takedir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkg/xattr"
	"github.com/relex/gotils/logger"
	"golang.org/x/sys/unix"
)

// Extended attributes set on stream directories
const (
	XattrPrefix = "user.framesink."
	XattrRun    = XattrPrefix + "run"
	XattrStream = XattrPrefix + "stream"
	XattrWorker = XattrPrefix + "worker"
)

// LabelDirs tags the directory of every file-mode save worker with run ID, stream name and worker index
//
// File systems without user xattr support are tolerated with a warning
func LabelDirs(parentLogger logger.Logger, take Take) error {
	for _, pipeline := range take.Pipelines {
		for _, worker := range pipeline.Workers {
			if worker.IsArrayMode() {
				continue
			}
			labels := map[string]string{
				XattrRun:    take.RunID,
				XattrStream: pipeline.Name,
				XattrWorker: fmt.Sprintf("%d/%d", worker.Index, len(pipeline.Workers)),
			}
			for name, value := range labels {
				if err := xattr.Set(worker.Dir, name, []byte(value)); err != nil {
					if isXattrUnsupported(err) {
						parentLogger.Warnf("extended attributes not supported path=%s: %s", worker.Dir, err.Error())
						return nil
					}
					return fmt.Errorf("error labelling path=%s: %w", worker.Dir, err)
				}
			}
		}
	}
	return nil
}

// ReadLabels reads all framesink labels of a directory, without prefix in keys
func ReadLabels(dir string) (map[string]string, error) {
	names, err := xattr.List(dir)
	if err != nil {
		if isXattrUnsupported(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	labels := make(map[string]string, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, XattrPrefix) {
			continue
		}
		value, gerr := xattr.Get(dir, name)
		if gerr != nil {
			return nil, gerr
		}
		labels[strings.TrimPrefix(name, XattrPrefix)] = string(value)
	}
	return labels, nil
}

func isXattrUnsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}
