package takedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/relex/framesink/saver/framesaver"
	"golang.org/x/exp/slices"
)

var (
	shardDirGlob  = glob.MustCompile("[0-9][0-9][0-9][0-9]000")
	frameFileGlob = glob.MustCompile("F[0-9][0-9][0-9][0-9][0-9][0-9][0-9].*")
)

// maxListedSeqs limits how many missing sequence numbers are kept in Report
const maxListedSeqs = 100

// Report is the result of inspecting the directory of one save worker
type Report struct {
	Dir            string
	Labels         map[string]string
	Manifest       *Manifest // nil if absent
	Shards         []string  // shard directory names, sorted
	Files          int       // record files found
	Bytes          int64
	Unexpected     []string // entries which are neither shard dirs nor record files
	Misplaced      []string // record files in the wrong shard
	Unassigned     []string // record files not belonging to this worker according to manifest
	SizeMismatches []string // uncompressed record files whose size differs from manifest's frame size
	MissingCount   int      // assigned records without file, 0 without manifest
	Missing        []uint64 // first missing sequence numbers
}

// OK returns true if nothing unexpected is found. Missing records are reported but don't fail the check, since the
// manifest tells how many were missed or failed
func (report *Report) OK() bool {
	return len(report.Unexpected) == 0 && len(report.Misplaced) == 0 && len(report.Unassigned) == 0 &&
		len(report.SizeMismatches) == 0
}

// ExplainedMissing returns true if the numbers of missing records can be explained by failures and missed saves
func (report *Report) ExplainedMissing() bool {
	if report.Manifest == nil {
		return true
	}
	return uint64(report.MissingCount) <= report.Manifest.Failed+report.Manifest.Missed
}

func (report *Report) String() string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "dir=%s shards=%d files=%d bytes=%d", report.Dir, len(report.Shards), report.Files, report.Bytes)
	if m := report.Manifest; m != nil {
		fmt.Fprintf(builder, " stream=%s worker=%d/%d dispatched=%d missed=%d failed=%d missing=%d",
			m.Stream, m.Worker, m.Workers, m.Dispatched, m.Missed, m.Failed, report.MissingCount)
	}
	for _, list := range []struct {
		title string
		names []string
	}{
		{"unexpected", report.Unexpected},
		{"misplaced", report.Misplaced},
		{"unassigned", report.Unassigned},
		{"sizeMismatches", report.SizeMismatches},
	} {
		if len(list.names) > 0 {
			fmt.Fprintf(builder, " %s=[%s]", list.title, strings.Join(list.names, " "))
		}
	}
	return builder.String()
}

// Inspect verifies the shard layout and record files in the directory of one save worker
func Inspect(dirPath string) (*Report, error) {
	report := &Report{Dir: dirPath}

	manifest, merr := ReadManifest(dirPath)
	switch {
	case merr == nil:
		report.Manifest = manifest
	case errors.Is(merr, os.ErrNotExist):
	default:
		return nil, merr
	}
	labels, lerr := ReadLabels(dirPath)
	if lerr != nil {
		return nil, fmt.Errorf("error reading labels path=%s: %w", dirPath, lerr)
	}
	report.Labels = labels

	entries, rerr := os.ReadDir(dirPath)
	if rerr != nil {
		return nil, rerr
	}
	found := make([]uint64, 0, 1000)
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case name == ManifestFileName:
		case entry.IsDir() && shardDirGlob.Match(name):
			report.Shards = append(report.Shards, name)
			seqs, err := report.inspectShard(dirPath, name)
			if err != nil {
				return nil, err
			}
			found = append(found, seqs...)
		default:
			report.Unexpected = append(report.Unexpected, name)
		}
	}
	slices.Sort(report.Shards)
	slices.Sort(found)

	if manifest != nil && manifest.Workers > 0 {
		for seq := uint64(manifest.Worker); seq < manifest.Dispatched; seq += uint64(manifest.Workers) {
			if _, ok := slices.BinarySearch(found, seq); ok {
				continue
			}
			report.MissingCount++
			if len(report.Missing) < maxListedSeqs {
				report.Missing = append(report.Missing, seq)
			}
		}
	}
	return report, nil
}

func (report *Report) inspectShard(dirPath string, shardName string) ([]uint64, error) {
	entries, err := os.ReadDir(filepath.Join(dirPath, shardName))
	if err != nil {
		return nil, err
	}
	seqs := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		relPath := shardName + "/" + name
		if entry.IsDir() || !frameFileGlob.Match(name) {
			report.Unexpected = append(report.Unexpected, relPath)
			continue
		}
		seq, perr := strconv.ParseUint(name[1:8], 10, 64)
		if perr != nil {
			report.Unexpected = append(report.Unexpected, relPath)
			continue
		}
		info, ierr := entry.Info()
		if ierr != nil {
			return nil, ierr
		}
		report.Files++
		report.Bytes += info.Size()
		seqs = append(seqs, seq)

		if framesaver.ShardDirName(seq) != shardName {
			report.Misplaced = append(report.Misplaced, relPath)
		}
		if m := report.Manifest; m != nil {
			if !m.IsAssigned(seq) {
				report.Unassigned = append(report.Unassigned, relPath)
			}
			rawName := framesaver.FrameFileName(seq, m.FileExt)
			switch {
			case name == rawName:
				if info.Size() != m.FrameSize {
					report.SizeMismatches = append(report.SizeMismatches, relPath)
				}
			case strings.HasPrefix(name, rawName+"."):
				// compressed; size unknown
			default:
				report.Unexpected = append(report.Unexpected, relPath)
			}
		}
	}
	return seqs, nil
}
