package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ashbyte/hlsvault/internal/engine/tools"
)

// MergeBackend selects which Merger implementation to use.
type MergeBackend int

const (
	// BackendAuto picks the external-tool backend if ffmpeg is on PATH,
	// falling back to the in-process backend otherwise.
	BackendAuto MergeBackend = iota
	BackendExternal
	BackendInProcess
)

// Merger concatenates decrypted segments in playlist order into an
// output container, either via an external concat tool or by raw
// in-process append.
type Merger struct {
	temp    *TempStore
	backend MergeBackend
	logger  *slog.Logger
}

// NewMerger builds a Merger using the requested backend.
func NewMerger(temp *TempStore, backend MergeBackend, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Merger{temp: temp, backend: backend, logger: logger}
}

// Merge produces outputPath from the decrypted segment files for id.
// playlistOrder, when non-empty, is the segment leaf filenames (e.g.
// "0.ts") in the order they appear in the playlist; valid segments are
// concatenated in that order, with any valid file the playlist doesn't
// mention (a leftover from a rotated prefix) appended afterward by
// trailing numeric index. A nil/empty playlistOrder falls back to pure
// trailing-numeric-index order.
func (m *Merger) Merge(id, outputPath string, playlistOrder []string) error {
	backend := m.backend
	var ffmpeg *tools.Info
	if backend == BackendAuto || backend == BackendExternal {
		ffmpeg = tools.DetectFFmpeg()
		if backend == BackendAuto {
			if ffmpeg.Available {
				backend = BackendExternal
			} else {
				m.logger.Info("ffmpeg not found, falling back to in-process merge", "job", id)
				backend = BackendInProcess
			}
		}
	}

	if backend == BackendExternal {
		if ffmpeg == nil || !ffmpeg.Available {
			return newErr(KindMergeFailed, "Merger.Merge", "", fmt.Errorf("ffmpeg not available"))
		}
		return m.mergeExternal(id, outputPath, playlistOrder)
	}
	return m.mergeInProcess(id, outputPath, playlistOrder)
}

// mergeExternal writes a concat-demuxer list file and invokes ffmpeg.
func (m *Merger) mergeExternal(id, outputPath string, playlistOrder []string) error {
	dir := m.temp.SegmentDir(id)
	files, err := orderedSegmentFiles(dir, playlistOrder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return newErr(KindInvalidInput, "Merger.mergeExternal", dir, fmt.Errorf("no valid segments to merge"))
	}

	listPath := m.temp.MergeListPath(id)
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(filepath.Join(dir, f))
		if err != nil {
			return err
		}
		b.WriteString("file '")
		b.WriteString(escapeConcatPath(abs))
		b.WriteString("'\n")
	}
	if err := writeFileAtomic(listPath, []byte(b.String())); err != nil {
		return err
	}

	cmd := exec.Command("ffmpeg", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-y", outputPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return newErr(KindMergeFailed, "Merger.mergeExternal", outputPath, fmt.Errorf("ffmpeg: %w: %s", err, output))
	}
	m.logger.Info("merged via ffmpeg", "job", id, "output", outputPath, "segments", len(files))
	return nil
}

// escapeConcatPath quotes a path for the ffmpeg concat demuxer, where a
// single quote inside a quoted path is escaped as '\''.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// mergeInProcess enumerates, drops corrupt segments, orders the rest
// (playlist order if given, else trailing numeric index), and streams
// them into outputPath via 1 MiB blocks.
func (m *Merger) mergeInProcess(id, outputPath string, playlistOrder []string) error {
	dir := m.temp.SegmentDir(id)
	files, err := orderedSegmentFiles(dir, playlistOrder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return newErr(KindInvalidInput, "Merger.mergeInProcess", dir, fmt.Errorf("no valid segments to merge"))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return newErr(KindMergeFailed, "Merger.mergeInProcess", outputPath, err)
	}
	defer out.Close()

	buf := make([]byte, 1024*1024)
	for _, name := range files {
		if err := appendFile(out, filepath.Join(dir, name), buf); err != nil {
			return newErr(KindMergeFailed, "Merger.mergeInProcess", name, err)
		}
	}
	m.logger.Info("merged in-process", "job", id, "output", outputPath, "segments", len(files))
	return nil
}

func appendFile(dst *os.File, path string, buf []byte) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.CopyBuffer(dst, src, buf)
	return err
}

// validSegmentFiles returns the set of non-corrupt .ts filenames in dir
// (size a positive multiple of 16).
func validSegmentFiles(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newErr(KindInvalidInput, "validSegmentFiles", dir, err)
	}

	valid := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Size() <= 0 || fi.Size()%16 != 0 {
			continue
		}
		valid[e.Name()] = true
	}
	return valid, nil
}

// sortedSegmentFiles returns every valid .ts filename in dir, sorted by
// trailing numeric index.
func sortedSegmentFiles(dir string) ([]string, error) {
	valid, err := validSegmentFiles(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(valid))
	for name := range valid {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return trailingIndex(names[i]) < trailingIndex(names[j]) })
	return names, nil
}

// orderedSegmentFiles returns every valid .ts filename in dir, ordered to
// match playlistOrder as closely as possible: files playlistOrder
// mentions come first in that order, any remaining valid file (left over
// from a rotated prefix the playlist no longer references) is appended
// afterward by trailing numeric index. Falls back to sortedSegmentFiles
// when playlistOrder is empty.
func orderedSegmentFiles(dir string, playlistOrder []string) ([]string, error) {
	if len(playlistOrder) == 0 {
		return sortedSegmentFiles(dir)
	}

	valid, err := validSegmentFiles(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(valid))
	for _, leaf := range playlistOrder {
		if valid[leaf] {
			files = append(files, leaf)
			delete(valid, leaf)
		}
	}

	leftover := make([]string, 0, len(valid))
	for name := range valid {
		leftover = append(leftover, name)
	}
	sort.Slice(leftover, func(i, j int) bool { return trailingIndex(leftover[i]) < trailingIndex(leftover[j]) })

	return append(files, leftover...), nil
}

func trailingIndex(name string) int {
	base := strings.TrimSuffix(name, ".ts")
	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	idx, err := strconv.Atoi(base[i:])
	if err != nil {
		return 0
	}
	return idx
}
