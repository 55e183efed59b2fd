package chunk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

const (
	DataExt  = ".xlog"
	IndexExt = ".fidx"
)

// FileName returns "<prefix>-<id:05>" + ext.
func FileName(prefix string, id uint32, ext string) string {
	return fmt.Sprintf("%s-%05d%s", prefix, id, ext)
}

func DataPath(dir, prefix string, id uint32) string {
	return filepath.Join(dir, FileName(prefix, id, DataExt))
}

func IndexPath(dir, prefix string, id uint32) string {
	return filepath.Join(dir, FileName(prefix, id, IndexExt))
}

// ParseID extracts the chunk id from a data or index file name built by
// FileName with the same prefix.
func ParseID(prefix, name string) (uint32, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext != DataExt && ext != IndexExt {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkName, name)
	}
	digits, ok := strings.CutPrefix(strings.TrimSuffix(base, ext), prefix+"-")
	if !ok || len(digits) < 5 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkName, name)
	}
	id, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidChunkName, name, err)
	}
	return uint32(id), nil
}

// ScanIDs lists, in increasing order, the ids of every chunk in dir whose
// data or index file carries prefix. A missing dir yields no ids.
func ScanIDs(dir, prefix string) ([]uint32, error) {
	g, err := glob.Compile(glob.QuoteMeta(prefix) + "-[0-9][0-9][0-9][0-9][0-9]*{" + DataExt + "," + IndexExt + "}")
	if err != nil {
		return nil, fmt.Errorf("compile chunk pattern: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[uint32]struct{})
	for _, e := range entries {
		if e.IsDir() || !g.Match(e.Name()) {
			continue
		}
		id, err := ParseID(prefix, e.Name())
		if err != nil {
			continue
		}
		seen[id] = struct{}{}
	}

	ids := make([]uint32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
