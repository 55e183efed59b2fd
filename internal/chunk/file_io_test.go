package chunk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    uint32
		wantErr bool
	}{
		{name: "data", file: "exp-00003.xlog", want: 3},
		{name: "index", file: "/tmp/x/exp-00042.fidx", want: 42},
		{name: "wide id", file: "exp-70000.xlog", want: 70000},
		{name: "six digits", file: "exp-123456.xlog", want: 123456},
		{name: "other prefix", file: "run-00001.xlog", wantErr: true},
		{name: "other extension", file: "exp-00001.log", wantErr: true},
		{name: "short digits", file: "exp-1.xlog", wantErr: true},
		{name: "not a number", file: "exp-0000a.xlog", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID("exp", tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunkName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanIDs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"exp-00002.xlog", "exp-00002.fidx",
		"exp-00010.xlog",
		"exp-00004.fidx",
		"exp-extra-00099.xlog",
		"other-00050.xlog",
		"exp-00007.txt",
		"notes.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "exp-00020.xlog"), 0o755))

	ids, err := ScanIDs(dir, "exp")
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 4, 10}, ids)

	ids, err = ScanIDs(filepath.Join(dir, "missing"), "exp")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
