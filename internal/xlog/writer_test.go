package xlog

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"expstore/internal/bin"
	"expstore/internal/chunk"
	"expstore/internal/codec"
	"expstore/internal/experience"
	"expstore/internal/record"
)

func testExperience(step int) *experience.Experience {
	obs := make([]float32, 8)
	for i := range obs {
		obs[i] = float32(step) + float32(i)/10
	}
	return &experience.Experience{
		Obs:      obs,
		Act:      int32(step % 4),
		Reward:   0.1,
		NextObs:  obs,
		Terminal: step%10 == 9,
		Ticks:    int64(1_000_000 + step),
		Episode:  1,
		Step:     int32(step),
	}
}

// readIndexes returns every index entry of prefix in chunk order.
func readIndexes(t *testing.T, dir, prefix string) (ids []uint32, entries [][]chunk.IndexEntry) {
	t.Helper()
	ids, err := chunk.ScanIDs(dir, prefix)
	require.NoError(t, err)
	for _, id := range ids {
		r, err := chunk.OpenIndex(chunk.IndexPath(dir, prefix, id))
		require.NoError(t, err)
		all, err := r.All()
		require.NoError(t, err)
		require.NoError(t, r.Close())
		entries = append(entries, all)
	}
	return ids, entries
}

func TestWriter_RotationKeepsIDsAndIndexConsistent(t *testing.T) {
	for _, c := range []codec.Codec{codec.PassThrough{}, codec.Snappy{}, codec.NewZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			dir := t.TempDir()
			w, err := Open(Config{Dir: dir, RotateBytes: 2048, StartID: 0, Codec: c})
			require.NoError(t, err)

			const n = 300
			for i := 0; i < n; i++ {
				id, err := w.Append(ToEnvelope(testExperience(i), []string{"run:t"}))
				require.NoError(t, err)
				require.Equal(t, int64(i), id)
			}
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())

			ids, entries := readIndexes(t, dir, DefaultPrefix)
			require.GreaterOrEqual(t, len(ids), 2)
			for i, id := range ids {
				assert.Equal(t, uint32(i), id, "chunk ids increase by one")
			}

			next := int64(0)
			for ci, chunkEntries := range entries {
				data, err := chunk.Open(chunk.DataPath(dir, DefaultPrefix, ids[ci]))
				require.NoError(t, err)
				assert.Equal(t, c.Flags(), data.Header().Flags)

				for _, e := range chunkEntries {
					require.Equal(t, next, e.ID)
					next++
					assert.Equal(t, uint8(ids[ci]), e.ChunkID)

					env, err := data.ReadAt(e.Offset)
					require.NoError(t, err)
					assert.Equal(t, e.ID, env.ID)
					assert.Equal(t, e.Ticks, env.Ticks)
					assert.Equal(t, e.Reward, env.Reward)
					assert.Equal(t, e.Terminal(), env.Terminal)
				}
				require.NoError(t, data.Close())
			}
			assert.Equal(t, int64(n), next)
		})
	}
}

func TestWriter_ThousandRecordScenario(t *testing.T) {
	dir := t.TempDir()
	const rotate = 64 * 1024
	w, err := Open(Config{Dir: dir, RotateBytes: rotate})
	require.NoError(t, err)

	var total int64
	var last *record.Envelope
	for i := 0; i < 1000; i++ {
		env := ToEnvelope(testExperience(i), nil)
		_, err := w.Append(env)
		require.NoError(t, err)

		env.ID = int64(i)
		size := int64(env.Size())
		total += int64(bin.UvarintSize(uint64(size))) + size
		last = env
	}
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	ids, entries := readIndexes(t, dir, DefaultPrefix)
	count := 0
	for _, es := range entries {
		count += len(es)
	}
	assert.Equal(t, 1000, count)

	tail := entries[len(entries)-1]
	lastEntry := tail[len(tail)-1]
	assert.Equal(t, uint16(last.Episode), lastEntry.Episode)
	assert.Equal(t, last.Terminal, lastEntry.Terminal())
	assert.True(t, lastEntry.Terminal(), "step 999 is terminal")

	assert.Equal(t, int(math.Ceil(float64(total)/rotate)), len(ids))
}

func TestWriter_StartID(t *testing.T) {
	w, err := Open(Config{Dir: t.TempDir(), StartID: 500})
	require.NoError(t, err)
	defer w.Close()

	for want := int64(500); want < 505; want++ {
		id, err := w.Append(ToEnvelope(testExperience(0), nil))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, int64(505), w.NextID())
}

func TestWriter_RestartOpensFreshChunk(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), w.ChunkID())
	for i := 0; i < 5; i++ {
		_, err := w.Append(ToEnvelope(testExperience(i), nil))
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
	before, err := os.ReadFile(chunk.DataPath(dir, DefaultPrefix, 0))
	require.NoError(t, err)

	w, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), w.ChunkID())
	_, err = w.Append(ToEnvelope(testExperience(5), nil))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	after, err := os.ReadFile(chunk.DataPath(dir, DefaultPrefix, 0))
	require.NoError(t, err)
	assert.Equal(t, before, after, "previous chunk untouched")

	ids, err := chunk.ScanIDs(dir, DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, ids)

	// Other prefixes in the same directory start at their own zero.
	other, err := Open(Config{Dir: dir, Prefix: "eval"})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), other.ChunkID())
	require.NoError(t, other.Close())
}

func TestWriter_RotationCollision(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, RotateBytes: 1})
	require.NoError(t, err)
	defer w.Close()

	// Someone else owns chunk 1.
	squatter := chunk.DataPath(dir, DefaultPrefix, 1)
	require.NoError(t, os.WriteFile(squatter, []byte("not ours"), 0o644))

	// The record that crosses the threshold stays in chunk 0.
	id, err := w.Append(ToEnvelope(testExperience(0), nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, uint32(0), w.ChunkID())

	// The retried rotation fails the append without consuming an id.
	_, err = w.Append(ToEnvelope(testExperience(1), nil))
	assert.ErrorIs(t, err, fs.ErrExist)
	assert.Equal(t, int64(1), w.NextID())
	assert.Equal(t, uint32(0), w.ChunkID())

	content, err := os.ReadFile(squatter)
	require.NoError(t, err)
	assert.Equal(t, "not ours", string(content))

	require.NoError(t, os.Remove(squatter))
	id, err = w.Append(ToEnvelope(testExperience(1), nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, w.Flush())

	idx, err := chunk.OpenIndex(chunk.IndexPath(dir, DefaultPrefix, 1))
	require.NoError(t, err)
	defer idx.Close()
	e, err := idx.At(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ID, "record landed in the retried chunk")
}

func TestWriter_IndexCollisionLeavesNoDataFile(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, RotateBytes: 1})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(chunk.IndexPath(dir, DefaultPrefix, 1), nil, 0o644))

	_, err = w.Append(ToEnvelope(testExperience(0), nil))
	require.NoError(t, err)

	_, err = os.Stat(chunk.DataPath(dir, DefaultPrefix, 1))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriter_Closed(t *testing.T) {
	w, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Append(ToEnvelope(testExperience(0), nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Flush(), ErrClosed)
	assert.NoError(t, w.Close())
}

func TestWriter_InvalidConfig(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(Config{Dir: t.TempDir(), RotateBytes: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWriter_EpisodeSaturationWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, Logger: zap.New(core)})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e := testExperience(i)
		e.Episode = 70_000 + int32(i)
		_, err := w.Append(ToEnvelope(e, nil))
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	assert.Equal(t, 1, logs.FilterMessage("episode does not fit the index, saturating").Len())

	_, entries := readIndexes(t, dir, DefaultPrefix)
	for _, e := range entries[0] {
		assert.Equal(t, uint16(math.MaxUint16), e.Episode)
	}

	// The envelope keeps the full episode.
	r, err := chunk.Open(chunk.DataPath(dir, DefaultPrefix, 0))
	require.NoError(t, err)
	defer r.Close()
	_, env, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(70_000), env.Episode)
}

func TestWriter_CloseWithoutFlushKeepsBufferedRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := w.Append(ToEnvelope(testExperience(i), nil))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := chunk.Open(chunk.DataPath(dir, DefaultPrefix, 0))
	require.NoError(t, err)
	defer r.Close()
	n := 0
	for {
		_, _, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 10, n)
}
