package experience

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/experience/numeric"
)

func newSnapshotFixture(t *testing.T) *Replay {
	t.Helper()
	r := New(WithSeed(42), WithDevice(numeric.CPU))
	for i := 0; i < 4; i++ {
		err := r.Append(
			[]float64{float64(i), 1}, i, float64(i)*0.5, []float64{float64(i + 1), 1}, i == 3,
			Extra{Name: "episode", Value: "ep-1"},
			Extra{Name: "info", Value: map[string]any{"score": 1.5}},
		)
		require.NoError(t, err)
	}
	return r
}

func TestReplay_WriteToReadFrom(t *testing.T) {
	src := newSnapshotFixture(t)

	var buf bytes.Buffer
	n, err := src.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	dst := New(WithSeed(7), WithDevice(numeric.CPU))
	appendSteps(t, dst, []float64{9}, []bool{false})

	m, err := dst.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, n, m)

	// Loading replaces previous contents.
	require.Equal(t, src.Len(), dst.Len())
	for i := 0; i < src.Len(); i++ {
		assert.True(t, src.At(i).Equal(dst.At(i)), "record %d differs", i)
	}

	v, err := dst.At(0).Field("info")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"score": 1.5}, v.Opaque())
}

func TestReplay_SaveLoad(t *testing.T) {
	src := newSnapshotFixture(t)
	path := filepath.Join(t.TempDir(), "replay.snapshot")
	require.NoError(t, src.Save(path))

	dst := New(WithSeed(7), WithDevice(numeric.CPU))
	require.NoError(t, dst.Load(path))
	require.Equal(t, src.Len(), dst.Len())
	for i := 0; i < src.Len(); i++ {
		assert.True(t, src.At(i).Equal(dst.At(i)), "record %d differs", i)
	}
}

func TestReplay_LoadAppliesCapacity(t *testing.T) {
	src := newSnapshotFixture(t)
	path := filepath.Join(t.TempDir(), "replay.snapshot")
	require.NoError(t, src.Save(path))

	dst := New(WithSeed(7), WithCapacity(2), WithDevice(numeric.CPU))
	require.NoError(t, dst.Load(path))

	// A bounded buffer keeps only the newest records.
	require.Equal(t, 2, dst.Len())
	assert.True(t, src.At(2).Equal(dst.At(0)))
	assert.True(t, src.At(3).Equal(dst.At(1)))
}

func TestReplay_LoadVectorizedMismatch(t *testing.T) {
	src := New(WithVectorized(true), WithSeed(42))
	err := src.Append(
		[][]float64{{1, 1}, {2, 2}},
		[]int{0, 1},
		[]float64{0.1, 0.2},
		[][]float64{{1, 2}, {2, 3}},
		[]bool{false, true},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)

	flat := New(WithSeed(7))
	_, err = flat.ReadFrom(&buf)
	assert.ErrorIs(t, err, ErrIncompatibleReplays)
}

func TestReplay_ReadFromMalformed(t *testing.T) {
	r := New(WithSeed(42))

	_, err := r.ReadFrom(bytes.NewReader([]byte("NOPE\x01rest")))
	assert.ErrorIs(t, err, ErrBadSnapshot)

	_, err = r.ReadFrom(bytes.NewReader([]byte("XREP\xff")))
	assert.ErrorIs(t, err, ErrBadSnapshot)

	// Truncated header.
	_, err = r.ReadFrom(bytes.NewReader([]byte("XR")))
	assert.ErrorIs(t, err, ErrBadSnapshot)

	// Valid header, garbage payload.
	_, err = r.ReadFrom(bytes.NewReader([]byte("XREP\x01garbage")))
	assert.ErrorIs(t, err, ErrBadSnapshot)

	assert.Equal(t, 0, r.Len())
}

func TestReplay_LoadMissingFile(t *testing.T) {
	r := New(WithSeed(42))
	err := r.Load(filepath.Join(t.TempDir(), "absent.snapshot"))
	assert.Error(t, err)
}

type policyMeta struct {
	Name    string
	Version int
}

func TestReplay_SnapshotOpaqueStruct(t *testing.T) {
	RegisterOpaque(policyMeta{})

	src := New(WithSeed(42))
	err := src.Append(
		[]float64{1, 2}, 0, 0.5, []float64{2, 3}, true,
		Extra{Name: "policy", Value: policyMeta{Name: "ppo", Version: 3}},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.WriteTo(&buf)
	require.NoError(t, err)

	dst := New(WithSeed(7))
	_, err = dst.ReadFrom(&buf)
	require.NoError(t, err)

	v, err := dst.At(0).Field("policy")
	require.NoError(t, err)
	assert.Equal(t, policyMeta{Name: "ppo", Version: 3}, v.Opaque())
}

func TestReplay_SnapshotRoundTripSampling(t *testing.T) {
	src := New(WithSeed(42))
	appendEpisodes(t, src, 12, 4)

	var buf bytes.Buffer
	_, err := src.WriteTo(&buf)
	require.NoError(t, err)

	dst := New(WithSeed(42))
	_, err = dst.ReadFrom(&buf)
	require.NoError(t, err)

	// A restored buffer serves episode samples like the original.
	out, err := dst.Sample(SampleConfig{Size: 1, Episodes: true})
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
}
