package rollout

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/experience"
)

func newTestGenerator(seed int64) *Generator {
	return New(Config{
		StateDim:   3,
		NumActions: 2,
		Horizon:    5,
		StopProb:   0,
	}, seed, zerolog.Nop())
}

func TestGenerator_Episode(t *testing.T) {
	gen := newTestGenerator(7)
	replay := experience.New(experience.WithSeed(7))

	steps, err := gen.Episode(replay)
	require.NoError(t, err)
	// StopProb zero runs every episode to the horizon.
	assert.Equal(t, 5, steps)
	require.Equal(t, 5, replay.Len())

	first := replay.At(0)
	assert.Equal(t, []int{3}, first.State().Array().Shape())

	episodeID, err := first.Field("episode")
	require.NoError(t, err)
	id, ok := episodeID.Opaque().(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	for i := 0; i < 5; i++ {
		tr := replay.At(i)
		v, err := tr.Field("episode")
		require.NoError(t, err)
		assert.Equal(t, id, v.Opaque())

		stepField, err := tr.Field("step")
		require.NoError(t, err)
		idx, err := stepField.Array().Item()
		require.NoError(t, err)
		assert.Equal(t, float64(i), idx)

		done, err := tr.Done().Array().Item()
		require.NoError(t, err)
		if i == 4 {
			assert.Equal(t, 1.0, done)
		} else {
			assert.Equal(t, 0.0, done)
		}
	}
}

func TestGenerator_Fill(t *testing.T) {
	gen := newTestGenerator(7)
	replay := experience.New(experience.WithSeed(7))

	added, err := gen.Fill(replay, 12)
	require.NoError(t, err)
	// Fill rounds up to whole episodes.
	assert.Equal(t, 15, added)
	assert.Equal(t, 15, replay.Len())
	assert.Equal(t, 3, replay.Stats().Episodes)
}

func TestGenerator_FillParallel(t *testing.T) {
	gen := newTestGenerator(7)
	replay := experience.New(experience.WithSeed(7))

	added, err := gen.FillParallel(replay, 40, 4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, added, 40)
	assert.Equal(t, added, replay.Len())
	// Merging happens per episode, so only whole episodes land.
	assert.Equal(t, 0, replay.Len()%5)
	assert.Equal(t, replay.Len()/5, replay.Stats().Episodes)

	out, err := replay.Sample(experience.SampleConfig{Size: 1, Episodes: true})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Len())
}

func TestGenerator_FillVectorized(t *testing.T) {
	gen := newTestGenerator(7)
	replay := experience.New(experience.WithVectorized(true), experience.WithSeed(7))

	require.NoError(t, gen.FillVectorized(replay, 6, 3))
	assert.Equal(t, 6, replay.Len())
	assert.Equal(t, []int{3, 3}, replay.At(0).State().Array().Shape())
	assert.Equal(t, []int{3, 1}, replay.At(0).Done().Array().Shape())

	flat, err := replay.Flatten()
	require.NoError(t, err)
	assert.Equal(t, 18, flat.Len())

	// The final step closes every environment.
	assert.GreaterOrEqual(t, replay.Stats().Episodes, 3)
}

func TestGenerator_Deterministic(t *testing.T) {
	a := experience.New(experience.WithSeed(1))
	b := experience.New(experience.WithSeed(1))
	_, err := newTestGenerator(7).Fill(a, 10)
	require.NoError(t, err)
	_, err = newTestGenerator(7).Fill(b, 10)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		assert.Equal(t, a.At(i).State().Array().Float64s(), b.At(i).State().Array().Float64s())
		assert.Equal(t, a.At(i).Reward().Array().Float64s(), b.At(i).Reward().Array().Float64s())
	}
}
