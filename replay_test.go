package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/experience/numeric"
)

// appendSteps records one flat transition per reward, with state vectors
// carrying the step index in their first component.
func appendSteps(t *testing.T, r *Replay, rewards []float64, dones []bool) {
	t.Helper()
	for i := range rewards {
		state := []float64{float64(i), 0}
		next := []float64{float64(i + 1), 0}
		err := r.Append(state, i%2, rewards[i], next, dones[i])
		require.NoError(t, err)
	}
}

// stepOf reads the step index back out of a record appended by
// appendSteps.
func stepOf(t *testing.T, tr *Transition) int {
	t.Helper()
	v, err := tr.State().Array().Item()
	require.NoError(t, err)
	return int(v)
}

func TestReplay_Append(t *testing.T) {
	r := New(WithSeed(42))
	appendSteps(t, r, []float64{1, 2, 3}, []bool{false, false, true})

	assert.Equal(t, 3, r.Len())
	first := r.At(0)
	assert.Equal(t, []int{2}, first.State().Array().Shape())
	assert.Equal(t, []int{1}, first.Reward().Array().Shape())
	assert.Equal(t, numeric.Uint8, first.Done().Array().Kind())

	done, err := r.At(2).Done().Array().Item()
	require.NoError(t, err)
	assert.Equal(t, 1.0, done)
}

func TestReplay_AppendExtras(t *testing.T) {
	r := New(WithSeed(42))
	err := r.Append(
		[]float64{0, 0}, 1, 0.5, []float64{1, 0}, false,
		Extra{Name: "log_prob", Value: -0.7},
		Extra{Name: "episode", Value: "ep-1"},
	)
	require.NoError(t, err)

	tr := r.At(0)
	assert.Equal(t, []string{"state", "action", "reward", "next_state", "done", "log_prob", "episode"}, tr.Fields())

	v, err := tr.Field("log_prob")
	require.NoError(t, err)
	assert.True(t, v.IsArray())

	v, err = tr.Field("episode")
	require.NoError(t, err)
	assert.Equal(t, "ep-1", v.Opaque())
}

func TestReplay_AppendError(t *testing.T) {
	r := New(WithSeed(42))
	err := r.Append("not numeric", 1, 0.5, []float64{1}, false)
	assert.ErrorIs(t, err, numeric.ErrNotConvertible)
	assert.Contains(t, err.Error(), "append state")
	assert.Equal(t, 0, r.Len())
}

func TestReplay_AppendVectorized(t *testing.T) {
	r := New(WithVectorized(true), WithSeed(42))
	err := r.Append(
		[][]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}},
		[]int{0, 1, 0, 1},
		[]float64{0.1, 0.2, 0.3, 0.4},
		[][]float64{{1, 0, 0}, {2, 1, 1}, {3, 2, 2}, {4, 3, 3}},
		[]bool{false, false, true, false},
	)
	require.NoError(t, err)

	tr := r.At(0)
	assert.Equal(t, []int{4, 3}, tr.State().Array().Shape())
	assert.Equal(t, []int{4, 1}, tr.Action().Array().Shape())
	assert.Equal(t, []int{4, 1}, tr.Reward().Array().Shape())
	assert.Equal(t, []int{4, 1}, tr.Done().Array().Shape())
}

func TestReplay_AppendOnDevice(t *testing.T) {
	r := New(WithDevice(numeric.Accelerator(0)), WithSeed(42))
	appendSteps(t, r, []float64{1}, []bool{false})

	tr := r.At(0)
	assert.Equal(t, numeric.Accelerator(0), tr.Device())
	assert.Equal(t, numeric.Accelerator(0), tr.State().Array().Device())
}

func TestReplay_Capacity(t *testing.T) {
	r := New(WithCapacity(3), WithSeed(42))
	appendSteps(t, r, []float64{1, 2, 3, 4, 5}, make([]bool, 5))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Capacity())
	// The two oldest records were evicted.
	assert.Equal(t, 2, stepOf(t, r.At(0)))
	assert.Equal(t, 4, stepOf(t, r.At(2)))
}

func TestReplay_FieldBatch(t *testing.T) {
	r := New(WithSeed(42))
	appendSteps(t, r, []float64{1, 2, 3, 4}, make([]bool, 4))

	states, err := r.States()
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, states.Shape())

	rewards, err := r.Rewards()
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1}, rewards.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, rewards.Float64s())

	dones, err := r.Dones()
	require.NoError(t, err)
	assert.Equal(t, numeric.Uint8, dones.Kind())

	_, err = r.FieldBatch("advantage")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestReplay_FieldBatchEmpty(t *testing.T) {
	r := New(WithSeed(42))
	_, err := r.States()
	assert.ErrorIs(t, err, ErrEmptyReplay)
}

func TestReplay_FieldBatchOpaque(t *testing.T) {
	r := New(WithSeed(42))
	err := r.Append([]float64{0}, 0, 0.0, []float64{1}, false, Extra{Name: "episode", Value: "ep-1"})
	require.NoError(t, err)

	_, err = r.FieldBatch("episode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")

	values, err := r.FieldValues("episode")
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "ep-1", values[0].Opaque())
}

func TestReplay_Slice(t *testing.T) {
	r := New(WithSeed(42), WithDevice(numeric.CPU))
	appendSteps(t, r, []float64{1, 2, 3, 4, 5}, make([]bool, 5))

	s, err := r.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, numeric.CPU, s.Device())
	// Records are shared, not copied.
	assert.Same(t, r.At(1), s.At(0))
	assert.Same(t, r.At(3), s.At(2))

	empty, err := r.Slice(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = r.Slice(3, 8)
	assert.Error(t, err)
	_, err = r.Slice(-1, 2)
	assert.Error(t, err)
	_, err = r.Slice(4, 2)
	assert.Error(t, err)
}

func TestReplay_Concat(t *testing.T) {
	a := New(WithSeed(1), WithDevice(numeric.Accelerator(0)))
	appendSteps(t, a, []float64{1, 2}, make([]bool, 2))
	b := New(WithSeed(2))
	appendSteps(t, b, []float64{3}, make([]bool, 1))

	c, err := a.Concat(b)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	// The result keeps the left operand's device.
	assert.Equal(t, numeric.Accelerator(0), c.Device())
	assert.Same(t, a.At(0), c.At(0))
	assert.Same(t, b.At(0), c.At(2))
	// The sources are unchanged.
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())

	_, err = a.Concat(New(WithVectorized(true)))
	assert.ErrorIs(t, err, ErrIncompatibleReplays)
}

func TestReplay_Extend(t *testing.T) {
	a := New(WithSeed(1), WithCapacity(3))
	appendSteps(t, a, []float64{1, 2}, make([]bool, 2))
	b := New(WithSeed(2))
	appendSteps(t, b, []float64{3, 4}, make([]bool, 2))

	require.NoError(t, a.Extend(b))
	// Capacity still applies: the oldest record was evicted.
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 1, stepOf(t, a.At(0)))
	assert.Same(t, b.At(1), a.At(2))

	err := a.Extend(New(WithVectorized(true)))
	assert.ErrorIs(t, err, ErrIncompatibleReplays)
}

func TestReplay_Empty(t *testing.T) {
	r := New(WithSeed(42), WithCapacity(10), WithVectorized(false), WithDevice(numeric.CPU))
	appendSteps(t, r, []float64{1, 2, 3}, make([]bool, 3))

	r.Empty()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 10, r.Capacity())
	assert.Equal(t, numeric.CPU, r.Device())

	// The buffer stays usable after clearing.
	appendSteps(t, r, []float64{4}, make([]bool, 1))
	assert.Equal(t, 1, r.Len())
}

func TestReplay_Transfer(t *testing.T) {
	r := New(WithSeed(42))
	appendSteps(t, r, []float64{1, 2}, make([]bool, 2))

	moved := r.ToAccelerator(1)
	assert.Equal(t, numeric.Accelerator(1), moved.Device())
	assert.Equal(t, numeric.Accelerator(1), moved.At(0).Device())
	assert.Equal(t, numeric.Accelerator(1), moved.At(0).State().Array().Device())
	// The source keeps its records untouched.
	assert.Equal(t, numeric.Device(""), r.Device())
	assert.Equal(t, numeric.Device(""), r.At(0).Device())

	back := moved.ToCPU()
	assert.Equal(t, numeric.CPU, back.Device())
	// Transferring to the same device again changes nothing.
	assert.True(t, back.At(0).Equal(back.ToCPU().At(0)))
}

func TestReplay_HalfDouble(t *testing.T) {
	r := New(WithSeed(42), WithDevice(numeric.Accelerator(0)))
	appendSteps(t, r, []float64{1, 2}, make([]bool, 2))

	half := r.Half()
	assert.Equal(t, numeric.Float32, half.At(0).State().Array().Kind())
	assert.Equal(t, numeric.Int, half.At(0).Action().Array().Kind())
	// Precision casts keep the device.
	assert.Equal(t, numeric.Accelerator(0), half.Device())

	double := half.Double()
	assert.Equal(t, numeric.Float64, double.At(0).State().Array().Kind())
	assert.Equal(t, []float64{0, 0}, double.At(0).State().Array().Float64s())
}

func TestReplay_Flatten(t *testing.T) {
	r := New(WithVectorized(true), WithSeed(42), WithDevice(numeric.CPU))
	for step := 0; step < 2; step++ {
		err := r.Append(
			[][]float64{{1, 1}, {2, 2}, {3, 3}},
			[]int{0, 1, 0},
			[]float64{0.1, 0.2, 0.3},
			[][]float64{{1, 2}, {2, 3}, {3, 4}},
			[]bool{false, true, false},
		)
		require.NoError(t, err)
	}

	flat, err := r.Flatten()
	require.NoError(t, err)
	assert.Equal(t, 6, flat.Len())
	assert.False(t, flat.Vectorized())
	assert.Equal(t, numeric.Device(""), flat.Device())

	child := flat.At(1)
	assert.Equal(t, []int{1, 2}, child.State().Array().Shape())
	assert.Equal(t, []int{1, 1}, child.Reward().Array().Shape())
	assert.Equal(t, []float64{2, 2}, child.State().Array().Float64s())
	assert.Equal(t, []float64{0.2}, child.Reward().Array().Float64s())
	done, err := child.Done().Array().Item()
	require.NoError(t, err)
	assert.Equal(t, 1.0, done)

	// Flat buffers flatten to themselves.
	again, err := flat.Flatten()
	require.NoError(t, err)
	assert.Same(t, flat, again)
}

func TestReplay_All(t *testing.T) {
	r := New(WithSeed(42))
	appendSteps(t, r, []float64{1, 2, 3}, make([]bool, 3))

	var steps []int
	for tr := range r.All() {
		steps = append(steps, stepOf(t, tr))
	}
	assert.Equal(t, []int{0, 1, 2}, steps)

	count := 0
	for range r.All() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestReplay_WithTransitions(t *testing.T) {
	records := []*Transition{
		newTestTransition(t),
		newTestTransition(t),
		newTestTransition(t),
	}
	r := New(WithTransitions(records...), WithCapacity(2), WithSeed(42))

	// Capacity is enforced at construction regardless of option order.
	assert.Equal(t, 2, r.Len())
	assert.Same(t, records[1], r.At(0))
}
