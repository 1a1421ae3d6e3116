package experience

import (
	"fmt"
	"iter"
	"math/rand"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/cartridge/experience/numeric"
)

// Replay is an experience buffer: an ordered collection of transitions
// with sampling, batched field access, device transfer and persistence.
// All methods are safe for concurrent use.
type Replay struct {
	mu      sync.RWMutex
	records *deque.Deque[*Transition]
	rng     *rand.Rand

	vectorized bool
	device     numeric.Device
	capacity   int
}

// Option configures a buffer at construction time.
type Option func(*Replay)

// WithVectorized marks the buffer as holding batched per-environment
// records. The leading axis of each appended state sizes the environment
// batch, and action, reward and done are reshaped to match.
func WithVectorized(vectorized bool) Option {
	return func(r *Replay) { r.vectorized = vectorized }
}

// WithDevice places the buffer: appended records are transferred to d.
func WithDevice(d numeric.Device) Option {
	return func(r *Replay) { r.device = d }
}

// WithCapacity bounds the buffer to n records, evicting the oldest when
// full. Zero or negative means unbounded.
func WithCapacity(n int) Option {
	return func(r *Replay) { r.capacity = n }
}

// WithSeed seeds the sampling source, fixing the sample sequence.
func WithSeed(seed int64) Option {
	return func(r *Replay) { r.rng = rand.New(rand.NewSource(seed)) }
}

// WithRand supplies the sampling source directly.
func WithRand(rng *rand.Rand) Option {
	return func(r *Replay) { r.rng = rng }
}

// WithTransitions preloads records, oldest first.
func WithTransitions(records ...*Transition) Option {
	return func(r *Replay) {
		for _, t := range records {
			r.records.PushBack(t)
		}
	}
}

// New creates a replay buffer.
func New(opts ...Option) *Replay {
	r := &Replay{
		records: deque.New[*Transition](),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.trim()
	return r
}

// push appends one record. The caller must hold mu.
func (r *Replay) push(t *Transition) {
	r.records.PushBack(t)
	r.trim()
}

func (r *Replay) trim() {
	if r.capacity <= 0 {
		return
	}
	for r.records.Len() > r.capacity {
		r.records.PopFront()
	}
}

// snapshot copies the current record pointers for lock-free traversal.
func (r *Replay) snapshot() []*Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Transition, r.records.Len())
	for i := range out {
		out[i] = r.records.At(i)
	}
	return out
}

// derive creates an empty buffer whose sampling source is seeded from the
// parent, so seeded parents produce deterministic children. Derived
// buffers are unbounded.
func (r *Replay) derive(vectorized bool, device numeric.Device) *Replay {
	r.mu.Lock()
	seed := r.rng.Int63()
	r.mu.Unlock()
	return New(WithVectorized(vectorized), WithDevice(device), WithSeed(seed))
}

func (r *Replay) deriveWith(records []*Transition, vectorized bool, device numeric.Device) *Replay {
	out := r.derive(vectorized, device)
	for _, t := range records {
		out.records.PushBack(t)
	}
	return out
}

// Len returns the number of stored records.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records.Len()
}

// At returns the i-th oldest record. It panics when i is out of range,
// matching slice indexing.
func (r *Replay) At(i int) *Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records.At(i)
}

// Vectorized reports whether the buffer holds batched per-environment
// records.
func (r *Replay) Vectorized() bool { return r.vectorized }

// Device returns the buffer placement, empty when unplaced.
func (r *Replay) Device() numeric.Device { return r.device }

// Capacity returns the record bound, zero when unbounded.
func (r *Replay) Capacity() int { return r.capacity }

// All iterates the records oldest first over a point-in-time copy, so
// the buffer may be mutated during iteration.
func (r *Replay) All() iter.Seq[*Transition] {
	records := r.snapshot()
	return func(yield func(*Transition) bool) {
		for _, t := range records {
			if !yield(t) {
				return
			}
		}
	}
}

// Extra names an auxiliary value recorded alongside the core fields.
type Extra struct {
	Name  string
	Value any
}

// Append records one step of experience. Core fields must be array
// convertible; extras are converted when possible and stored opaque
// otherwise. When the buffer is placed on a device the new record is
// transferred to it.
func (r *Replay) Append(state, action, reward, nextState, done any, extras ...Extra) error {
	stateArr, err := numeric.FromValue(state)
	if err != nil {
		return fmt.Errorf("experience: append state: %w", err)
	}
	actionArr, err := numeric.FromValue(action)
	if err != nil {
		return fmt.Errorf("experience: append action: %w", err)
	}
	rewardArr, err := numeric.FromValue(reward)
	if err != nil {
		return fmt.Errorf("experience: append reward: %w", err)
	}
	nextArr, err := numeric.FromValue(nextState)
	if err != nil {
		return fmt.Errorf("experience: append next_state: %w", err)
	}
	doneArr, err := numeric.FromValue(done)
	if err != nil {
		return fmt.Errorf("experience: append done: %w", err)
	}

	if r.vectorized {
		numEnvs := stateArr.Shape()[0]
		if actionArr, err = actionArr.Reshape(numEnvs, -1); err != nil {
			return fmt.Errorf("experience: append action: %w", err)
		}
		if rewardArr, err = rewardArr.Reshape(numEnvs, -1); err != nil {
			return fmt.Errorf("experience: append reward: %w", err)
		}
		if doneArr, err = doneArr.Reshape(numEnvs, -1); err != nil {
			return fmt.Errorf("experience: append done: %w", err)
		}
	}

	opts := make([]TransitionOption, 0, len(extras))
	for _, extra := range extras {
		opts = append(opts, WithExtra(extra.Name, ValueOf(extra.Value)))
	}
	t := NewTransition(
		ArrayValue(stateArr),
		ArrayValue(actionArr),
		ArrayValue(rewardArr),
		ArrayValue(nextArr),
		ArrayValue(doneArr),
		opts...,
	)
	if r.device != "" {
		t = t.Transfer(r.device, numeric.KeepPrecision)
	}

	r.mu.Lock()
	r.push(t)
	r.mu.Unlock()
	return nil
}

// FieldBatch stacks the named field of every record along a new leading
// axis, yielding shape (len, fieldShape...).
func (r *Replay) FieldBatch(name string) (*numeric.Array, error) {
	records := r.snapshot()
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: batching field %q", ErrEmptyReplay, name)
	}
	arrays := make([]*numeric.Array, len(records))
	for i, t := range records {
		v, err := t.Field(name)
		if err != nil {
			return nil, fmt.Errorf("experience: record %d: %w", i, err)
		}
		if !v.IsArray() {
			return nil, fmt.Errorf("experience: field %q is not numeric", name)
		}
		arrays[i] = v.Array()
	}
	batch, err := numeric.Stack(arrays)
	if err != nil {
		return nil, fmt.Errorf("experience: batching field %q: %w", name, err)
	}
	return batch, nil
}

// States batches the state field of every record.
func (r *Replay) States() (*numeric.Array, error) { return r.FieldBatch(FieldState) }

// Actions batches the action field of every record.
func (r *Replay) Actions() (*numeric.Array, error) { return r.FieldBatch(FieldAction) }

// Rewards batches the reward field of every record.
func (r *Replay) Rewards() (*numeric.Array, error) { return r.FieldBatch(FieldReward) }

// NextStates batches the next state field of every record.
func (r *Replay) NextStates() (*numeric.Array, error) { return r.FieldBatch(FieldNextState) }

// Dones batches the terminal flag of every record.
func (r *Replay) Dones() (*numeric.Array, error) { return r.FieldBatch(FieldDone) }

// FieldValues returns the named field of every record in order, without
// stacking. Unlike FieldBatch it works for opaque fields.
func (r *Replay) FieldValues(name string) ([]Value, error) {
	records := r.snapshot()
	out := make([]Value, len(records))
	for i, t := range records {
		v, err := t.Field(name)
		if err != nil {
			return nil, fmt.Errorf("experience: record %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Slice returns a new buffer holding records [from, to). The records are
// shared and the layout and device of the source are kept.
func (r *Replay) Slice(from, to int) (*Replay, error) {
	records := r.snapshot()
	if from < 0 || to < from || to > len(records) {
		return nil, fmt.Errorf("experience: slice bounds [%d:%d) out of range for %d records", from, to, len(records))
	}
	return r.deriveWith(records[from:to], r.vectorized, r.device), nil
}

// Concat returns a new buffer holding the receiver's records followed by
// other's. The result keeps the receiver's device and layout; both inputs
// must agree on vectorization.
func (r *Replay) Concat(other *Replay) (*Replay, error) {
	if r.vectorized != other.vectorized {
		return nil, fmt.Errorf("%w: cannot concat vectorized=%t with vectorized=%t", ErrIncompatibleReplays, r.vectorized, other.vectorized)
	}
	records := append(r.snapshot(), other.snapshot()...)
	return r.deriveWith(records, r.vectorized, r.device), nil
}

// Extend appends other's records to the receiver. Records keep their own
// device tags; both buffers must agree on vectorization.
func (r *Replay) Extend(other *Replay) error {
	if r.vectorized != other.vectorized {
		return fmt.Errorf("%w: cannot extend vectorized=%t with vectorized=%t", ErrIncompatibleReplays, r.vectorized, other.vectorized)
	}
	records := other.snapshot()
	r.mu.Lock()
	for _, t := range records {
		r.push(t)
	}
	r.mu.Unlock()
	return nil
}

// Empty discards all records, keeping layout, device, capacity and the
// sampling source.
func (r *Replay) Empty() {
	r.mu.Lock()
	r.records.Clear()
	r.mu.Unlock()
}

// Transfer returns a new buffer with every record moved to device and
// cast to the requested precision. An empty device keeps current
// placements.
func (r *Replay) Transfer(device numeric.Device, p numeric.Precision) *Replay {
	target := r.device
	if device != "" {
		target = device
	}
	records := r.snapshot()
	moved := make([]*Transition, len(records))
	for i, t := range records {
		moved[i] = t.Transfer(device, p)
	}
	return r.deriveWith(moved, r.vectorized, target)
}

// ToCPU returns a copy of the buffer placed on the host device.
func (r *Replay) ToCPU() *Replay {
	return r.Transfer(numeric.CPU, numeric.KeepPrecision)
}

// ToAccelerator returns a copy of the buffer placed on the index-th
// accelerator.
func (r *Replay) ToAccelerator(index int) *Replay {
	return r.Transfer(numeric.Accelerator(index), numeric.KeepPrecision)
}

// Half returns a copy with float64 fields cast to float32.
func (r *Replay) Half() *Replay {
	return r.Transfer("", numeric.SinglePrecision)
}

// Double returns a copy with float32 fields cast to float64.
func (r *Replay) Double() *Replay {
	return r.Transfer("", numeric.DoublePrecision)
}

// Flatten splits a vectorized buffer into a flat one: each record becomes
// one record per environment, in environment order within each step. The
// result and its records carry no device tag. Flat buffers are returned
// unchanged.
func (r *Replay) Flatten() (*Replay, error) {
	if !r.vectorized {
		return r, nil
	}
	records := r.snapshot()
	var flat []*Transition
	for i, t := range records {
		done := t.Done()
		if !done.IsArray() {
			return nil, fmt.Errorf("experience: flatten record %d: done field is not numeric", i)
		}
		numEnvs := done.Array().Shape()[0]
		for env := 0; env < numEnvs; env++ {
			child, err := splitRecord(t, env)
			if err != nil {
				return nil, fmt.Errorf("experience: flatten record %d: %w", i, err)
			}
			flat = append(flat, child)
		}
	}
	return r.deriveWith(flat, false, ""), nil
}

// splitRecord extracts environment env from a vectorized record, keeping
// a singleton leading axis on array fields and carrying opaque fields to
// the child unchanged.
func splitRecord(t *Transition, env int) (*Transition, error) {
	out := &Transition{
		fields: append([]string(nil), t.fields...),
		values: make(map[string]Value, len(t.values)),
	}
	for name, v := range t.values {
		if !v.IsArray() {
			out.values[name] = v
			continue
		}
		row, err := v.Array().Row(env)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out.values[name] = ArrayValue(row)
	}
	return out, nil
}

func (r *Replay) String() string {
	if r.device == "" {
		return fmt.Sprintf("Replay(len=%d, vectorized=%t)", r.Len(), r.vectorized)
	}
	return fmt.Sprintf("Replay(len=%d, vectorized=%t, device=%s)", r.Len(), r.vectorized, r.device)
}
