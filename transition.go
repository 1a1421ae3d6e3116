package experience

import (
	"fmt"
	"strings"

	"github.com/cartridge/experience/numeric"
)

// Names of the five core fields every transition carries.
const (
	FieldState     = "state"
	FieldAction    = "action"
	FieldReward    = "reward"
	FieldNextState = "next_state"
	FieldDone      = "done"
)

var coreFields = []string{FieldState, FieldAction, FieldReward, FieldNextState, FieldDone}

// Transition is a single step of agent experience: the five core fields
// plus any number of auxiliary fields in the order they were attached.
// Transitions are immutable; device and precision changes produce new
// records that share array data where possible.
type Transition struct {
	fields []string
	values map[string]Value
	device numeric.Device
}

// TransitionOption configures a transition at construction time.
type TransitionOption func(*Transition)

// WithExtra attaches an auxiliary field. Attaching a name twice keeps its
// original position and overwrites the value.
func WithExtra(name string, v Value) TransitionOption {
	return func(t *Transition) { t.setField(name, v) }
}

// OnDevice tags the transition with a device placement.
func OnDevice(d numeric.Device) TransitionOption {
	return func(t *Transition) { t.device = d }
}

// NewTransition builds a transition from the five core field values.
func NewTransition(state, action, reward, nextState, done Value, opts ...TransitionOption) *Transition {
	t := &Transition{
		fields: append([]string(nil), coreFields...),
		values: map[string]Value{
			FieldState:     state,
			FieldAction:    action,
			FieldReward:    reward,
			FieldNextState: nextState,
			FieldDone:      done,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transition) setField(name string, v Value) {
	if _, ok := t.values[name]; !ok {
		t.fields = append(t.fields, name)
	}
	t.values[name] = v
}

// Fields returns the field names in order: core fields first, then
// auxiliary fields as attached.
func (t *Transition) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Field returns the named field value.
func (t *Transition) Field(name string) (Value, error) {
	v, ok := t.values[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	return v, nil
}

// State returns the pre-step observation.
func (t *Transition) State() Value { return t.values[FieldState] }

// Action returns the action taken.
func (t *Transition) Action() Value { return t.values[FieldAction] }

// Reward returns the reward received.
func (t *Transition) Reward() Value { return t.values[FieldReward] }

// NextState returns the post-step observation.
func (t *Transition) NextState() Value { return t.values[FieldNextState] }

// Done returns the terminal flag.
func (t *Transition) Done() Value { return t.values[FieldDone] }

// Device returns the placement tag, empty when unplaced.
func (t *Transition) Device() numeric.Device { return t.device }

func (t *Transition) apply(fn func(Value) Value, device numeric.Device) *Transition {
	out := &Transition{
		fields: append([]string(nil), t.fields...),
		values: make(map[string]Value, len(t.values)),
		device: device,
	}
	for name, v := range t.values {
		out.values[name] = fn(v)
	}
	return out
}

// Transfer returns a copy with array fields moved to device and cast to
// the requested precision. An empty device keeps the current placement;
// opaque fields are carried unchanged.
func (t *Transition) Transfer(device numeric.Device, p numeric.Precision) *Transition {
	target := t.device
	if device != "" {
		target = device
	}
	return t.apply(func(v Value) Value {
		if !v.IsArray() {
			return v
		}
		arr := v.Array()
		if device != "" {
			arr = arr.To(device)
		}
		return ArrayValue(arr.Cast(p))
	}, target)
}

// ToCPU returns a copy placed on the host device.
func (t *Transition) ToCPU() *Transition {
	return t.Transfer(numeric.CPU, numeric.KeepPrecision)
}

// ToAccelerator returns a copy placed on the index-th accelerator.
func (t *Transition) ToAccelerator(index int) *Transition {
	return t.Transfer(numeric.Accelerator(index), numeric.KeepPrecision)
}

// Half returns a copy with float64 fields cast to float32.
func (t *Transition) Half() *Transition {
	return t.Transfer("", numeric.SinglePrecision)
}

// Double returns a copy with float32 fields cast to float64.
func (t *Transition) Double() *Transition {
	return t.Transfer("", numeric.DoublePrecision)
}

// Equal reports whether two transitions carry the same fields, values and
// device tag.
func (t *Transition) Equal(other *Transition) bool {
	if other == nil || t.device != other.device || len(t.fields) != len(other.fields) {
		return false
	}
	for i, name := range t.fields {
		if other.fields[i] != name {
			return false
		}
		if !t.values[name].Equal(other.values[name]) {
			return false
		}
	}
	return true
}

func (t *Transition) String() string {
	if t.device == "" {
		return fmt.Sprintf("Transition(fields=[%s])", strings.Join(t.fields, " "))
	}
	return fmt.Sprintf("Transition(fields=[%s], device=%s)", strings.Join(t.fields, " "), t.device)
}
