package experience

import (
	"gonum.org/v1/gonum/stat"

	"github.com/cartridge/experience/numeric"
)

// transitionOverhead approximates the per-record bookkeeping cost beyond
// array payloads.
const transitionOverhead = 100

// Stats summarizes buffer contents.
type Stats struct {
	Transitions  int
	Episodes     int
	RewardMean   float64
	RewardStd    float64
	StorageBytes uint64
	Vectorized   bool
	Device       numeric.Device
}

// Stats computes summary statistics over the stored records. Episodes
// counts terminal flags, per environment on vectorized buffers, and the
// reward moments cover every reward element.
func (r *Replay) Stats() Stats {
	records := r.snapshot()
	s := Stats{
		Transitions: len(records),
		Vectorized:  r.vectorized,
		Device:      r.device,
	}

	var rewards []float64
	for _, t := range records {
		s.StorageBytes += transitionOverhead
		for _, name := range t.fields {
			if v := t.values[name]; v.IsArray() {
				s.StorageBytes += v.Array().NumBytes()
			}
		}
		if done := t.Done(); done.IsArray() {
			for _, flag := range done.Array().Float64s() {
				if flag != 0 {
					s.Episodes++
				}
			}
		}
		if reward := t.Reward(); reward.IsArray() {
			rewards = append(rewards, reward.Array().Float64s()...)
		}
	}

	if len(rewards) > 0 {
		s.RewardMean = stat.Mean(rewards, nil)
	}
	if len(rewards) > 1 {
		s.RewardStd = stat.StdDev(rewards, nil)
	}
	return s
}
