package experience

import (
	"fmt"
	"math/rand"
)

// SampleConfig selects a sampling policy.
type SampleConfig struct {
	// Size is the number of records to draw, or the number of complete
	// episodes when Episodes is set.
	Size int
	// Contiguous draws consecutive records rather than independent ones.
	Contiguous bool
	// Episodes draws whole episodes instead of single records.
	Episodes bool
}

// Sample draws records according to cfg into a new buffer that shares
// the records with the source, keeps its layout and carries no device
// tag. An empty buffer or Size < 1 yields an empty buffer.
//
// By default Size records are drawn uniformly with replacement.
// Contiguous draws one uniformly placed run of Size consecutive records,
// never reaching the newest one. Episodes draws Size complete episodes,
// independent ones by default and consecutive ones when Contiguous is
// also set; vectorized buffers cannot be episode sampled.
func (r *Replay) Sample(cfg SampleConfig) (*Replay, error) {
	records := r.snapshot()
	if len(records) < 1 || cfg.Size < 1 {
		return r.deriveWith(nil, r.vectorized, ""), nil
	}
	if cfg.Episodes && r.vectorized {
		return nil, fmt.Errorf("%w: flatten the buffer first", ErrVectorizedSample)
	}

	r.mu.Lock()
	indices, err := r.selectIndices(records, cfg)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	selected := make([]*Transition, len(indices))
	for i, idx := range indices {
		selected[i] = records[idx]
	}
	return r.deriveWith(selected, r.vectorized, ""), nil
}

// selectIndices draws record indices per cfg. The caller must hold mu,
// which guards the sampling source.
func (r *Replay) selectIndices(records []*Transition, cfg SampleConfig) ([]int, error) {
	if cfg.Episodes {
		terminals, err := terminalFlags(records)
		if err != nil {
			return nil, err
		}
		if cfg.Size > 1 && !cfg.Contiguous {
			var indices []int
			for i := 0; i < cfg.Size; i++ {
				run, err := episodeRun(terminals, 1, r.rng)
				if err != nil {
					return nil, err
				}
				indices = append(indices, run...)
			}
			return indices, nil
		}
		return episodeRun(terminals, cfg.Size, r.rng)
	}

	length := len(records) - 1
	if cfg.Contiguous {
		if length-cfg.Size < 0 {
			return nil, fmt.Errorf("%w: a contiguous run of %d needs at least %d records", ErrRangeExhausted, cfg.Size, cfg.Size+1)
		}
		start := r.rng.Intn(length - cfg.Size + 1)
		indices := make([]int, cfg.Size)
		for i := range indices {
			indices[i] = start + i
		}
		return indices, nil
	}

	indices := make([]int, cfg.Size)
	for i := range indices {
		indices[i] = r.rng.Intn(length + 1)
	}
	return indices, nil
}

// episodeRun picks size consecutive complete episodes uniformly and
// returns their record indices, oldest first.
func episodeRun(terminals []bool, size int, rng *rand.Rand) ([]int, error) {
	numEpisodes := 0
	for _, done := range terminals {
		if done {
			numEpisodes++
		}
	}
	lo, hi := size-1, numEpisodes-size
	if hi < lo {
		return nil, fmt.Errorf("%w: %d complete episodes cannot serve an episode sample of %d", ErrRangeExhausted, numEpisodes, size)
	}
	// end is how many complete episodes at the tail to skip before the
	// sampled run.
	end := lo + rng.Intn(hi-lo+1)

	endIdx := -1
	count := 0
	for i := len(terminals) - 1; i >= 0; i-- {
		if terminals[i] {
			count++
			if count > end {
				endIdx = i
				break
			}
		}
	}
	if endIdx < 0 {
		return nil, fmt.Errorf("%w: %d complete episodes cannot serve an episode sample of %d", ErrRangeExhausted, numEpisodes, size)
	}

	start := 0
	count = 0
	for i := endIdx - 1; i >= 0; i-- {
		if terminals[i] {
			count++
			if count >= size {
				start = i + 1
				break
			}
		}
	}

	indices := make([]int, 0, endIdx-start+1)
	for i := start; i <= endIdx; i++ {
		indices = append(indices, i)
	}
	return indices, nil
}

// terminalFlags reads the done flag of every record.
func terminalFlags(records []*Transition) ([]bool, error) {
	flags := make([]bool, len(records))
	for i, t := range records {
		done := t.Done()
		if !done.IsArray() {
			return nil, fmt.Errorf("experience: record %d: done field is not numeric", i)
		}
		v, err := done.Array().Item()
		if err != nil {
			return nil, fmt.Errorf("experience: record %d: %w", i, err)
		}
		flags[i] = v != 0
	}
	return flags, nil
}
