// Package rollout generates synthetic random-walk episodes for filling
// replay buffers.
package rollout

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cartridge/experience"
)

// Config shapes the generated episodes.
type Config struct {
	// StateDim is the length of generated state vectors.
	StateDim int
	// NumActions is the size of the discrete action space.
	NumActions int
	// Horizon caps the episode length.
	Horizon int
	// StopProb is the chance that an episode ends at each step before
	// the horizon.
	StopProb float64
}

// Generator produces random-walk episodes.
type Generator struct {
	cfg    Config
	rng    *rand.Rand
	logger zerolog.Logger
}

// New creates a generator. The seed fixes the generated trajectories.
func New(cfg Config, seed int64, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger,
	}
}

// Episode plays one episode into replay and returns the number of
// recorded steps. Every step carries the episode id and step index as
// auxiliary fields.
func (g *Generator) Episode(replay *experience.Replay) (int, error) {
	return g.episode(replay, g.rng)
}

func (g *Generator) episode(replay *experience.Replay, rng *rand.Rand) (int, error) {
	episodeID := uuid.NewString()
	state := g.initialState(rng)
	steps := 0
	for {
		action := rng.Intn(g.cfg.NumActions)
		next := g.step(state, action, rng)
		reward := next[0] - state[0]
		done := steps+1 >= g.cfg.Horizon || rng.Float64() < g.cfg.StopProb

		err := replay.Append(state, action, reward, next, done,
			experience.Extra{Name: "episode", Value: episodeID},
			experience.Extra{Name: "step", Value: steps},
		)
		if err != nil {
			return steps, fmt.Errorf("rollout: append step %d: %w", steps, err)
		}
		steps++
		if done {
			break
		}
		state = next
	}
	g.logger.Debug().Str("episode", episodeID).Int("steps", steps).Msg("episode recorded")
	return steps, nil
}

func (g *Generator) initialState(rng *rand.Rand) []float64 {
	state := make([]float64, g.cfg.StateDim)
	for i := range state {
		state[i] = rng.NormFloat64()
	}
	return state
}

// step applies a signed random walk: even actions push the leading
// component up, odd ones down. The reward of a step is the change in the
// leading component.
func (g *Generator) step(state []float64, action int, rng *rand.Rand) []float64 {
	next := make([]float64, len(state))
	copy(next, state)
	direction := 1.0
	if action%2 == 1 {
		direction = -1
	}
	next[0] += direction * rng.Float64()
	for i := 1; i < len(next); i++ {
		next[i] += 0.1 * rng.NormFloat64()
	}
	return next
}

// Fill plays episodes until replay has grown by at least n records and
// returns the number added.
func (g *Generator) Fill(replay *experience.Replay, n int) (int, error) {
	added := 0
	episodes := 0
	for added < n {
		steps, err := g.Episode(replay)
		if err != nil {
			return added, err
		}
		added += steps
		episodes++
	}
	g.logger.Info().Int("episodes", episodes).Int("transitions", added).Msg("rollout complete")
	return added, nil
}

// FillParallel runs workers concurrent generators, each playing episodes
// into a private buffer that is merged into replay on completion, until
// at least n records were added. Worker seeds derive from the generator
// seed, but the merge order follows completion, so the resulting record
// order is not reproducible.
func (g *Generator) FillParallel(replay *experience.Replay, n, workers int) (int, error) {
	if workers < 2 {
		return g.Fill(replay, n)
	}

	var (
		mu    sync.Mutex
		added int
	)
	var grp errgroup.Group

	for w := 0; w < workers; w++ {
		seed := g.rng.Int63()
		grp.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for {
				mu.Lock()
				enough := added >= n
				mu.Unlock()
				if enough {
					return nil
				}

				local := experience.New(
					experience.WithVectorized(replay.Vectorized()),
					experience.WithSeed(rng.Int63()),
				)
				steps, err := g.episode(local, rng)
				if err != nil {
					return err
				}
				if err := replay.Extend(local); err != nil {
					return err
				}

				mu.Lock()
				added += steps
				mu.Unlock()
			}
		})
	}
	if err := grp.Wait(); err != nil {
		return added, err
	}
	g.logger.Info().Int("workers", workers).Int("transitions", added).Msg("parallel rollout complete")
	return added, nil
}

// FillVectorized plays steps batched environment steps into a vectorized
// replay. Environments reset where they terminate, and the final step
// closes every environment so the batch ends on episode boundaries.
func (g *Generator) FillVectorized(replay *experience.Replay, steps, numEnvs int) error {
	states := make([][]float64, numEnvs)
	for i := range states {
		states[i] = g.initialState(g.rng)
	}

	for step := 0; step < steps; step++ {
		actions := make([]int, numEnvs)
		rewards := make([]float64, numEnvs)
		dones := make([]bool, numEnvs)
		next := make([][]float64, numEnvs)
		for env := 0; env < numEnvs; env++ {
			actions[env] = g.rng.Intn(g.cfg.NumActions)
			next[env] = g.step(states[env], actions[env], g.rng)
			rewards[env] = next[env][0] - states[env][0]
			dones[env] = step == steps-1 || g.rng.Float64() < g.cfg.StopProb
		}

		if err := replay.Append(states, actions, rewards, next, dones); err != nil {
			return fmt.Errorf("rollout: vectorized step %d: %w", step, err)
		}

		for env := 0; env < numEnvs; env++ {
			if dones[env] {
				states[env] = g.initialState(g.rng)
			} else {
				states[env] = next[env]
			}
		}
	}
	g.logger.Info().Int("steps", steps).Int("envs", numEnvs).Msg("vectorized rollout complete")
	return nil
}
