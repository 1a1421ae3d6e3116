// Package experience implements a replay buffer for reinforcement
// learning agents.
//
// A Replay stores Transition records, each holding the five core fields
// of one step (state, action, reward, next state, done) plus any number
// of auxiliary fields. Buffers support uniform, contiguous and episode
// sampling, batched field access, device and precision transfer,
// flattening of vectorized rollouts, and snapshot persistence:
//
//	replay := experience.New(experience.WithCapacity(100_000))
//	_ = replay.Append(state, action, reward, nextState, false)
//	batch, err := replay.Sample(experience.SampleConfig{Size: 32})
//	if err != nil {
//		return err
//	}
//	states, err := batch.States()
package experience
