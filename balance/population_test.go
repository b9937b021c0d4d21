package balance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/baldhumanity/polebalance-go/balance/nn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func smallConfig() *Config {
	c := DefaultConfig()
	c.Evolution.NumAgents = 6
	c.Evolution.NumReproducing = 2
	c.Evolution.Epochs = 3
	c.Evolution.MaxTicks = 20
	c.Evolution.StopEarly = false
	c.Evolution.Seed = 7
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, config *Config, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(config, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewControllerInitialState(t *testing.T) {
	c := newTestController(t, smallConfig())

	assert.Len(t, c.Agents, 6)
	assert.Equal(t, 0, c.Generation)
	assert.Nil(t, c.Best)
	assert.True(t, math.IsInf(c.BestScore, -1))
	assert.Equal(t, 0.1, c.MutationAmount)
	assert.NotEmpty(t, c.RunID)
	assert.False(t, c.Finished())
	assert.Equal(t, 6, c.Alive())
}

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	config := smallConfig()
	config.Evolution.NumReproducing = 10
	_, err := NewController(config, WithLogger(discardLogger()))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunCompletesAllGenerations(t *testing.T) {
	c := newTestController(t, smallConfig())

	best, err := c.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)

	assert.True(t, c.Finished())
	assert.Equal(t, 3, c.Generation)
	require.Len(t, c.History, 3)
	var all []float64
	for _, gen := range c.History {
		assert.Len(t, gen, 6)
		all = append(all, gen...)
	}
	assert.Equal(t, floats.Max(all), c.BestScore)
	assert.Equal(t, c.BestScore, best.Score())
	assert.LessOrEqual(t, c.Tick, 20)
	assert.InDelta(t, 0.1*math.Pow(0.98, 3), c.MutationAmount, 1e-12)

	done, err := c.Step(context.Background())
	assert.NoError(t, err)
	assert.False(t, done, "a finished run does not step")
}

func TestGenerationCompleteRules(t *testing.T) {
	config := smallConfig()
	config.Evolution.NumAgents = 4
	config.Evolution.NumReproducing = 3
	config.Evolution.Epochs = 2
	config.Evolution.MaxTicks = 0
	config.Evolution.StopEarly = true
	c := newTestController(t, config)

	assert.False(t, c.generationComplete(4))
	assert.True(t, c.generationComplete(3), "only the parents are alive")
	assert.True(t, c.generationComplete(0))

	c.Generation = 1
	assert.False(t, c.generationComplete(3), "the final generation runs to extinction")
	assert.True(t, c.generationComplete(0))

	c.Generation = 0
	c.Config.Evolution.StopEarly = false
	assert.False(t, c.generationComplete(1))

	c.Config.Evolution.MaxTicks = 5
	c.Tick = 5
	assert.True(t, c.generationComplete(4))
}

func TestRunIsReproducibleAcrossWorkers(t *testing.T) {
	sequential := smallConfig()
	parallel := smallConfig()
	parallel.Evolution.Workers = 4

	a := newTestController(t, sequential)
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	b := newTestController(t, parallel)
	_, err = b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.History, b.History)
	assert.Equal(t, a.BestScore, b.BestScore)
}

func TestSuccessThresholdStopsRun(t *testing.T) {
	config := smallConfig()
	config.Evolution.SuccessThreshold = 1
	c := newTestController(t, config)

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Generation)
	assert.Len(t, c.History, 1)
}

func TestRunSavesArtifacts(t *testing.T) {
	dir := t.TempDir()
	config := smallConfig()
	config.Output.NetworkPath = filepath.Join(dir, "best.net")
	config.Output.HistoryPath = filepath.Join(dir, "history.gz")
	c := newTestController(t, config)

	best, err := c.Run(context.Background())
	require.NoError(t, err)

	net, err := nn.LoadFile(config.Output.NetworkPath)
	require.NoError(t, err)
	assert.True(t, mat.Equal(best.Net().Weights()[0], net.Weights()[0]))

	history, err := LoadHistory(config.Output.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, c.RunID, history.RunID)
	assert.Equal(t, c.History, history.Scores)
	assert.Equal(t, 0.1, history.RandomMixin)
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	config := smallConfig()
	config.Output.HistoryPath = filepath.Join(dir, "history.gz")
	c := newTestController(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	history, err := LoadHistory(config.Output.HistoryPath)
	require.NoError(t, err)
	assert.Empty(t, history.Scores)
}

func TestControllerWritesStoreAndMetrics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c := newTestController(t, smallConfig(), WithStore(store), WithMetrics(m), WithRunID("run-1"))
	_, err = c.Run(ctx)
	require.NoError(t, err)

	stored, err := store.LoadHistory(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, c.History, stored)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Generation))
	assert.Equal(t, c.BestScore, testutil.ToFloat64(m.BestScore))
	assert.InDelta(t, c.MutationAmount, testutil.ToFloat64(m.MutationAmount), 1e-12)
	assert.Greater(t, testutil.ToFloat64(m.Ticks), 0.0)
}

// endGeneration marks every agent as fallen after aliveTicks ticks and steps once, which
// completes the generation.
func endGeneration(t *testing.T, c *Controller, aliveTicks int) error {
	t.Helper()
	for _, a := range c.Agents {
		a.scorer.state = Done
		a.scorer.aliveTicks = aliveTicks
	}
	done, err := c.Step(context.Background())
	require.True(t, done)
	return err
}

func TestBestAgentTiesGoToNewerGeneration(t *testing.T) {
	c := newTestController(t, smallConfig())

	require.NoError(t, endGeneration(t, c, 10))
	first := c.Best
	require.NotNil(t, first)
	assert.Equal(t, 10.0, c.BestScore)

	top := c.Agents[0]
	require.NoError(t, endGeneration(t, c, 10))
	assert.NotSame(t, first, c.Best)
	assert.True(t, mat.Equal(top.Net().Weights()[0], c.Best.Net().Weights()[0]))
	assert.Equal(t, 10.0, c.BestScore)

	tied := c.Best
	require.NoError(t, endGeneration(t, c, 5))
	assert.Same(t, tied, c.Best, "a lower score keeps the best agent")
	assert.Equal(t, 10.0, c.BestScore)
	assert.True(t, c.Finished())
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) SaveGeneration(context.Context, string, int, []float64) error {
	return errors.New("disk full")
}

func TestStoreFailureLeavesHistoryUntouched(t *testing.T) {
	store := failingStore{NewMemoryStore()}
	require.NoError(t, store.Init(context.Background()))
	c := newTestController(t, smallConfig(), WithStore(store))

	err := endGeneration(t, c, 10)
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, c.History)
	assert.Equal(t, 0, c.Generation)
	assert.Nil(t, c.Best)
}

type recordingRenderer struct {
	frames []Frame
}

func (r *recordingRenderer) Render(frame Frame) error {
	r.frames = append(r.frames, frame)
	return nil
}

func TestControllerRendersFrames(t *testing.T) {
	config := smallConfig()
	config.Evolution.Epochs = 1
	r := &recordingRenderer{}
	c := newTestController(t, config, WithRenderer(r))

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, r.frames, 20)

	for _, f := range r.frames {
		assert.Len(t, f.Agents, 6)
		highlighted := 0
		for _, v := range f.Agents {
			if v.Highlighted {
				highlighted++
				assert.NotNil(t, v.Net)
			}
		}
		if f.Alive > 0 {
			assert.Equal(t, 1, highlighted)
		}
	}
	assert.Equal(t, 1, r.frames[0].Tick)
}

func TestControllerSeedNetworks(t *testing.T) {
	config := smallConfig()
	seed := newTestController(t, config)
	nets := []*nn.NeuralNet{seed.Agents[0].Net(), seed.Agents[1].Net()}

	c := newTestController(t, smallConfig(), WithSeedNetworks(nets))
	for i, a := range c.Agents {
		assert.True(t, mat.Equal(nets[i%2].Weights()[0], a.Net().Weights()[0]))
	}
}

func TestControllerLoadPath(t *testing.T) {
	dir := t.TempDir()
	seed := newTestController(t, smallConfig())
	path := filepath.Join(dir, "seed.net")
	require.NoError(t, seed.Agents[0].Net().SaveFile(path))

	config := smallConfig()
	config.Output.LoadPath = path
	c := newTestController(t, config)
	for _, a := range c.Agents {
		assert.True(t, mat.Equal(seed.Agents[0].Net().Weights()[2], a.Net().Weights()[2]))
	}

	config = smallConfig()
	config.Output.LoadPath = t.TempDir()
	_, err := NewController(config, WithLogger(discardLogger()))
	assert.Error(t, err)
}
