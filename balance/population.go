package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/baldhumanity/polebalance-go/balance/nn"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Controller runs the generational loop: it ticks every agent of the population until the
// generation completes, then selects parents, reproduces and starts the next generation.
type Controller struct {
	Config         *Config
	RunID          string
	Agents         []*Agent    // Current generation
	Generation     int         // Number of finished generations
	Tick           int         // Ticks simulated in the current generation
	MutationAmount float64     // Std dev used for the next reproduction
	Best           *Agent      // Snapshot of the best agent found so far
	BestScore      float64     // Score of Best when it was recorded
	History        [][]float64 // Final scores of every finished generation
	Reproduction   *Reproduction
	Stagnation     *Stagnation

	rng      *rand.Rand
	logger   *slog.Logger
	metrics  *Metrics
	renderer Renderer
	store    ScoreStore
	seeds    []*nn.NeuralNet
	finished bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithRand sets the random source for every random draw of the run.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithMetrics reports progress to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRenderer passes a frame to r after every tick.
func WithRenderer(r Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// WithStore saves the scores of every generation to store. The store must be initialized.
func WithStore(store ScoreStore) Option {
	return func(c *Controller) { c.store = store }
}

// WithSeedNetworks builds the first generation from nets instead of random networks.
func WithSeedNetworks(nets []*nn.NeuralNet) Option {
	return func(c *Controller) { c.seeds = nets }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(c *Controller) { c.RunID = id }
}

// NewController validates config and creates the first generation.
// If no seed networks are given and config.Output.LoadPath is set, the networks found
// there seed the first generation.
func NewController(config *Config, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		Config:         config,
		MutationAmount: config.Evolution.MutationAmount,
		BestScore:      math.Inf(-1),
		Reproduction: &Reproduction{
			Agent:       config.Agent,
			Physics:     config.Physics,
			RandomMixin: config.Evolution.RandomMixin,
		},
		Stagnation: NewStagnation(config.Evolution.MaxStagnation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.rng == nil {
		seed := config.Evolution.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		c.rng = rand.New(rand.NewSource(seed))
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}

	if len(c.seeds) == 0 && config.Output.LoadPath != "" {
		nets, err := nn.LoadPath(config.Output.LoadPath, c.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed networks: %w", err)
		}
		if len(nets) == 0 {
			return nil, fmt.Errorf("no networks could be loaded from '%s'", config.Output.LoadPath)
		}
		c.seeds = nets
	}

	var err error
	if len(c.seeds) > 0 {
		c.Agents, err = c.Reproduction.SeedPopulation(c.seeds, config.Evolution.NumAgents, c.rng)
	} else {
		c.Agents, err = c.Reproduction.CreateNewPopulation(config.Evolution.NumAgents, c.rng)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create initial population: %w", err)
	}

	c.logger.Info("population created",
		slog.String("run_id", c.RunID),
		slog.Int("agents", len(c.Agents)),
		slog.Int("seed_networks", len(c.seeds)),
		slog.Int("chain_length", config.Agent.ChainLength),
	)
	if c.metrics != nil {
		c.metrics.MutationAmount.Set(c.MutationAmount)
	}
	return c, nil
}

// Finished reports whether the run is over.
func (c *Controller) Finished() bool { return c.finished }

// Alive returns the number of agents that have not fallen.
func (c *Controller) Alive() int {
	alive := 0
	for _, a := range c.Agents {
		if !a.IsDone() {
			alive++
		}
	}
	return alive
}

// Step simulates one tick of the current generation. It reports true when the tick
// completed the generation.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	if c.finished {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := c.updateAgents(); err != nil {
		return false, err
	}
	c.Tick++
	alive := c.Alive()

	if c.metrics != nil {
		c.metrics.Ticks.Inc()
		c.metrics.AliveAgents.Set(float64(alive))
	}
	if c.renderer != nil {
		if err := c.renderer.Render(c.frame(alive)); err != nil {
			return false, fmt.Errorf("failed to render tick %d: %w", c.Tick, err)
		}
	}

	if !c.generationComplete(alive) {
		return false, nil
	}
	return true, c.finishGeneration(ctx, alive)
}

// updateAgents advances every agent by one time step. Agents share no state, so with
// more than one worker they are updated concurrently.
func (c *Controller) updateAgents() error {
	dt := c.Config.Physics.TimeStep
	workers := c.Config.Evolution.Workers
	if workers <= 1 {
		for _, a := range c.Agents {
			if err := a.Update(dt); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, a := range c.Agents {
		g.Go(func() error {
			return a.Update(dt)
		})
	}
	return g.Wait()
}

// generationComplete decides whether the current generation ends after this tick.
func (c *Controller) generationComplete(alive int) bool {
	ev := c.Config.Evolution
	if alive == 0 {
		return true
	}
	if ev.MaxTicks > 0 && c.Tick >= ev.MaxTicks {
		return true
	}
	// The final generation always runs to extinction so its best score is exact.
	lastEpoch := c.Generation == ev.Epochs-1
	return ev.StopEarly && !lastEpoch && alive <= ev.NumReproducing
}

func (c *Controller) finishGeneration(ctx context.Context, alive int) error {
	ev := c.Config.Evolution

	scores := make([]float64, len(c.Agents))
	for i, a := range c.Agents {
		scores[i] = a.Score()
	}
	if c.store != nil {
		if err := c.store.SaveGeneration(ctx, c.RunID, c.Generation, scores); err != nil {
			return fmt.Errorf("failed to store generation %d: %w", c.Generation, err)
		}
	}
	c.History = append(c.History, scores)

	parents := SelectParents(c.Agents, ev.NumReproducing)
	genBest := parents[0].Score()

	// Ties go to the newer generation.
	if genBest >= c.BestScore {
		c.Best = parents[0].Copy()
		c.BestScore = genBest
		c.logger.Info("new best agent", slog.Int("generation", c.Generation), slog.Float64("score", genBest))
		if c.logger.Enabled(ctx, slog.LevelDebug) {
			c.logger.Debug("best agent network", slog.String("net", c.Best.Net().String()))
		}
	}

	if c.Stagnation.Update(c.Generation, genBest) {
		c.logger.Warn("best score is stagnating",
			slog.Int("generation", c.Generation),
			slog.Int("last_improved", c.Stagnation.LastImproved),
		)
	}

	stdev := 0.0
	if len(scores) > 1 {
		stdev = stat.StdDev(scores, nil)
	}
	c.logger.Info("generation complete",
		slog.Int("generation", c.Generation),
		slog.Int("ticks", c.Tick),
		slog.Int("alive", alive),
		slog.Float64("best", genBest),
		slog.Float64("mean", stat.Mean(scores, nil)),
		slog.Float64("median", Median(scores)),
		slog.Float64("stdev", stdev),
		slog.Float64("mutation_amount", c.MutationAmount),
	)

	c.Generation++
	usedMutation := c.MutationAmount
	c.MutationAmount *= ev.MutationDecay

	if c.metrics != nil {
		c.metrics.Generation.Set(float64(c.Generation))
		c.metrics.GenerationBestScore.Set(genBest)
		c.metrics.BestScore.Set(c.BestScore)
		c.metrics.MutationAmount.Set(c.MutationAmount)
	}

	if c.Generation >= ev.Epochs {
		c.finished = true
		return nil
	}
	if ev.SuccessThreshold > 0 && c.BestScore >= ev.SuccessThreshold {
		c.logger.Info("success threshold met", slog.Float64("score", c.BestScore), slog.Float64("threshold", ev.SuccessThreshold))
		c.finished = true
		return nil
	}

	next, err := c.Reproduction.Reproduce(parents, ev.NumAgents, usedMutation, c.rng)
	if err != nil {
		return fmt.Errorf("reproduction failed in generation %d: %w", c.Generation, err)
	}
	c.Agents = next
	c.Tick = 0
	return nil
}

// frame snapshots the population for the renderer, highlighting the best living agent.
func (c *Controller) frame(alive int) Frame {
	var hl *Agent
	for _, a := range c.Agents {
		a.Highlighted = false
		if a.IsDone() {
			continue
		}
		if hl == nil || a.Score() > hl.Score() {
			hl = a
		}
	}
	if hl != nil {
		hl.Highlighted = true
	}

	views := make([]AgentView, len(c.Agents))
	for i, a := range c.Agents {
		views[i] = a.View()
	}
	return Frame{
		Generation: c.Generation,
		Tick:       c.Tick,
		Alive:      alive,
		TrackWidth: c.Config.Agent.TrackWidth,
		Agents:     views,
	}
}

// Run steps the simulation until every generation has finished, the success threshold
// is met or ctx is cancelled. Artifacts are saved on every exit path. It returns the
// best agent found.
func (c *Controller) Run(ctx context.Context) (*Agent, error) {
	start := time.Now()
	for !c.finished {
		if _, err := c.Step(ctx); err != nil {
			return c.Best, errors.Join(err, c.SaveArtifacts())
		}
	}
	c.logger.Info("run finished",
		slog.String("run_id", c.RunID),
		slog.Int("generations", c.Generation),
		slog.Float64("best_score", c.BestScore),
		slog.Duration("elapsed", time.Since(start)),
	)
	return c.Best, c.SaveArtifacts()
}

// SaveArtifacts writes the best network and the score history to the configured paths.
func (c *Controller) SaveArtifacts() error {
	out := c.Config.Output
	var errs []error
	if out.NetworkPath != "" && c.Best != nil {
		if err := c.Best.Net().SaveFile(out.NetworkPath); err != nil {
			errs = append(errs, err)
		} else {
			c.logger.Info("saved best network", slog.String("path", out.NetworkPath), slog.Float64("score", c.BestScore))
		}
	}
	if out.HistoryPath != "" {
		data := HistorySaveData{
			RunID:       c.RunID,
			RandomMixin: c.Config.Evolution.RandomMixin,
			Scores:      c.History,
		}
		if err := SaveHistory(out.HistoryPath, data); err != nil {
			errs = append(errs, err)
		} else {
			c.logger.Info("saved score history", slog.String("path", out.HistoryPath), slog.Int("generations", len(c.History)))
		}
	}
	return errors.Join(errs...)
}
