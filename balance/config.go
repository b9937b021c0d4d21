package balance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/baldhumanity/polebalance-go/balance/nn"
	"gopkg.in/ini.v1"
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.New("config error")

// Config stores every parameter of a training run.
type Config struct {
	Evolution EvolutionConfig
	Agent     AgentConfig
	Physics   PhysicsConfig
	Output    OutputConfig
}

// EvolutionConfig holds the parameters of the generational loop.
type EvolutionConfig struct {
	NumAgents        int     `ini:"num_agents"`
	NumReproducing   int     `ini:"num_reproducing"`   // Parents kept per generation
	Epochs           int     `ini:"epochs"`            // Generations to run
	MutationAmount   float64 `ini:"mutation_amount"`   // Initial std dev of weight noise
	MutationDecay    float64 `ini:"mutation_decay"`    // Multiplier applied after each generation
	RandomMixin      float64 `ini:"random_mixin"`      // Fraction of fresh random agents per generation
	StopEarly        bool    `ini:"stop_early"`        // End a generation once only the parents are alive
	MaxTicks         int     `ini:"max_ticks"`         // Per-generation tick cap, 0 for none
	SuccessThreshold float64 `ini:"success_threshold"` // Stop once the best score reaches this, 0 disables
	MaxStagnation    int     `ini:"max_stagnation"`    // Generations without improvement before warning, 0 disables
	Workers          int     `ini:"workers"`           // Agents updated concurrently within a tick
	Seed             int64   `ini:"seed"`              // 0 seeds from the clock
}

// OutputConfig holds artifact locations and the load/display switches.
type OutputConfig struct {
	NetworkPath  string `ini:"network_path"`  // Where the best network is saved
	HistoryPath  string `ini:"history_path"`  // Where per-generation scores are saved
	DatabasePath string `ini:"database_path"` // Optional sqlite score store
	LoadPath     string `ini:"load_path"`     // Pretrained network file or directory
	Graphics     bool   `ini:"graphics"`
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() *Config {
	return &Config{
		Evolution: EvolutionConfig{
			NumAgents:      100,
			NumReproducing: 10,
			Epochs:         50,
			MutationAmount: 0.1,
			MutationDecay:  0.98,
			RandomMixin:    0.1,
			StopEarly:      true,
			Workers:        1,
		},
		Agent: DefaultAgentConfig(),
		Physics: PhysicsConfig{
			TimeStep:             1.0 / 60.0,
			Gravity:              100,
			Damping:              0.999,
			AccelerationNoise:    10,
			CoupledNoise:         true,
			ConstraintIterations: 3,
		},
	}
}

// LoadConfig reads an INI file over the defaults and validates the result.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()
	sections := []struct {
		name   string
		target any
	}{
		{"Evolution", &config.Evolution},
		{"Agent", &config.Agent},
		{"Physics", &config.Physics},
		{"Output", &config.Output},
	}
	for _, sec := range sections {
		if !cfg.HasSection(sec.name) {
			continue
		}
		if err := cfg.Section(sec.name).MapTo(sec.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", sec.name, err)
		}
	}

	config.Agent.HiddenActivation = cleanIniString(config.Agent.HiddenActivation)
	config.Agent.OutputActivation = cleanIniString(config.Agent.OutputActivation)
	config.Output.NetworkPath = cleanIniString(config.Output.NetworkPath)
	config.Output.HistoryPath = cleanIniString(config.Output.HistoryPath)
	config.Output.DatabasePath = cleanIniString(config.Output.DatabasePath)
	config.Output.LoadPath = cleanIniString(config.Output.LoadPath)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration before any simulation starts.
func (c *Config) Validate() error {
	ev := c.Evolution
	if ev.NumAgents <= 0 {
		return configErrorf("num_agents must be positive")
	}
	if ev.NumReproducing <= 0 {
		return configErrorf("num_reproducing must be positive")
	}
	if ev.NumReproducing > ev.NumAgents {
		return configErrorf("num_reproducing (%d) cannot exceed num_agents (%d)", ev.NumReproducing, ev.NumAgents)
	}
	if ev.Epochs <= 0 {
		return configErrorf("epochs must be positive")
	}
	if ev.MutationAmount < 0 {
		return configErrorf("mutation_amount cannot be negative")
	}
	if ev.MutationDecay <= 0 || ev.MutationDecay > 1 {
		return configErrorf("mutation_decay must be in (0, 1]")
	}
	if ev.RandomMixin < 0 || ev.RandomMixin >= 1 {
		return configErrorf("random_mixin must be in [0, 1)")
	}
	if ev.MaxTicks < 0 {
		return configErrorf("max_ticks cannot be negative")
	}
	if ev.MaxStagnation < 0 {
		return configErrorf("max_stagnation cannot be negative")
	}
	if ev.Workers < 0 {
		return configErrorf("workers cannot be negative")
	}

	if err := c.Agent.validate(); err != nil {
		return err
	}

	ph := c.Physics
	if ph.TimeStep <= 0 {
		return configErrorf("time_step must be positive")
	}
	if ph.Damping < 0 || ph.Damping > 1 {
		return configErrorf("damping must be between 0 and 1")
	}
	if ph.AccelerationNoise < 0 {
		return configErrorf("acceleration_noise cannot be negative")
	}
	if ph.ConstraintIterations < 0 {
		return configErrorf("constraint_iterations cannot be negative")
	}

	if c.Output.LoadPath != "" && c.Output.NetworkPath != "" {
		return configErrorf("load_path and network_path are mutually exclusive")
	}
	return nil
}

func (a AgentConfig) validate() error {
	if a.ChainLength < 0 {
		return configErrorf("chain_length cannot be negative")
	}
	if a.MoveStrength < 0 {
		return configErrorf("move_strength cannot be negative")
	}
	if a.ForceNoise < 0 {
		return configErrorf("force_noise cannot be negative")
	}
	if a.TrackWidth <= 0 {
		return configErrorf("track_width must be positive")
	}
	if a.WeightRange < 0 {
		return configErrorf("weight_range cannot be negative")
	}
	for _, size := range a.HiddenLayers {
		if size <= 0 {
			return configErrorf("hidden_layers sizes must be positive, got %d", size)
		}
	}
	_, _, err := a.activations()
	return err
}

// activations parses the hidden and output activation names.
func (a AgentConfig) activations() (hidden, output nn.Activation, err error) {
	if hidden, err = nn.ParseActivation(a.HiddenActivation); err != nil {
		return 0, 0, configErrorf("hidden_activation: %v", err)
	}
	if output, err = nn.ParseActivation(a.OutputActivation); err != nil {
		return 0, 0, configErrorf("output_activation: %v", err)
	}
	return hidden, output, nil
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
