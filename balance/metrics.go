package balance

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the progress of a training run as Prometheus collectors.
type Metrics struct {
	Generation          prometheus.Gauge
	BestScore           prometheus.Gauge
	GenerationBestScore prometheus.Gauge
	AliveAgents         prometheus.Gauge
	MutationAmount      prometheus.Gauge
	Ticks               prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polebalance_generation",
			Help: "Index of the generation currently being simulated.",
		}),
		BestScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polebalance_best_score",
			Help: "Best score recorded over all finished generations.",
		}),
		GenerationBestScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polebalance_generation_best_score",
			Help: "Best score of the last finished generation.",
		}),
		AliveAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polebalance_alive_agents",
			Help: "Agents whose chain has not fallen yet.",
		}),
		MutationAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polebalance_mutation_amount",
			Help: "Standard deviation of the weight noise used for the next generation.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polebalance_ticks_total",
			Help: "Simulation ticks executed.",
		}),
	}
	for _, c := range []prometheus.Collector{m.Generation, m.BestScore, m.GenerationBestScore, m.AliveAgents, m.MutationAmount, m.Ticks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
