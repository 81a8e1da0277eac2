package generate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationsTotal counts generation calls by model and outcome.
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sudhar_generations_total",
		Help: "Total generation calls by model and outcome.",
	}, []string{"model", "outcome"})

	// generationDuration tracks beam-search latency per model.
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sudhar_generation_duration_seconds",
		Help:    "Time spent in backend generation.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"model"})

	// modelLoadsTotal counts backend model loads by model and outcome.
	modelLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sudhar_model_loads_total",
		Help: "Total model loads by model and outcome.",
	}, []string{"model", "outcome"})

	// modelsLoaded is the number of models currently resident in the registry.
	modelsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sudhar_models_loaded",
		Help: "Number of models currently loaded.",
	})

	// inputChars tracks the distribution of input lengths in runes.
	inputChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sudhar_input_chars",
		Help:    "Number of characters in generation input text.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
