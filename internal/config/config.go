// Package config loads the service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Loop struct {
		// BatchSize is the default number of points per proposal.
		BatchSize int `env:"LOOP_BATCH_SIZE" envDefault:"1"`
		// OptimizerStarts caps the Nelder-Mead restarts per proposal.
		// Zero lets the optimizer scale with dimensionality.
		OptimizerStarts int `env:"LOOP_OPTIMIZER_STARTS" envDefault:"0"`
		// RandomCandidates is the screening sample size per proposal.
		RandomCandidates int `env:"LOOP_RANDOM_CANDIDATES" envDefault:"64"`
		// Seed fixes the proposal RNG for reproducible runs. Zero seeds
		// from the clock.
		Seed int64 `env:"LOOP_SEED" envDefault:"0"`
		// NoiseVariance is the observation noise of the bundled surrogate.
		NoiseVariance float64 `env:"LOOP_NOISE_VARIANCE" envDefault:"1e-6"`
		// AcquisitionXi is the EI exploration parameter.
		AcquisitionXi float64 `env:"LOOP_ACQUISITION_XI" envDefault:"0.01"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Verbose logging by default outside production.
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}
