package natsclient

import "time"

// WithFastStartup tunes timeouts for quick unit-level container tests
func WithFastStartup() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 2 * time.Second
		cfg.startTimeout = 10 * time.Second
	}
}

// WithIntegrationDefaults tunes timeouts for integration tests
func WithIntegrationDefaults() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 5 * time.Second
		cfg.startTimeout = 30 * time.Second
	}
}

// WithProductionLike uses the latest server image and generous timeouts
func WithProductionLike() TestOption {
	return func(cfg *testConfig) {
		cfg.timeout = 30 * time.Second
		cfg.startTimeout = 60 * time.Second
		cfg.natsVersion = "latest"
	}
}
