// Package config loads protosignal configuration from layered files and
// environment variables.
//
// # Layers
//
// Loading starts from Default and merges each file layer on top, in the
// order they were added. Only keys present in a layer override earlier
// values; nested sections merge key by key. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/edge.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Durations may be written as Go duration strings ("2s", "750ms") or as
// integer nanoseconds.
//
// # Environment Overrides
//
// After the files, variables named PROTOSIGNAL_<SECTION>_<FIELD> override
// single fields, for example:
//
//	PROTOSIGNAL_LOG_LEVEL=debug
//	PROTOSIGNAL_RELAY_URLS=nats://a:4222,nats://b:4222
//	PROTOSIGNAL_RELAY_RECONNECT_WAIT=5s
//	PROTOSIGNAL_QUEUE_CAPACITY=1024
//	PROTOSIGNAL_METRICS_ENABLED=false
//
// List fields are comma separated. The prefix can be changed with
// SetEnvPrefix.
//
// # Validation
//
// Validate rejects unknown log levels, formats and queue backends,
// non-positive queue capacities, relay subjects that are not valid NATS
// subject tokens and out-of-range metrics ports. Every failure wraps
// errors.ErrInvalidConfig.
//
// # Security
//
// Configuration files are read with size and nesting limits, must be
// regular files and may not escape the working directory through relative
// paths. Saved files are written with 0600 permissions.
package config
