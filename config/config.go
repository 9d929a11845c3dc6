package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/protosignal/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "PROTOSIGNAL"

// Queue backends.
const (
	BackendCooperative = "cooperative"
	BackendBlocking    = "blocking"
)

// Relay wire formats.
const (
	FormatProto = "proto"
	FormatCBOR  = "cbor"
)

// Config represents the complete application configuration
type Config struct {
	Log     LogConfig     `json:"log"`
	Queue   QueueConfig   `json:"queue"`
	Relay   RelayConfig   `json:"relay"`
	Metrics MetricsConfig `json:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// QueueConfig sizes the consumer queue fed by the local store.
type QueueConfig struct {
	Capacity int    `json:"capacity"`
	Backend  string `json:"backend"` // cooperative, blocking
}

// RelayConfig defines the NATS connection and relay settings
type RelayConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	SubjectPrefix string        `json:"subject_prefix"`
	Format        string        `json:"format"`
	Topics        []string      `json:"topics,omitempty"`
	ClientName    string        `json:"client_name,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
	// TLS client certificate and key, and the CA bundle that verifies the
	// server. Any of them enables TLS.
	TLSCert     string `json:"tls_cert,omitempty"`
	TLSKey      string `json:"tls_key,omitempty"`
	TLSCA       string `json:"tls_ca,omitempty"`
	Compression bool   `json:"compression,omitempty"`
	// DescriptorSet is a serialized FileDescriptorSet with the payload
	// types peers send. Well-known types are always available.
	DescriptorSet string `json:"descriptor_set,omitempty"`
}

// TLSEnabled reports whether any TLS material is configured.
func (r RelayConfig) TLSEnabled() bool {
	return r.TLSCert != "" || r.TLSKey != "" || r.TLSCA != ""
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Default returns the built-in configuration every load starts from.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			Capacity: 256,
			Backend:  BackendCooperative,
		},
		Relay: RelayConfig{
			URLs:          []string{"nats://localhost:4222"},
			SubjectPrefix: "signals",
			Format:        FormatProto,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	copied := *c
	copied.Relay.URLs = append([]string(nil), c.Relay.URLs...)
	copied.Relay.Topics = append([]string(nil), c.Relay.Topics...)
	return &copied
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format %q must be json or text", c.Log.Format)
	}

	if c.Queue.Capacity <= 0 {
		return invalid("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	switch c.Queue.Backend {
	case BackendCooperative, BackendBlocking:
	default:
		return invalid("queue.backend %q must be %s or %s", c.Queue.Backend, BackendCooperative, BackendBlocking)
	}

	if len(c.Relay.URLs) == 0 {
		return invalid("relay.urls is required")
	}
	if !isValidNATSSubjectPart(c.Relay.SubjectPrefix) {
		return invalid("relay.subject_prefix %q is not valid for NATS subjects", c.Relay.SubjectPrefix)
	}
	for i, topic := range c.Relay.Topics {
		if !isValidNATSSubjectPart(topic) {
			return invalid("relay.topics[%d] %q is not valid for NATS subjects", i, topic)
		}
	}
	switch c.Relay.Format {
	case FormatProto, FormatCBOR:
	default:
		return invalid("relay.format %q must be %s or %s", c.Relay.Format, FormatProto, FormatCBOR)
	}
	if c.Relay.ReconnectWait < 0 {
		return invalid("relay.reconnect_wait must not be negative")
	}
	if (c.Relay.TLSCert == "") != (c.Relay.TLSKey == "") {
		return invalid("relay.tls_cert and relay.tls_key must be set together")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path %q must start with /", c.Metrics.Path)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Config", "Validate", "configuration check")
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalid("log.level %q must be debug, info, warn or error", level)
	}
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}

// durationFields lists the dotted paths holding durations, which files
// may spell as Go duration strings.
var durationFields = []string{"relay.reconnect_wait"}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones. Files ending in .yaml or .yml are read as YAML, anything else as
// JSON.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment override prefix.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "load "+path)
		}
		if cfg, err = mergeFromMap(cfg, raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "merge "+path)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw loads one layer as a map with durations already normalized.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse YAML")
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "parse JSON")
		}
	}
	if err := checkDepth(raw, 0); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "check structure")
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling.
func parseDurations(data map[string]any) error {
	for _, path := range durationFields {
		parts := strings.Split(path, ".")
		section, ok := data[parts[0]].(map[string]any)
		if !ok {
			continue
		}
		s, ok := section[parts[1]].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, path, err),
				"Loader", "parseDurations", "parse duration")
		}
		section[parts[1]] = d.Nanoseconds()
	}
	return nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

// applyEnvOverrides applies <prefix>_SECTION_FIELD environment variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":            &cfg.Log.Level,
		"LOG_FORMAT":           &cfg.Log.Format,
		"QUEUE_BACKEND":        &cfg.Queue.Backend,
		"RELAY_SUBJECT_PREFIX": &cfg.Relay.SubjectPrefix,
		"RELAY_FORMAT":         &cfg.Relay.Format,
		"RELAY_CLIENT_NAME":    &cfg.Relay.ClientName,
		"RELAY_USERNAME":       &cfg.Relay.Username,
		"RELAY_PASSWORD":       &cfg.Relay.Password,
		"RELAY_TOKEN":          &cfg.Relay.Token,
		"RELAY_DESCRIPTOR_SET": &cfg.Relay.DescriptorSet,
		"RELAY_TLS_CERT":       &cfg.Relay.TLSCert,
		"RELAY_TLS_KEY":        &cfg.Relay.TLSKey,
		"RELAY_TLS_CA":         &cfg.Relay.TLSCA,
		"METRICS_PATH":         &cfg.Metrics.Path,
	}
	lists := map[string]*[]string{
		"RELAY_URLS":   &cfg.Relay.URLs,
		"RELAY_TOPICS": &cfg.Relay.Topics,
	}
	ints := map[string]*int{
		"QUEUE_CAPACITY":       &cfg.Queue.Capacity,
		"RELAY_MAX_RECONNECTS": &cfg.Relay.MaxReconnects,
		"METRICS_PORT":         &cfg.Metrics.Port,
	}

	for name, dst := range strs {
		if val, ok, err := l.lookupEnv(name); err != nil {
			return err
		} else if ok {
			*dst = val
		}
	}
	for name, dst := range lists {
		if val, ok, err := l.lookupEnv(name); err != nil {
			return err
		} else if ok {
			*dst = splitList(val)
		}
	}
	for name, dst := range ints {
		val, ok, err := l.lookupEnv(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return l.envError(name, err)
		}
		*dst = n
	}

	if val, ok, err := l.lookupEnv("RELAY_RECONNECT_WAIT"); err != nil {
		return err
	} else if ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return l.envError("RELAY_RECONNECT_WAIT", err)
		}
		cfg.Relay.ReconnectWait = d
	}

	bools := map[string]*bool{
		"RELAY_COMPRESSION": &cfg.Relay.Compression,
		"METRICS_ENABLED":   &cfg.Metrics.Enabled,
	}
	for name, dst := range bools {
		val, ok, err := l.lookupEnv(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return l.envError(name, err)
		}
		*dst = b
	}

	return nil
}

// lookupEnv returns the value of <prefix>_name when it is set and non-empty.
func (l *Loader) lookupEnv(name string) (string, bool, error) {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "environment check")
	}
	return val, true, nil
}

func (l *Loader) envError(name string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s_%s: %v", errors.ErrInvalidConfig, l.envPrefix, name, err),
		"Loader", "applyEnvOverrides", "parse environment")
}

func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SaveToFile saves the configuration as JSON, or YAML when path ends in
// .yaml or .yml. Durations are written as Go duration strings.
func (c *Config) SaveToFile(path string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	formatDurations(raw)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(raw)
	default:
		data, err = json.MarshalIndent(raw, "", "  ")
	}
	if err != nil {
		return err
	}

	return safeWriteFile(path, data)
}

// formatDurations is the inverse of parseDurations.
func formatDurations(data map[string]any) {
	for _, path := range durationFields {
		parts := strings.Split(path, ".")
		section, ok := data[parts[0]].(map[string]any)
		if !ok {
			continue
		}
		if ns, ok := section[parts[1]].(float64); ok {
			section[parts[1]] = time.Duration(ns).String()
		}
	}
}

// String returns a JSON representation of the config with credentials
// masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, secret := range []*string{&masked.Relay.Password, &masked.Relay.Token} {
		if *secret != "" {
			*secret = "***"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
