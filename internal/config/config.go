// Package config loads service configuration. Values come from defaults,
// then an optional YAML tuning file, then environment variables, and are
// validated last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // campus zones must resolve in minimal containers

	"gopkg.in/yaml.v3"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/graph"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/worker"
)

// FileEnv names the environment variable holding the YAML tuning file path.
const FileEnv = "SAFEROUTE_CONFIG_FILE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Routing providers.
const (
	ProviderOSRM             = "osrm"
	ProviderOpenRouteService = "openrouteservice"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig         `yaml:"server"`
	Telemetry    TelemetryConfig      `yaml:"telemetry"`
	Database     database.Config      `yaml:"database"`
	Graph        GraphConfig          `yaml:"graph"`
	Routing      RoutingConfig        `yaml:"routing"`
	Facts        FactsConfig          `yaml:"facts"`
	Scoring      safety.ScoringConfig `yaml:"scoring"`
	Ranking      ranking.Weights      `yaml:"ranking"`
	Auth         AuthConfig           `yaml:"auth"`
	PubSub       PubSubConfig         `yaml:"pubsub"`
	FeatureFlags FeatureFlagsConfig   `yaml:"feature_flags"`
	Warmup       worker.WarmupConfig  `yaml:"warmup"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TimeZone is the campus IANA zone used for "current" request times.
	TimeZone string `yaml:"time_zone"`

	// RequireTLS rejects requests forwarded as plain HTTP.
	RequireTLS bool `yaml:"require_tls"`

	// Per-client budgets for route computation and the admin surface. A
	// negative request count turns the limit off.
	RouteRateLimit middleware.RateLimit `yaml:"route_rate_limit"`
	AdminRateLimit middleware.RateLimit `yaml:"admin_rate_limit"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// GraphConfig configures the safety graph artifact.
type GraphConfig struct {
	StorePath string `yaml:"store_path"`
	Extent    string `yaml:"extent"`

	// NetworkFile is the node-link walk network used by rebuilds.
	NetworkFile     string             `yaml:"network_file"`
	RebuildInterval time.Duration      `yaml:"rebuild_interval"`
	RebuildMode     worker.RebuildMode `yaml:"rebuild_mode"`
	Weights         graph.BuildConfig  `yaml:"weights"`
}

// RoutingConfig configures the candidate route source.
type RoutingConfig struct {
	Provider        string        `yaml:"provider"`
	OSRMBaseURL     string        `yaml:"osrm_base_url"`
	ORSBaseURL      string        `yaml:"ors_base_url"`
	ORSAPIKey       string        `yaml:"ors_api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MaxAlternatives int           `yaml:"max_alternatives"`

	// DefaultSource is provider, graph or both.
	DefaultSource string  `yaml:"default_source"`
	WalkingSpeed  float64 `yaml:"walking_speed_mps"`
}

// FactsConfig configures spatial fact lookups.
type FactsConfig struct {
	safety.FactQuery `yaml:",inline"`
	Concurrency      int `yaml:"concurrency"`
}

// AuthConfig configures admin endpoint authentication.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
}

// PubSubConfig configures the worker subscription. Empty ProjectID
// disables Pub/Sub.
type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// FeatureFlagsConfig configures flag caching.
type FeatureFlagsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
			TimeZone:        "America/Chicago",
			RouteRateLimit:  middleware.DefaultRouteRateLimit,
			AdminRateLimit:  middleware.DefaultAdminRateLimit,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		Database: database.DefaultConfig(),
		Graph: GraphConfig{
			StorePath:       "data/graph",
			Extent:          "campus",
			RebuildInterval: 24 * time.Hour,
			RebuildMode:     worker.RebuildRescore,
			Weights:         graph.DefaultBuildConfig(),
		},
		Routing: RoutingConfig{
			Provider:        ProviderOSRM,
			Timeout:         10 * time.Second,
			CacheTTL:        time.Hour,
			MaxAlternatives: 2,
			DefaultSource:   "provider",
			WalkingSpeed:    graph.DefaultWalkingSpeed,
		},
		Facts: FactsConfig{
			FactQuery:   safety.DefaultFactQuery(),
			Concurrency: 4,
		},
		Scoring: safety.DefaultScoringConfig(),
		Ranking: ranking.DefaultWeights(),
		Auth: AuthConfig{
			Issuer: "saferoute",
		},
		PubSub: PubSubConfig{
			Subscription: "saferoute-worker",
		},
		FeatureFlags: FeatureFlagsConfig{
			CacheTTL: time.Minute,
		},
		Warmup: worker.DefaultWarmupConfig(),
	}
}

// Load reads the file named by SAFEROUTE_CONFIG_FILE, if any, applies the
// environment and validates the result.
func Load() (Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit tuning file path. An empty path skips
// the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "APP_PORT")
	setString(&c.Server.Env, "APP_ENV")
	setString(&c.Server.TimeZone, "CAMPUS_TIME_ZONE")
	setBool(&c.Telemetry.Enabled, "OTEL_ENABLED")
	setBool(&c.Server.RequireTLS, "REQUIRE_TLS")
	setInt(&c.Server.RouteRateLimit.Requests, "ROUTE_RATE_LIMIT")
	setString(&c.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat(&c.Telemetry.SampleRatio, "OTEL_TRACES_SAMPLER_ARG")

	c.Database = c.Database.OverrideFromEnv()

	setString(&c.Graph.StorePath, "GRAPH_STORE_PATH")
	setString(&c.Graph.Extent, "GRAPH_EXTENT")
	setString(&c.Graph.NetworkFile, "GRAPH_NETWORK_FILE")
	setDuration(&c.Graph.RebuildInterval, "GRAPH_REBUILD_INTERVAL")
	if v := os.Getenv("GRAPH_REBUILD_MODE"); v != "" {
		c.Graph.RebuildMode = worker.RebuildMode(strings.ToLower(v))
	}

	setString(&c.Routing.Provider, "ROUTING_PROVIDER")
	setString(&c.Routing.OSRMBaseURL, "OSRM_BASE_URL")
	setString(&c.Routing.ORSBaseURL, "ORS_BASE_URL")
	setString(&c.Routing.ORSAPIKey, "ORS_API_KEY")
	setString(&c.Routing.DefaultSource, "ROUTING_DEFAULT_SOURCE")
	setDuration(&c.Routing.CacheTTL, "ROUTING_CACHE_TTL")
	setInt(&c.Routing.MaxAlternatives, "ROUTING_MAX_ALTERNATIVES")
	setFloat(&c.Routing.WalkingSpeed, "WALKING_SPEED_MPS")

	setFloat(&c.Facts.SpatialRadiusM, "SPATIAL_RADIUS_M")
	setFloat(&c.Facts.PhoneRadiusM, "PHONE_RADIUS_M")
	setInt(&c.Facts.TemporalWindowDays, "TEMPORAL_WINDOW_DAYS")

	if v := os.Getenv("SCORING_MODEL"); v != "" {
		c.Scoring.Model = safety.Model(strings.ToLower(v))
	}

	setString(&c.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&c.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&c.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")
	setInt(&c.Warmup.Concurrency, "WARMUP_CONCURRENCY")
	if v, err := strconv.ParseBool(os.Getenv("WARMUP_ENABLED")); err == nil && !v {
		c.Warmup.Targets = nil
	}
}

// Validate reports every invalid setting in one error.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server.port is required")
	}
	if _, err := time.LoadLocation(c.Server.TimeZone); err != nil {
		problems = append(problems, fmt.Sprintf("server.time_zone: %v", err))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Graph.Extent == "" {
		problems = append(problems, "graph.extent is required")
	}
	if !c.Graph.RebuildMode.Valid() {
		problems = append(problems, fmt.Sprintf("graph.rebuild_mode %q is not full or rescore", c.Graph.RebuildMode))
	}
	if c.Server.RouteRateLimit.Requests > 0 && c.Server.RouteRateLimit.Window <= 0 {
		problems = append(problems, "server.route_rate_limit.window must be positive")
	}
	if c.Server.AdminRateLimit.Requests > 0 && c.Server.AdminRateLimit.Window <= 0 {
		problems = append(problems, "server.admin_rate_limit.window must be positive")
	}
	if c.Warmup.Concurrency < 0 {
		problems = append(problems, "warmup.concurrency must not be negative")
	}
	switch c.Routing.Provider {
	case ProviderOSRM:
	case ProviderOpenRouteService:
		if c.Routing.ORSAPIKey == "" {
			problems = append(problems, "routing.ors_api_key is required for openrouteservice")
		}
	default:
		problems = append(problems, fmt.Sprintf("routing.provider %q is not osrm or openrouteservice", c.Routing.Provider))
	}
	switch c.Routing.DefaultSource {
	case "provider", "graph", "both":
	default:
		problems = append(problems, fmt.Sprintf("routing.default_source %q is not provider, graph or both", c.Routing.DefaultSource))
	}
	if c.Routing.MaxAlternatives < 0 {
		problems = append(problems, "routing.max_alternatives must not be negative")
	}
	if c.Routing.WalkingSpeed <= 0 {
		problems = append(problems, "routing.walking_speed_mps must be positive")
	}
	if c.Facts.SpatialRadiusM <= 0 || c.Facts.PhoneRadiusM <= 0 {
		problems = append(problems, "facts radii must be positive")
	}
	if c.Facts.TemporalWindowDays <= 0 || c.Facts.TrafficWindowDays <= 0 {
		problems = append(problems, "facts windows must be positive")
	}
	if _, err := safety.ParseModel(string(c.Scoring.Model)); err != nil {
		problems = append(problems, "scoring."+err.Error())
	}
	if c.Ranking.Risk < 0 || c.Ranking.Duration < 0 {
		problems = append(problems, "ranking weights must not be negative")
	}
	if c.Server.Env == "production" && c.Auth.JWTSigningKey == "" {
		problems = append(problems, "auth.jwt_signing_key is required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RankingWeights returns the ranking weights with the night window taken from
// the scoring config.
func (c Config) RankingWeights() ranking.Weights {
	w := c.Ranking
	w.NightStartHour, w.NightEndHour = c.Scoring.NightStartHour, c.Scoring.NightEndHour
	return w
}

// Location returns the campus time zone. Validate has already checked it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = v
	}
}
