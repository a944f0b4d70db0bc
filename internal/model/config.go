package model

import (
	"fmt"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway" mapstructure:"gateway"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Engine       EngineConfig       `yaml:"engine" mapstructure:"engine"`
	Rubric       RubricConfig       `yaml:"rubric" mapstructure:"rubric"`
	Rules        RulesConfig        `yaml:"rules" mapstructure:"rules"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// GatewayConfig selects and configures the claims repository transports
type GatewayConfig struct {
	Mode     string        `yaml:"mode" mapstructure:"mode"` // live | mock
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Fixtures string        `yaml:"fixtures" mapstructure:"fixtures"`
	MCP      MCPConfig     `yaml:"mcp" mapstructure:"mcp"`
	REST     RESTConfig    `yaml:"rest" mapstructure:"rest"`
}

// MCPConfig configures the primary structured-query transport.
// Command launches a stdio server; Endpoint dials a streamable HTTP server instead.
type MCPConfig struct {
	Command    string   `yaml:"command" mapstructure:"command"`
	Args       []string `yaml:"args" mapstructure:"args"`
	Endpoint   string   `yaml:"endpoint" mapstructure:"endpoint"`
	Tool       string   `yaml:"tool" mapstructure:"tool"`
	ClaimTable string   `yaml:"claim_table" mapstructure:"claim_table"`
	LineTable  string   `yaml:"line_table" mapstructure:"line_table"`
}

// RESTConfig configures the fallback Web API transport
type RESTConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	APIPath        string `yaml:"api_path" mapstructure:"api_path"`
	Token          string `yaml:"token,omitempty" mapstructure:"token"`
	ClaimSet       string `yaml:"claim_set" mapstructure:"claim_set"`
	LineSet        string `yaml:"line_set" mapstructure:"line_set"`
	LineNavigation string `yaml:"line_navigation" mapstructure:"line_navigation"`
}

// LLMConfig configures the reasoning provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, groq, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// EngineConfig tunes prediction
type EngineConfig struct {
	ComparisonLimit   int             `yaml:"comparison_limit" mapstructure:"comparison_limit"`
	MajorityThreshold float64         `yaml:"majority_threshold" mapstructure:"majority_threshold"`
	ConfidenceFloor   float64         `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	TopReasons        int             `yaml:"top_reasons" mapstructure:"top_reasons"`
	DefaultWindowDays int             `yaml:"default_window_days" mapstructure:"default_window_days"`
	Weights           SeverityWeights `yaml:"weights" mapstructure:"weights"`
	Narrate           bool            `yaml:"narrate" mapstructure:"narrate"`
}

// Validate rejects settings the engine cannot honor. Thresholds are open
// intervals: at 0 or 1 the majority rule and the confidence floor degenerate.
func (e EngineConfig) Validate() error {
	switch {
	case e.ComparisonLimit < 1:
		return fmt.Errorf("engine.comparison_limit must be at least 1, got %d", e.ComparisonLimit)
	case e.MajorityThreshold <= 0 || e.MajorityThreshold >= 1:
		return fmt.Errorf("engine.majority_threshold must be between 0 and 1 exclusive, got %g", e.MajorityThreshold)
	case e.ConfidenceFloor <= 0 || e.ConfidenceFloor >= 1:
		return fmt.Errorf("engine.confidence_floor must be between 0 and 1 exclusive, got %g", e.ConfidenceFloor)
	case e.TopReasons < 1:
		return fmt.Errorf("engine.top_reasons must be at least 1, got %d", e.TopReasons)
	case e.DefaultWindowDays < 1:
		return fmt.Errorf("engine.default_window_days must be at least 1, got %d", e.DefaultWindowDays)
	}
	for name, w := range map[string]float64{"high": e.Weights.High, "medium": e.Weights.Medium, "low": e.Weights.Low} {
		if w < 0 || w > 1 {
			return fmt.Errorf("engine.weights.%s must be between 0 and 1, got %g", name, w)
		}
	}
	if e.Weights == (SeverityWeights{}) {
		return fmt.Errorf("engine.weights: at least one weight must be positive")
	}
	return nil
}

// SeverityWeights is the contribution of one risk factor to risk pressure
type SeverityWeights struct {
	High   float64 `yaml:"high" mapstructure:"high"`
	Medium float64 `yaml:"medium" mapstructure:"medium"`
	Low    float64 `yaml:"low" mapstructure:"low"`
}

// Weight returns the weight for a severity
func (w SeverityWeights) Weight(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return w.High
	case SeverityMedium:
		return w.Medium
	default:
		return w.Low
	}
}

// RubricConfig drives risk factor severities
type RubricConfig struct {
	// RequiredModifiers lists modifiers every line of a claim type must carry
	RequiredModifiers map[string][]string `yaml:"required_modifiers" mapstructure:"required_modifiers"`
	AmountDeviation   float64             `yaml:"amount_deviation" mapstructure:"amount_deviation"`
	UnitsDeviation    float64             `yaml:"units_deviation" mapstructure:"units_deviation"`
	PatternShare      float64             `yaml:"pattern_share" mapstructure:"pattern_share"`
	Levels            RubricLevels        `yaml:"levels" mapstructure:"levels"`
}

// RubricLevels maps rubric classes to severities
type RubricLevels struct {
	Structural string `yaml:"structural" mapstructure:"structural"`
	Pattern    string `yaml:"pattern" mapstructure:"pattern"`
	Stylistic  string `yaml:"stylistic" mapstructure:"stylistic"`
}

// RulesConfig points at an alternative correction catalog
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // empty = embedded catalog
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"` // 0 disables the response cache
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ConcurrencyConfig bounds batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig bounds reasoning calls per provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json | text
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Mode:    "live",
			Timeout: 30 * time.Second,
			MCP: MCPConfig{
				Tool:       "read_query",
				ClaimTable: "smvs_claim",
				LineTable:  "smvs_serviceline",
			},
			REST: RESTConfig{
				APIPath:        "/api/data/v9.2",
				ClaimSet:       "smvs_claims",
				LineSet:        "smvs_servicelines",
				LineNavigation: "smvs_claim_smvs_serviceline",
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60,
			MaxTokens:   1500,
			Temperature: 0.2,
		},
		Engine: EngineConfig{
			ComparisonLimit:   5,
			MajorityThreshold: 0.5,
			ConfidenceFloor:   0.5,
			TopReasons:        5,
			DefaultWindowDays: 30,
			Weights: SeverityWeights{
				High:   0.35,
				Medium: 0.15,
				Low:    0.05,
			},
		},
		Rubric: RubricConfig{
			RequiredModifiers: map[string][]string{
				string(ClaimTypeHospice): {"GW"},
				string(ClaimTypeDME):     {"KX"},
			},
			AmountDeviation: 0.5,
			UnitsDeviation:  1.0,
			PatternShare:    0.5,
			Levels: RubricLevels{
				Structural: "HIGH",
				Pattern:    "MEDIUM",
				Stylistic:  "LOW",
			},
		},
		Server: ServerConfig{
			Addr:         ":8000",
			CacheTTL:     0,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2.0,
			BurstSize:         4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
