// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, LLM provider endpoints,
// billing knobs, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "dealer-chat-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ProviderConfig holds connection settings for one OpenAI-compatible
// completion provider. A provider with an empty APIKey is treated as
// unconfigured and skipped by the router.
type ProviderConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string // default model when the tenant profile does not set one
}

// LLMConfig groups the primary/secondary completion providers and the
// embedding settings used by the knowledge resolver.
type LLMConfig struct {
	Primary        ProviderConfig
	Secondary      ProviderConfig
	EmbeddingModel string        // e.g. "text-embedding-3-small"
	Timeout        time.Duration // per completion/embedding call
}

// BillingConfig holds the customer-facing price list and the internal cost
// table. PriceList maps "provider/model" to a flat per-reply charge; the
// cost rates are per 1K tokens and feed margin analytics only.
type BillingConfig struct {
	PriceList          map[string]string // "openai/gpt-4o-mini" -> "2.50"
	InputCostPer1K     string            // internal estimate rate
	OutputCostPer1K    string
	UnlinkedUsageGrace time.Duration // age before an unlinked usage record counts as a ledger defect
}

// GatewayConfig holds the outbound messaging gateway settings.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath           string   // SQLite path
	Greetings        []string // greeting set for the no-bill short circuit
	GreetingReply    string   // canned greeting response
	FallbackMessage  string   // default templated reply on provider outage
	DeclineToken     string   // exact sentinel the provider returns to suppress a reply
	HistoryWindow    int      // recent messages pulled for prompt construction
	SemanticTopN     int      // candidate pool for the semantic knowledge pass
	SemanticKeep     int      // chunks kept after re-ranking
	SemanticMinScore float64  // similarity floor [0,1]

	// LLM / Billing / Gateway
	LLM     LLMConfig
	Billing BillingConfig
	Gateway GatewayConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// defaultGreetings is the observed greeting set; override with GREETINGS.
var defaultGreetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "hola",
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:           getenv("DB_PATH", "app.db"),
		Greetings:        lowerAll(splitCSVDefault(getenv("GREETINGS", ""), defaultGreetings)),
		GreetingReply:    getenv("GREETING_REPLY", "Hello! How can we help you today?"),
		FallbackMessage:  getenv("FALLBACK_MESSAGE", "Thanks for your message! One of our team members will get back to you shortly."),
		DeclineToken:     getenv("DECLINE_TOKEN", "[NO_REPLY]"),
		HistoryWindow:    getint("HISTORY_WINDOW", 20),
		SemanticTopN:     getint("SEMANTIC_TOP_N", 20),
		SemanticKeep:     getint("SEMANTIC_KEEP", 8),
		SemanticMinScore: getfloat("SEMANTIC_MIN_SCORE", 0.15),

		// LLM providers
		LLM: LLMConfig{
			Primary: ProviderConfig{
				BaseURL: getenv("LLM_PRIMARY_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  getenv("LLM_PRIMARY_API_KEY", ""),
				Model:   getenv("LLM_PRIMARY_MODEL", "gpt-4o-mini"),
			},
			Secondary: ProviderConfig{
				BaseURL: getenv("LLM_SECONDARY_BASE_URL", ""),
				APIKey:  getenv("LLM_SECONDARY_API_KEY", ""),
				Model:   getenv("LLM_SECONDARY_MODEL", ""),
			},
			EmbeddingModel: getenv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:        getdur("LLM_TIMEOUT", 30*time.Second),
		},

		// Billing
		Billing: BillingConfig{
			PriceList:          parsePriceList(getenv("PRICE_LIST", "openai/gpt-4o-mini=2.50")),
			InputCostPer1K:     getenv("COST_INPUT_PER_1K", "0.00015"),
			OutputCostPer1K:    getenv("COST_OUTPUT_PER_1K", "0.0006"),
			UnlinkedUsageGrace: getdur("UNLINKED_USAGE_GRACE", time.Hour),
		},

		// Gateway
		Gateway: GatewayConfig{
			BaseURL: getenv("GATEWAY_BASE_URL", "http://localhost:9090"),
			APIKey:  getenv("GATEWAY_API_KEY", ""),
			Timeout: getdur("GATEWAY_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "dealer-chat-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if len(cfg.Greetings) == 0 {
		return cfg, errors.New("GREETINGS must not resolve to an empty set")
	}
	if strings.TrimSpace(cfg.DeclineToken) == "" {
		return cfg, errors.New("DECLINE_TOKEN must not be empty")
	}
	if cfg.HistoryWindow < 1 {
		return cfg, errors.New("HISTORY_WINDOW must be >= 1")
	}
	if cfg.SemanticKeep < 1 || cfg.SemanticTopN < cfg.SemanticKeep {
		return cfg, errors.New("SEMANTIC_TOP_N must be >= SEMANTIC_KEEP >= 1")
	}
	if cfg.SemanticMinScore < 0 || cfg.SemanticMinScore > 1 {
		return cfg, errors.New("SEMANTIC_MIN_SCORE must be between 0 and 1")
	}
	if cfg.LLM.Timeout <= 0 || cfg.Gateway.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT and GATEWAY_TIMEOUT must be positive")
	}
	if len(cfg.Billing.PriceList) == 0 {
		return cfg, errors.New("PRICE_LIST must contain at least one provider/model=charge pair")
	}
	if cfg.Billing.UnlinkedUsageGrace <= 0 {
		return cfg, errors.New("UNLINKED_USAGE_GRACE must be positive")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitCSVDefault returns def when s yields no entries.
func splitCSVDefault(s string, def []string) []string {
	if out := splitCSV(s); len(out) > 0 {
		return out
	}
	return append([]string(nil), def...)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// parsePriceList parses "provider/model=charge" CSV pairs. Malformed pairs
// are skipped rather than failing the whole load.
func parsePriceList(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitCSV(s) {
		k, v, found := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !found || k == "" || v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			continue
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
