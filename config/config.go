package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del agente.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Strategy StrategyConfig `yaml:"strategy"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Oracle   OracleConfig   `yaml:"oracle"`
	API      APIConfig      `yaml:"api"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`

	// Secrets solo se leen del entorno, nunca del YAML.
	Secrets Secrets `yaml:"-"`
}

// AgentConfig controla el ciclo.
type AgentConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	MaxMarkets          int     `yaml:"max_markets"`    // mercados listados por ciclo
	MaxCandidates       int     `yaml:"max_candidates"` // mercados enviados al oracle tras el prefiltro
	MinLiquidityUSD     float64 `yaml:"min_liquidity_usd"`
	Workers             int     `yaml:"workers"`
	BalanceSyncEvery    int     `yaml:"balance_sync_every"` // ciclos entre syncs on-chain
	RetryAttempts       *int    `yaml:"retry_attempts"`     // nil → 1; 0 desactiva reintentos
	RetryBackoffSeconds float64 `yaml:"retry_backoff_seconds"`
	Paper               bool    `yaml:"paper"`
}

// StrategyConfig agrupa los umbrales del detector, el sizer y el gate.
// Los porcentajes se expresan en puntos (8 = 8%).
type StrategyConfig struct {
	MinEdgePercent      float64 `yaml:"min_edge_percent"`
	MinConfidence       float64 `yaml:"min_confidence"`
	KellyMultiplier     float64 `yaml:"kelly_multiplier"`
	MaxPositionPercent  float64 `yaml:"max_position_percent"`
	MaxPortfolioPercent float64 `yaml:"max_portfolio_percent"`
	MaxSlippagePercent  float64 `yaml:"max_slippage_percent"`
	MinOrderUSD         float64 `yaml:"min_order_usd"`
	MinShares           float64 `yaml:"min_shares"`
}

// LedgerConfig controla la supervivencia.
type LedgerConfig struct {
	StartingBankroll      float64 `yaml:"starting_bankroll"`
	DeathThresholdUSD     float64 `yaml:"death_threshold_usd"`
	EstimatedCycleCostUSD float64 `yaml:"estimated_cycle_cost_usd"`
	BalanceDriftUSD       float64 `yaml:"balance_drift_usd"`
}

// OracleConfig configura el modelo y su precio por millón de tokens.
type OracleConfig struct {
	Model            string  `yaml:"model"`
	BaseURL          string  `yaml:"base_url"`
	MaxTokens        int64   `yaml:"max_tokens"`
	InputUSDPerMTok  float64 `yaml:"input_usd_per_mtok"`
	OutputUSDPerMTok float64 `yaml:"output_usd_per_mtok"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	DataBase   string `yaml:"data_base"`
	PolygonRPC string `yaml:"polygon_rpc"`
}

// TimeoutConfig limita cada llamada externa, en segundos.
type TimeoutConfig struct {
	ScanSeconds   int `yaml:"scan_seconds"`
	EnrichSeconds int `yaml:"enrich_seconds"`
	OracleSeconds int `yaml:"oracle_seconds"`
	BookSeconds   int `yaml:"book_seconds"`
	SubmitSeconds int `yaml:"submit_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Secrets viene solo de variables de entorno (o .env).
type Secrets struct {
	PrivateKey   string
	AnthropicKey string
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML. Un path vacío
// usa solo defaults y entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Interval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Agent.IntervalSeconds) * time.Second
}

// RetryBackoff devuelve la espera entre reintentos.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Agent.RetryBackoffSeconds * float64(time.Second))
}

// Retries devuelve el número de reintentos tras el primer intento.
func (c *Config) Retries() int {
	if c.Agent.RetryAttempts == nil {
		return 1
	}
	return *c.Agent.RetryAttempts
}

// Seconds convierte segundos de config a time.Duration.
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// Validate rechaza valores fuera de rango. En modo live exige los secretos.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Strategy
	check(s.MinEdgePercent > 0 && s.MinEdgePercent < 100, "min_edge_percent %.2f out of (0,100)", s.MinEdgePercent)
	check(s.MinConfidence >= 0 && s.MinConfidence <= 1, "min_confidence %.2f out of [0,1]", s.MinConfidence)
	check(s.KellyMultiplier > 0 && s.KellyMultiplier <= 1, "kelly_multiplier %.2f out of (0,1]", s.KellyMultiplier)
	check(s.MaxPositionPercent > 0 && s.MaxPositionPercent <= 100, "max_position_percent %.2f out of (0,100]", s.MaxPositionPercent)
	check(s.MaxPortfolioPercent >= s.MaxPositionPercent && s.MaxPortfolioPercent <= 100,
		"max_portfolio_percent %.2f must be in [max_position_percent, 100]", s.MaxPortfolioPercent)
	check(s.MaxSlippagePercent >= 0 && s.MaxSlippagePercent < 100, "max_slippage_percent %.2f out of [0,100)", s.MaxSlippagePercent)
	check(s.MinOrderUSD >= 0, "min_order_usd must not be negative")
	check(s.MinShares >= 0, "min_shares must not be negative")

	l := c.Ledger
	check(l.StartingBankroll > 0, "starting_bankroll must be positive")
	check(l.DeathThresholdUSD >= 0 && l.DeathThresholdUSD < l.StartingBankroll,
		"death_threshold_usd %.2f must be in [0, starting_bankroll)", l.DeathThresholdUSD)
	check(l.EstimatedCycleCostUSD >= 0, "estimated_cycle_cost_usd must not be negative")

	a := c.Agent
	check(a.IntervalSeconds > 0, "interval_seconds must be positive")
	check(a.MaxCandidates > 0, "max_candidates must be positive")
	check(c.Retries() >= 0, "retry_attempts must not be negative")

	check(c.Secrets.AnthropicKey != "", "ANTHROPIC_API_KEY is required")
	if !a.Paper {
		check(c.Secrets.PrivateKey != "", "POLY_PRIVATE_KEY is required in live mode")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	envInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", name, v, err))
				return
			}
			*dst = n
		}
	}
	envFloat := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", name, v, err))
				return
			}
			*dst = f
		}
	}
	envString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	envInt("SCAN_INTERVAL_SECONDS", &cfg.Agent.IntervalSeconds)
	envInt("MAX_MARKETS_PER_SCAN", &cfg.Agent.MaxMarkets)
	envFloat("MIN_LIQUIDITY_USD", &cfg.Agent.MinLiquidityUSD)
	envFloat("MIN_EDGE_PERCENT", &cfg.Strategy.MinEdgePercent)
	envFloat("MIN_CONFIDENCE", &cfg.Strategy.MinConfidence)
	envFloat("MAX_POSITION_PERCENT", &cfg.Strategy.MaxPositionPercent)
	envFloat("MAX_PORTFOLIO_PERCENT", &cfg.Strategy.MaxPortfolioPercent)
	envFloat("STARTING_BANKROLL", &cfg.Ledger.StartingBankroll)
	envFloat("DEATH_THRESHOLD_USD", &cfg.Ledger.DeathThresholdUSD)
	envString("CLAUDE_MODEL", &cfg.Oracle.Model)
	envString("POLYMARKET_CLOB_URL", &cfg.API.CLOBBase)
	envString("POLYMARKET_GAMMA_URL", &cfg.API.GammaBase)
	envString("POLYGON_RPC_URL", &cfg.API.PolygonRPC)
	envString("STORAGE_DSN", &cfg.Storage.DSN)
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)

	cfg.Secrets.PrivateKey = os.Getenv("POLY_PRIVATE_KEY")
	cfg.Secrets.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")

	return errors.Join(errs...)
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	a := &cfg.Agent
	if a.IntervalSeconds <= 0 {
		a.IntervalSeconds = 600
	}
	if a.MaxMarkets <= 0 {
		a.MaxMarkets = 1000
	}
	if a.MaxCandidates <= 0 {
		a.MaxCandidates = 80
	}
	if a.MinLiquidityUSD <= 0 {
		a.MinLiquidityUSD = 500
	}
	if a.Workers <= 0 {
		a.Workers = 4
	}
	if a.BalanceSyncEvery <= 0 {
		a.BalanceSyncEvery = 6
	}
	if a.RetryBackoffSeconds <= 0 {
		a.RetryBackoffSeconds = 2
	}

	s := &cfg.Strategy
	if s.MinEdgePercent <= 0 {
		s.MinEdgePercent = 8
	}
	if s.MinConfidence <= 0 {
		s.MinConfidence = 0.4
	}
	if s.KellyMultiplier <= 0 {
		s.KellyMultiplier = 0.25
	}
	if s.MaxPositionPercent <= 0 {
		s.MaxPositionPercent = 6
	}
	if s.MaxPortfolioPercent <= 0 {
		s.MaxPortfolioPercent = 50
	}
	if s.MaxSlippagePercent <= 0 {
		s.MaxSlippagePercent = 5
	}
	if s.MinOrderUSD <= 0 {
		s.MinOrderUSD = 1
	}
	if s.MinShares <= 0 {
		s.MinShares = 5
	}

	l := &cfg.Ledger
	if l.StartingBankroll <= 0 {
		l.StartingBankroll = 50
	}
	if l.DeathThresholdUSD <= 0 {
		l.DeathThresholdUSD = 0.50
	}
	if l.EstimatedCycleCostUSD <= 0 {
		l.EstimatedCycleCostUSD = 2
	}
	if l.BalanceDriftUSD <= 0 {
		l.BalanceDriftUSD = 0.50
	}

	o := &cfg.Oracle
	if o.Model == "" {
		o.Model = "claude-sonnet-4-20250514"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 500
	}
	if o.InputUSDPerMTok <= 0 {
		o.InputUSDPerMTok = 3
	}
	if o.OutputUSDPerMTok <= 0 {
		o.OutputUSDPerMTok = 15
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.PolygonRPC == "" {
		cfg.API.PolygonRPC = "https://polygon-rpc.com"
	}

	t := &cfg.Timeouts
	if t.ScanSeconds <= 0 {
		t.ScanSeconds = 60
	}
	if t.EnrichSeconds <= 0 {
		t.EnrichSeconds = 15
	}
	if t.OracleSeconds <= 0 {
		t.OracleSeconds = 60
	}
	if t.BookSeconds <= 0 {
		t.BookSeconds = 10
	}
	if t.SubmitSeconds <= 0 {
		t.SubmitSeconds = 30
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyagent.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
