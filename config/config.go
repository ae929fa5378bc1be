package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot de arbitraje.
type Config struct {
	Detector  DetectorConfig  `yaml:"detector"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Fees      FeesConfig      `yaml:"fees"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// DetectorConfig controla el escaneo y el modelo de probabilidad.
type DetectorConfig struct {
	IntervalSeconds      int      `yaml:"interval_seconds"`
	Assets               []string `yaml:"assets"`
	MinProfitUSD         float64  `yaml:"min_profit_usd"`
	MaxPositionSizeUSD   float64  `yaml:"max_position_size_usd"`
	PredictionFraction   float64  `yaml:"prediction_fraction"` // fracción del tamaño máximo para la pata de predicción
	HedgeFraction        float64  `yaml:"hedge_fraction"`      // fracción máxima de capital para el margen del hedge
	LiquidityFraction    float64  `yaml:"liquidity_fraction"`  // fracción máxima de la liquidez del lado elegido
	MaxSidePrice         float64  `yaml:"max_side_price"`      // rechazar lados cotizados por encima (poco beneficio)
	MinTargetDistancePct float64  `yaml:"min_target_distance_pct"`
	FundingRateThreshold float64  `yaml:"funding_rate_threshold"`
	RiskFreeRate         float64  `yaml:"risk_free_rate"`
	AnalysisWorkers      int      `yaml:"analysis_workers"` // goroutines para análisis paralelo (0 = NumCPU*2)
	RequestsPerSecond    float64  `yaml:"requests_per_second"`
}

// RiskConfig contiene los límites de riesgo del proceso.
type RiskConfig struct {
	MaxConcurrentPositions   int     `yaml:"max_concurrent_positions"`
	MaxDailyTrades           int     `yaml:"max_daily_trades"`
	MaxAssetConcentrationUSD float64 `yaml:"max_asset_concentration_usd"`
	BreakerMaxLosses         int     `yaml:"breaker_max_losses"`
	BreakerCooldownMinutes   int     `yaml:"breaker_cooldown_minutes"`
	MaxDrawdownUSD           float64 `yaml:"max_drawdown_usd"` // positivo en el YAML, se aplica en negativo
}

// ExecutionConfig controla cómo se ejecutan las dos patas.
type ExecutionConfig struct {
	Mode               string  `yaml:"mode"` // aggressive | passive | adaptive | timesliced
	DefaultLeverage    float64 `yaml:"default_leverage"`
	MaxLeverage        float64 `yaml:"max_leverage"`
	StopLossPct        float64 `yaml:"stop_loss_pct"`
	TakeProfitFraction float64 `yaml:"take_profit_fraction"` // fracción de la distancia al breakeven
	TimeBudgetSeconds  int     `yaml:"time_budget_seconds"`
	HighProfitPct      float64 `yaml:"high_profit_pct"` // adaptive: por encima usa market orders
}

// MonitorConfig controla la supervisión de posiciones.
type MonitorConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	HardFundingMultiple float64 `yaml:"hard_funding_multiple"` // cierre a N× el umbral de detección
}

// FeesConfig modela las comisiones de ambos venues.
type FeesConfig struct {
	PredictionFeeRate float64 `yaml:"prediction_fee_rate"`
	HedgeTakerFeeRate float64 `yaml:"hedge_taker_fee_rate"`
	HedgeMakerFeeRate float64 `yaml:"hedge_maker_fee_rate"`
}

// StorageConfig controla dónde se persiste el histórico de posiciones.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	SetDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve una configuración con todos los valores por defecto.
func Default() *Config {
	var cfg Config
	SetDefaults(&cfg)
	return &cfg
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Detector.IntervalSeconds) * time.Second
}

// MonitorInterval devuelve el intervalo del monitor como time.Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EXECUTION_MODE"); v != "" {
		cfg.Execution.Mode = v
	}
}

// SetDefaults asegura que los valores requeridos tengan valores sensatos.
func SetDefaults(cfg *Config) {
	d := &cfg.Detector
	if d.IntervalSeconds <= 0 {
		d.IntervalSeconds = 30
	}
	if len(d.Assets) == 0 {
		d.Assets = []string{"BTC", "ETH"}
	}
	if d.MinProfitUSD <= 0 {
		d.MinProfitUSD = 50
	}
	if d.MaxPositionSizeUSD <= 0 {
		d.MaxPositionSizeUSD = 5000
	}
	if d.PredictionFraction <= 0 {
		d.PredictionFraction = 0.4
	}
	if d.HedgeFraction <= 0 {
		d.HedgeFraction = 0.6
	}
	if d.LiquidityFraction <= 0 {
		d.LiquidityFraction = 0.1
	}
	if d.MaxSidePrice <= 0 {
		d.MaxSidePrice = 0.90
	}
	if d.MinTargetDistancePct <= 0 {
		d.MinTargetDistancePct = 1.0
	}
	if d.FundingRateThreshold <= 0 {
		d.FundingRateThreshold = 0.01
	}
	if d.RiskFreeRate <= 0 {
		d.RiskFreeRate = 0.05
	}
	if d.RequestsPerSecond <= 0 {
		d.RequestsPerSecond = 5
	}

	r := &cfg.Risk
	if r.MaxConcurrentPositions <= 0 {
		r.MaxConcurrentPositions = 5
	}
	if r.MaxDailyTrades <= 0 {
		r.MaxDailyTrades = 20
	}
	if r.MaxAssetConcentrationUSD <= 0 {
		r.MaxAssetConcentrationUSD = cfg.Detector.MaxPositionSizeUSD * 2
	}
	if r.BreakerMaxLosses <= 0 {
		r.BreakerMaxLosses = 3
	}
	if r.BreakerCooldownMinutes <= 0 {
		r.BreakerCooldownMinutes = 30
	}
	if r.MaxDrawdownUSD <= 0 {
		r.MaxDrawdownUSD = 500
	}

	e := &cfg.Execution
	if e.Mode == "" {
		e.Mode = "ADAPTIVE"
	}
	if e.DefaultLeverage <= 0 {
		e.DefaultLeverage = 5
	}
	if e.MaxLeverage <= 0 {
		e.MaxLeverage = 10
	}
	if e.StopLossPct <= 0 {
		e.StopLossPct = 2.0
	}
	if e.TakeProfitFraction <= 0 {
		e.TakeProfitFraction = 0.5
	}
	if e.TimeBudgetSeconds <= 0 {
		e.TimeBudgetSeconds = 60
	}
	if e.HighProfitPct <= 0 {
		e.HighProfitPct = 5.0
	}

	m := &cfg.Monitor
	if m.IntervalSeconds <= 0 {
		m.IntervalSeconds = 5
	}
	if m.HardFundingMultiple <= 0 {
		m.HardFundingMultiple = 3.0
	}

	f := &cfg.Fees
	if f.PredictionFeeRate <= 0 {
		f.PredictionFeeRate = 0.002
	}
	if f.HedgeTakerFeeRate <= 0 {
		f.HedgeTakerFeeRate = 0.0003
	}
	if f.HedgeMakerFeeRate <= 0 {
		f.HedgeMakerFeeRate = 0.0002
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyhedge.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
