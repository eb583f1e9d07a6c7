package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/thinh267/stat-arb/pkg/crypto"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// Режимы торговли
const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
)

// Стратегии сигналов
const (
	StrategyConfirmation = "confirmation"
	StrategyBollinger    = "bollinger"
	StrategyDualLeg      = "dual_leg"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Cache    CacheConfig
	Scanner  ScannerConfig
	Signal   SignalConfig
	Trading  TradingConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки операторского HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// APIKeyHash - bcrypt-хеш API_KEY; пусто = ручной запуск задач выключен
	APIKeyHash    string
	EncryptionKey string
}

// ExchangeConfig - настройки Binance USDT-M futures
type ExchangeConfig struct {
	BaseURL   string
	WSURL     string
	APIKey    string
	APISecret string
	RateLimit float64 // запросов в секунду
	Timeout   time.Duration
}

// CacheConfig - кэш свечей
type CacheConfig struct {
	RedisAddr     string // пусто = только память
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// ScannerConfig - поиск пар
type ScannerConfig struct {
	Interval             string
	Lookback             int
	VolumeLookback       int
	TopVolumePercentile  float64
	MinCandles           int
	CorrelationThreshold float64
	CointegrationPValue  float64
	TopN                 int
	RollingWindow        int
	VolumeWorkers        int
	QualityWorkers       int
	PairWorkers          int
	QuoteAsset           string
	ExcludeSymbols       []string
}

// SignalConfig - генерация сигналов
type SignalConfig struct {
	Strategy            string
	Timeframe           string
	Lookback            int
	ZScoreWindow        int
	ZScoreThreshold     float64 // confirmation и dual_leg
	BollingerZThreshold float64 // bollinger
	MinConfirmations    int
	MomentumPeriod      int
	TakeProfitPct       float64
	StopLossPct         float64
	Workers             int
}

// CapitalTier - доля DAILY_LIMIT для рангов до MaxRank включительно
type CapitalTier struct {
	MaxRank  int     `yaml:"max_rank"`
	Fraction float64 `yaml:"fraction"`
}

// TradingConfig - управление позициями
type TradingConfig struct {
	Mode                 string
	DailyLimit           float64
	Tiers                []CapitalTier
	ExitZScore           float64
	SignalLookbackWindow time.Duration
	MonitorFastInterval  time.Duration
	MonitorSlowInterval  time.Duration
	OpenInterval         time.Duration
}

// ScheduleConfig - расписание задач
type ScheduleConfig struct {
	DailyScanTime        string // HH:MM UTC
	HourlyUpdateInterval time.Duration
	SignalCheckInterval  time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// fileOverlay - необязательный YAML из CONFIG_FILE
type fileOverlay struct {
	Tiers          []CapitalTier `yaml:"tiers"`
	ExcludeSymbols []string      `yaml:"exclude_symbols"`
}

// DefaultTiers - ранги 1-3: 15%, 4-5: 10%, 6-10: 5%
func DefaultTiers() []CapitalTier {
	return []CapitalTier{
		{MaxRank: 3, Fraction: 0.15},
		{MaxRank: 5, Fraction: 0.10},
		{MaxRank: 10, Fraction: 0.05},
	}
}

// Load загружает конфигурацию из переменных окружения.
// .env в рабочей директории подхватывается, если есть.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "statarb"),
			User:         getEnv("DB_USER", "statarb"),
			Password:     getEnv("DB_PASSWORD", ""),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Exchange: ExchangeConfig{
			BaseURL:   getEnv("EXCHANGE_BASE_URL", "https://fapi.binance.com"),
			WSURL:     getEnv("EXCHANGE_WS_URL", "wss://fstream.binance.com/ws"),
			APIKey:    getEnv("BINANCE_API_KEY", ""),
			APISecret: getEnv("BINANCE_API_SECRET", ""),
			RateLimit: getEnvAsFloat("EXCHANGE_RATE_LIMIT", 20),
			Timeout:   getEnvAsDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		},
		Cache: CacheConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			TTL:           getEnvAsDuration("CACHE_TTL", 30*time.Minute),
		},
		Scanner: ScannerConfig{
			Interval:             getEnv("SCAN_INTERVAL", "1h"),
			Lookback:             getEnvAsInt("SCAN_LOOKBACK", 168),
			VolumeLookback:       getEnvAsInt("VOLUME_LOOKBACK", 24),
			TopVolumePercentile:  getEnvAsFloat("TOP_VOLUME_PERCENTILE", 50),
			MinCandles:           getEnvAsInt("MIN_CANDLES", 100),
			CorrelationThreshold: getEnvAsFloat("CORRELATION_THRESHOLD", 0.5),
			CointegrationPValue:  getEnvAsFloat("COINTEGRATION_PVALUE", 0.05),
			TopN:                 getEnvAsInt("DAILY_TOP_N", 10),
			RollingWindow:        getEnvAsInt("ROLLING_CORRELATION_WINDOW", 7),
			VolumeWorkers:        getEnvAsInt("VOLUME_WORKERS", 10),
			QualityWorkers:       getEnvAsInt("QUALITY_WORKERS", 8),
			PairWorkers:          getEnvAsInt("PAIR_WORKERS", 6),
			QuoteAsset:           strings.ToUpper(getEnv("QUOTE_ASSET", "USDT")),
			ExcludeSymbols:       getEnvAsList("EXCLUDE_SYMBOLS"),
		},
		Signal: SignalConfig{
			Strategy:            strings.ToLower(getEnv("SIGNAL_STRATEGY", StrategyConfirmation)),
			Timeframe:           getEnv("SIGNAL_TIMEFRAME", "1h"),
			Lookback:            getEnvAsInt("SIGNAL_LOOKBACK", 168),
			ZScoreWindow:        getEnvAsInt("ZSCORE_WINDOW", 20),
			ZScoreThreshold:     getEnvAsFloat("ZSCORE_THRESHOLD", 2.0),
			BollingerZThreshold: getEnvAsFloat("BOLLINGER_ZSCORE_THRESHOLD", 2.5),
			MinConfirmations:    getEnvAsInt("MIN_CONFIRMATIONS", 3),
			MomentumPeriod:      getEnvAsInt("MOMENTUM_PERIOD", 4),
			TakeProfitPct:       getEnvAsFloat("TAKE_PROFIT_PCT", 0.02),
			StopLossPct:         getEnvAsFloat("STOP_LOSS_PCT", 0.02),
			Workers:             getEnvAsInt("SIGNAL_WORKERS", 4),
		},
		Trading: TradingConfig{
			Mode:                 strings.ToLower(getEnv("TRADING_MODE", ModeSimulation)),
			DailyLimit:           getEnvAsFloat("DAILY_LIMIT", 100),
			Tiers:                DefaultTiers(),
			ExitZScore:           getEnvAsFloat("EXIT_ZSCORE", 0.5),
			SignalLookbackWindow: getEnvAsDuration("SIGNAL_LOOKBACK_WINDOW", 5*time.Minute),
			MonitorFastInterval:  getEnvAsDuration("MONITOR_FAST_INTERVAL", 2*time.Second),
			MonitorSlowInterval:  getEnvAsDuration("MONITOR_SLOW_INTERVAL", 5*time.Minute),
			OpenInterval:         getEnvAsDuration("OPEN_INTERVAL", 30*time.Second),
		},
		Schedule: ScheduleConfig{
			DailyScanTime:        getEnv("DAILY_SCAN_TIME", "09:00"),
			HourlyUpdateInterval: getEnvAsDuration("HOURLY_UPDATE_INTERVAL", 4*time.Hour),
			SignalCheckInterval:  getEnvAsDuration("SIGNAL_CHECK_INTERVAL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFile накладывает YAML-файл поверх значений окружения
func (c *Config) applyFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	var overlay fileOverlay
	if err := yaml.NewDecoder(file).Decode(&overlay); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	if len(overlay.Tiers) > 0 {
		c.Trading.Tiers = overlay.Tiers
	}
	for _, s := range overlay.ExcludeSymbols {
		c.Scanner.ExcludeSymbols = append(c.Scanner.ExcludeSymbols, utils.NormalizeSymbol(s))
	}
	return nil
}

// loadSecrets расшифровывает секрет биржи и хеширует API_KEY
func (c *Config) loadSecrets() error {
	if enc := getEnv("BINANCE_API_SECRET_ENC", ""); enc != "" {
		secret, err := crypto.DecryptSecret(enc, []byte(c.Security.EncryptionKey))
		if err != nil {
			return fmt.Errorf("BINANCE_API_SECRET_ENC: %w", err)
		}
		c.Exchange.APISecret = secret
	}

	if key := getEnv("API_KEY", ""); key != "" {
		hash, err := crypto.HashAPIKey(key, getEnvAsInt("API_KEY_BCRYPT_COST", crypto.DefaultCost))
		if err != nil {
			return fmt.Errorf("API_KEY: %w", err)
		}
		c.Security.APIKeyHash = hash
	}
	return nil
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	if err := c.validateRanges(); err != nil {
		return err
	}
	if err := c.validateTrading(); err != nil {
		return err
	}
	return c.validateSignal()
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Exchange.RateLimit <= 0 {
		return fmt.Errorf("EXCHANGE_RATE_LIMIT must be positive, got %v", c.Exchange.RateLimit)
	}

	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("EXCHANGE_TIMEOUT must be positive, got %v", c.Exchange.Timeout)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Cache.TTL)
	}

	if c.Scanner.TopVolumePercentile <= 0 || c.Scanner.TopVolumePercentile > 100 {
		return fmt.Errorf("TOP_VOLUME_PERCENTILE must be in (0, 100], got %v", c.Scanner.TopVolumePercentile)
	}

	if c.Scanner.MinCandles < 20 {
		return fmt.Errorf("MIN_CANDLES must be at least 20, got %d", c.Scanner.MinCandles)
	}

	if c.Scanner.Lookback < c.Scanner.MinCandles {
		return fmt.Errorf("SCAN_LOOKBACK (%d) must not be less than MIN_CANDLES (%d)", c.Scanner.Lookback, c.Scanner.MinCandles)
	}

	if c.Scanner.CorrelationThreshold < 0 || c.Scanner.CorrelationThreshold > 1 {
		return fmt.Errorf("CORRELATION_THRESHOLD must be in [0, 1], got %v", c.Scanner.CorrelationThreshold)
	}

	if c.Scanner.CointegrationPValue <= 0 || c.Scanner.CointegrationPValue >= 1 {
		return fmt.Errorf("COINTEGRATION_PVALUE must be in (0, 1), got %v", c.Scanner.CointegrationPValue)
	}

	if c.Scanner.TopN < 1 {
		return fmt.Errorf("DAILY_TOP_N must be at least 1, got %d", c.Scanner.TopN)
	}

	if c.Scanner.RollingWindow < 2 {
		return fmt.Errorf("ROLLING_CORRELATION_WINDOW must be at least 2, got %d", c.Scanner.RollingWindow)
	}

	for name, n := range map[string]int{
		"VOLUME_WORKERS":  c.Scanner.VolumeWorkers,
		"QUALITY_WORKERS": c.Scanner.QualityWorkers,
		"PAIR_WORKERS":    c.Scanner.PairWorkers,
		"SIGNAL_WORKERS":  c.Signal.Workers,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, n)
		}
	}

	if err := utils.ValidateInterval(c.Scanner.Interval); err != nil {
		return fmt.Errorf("SCAN_INTERVAL: %w", err)
	}

	if _, _, err := utils.ParseClock(c.Schedule.DailyScanTime); err != nil {
		return fmt.Errorf("DAILY_SCAN_TIME: %w", err)
	}

	if c.Schedule.HourlyUpdateInterval <= 0 || c.Schedule.SignalCheckInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}

	return nil
}

// validateSignal проверяет параметры генерации сигналов
func (c *Config) validateSignal() error {
	switch c.Signal.Strategy {
	case StrategyConfirmation, StrategyBollinger, StrategyDualLeg:
	default:
		return fmt.Errorf("SIGNAL_STRATEGY must be one of confirmation, bollinger, dual_leg, got %q", c.Signal.Strategy)
	}

	if err := utils.ValidateInterval(c.Signal.Timeframe); err != nil {
		return fmt.Errorf("SIGNAL_TIMEFRAME: %w", err)
	}

	if c.Signal.ZScoreWindow < 2 {
		return fmt.Errorf("ZSCORE_WINDOW must be at least 2, got %d", c.Signal.ZScoreWindow)
	}

	if c.Signal.Lookback < c.Signal.ZScoreWindow {
		return fmt.Errorf("SIGNAL_LOOKBACK (%d) must not be less than ZSCORE_WINDOW (%d)", c.Signal.Lookback, c.Signal.ZScoreWindow)
	}

	if c.Signal.ZScoreThreshold <= 0 || c.Signal.BollingerZThreshold <= 0 {
		return fmt.Errorf("z-score thresholds must be positive")
	}

	if c.Signal.MinConfirmations < 1 || c.Signal.MinConfirmations > 4 {
		return fmt.Errorf("MIN_CONFIRMATIONS must be between 1 and 4, got %d", c.Signal.MinConfirmations)
	}

	if c.Signal.MomentumPeriod < 1 {
		return fmt.Errorf("MOMENTUM_PERIOD must be at least 1, got %d", c.Signal.MomentumPeriod)
	}

	if c.Signal.TakeProfitPct <= 0 || c.Signal.TakeProfitPct >= 1 {
		return fmt.Errorf("TAKE_PROFIT_PCT must be in (0, 1), got %v", c.Signal.TakeProfitPct)
	}

	if c.Signal.StopLossPct <= 0 || c.Signal.StopLossPct >= 1 {
		return fmt.Errorf("STOP_LOSS_PCT must be in (0, 1), got %v", c.Signal.StopLossPct)
	}

	return nil
}

// validateTrading проверяет режим, лимиты и таблицу капитала
func (c *Config) validateTrading() error {
	switch c.Trading.Mode {
	case ModeSimulation:
	case ModeLive:
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET are required in live mode")
		}
	default:
		return fmt.Errorf("TRADING_MODE must be simulation or live, got %q", c.Trading.Mode)
	}

	if c.Trading.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_LIMIT must be positive, got %v", c.Trading.DailyLimit)
	}

	if c.Trading.ExitZScore <= 0 {
		return fmt.Errorf("EXIT_ZSCORE must be positive, got %v", c.Trading.ExitZScore)
	}

	if c.Trading.MonitorFastInterval <= 0 || c.Trading.MonitorSlowInterval < c.Trading.MonitorFastInterval {
		return fmt.Errorf("MONITOR_SLOW_INTERVAL (%v) must not be less than MONITOR_FAST_INTERVAL (%v)",
			c.Trading.MonitorSlowInterval, c.Trading.MonitorFastInterval)
	}

	if c.Trading.OpenInterval <= 0 || c.Trading.SignalLookbackWindow <= 0 {
		return fmt.Errorf("OPEN_INTERVAL and SIGNAL_LOOKBACK_WINDOW must be positive")
	}

	return validateTiers(c.Trading.Tiers)
}

// validateTiers требует возрастающие ранги и доли в (0, 1]
func validateTiers(tiers []CapitalTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("capital tiers must not be empty")
	}

	sorted := append([]CapitalTier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxRank < sorted[j].MaxRank })

	prev := 0
	for _, t := range sorted {
		if t.MaxRank <= prev {
			return fmt.Errorf("capital tier max_rank must be positive and unique, got %d", t.MaxRank)
		}
		if t.Fraction <= 0 || t.Fraction > 1 {
			return fmt.Errorf("capital tier fraction for rank %d must be in (0, 1], got %v", t.MaxRank, t.Fraction)
		}
		prev = t.MaxRank
	}
	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Addr возвращает адрес HTTP сервера
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsLive сообщает, что ордера отправляются на биржу
func (t TradingConfig) IsLive() bool {
	return t.Mode == ModeLive
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList читает список через запятую
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if s := utils.NormalizeSymbol(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
