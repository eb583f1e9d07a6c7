package utils

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единый logger для всех компонентов: сканера пар, генератора сигналов,
// менеджера позиций и HTTP сервера. Поля (symbol, pair_id, z_score...)
// пишутся как структурированные ключи, а не внутри сообщения.
//
// Использование:
//
//	utils.InitGlobalLogger(utils.LogConfig{Level: "info", Format: "json"})
//	log := utils.L().WithComponent("scanner")
//	log.Info("phase finished", utils.Int("survivors", 42))

// LogConfig - параметры инициализации logger
type LogConfig struct {
	Level       string // debug | info | warn | error | fatal
	Format      string // json | console (text)
	Output      string // stdout | stderr | путь к файлу
	Development bool
}

// Logger - обёртка над zap.Logger с sugar-доступом
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создаёт logger по конфигурации
// При ошибке открытия файла вывод переключается на stderr
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, openOutput(cfg.Output), zap.NewAtomicLevelAt(level))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	l := zap.New(core, opts...)
	return &Logger{Logger: l, sugar: l.Sugar()}
}

func openOutput(output string) zapcore.WriteSyncer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

// parseLevel переводит строку в уровень zap, по умолчанию info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============ Глобальный logger ============

// GetGlobalLogger возвращает глобальный logger, создавая его при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// InitGlobalLogger создаёт logger и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger заменяет глобальный logger (используется в тестах)
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ============ Дочерние логгеры ============

// With возвращает logger с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent помечает записи именем компонента
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithSymbol помечает записи символом инструмента
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID помечает записи идентификатором пары
func (l *Logger) WithPairID(id int) *Logger {
	return l.With(PairID(id))
}

// Sugar возвращает printf-style logger
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============ Функции глобального logger ============

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{}) { L().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{}) { L().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============ Доменные поля ============

func Component(name string) zap.Field { return zap.String("component", name) }
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }
func PairID(id int) zap.Field { return zap.Int("pair_id", id) }
func PositionID(id int) zap.Field { return zap.Int("position_id", id) }
func SignalID(id int) zap.Field { return zap.Int("signal_id", id) }
func OrderID(id string) zap.Field { return zap.String("order_id", id) }
func Price(p float64) zap.Field { return zap.Float64("price", p) }
func Quantity(q float64) zap.Field { return zap.Float64("quantity", q) }
func ZScore(z float64) zap.Field { return zap.Float64("z_score", z) }
func Correlation(c float64) zap.Field { return zap.Float64("correlation", c) }
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }
func Capital(c float64) zap.Field { return zap.Float64("capital", c) }
func Side(side string) zap.Field { return zap.String("side", side) }
func Reason(reason string) zap.Field { return zap.String("reason", reason) }
func Task(name string) zap.Field { return zap.String("task", name) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
func Latency(d time.Duration) zap.Field { return zap.Int64("latency_ms", d.Milliseconds()) }

// Реэкспорт базовых конструкторов, чтобы пакетам не импортировать zap напрямую
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
	Dur     = zap.Duration
)
