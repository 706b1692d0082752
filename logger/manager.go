package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager creates and caches one logger per module name.
// All module loggers share the same ManagerConfig.
type Manager struct {
	config  ManagerConfig
	loggers map[string]*CtxZapLogger
	writers []*lumberjack.Logger
	mu      sync.RWMutex
}

var (
	defaultManager *Manager
	managerOnce    sync.Once
	managerMu      sync.Mutex
)

// Create logger manager
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		config:  cfg,
		loggers: make(map[string]*CtxZapLogger),
	}
}

// InitManager installs the global manager. Safe to call once at startup;
// later calls replace the configuration for loggers not yet created.
func InitManager(cfg ManagerConfig) {
	managerMu.Lock()
	defer managerMu.Unlock()
	defaultManager = NewManager(cfg)
}

// GetLogger returns the module logger from the global manager,
// initializing the manager with defaults when nothing was configured.
func GetLogger(moduleName string) *CtxZapLogger {
	managerOnce.Do(func() {
		managerMu.Lock()
		if defaultManager == nil {
			defaultManager = NewManager(DefaultManagerConfig())
		}
		managerMu.Unlock()
	})
	managerMu.Lock()
	m := defaultManager
	managerMu.Unlock()
	return m.GetLogger(moduleName)
}

// GetLogger returns (or creates) the logger bound to a module name.
func (m *Manager) GetLogger(moduleName string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[moduleName]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[moduleName]; ok {
		return l
	}

	base := m.createLogger(moduleName)
	l := &CtxZapLogger{base: base, module: moduleName, config: &m.config}
	m.loggers[moduleName] = l
	return l
}

// CloseAll flushes every logger created by this manager.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loggers {
		_ = l.base.Sync()
	}
	for _, w := range m.writers {
		_ = w.Close()
	}
}

// CloseAll flushes the global manager.
func CloseAll() {
	managerMu.Lock()
	m := defaultManager
	managerMu.Unlock()
	if m != nil {
		m.CloseAll()
	}
}

// createLogger builds the underlying zap.Logger for one module.
func (m *Manager) createLogger(moduleName string) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(m.config.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if m.config.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	cores := make([]zapcore.Core, 0, 2)

	if m.config.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level))
	}

	if m.config.EnableFile {
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(m.config.BaseLogDir, moduleName+".log"),
			MaxSize:    m.config.MaxSize,
			MaxBackups: m.config.MaxBackups,
			MaxAge:     m.config.MaxAge,
			Compress:   m.config.Compress,
		}
		m.writers = append(m.writers, writer)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	opts := []zap.Option{}
	if m.config.EnableCaller {
		// skip=1: the CtxZapLogger wrapper
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return zap.New(zapcore.NewTee(cores...), opts...).
		With(zap.String("module", moduleName))
}
