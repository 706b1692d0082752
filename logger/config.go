package logger

// ManagerConfig global logger configuration shared by every module logger.
type ManagerConfig struct {
	AppName       string `mapstructure:"app_name"`        // injected into every log line
	Level         string `mapstructure:"level"`           // debug, info, warn, error
	Encoding      string `mapstructure:"encoding"`        // json or console
	BaseLogDir    string `mapstructure:"base_log_dir"`    // log root directory
	EnableConsole bool   `mapstructure:"enable_console"`  // write to stdout
	EnableFile    bool   `mapstructure:"enable_file"`     // write to rotating files
	EnableCaller  bool   `mapstructure:"enable_caller"`   // record caller file:line
	MaxSize       int    `mapstructure:"max_size"`        // max size of a single file (MB)
	MaxBackups    int    `mapstructure:"max_backups"`     // rotated files to keep
	MaxAge        int    `mapstructure:"max_age"`         // days to keep
	Compress      bool   `mapstructure:"compress"`        // gzip rotated files

	// Trace ID extraction from context
	EnableTraceID    bool   `mapstructure:"enable_trace_id"`
	TraceIDKey       string `mapstructure:"trace_id_key"`        // key in context
	TraceIDFieldName string `mapstructure:"trace_id_field_name"` // log field name
}

// Returns default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AppName:          "admission",
		Level:            "info",
		Encoding:         "console",
		BaseLogDir:       "logs",
		EnableConsole:    true,
		EnableFile:       false,
		EnableCaller:     true,
		MaxSize:          100,
		MaxBackups:       10,
		MaxAge:           30,
		Compress:         false,
		EnableTraceID:    true,
		TraceIDKey:       "trace_id",
		TraceIDFieldName: "trace_id",
	}
}
