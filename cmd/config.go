package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	m "funcov.dev/pkg/funcov/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "funcov"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	logsDirFlagName = "logs-dir"
	verboseFlagName = "verbose"
	formatsFlagName = "formats"
	wrappedFlagName = "wrapped"

	engineRootKey      = "engine.root"
	enginePluginDirKey = "engine.plugin_dir"
	logsDirKey         = "logs.dir"
	stashDirKey        = "stash.dir"
	debugRootKey       = "debug.root"
	runTimeoutKey      = "run.timeout"
	reportFormatsKey   = "report.formats"

	defaultEnginePluginDir = "/usr/lib64/coverage-tools"
	defaultLogsDir         = "/var/coverage/data"
	defaultStashDir        = "/var/coverage/bin"
	defaultDebugRoot       = "/usr/lib/debug"
	defaultRunTimeout      = time.Hour
	defaultReportFormats   = "txt,xml,html"

	envPrefix = "FUNCOV"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".funcov.log"
	defaultLogLevel      = "info"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(enginePluginDirKey, defaultEnginePluginDir)
	viper.SetDefault(logsDirKey, defaultLogsDir)
	viper.SetDefault(stashDirKey, defaultStashDir)
	viper.SetDefault(debugRootKey, defaultDebugRoot)
	viper.SetDefault(runTimeoutKey, defaultRunTimeout)
	viper.SetDefault(reportFormatsKey, defaultReportFormats)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	// The config file is optional; defaults and FUNCOV_* env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Debug("config file not read", "error", err)
		}
	}
}

// settingsFromConfig assembles the runtime settings handed to the domain
// layer. engine.root stays unvalidated here: run works from the manifest
// alone, so only wrap insists on it.
func settingsFromConfig() (m.Settings, error) {
	self, err := os.Executable()
	if err != nil {
		return m.Settings{}, fmt.Errorf("failed to locate own executable: %w", err)
	}

	return m.Settings{
		EngineRoot: m.Path(viper.GetString(engineRootKey)),
		PluginDir:  m.Path(viper.GetString(enginePluginDirKey)),
		LogDir:     m.Path(viper.GetString(logsDirKey)),
		StashDir:   m.Path(viper.GetString(stashDirKey)),
		DebugRoot:  m.Path(viper.GetString(debugRootKey)),
		Self:       m.Path(self),
		RunTimeout: viper.GetDuration(runTimeoutKey),
	}, nil
}

// requireEngineRoot rejects settings without a configured engine root.
func requireEngineRoot(settings m.Settings) error {
	if strings.TrimSpace(string(settings.EngineRoot)) != "" {
		return nil
	}

	return fmt.Errorf("%s is not configured: set it in %s or via %s_ENGINE_ROOT",
		engineRootKey, configFileName, envPrefix)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
