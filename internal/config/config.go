package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	TileIndex TileIndexConfig `yaml:"tile_index" mapstructure:"tile_index"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Journal   JournalConfig   `yaml:"journal" mapstructure:"journal"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig configures the PostGIS connection.
type DatabaseConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TileIndexConfig configures where the tile index lives.
type TileIndexConfig struct {
	Schema string `yaml:"schema" mapstructure:"schema"`
	Table  string `yaml:"table" mapstructure:"table"`
	SRID   int    `yaml:"srid" mapstructure:"srid"`
}

// ExportConfig configures CityJSON output.
type ExportConfig struct {
	Jobs            int       `yaml:"jobs" mapstructure:"jobs"`
	ImportantDigits int       `yaml:"important_digits" mapstructure:"important_digits"`
	Translate       []float64 `yaml:"translate" mapstructure:"translate"`
	MappingPath     string    `yaml:"mapping" mapstructure:"mapping"`
}

// Translation returns the coordinate translation as a fixed triple.
func (e ExportConfig) Translation() ([3]float64, error) {
	if len(e.Translate) != 3 {
		return [3]float64{}, eris.Errorf("config: export.translate needs 3 values, got %d", len(e.Translate))
	}
	return [3]float64{e.Translate[0], e.Translate[1], e.Translate[2]}, nil
}

// JournalConfig configures the local run journal.
type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path falls
// back to config.yaml in the working directory; that file is optional,
// environment variables (prefix CJDB) and defaults always apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CJDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("tile_index.schema", "tiles")
	v.SetDefault("tile_index.table", "tile_index")
	v.SetDefault("tile_index.srid", 7415)
	v.SetDefault("export.jobs", 4)
	v.SetDefault("export.important_digits", 4)
	v.SetDefault("export.translate", []float64{171800.0, 472700.0, 0.0})
	v.SetDefault("export.mapping", "mapping.yaml")
	v.SetDefault("journal.path", "cjdb-export.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Export.Jobs < 1 {
		return nil, eris.New("config: export.jobs must be at least 1")
	}
	if cfg.Export.ImportantDigits < 0 || cfg.Export.ImportantDigits > 12 {
		return nil, eris.New("config: export.important_digits must be between 0 and 12")
	}
	if _, err := cfg.Export.Translation(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
