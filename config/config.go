package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/pickbot/internal/domain"
)

// Config es la configuración completa de pickbot.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Feeds   FeedsConfig   `yaml:"feeds"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla la generación y rotación de picks.
type EngineConfig struct {
	Sport               string  `yaml:"sport"`
	WindowHours         int     `yaml:"window_hours"`         // horizonte del pool de candidatos
	Timezone            string  `yaml:"timezone"`             // nombre IANA para el checkpoint diario
	Checkpoint          string  `yaml:"checkpoint"`           // "HH:MM" hora local
	PollIntervalMinutes int     `yaml:"poll_interval_minutes"`
	MinGrade            string  `yaml:"min_grade"`            // por debajo el pick se marca low-quality
	Units               float64 `yaml:"units"`                // stake de referencia por pick
	SettleLookbackHours int     `yaml:"settle_lookback_hours"`
	MissWarnAfter       int     `yaml:"miss_warn_after"` // fallos de settlement antes de avisar
}

// FeedsConfig guarda el endpoint del proveedor de datos y sus credenciales.
type FeedsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` // normalmente vía FEEDS_API_KEY en .env
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta del fichero SQLite, o ":memory:"
}

// LogConfig controla formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load lee el fichero YAML y el .env si existe. Los valores de entorno pisan
// al YAML en las claves que mapean.
func Load(path string) (*Config, error) {
	// Carga .env si existe (se ignora en silencio cuando falta)
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
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve la cadencia del poll de inicio de eventos como Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMinutes) * time.Minute
}

// Window devuelve el horizonte del pool de candidatos como Duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Engine.WindowHours) * time.Hour
}

// SettleLookback devuelve la ventana de resultados de los ciclos de settlement.
func (c *Config) SettleLookback() time.Duration {
	return time.Duration(c.Engine.SettleLookbackHours) * time.Hour
}

// Location resuelve la zona horaria configurada.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Engine.Timezone, err)
	}
	return loc, nil
}

// CheckpointTime parsea el checkpoint "HH:MM".
func (c *Config) CheckpointTime() (hour, minute int, err error) {
	parts := strings.SplitN(c.Engine.Checkpoint, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: checkpoint %q: want HH:MM", c.Engine.Checkpoint)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("config: checkpoint hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("config: checkpoint minute %q", parts[1])
	}
	return hour, minute, nil
}

// applyEnvOverrides reemplaza valores con variables de entorno cuando existen.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEEDS_API_KEY"); v != "" {
		cfg.Feeds.APIKey = v
	}
	if v := os.Getenv("FEEDS_BASE_URL"); v != "" {
		cfg.Feeds.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults rellena los valores requeridos con defaults de producción
// razonables.
func setDefaults(cfg *Config) {
	if cfg.Engine.Sport == "" {
		cfg.Engine.Sport = "baseball_mlb"
	}
	if cfg.Engine.WindowHours <= 0 {
		cfg.Engine.WindowHours = 36
	}
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = "America/New_York"
	}
	if cfg.Engine.Checkpoint == "" {
		cfg.Engine.Checkpoint = "07:00"
	}
	if cfg.Engine.PollIntervalMinutes <= 0 {
		cfg.Engine.PollIntervalMinutes = 30
	}
	if cfg.Engine.MinGrade == "" {
		cfg.Engine.MinGrade = "B+"
	}
	if cfg.Engine.Units <= 0 {
		cfg.Engine.Units = 1.0
	}
	if cfg.Engine.SettleLookbackHours <= 0 {
		cfg.Engine.SettleLookbackHours = 48
	}
	if cfg.Engine.MissWarnAfter <= 0 {
		cfg.Engine.MissWarnAfter = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "pickbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if !domain.ValidGrade(c.Engine.MinGrade) {
		return fmt.Errorf("min_grade %q is not a valid grade", c.Engine.MinGrade)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, _, err := c.CheckpointTime(); err != nil {
		return err
	}
	return nil
}
