package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MANDEL_"

// Config represents the complete configuration of a render.
type Config struct {
	Grid    GridConfig    `yaml:"grid"`
	Master  MasterConfig  `yaml:"master"`
	Worker  WorkerConfig  `yaml:"worker"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// GridConfig describes the image and the region of the plane it covers.
type GridConfig struct {
	Width     int     `yaml:"width" env:"MANDEL_GRID_WIDTH"`
	Height    int     `yaml:"height" env:"MANDEL_GRID_HEIGHT"`
	MaxIter   int     `yaml:"max_iter" env:"MANDEL_GRID_MAX_ITER"`
	ChunkSize int     `yaml:"chunk_size" env:"MANDEL_GRID_CHUNK_SIZE"`
	XMin      float64 `yaml:"x_min" env:"MANDEL_GRID_X_MIN"`
	YMin      float64 `yaml:"y_min" env:"MANDEL_GRID_Y_MIN"`
	XSpan     float64 `yaml:"x_span" env:"MANDEL_GRID_X_SPAN"`
	YSpan     float64 `yaml:"y_span" env:"MANDEL_GRID_Y_SPAN"`
}

// MasterConfig holds master node configuration.
type MasterConfig struct {
	Workers  int    `yaml:"workers" env:"MANDEL_MASTER_WORKERS"`
	Harvest  string `yaml:"harvest" env:"MANDEL_MASTER_HARVEST"`
	MaxCells int    `yaml:"max_cells" env:"MANDEL_MASTER_MAX_CELLS"`
	Address  string `yaml:"address" env:"MANDEL_MASTER_ADDRESS"`
}

// WorkerConfig holds remote worker configuration.
type WorkerConfig struct {
	ID          string        `yaml:"id" env:"MANDEL_WORKER_ID"`
	MasterURL   string        `yaml:"master_url" env:"MANDEL_WORKER_MASTER_URL"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"MANDEL_WORKER_DIAL_TIMEOUT"`
}

// OutputConfig says where the image goes.
type OutputConfig struct {
	Path string `yaml:"path" env:"MANDEL_OUTPUT_PATH"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"MANDEL_LOG_LEVEL"`
	Format     string `yaml:"format" env:"MANDEL_LOG_FORMAT"`
	Output     string `yaml:"output" env:"MANDEL_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"MANDEL_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"MANDEL_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"MANDEL_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"MANDEL_LOG_MAX_AGE"`
}

// TracingConfig holds span export configuration.
type TracingConfig struct {
	Enabled bool   `yaml:"enabled" env:"MANDEL_TRACING_ENABLED"`
	Output  string `yaml:"output" env:"MANDEL_TRACING_OUTPUT"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	vp := types.DefaultViewport()
	return &Config{
		Grid: GridConfig{
			Width:     8000,
			Height:    8000,
			MaxIter:   10000,
			ChunkSize: 1,
			XMin:      vp.XMin,
			YMin:      vp.YMin,
			XSpan:     vp.XSpan,
			YSpan:     vp.YSpan,
		},
		Master: MasterConfig{
			Workers: 4,
			Harvest: "async",
			Address: ":8090",
		},
		Worker: WorkerConfig{
			MasterURL:   "ws://localhost:8090/api/v1/workers/ws",
			DialTimeout: 10 * time.Second,
		},
		Output: OutputConfig{
			Path: "mandel.ppm",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Spec returns the grid part of the configuration.
func (g GridConfig) Spec() types.GridSpec {
	return types.GridSpec{Width: g.Width, Height: g.Height, MaxIter: g.MaxIter, ChunkSize: g.ChunkSize}
}

// Viewport returns the region of the plane the grid covers.
func (g GridConfig) Viewport() types.Viewport {
	return types.Viewport{XMin: g.XMin, YMin: g.YMin, XSpan: g.XSpan, YSpan: g.YSpan}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs:   make(map[string]string),
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets overrides keyed by dot-notation path, e.g. "grid.width".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// WithEnv replaces the environment lookup.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Load loads configuration with precedence
// defaults < YAML file < environment variables < command-line flags.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("apply flag %s: %w", key, err)
		}
	}
	return cfg, nil
}

// loadFromFile reads the YAML file. A missing explicit path is an error.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		value, ok := l.lookupEnv(envTag)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("%s: %w", envTag, err)
		}
	}
	return nil
}

// setConfigValue sets a value addressed by its YAML path.
func setConfigValue(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")
	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config path: %s", path)
		}
		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a section", part)
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses YAML on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
