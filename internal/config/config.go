package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ec-ph-doser/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	AutoMode  AutoModeConfig  `mapstructure:"auto_mode"`
	Transport TransportConfig `mapstructure:"transport"`
	BusLock   BusLockConfig   `mapstructure:"bus_lock"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Control   ControlConfig   `mapstructure:"control"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Actuators ActuatorsConfig `mapstructure:"actuators"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Line        string `mapstructure:"line"`
}

// AutoModeConfig maps the host's stdin switch protocol onto run/stop.
// Relay wiring differs between distribution lines, so the literal that
// means "run" is configuration, not code.
type AutoModeConfig struct {
	RunValue     string        `mapstructure:"run_value"`
	WaitInterval time.Duration `mapstructure:"wait_interval"`
}

// TransportConfig selects and parameterises the sensor link.
type TransportConfig struct {
	Kind         string        `mapstructure:"kind"` // "modbus" or "framed"
	Port         string        `mapstructure:"port"`
	Baud         int           `mapstructure:"baud"`
	DataBits     int           `mapstructure:"data_bits"`
	Parity       string        `mapstructure:"parity"`
	StopBits     int           `mapstructure:"stop_bits"`
	SlaveID      byte          `mapstructure:"slave_id"`
	Request      string        `mapstructure:"request"`
	TotalTimeout time.Duration `mapstructure:"total_timeout"`
	IdleGap      time.Duration `mapstructure:"idle_gap"`
	Attempts     int           `mapstructure:"attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`

	Registers RegistersConfig `mapstructure:"registers"`
	SensorIDs SensorIDsConfig `mapstructure:"sensor_ids"`
}

// RegisterConfig describes one holding register and its scaling.
// Value = raw / divisor * scale.
type RegisterConfig struct {
	Address uint16  `mapstructure:"address"`
	Divisor float64 `mapstructure:"divisor"`
	Scale   float64 `mapstructure:"scale"`
}

// RegistersConfig maps channels onto Modbus registers.
type RegistersConfig struct {
	PH          RegisterConfig `mapstructure:"ph"`
	EC          RegisterConfig `mapstructure:"ec"`
	Temperature RegisterConfig `mapstructure:"temperature"`
}

// SensorIDsConfig maps channels onto the framed protocol's numeric ids.
type SensorIDsConfig struct {
	PH          int `mapstructure:"ph"`
	EC          int `mapstructure:"ec"`
	Temperature int `mapstructure:"temperature"`
}

// BusLockConfig names the advisory lock guarding the physical bus.
type BusLockConfig struct {
	Path string `mapstructure:"path"`
}

// ChannelConfig holds per-channel validation, calibration, and the
// agreement band used by the confirmation gate.
type ChannelConfig struct {
	ValidMin          float64 `mapstructure:"valid_min"`
	ValidMax          float64 `mapstructure:"valid_max"`
	AgreementBand     float64 `mapstructure:"agreement_band"`
	CalibrationGain   float64 `mapstructure:"calibration_gain"`
	CalibrationOffset float64 `mapstructure:"calibration_offset"`
}

// ChannelsConfig groups the three measured channels.
type ChannelsConfig struct {
	EC          ChannelConfig `mapstructure:"ec"`
	PH          ChannelConfig `mapstructure:"ph"`
	Temperature ChannelConfig `mapstructure:"temperature"`
}

// FilterConfig selects and tunes the acceptance strategy.
type FilterConfig struct {
	Strategy     string        `mapstructure:"strategy"` // "hampel" or "median"
	HampelWindow int           `mapstructure:"hampel_window"`
	HampelK      float64       `mapstructure:"hampel_k"`
	ConfirmN     int           `mapstructure:"confirm_n"`
	ConfirmM     int           `mapstructure:"confirm_m"`
	MedianReads  int           `mapstructure:"median_reads"`
	MedianMin    int           `mapstructure:"median_min"`
	ReadGap      time.Duration `mapstructure:"read_gap"`
}

// ControlConfig holds dosing thresholds and pump calibration.
type ControlConfig struct {
	ECMin        float64 `mapstructure:"ec_min"`
	PHMax        float64 `mapstructure:"ph_max"`
	DoseML       float64 `mapstructure:"dose_ml"`
	PumpMLPerSec float64 `mapstructure:"pump_ml_per_sec"`
}

// ScheduleConfig governs slot cadence and polling granularity.
type ScheduleConfig struct {
	Cadence         string        `mapstructure:"cadence"` // e.g. "30m", "1h", "4h"
	SeedCurrentSlot bool          `mapstructure:"seed_current_slot"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	DosePollEvery   time.Duration `mapstructure:"dose_poll_every"`
}

// ActuatorsConfig names the relay topics and their on/off levels.
type ActuatorsConfig struct {
	ABTopic   string `mapstructure:"ab_topic"`
	AcidTopic string `mapstructure:"acid_topic"`
	OnValue   int    `mapstructure:"on_value"`
	OffValue  int    `mapstructure:"off_value"`
}

// StorageConfig selects the persistence sink.
type StorageConfig struct {
	Kind       string `mapstructure:"kind"` // "csv" or "postgres"
	SensorCSV  string `mapstructure:"sensor_csv"`
	DoseCSV    string `mapstructure:"dose_csv"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// MonitorConfig tunes the report-only sensor loop.
type MonitorConfig struct {
	PollEvery     time.Duration `mapstructure:"poll_every"`
	ReportMinutes int           `mapstructure:"report_minutes"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HYDRODOSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hydrodoser")
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.line", "dist-1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auto_mode.run_value", "true")
	v.SetDefault("auto_mode.wait_interval", "100ms")

	v.SetDefault("transport.kind", "modbus")
	v.SetDefault("transport.baud", 9600)
	v.SetDefault("transport.data_bits", 8)
	v.SetDefault("transport.parity", "N")
	v.SetDefault("transport.stop_bits", 2)
	v.SetDefault("transport.slave_id", 1)
	v.SetDefault("transport.total_timeout", "3s")
	v.SetDefault("transport.idle_gap", "200ms")
	v.SetDefault("transport.attempts", 3)
	v.SetDefault("transport.retry_delay", "250ms")
	v.SetDefault("transport.registers.ph", map[string]any{"address": 0x00, "divisor": 100.0, "scale": 1.0})
	v.SetDefault("transport.registers.ec", map[string]any{"address": 0x01, "divisor": 100.0, "scale": 0.1})
	v.SetDefault("transport.registers.temperature", map[string]any{"address": 0x02, "divisor": 100.0, "scale": 10.0})
	v.SetDefault("transport.sensor_ids.ph", 16)
	v.SetDefault("transport.sensor_ids.temperature", 29)
	v.SetDefault("transport.sensor_ids.ec", 30)

	v.SetDefault("bus_lock.path", "/tmp/rs485_bus.lock")

	v.SetDefault("channels.ec", map[string]any{"valid_min": 0.0, "valid_max": 3.0, "agreement_band": 0.10, "calibration_gain": 1.0, "calibration_offset": 0.0})
	v.SetDefault("channels.ph", map[string]any{"valid_min": 3.5, "valid_max": 10.0, "agreement_band": 0.20, "calibration_gain": 1.0, "calibration_offset": 0.0})
	v.SetDefault("channels.temperature", map[string]any{"valid_min": 10.0, "valid_max": 50.0, "agreement_band": 1.0, "calibration_gain": 1.0, "calibration_offset": 0.0})

	v.SetDefault("filter.strategy", "median")
	v.SetDefault("filter.hampel_window", 9)
	v.SetDefault("filter.hampel_k", 3.0)
	v.SetDefault("filter.confirm_n", 3)
	v.SetDefault("filter.confirm_m", 2)
	v.SetDefault("filter.median_reads", 3)
	v.SetDefault("filter.median_min", 2)
	v.SetDefault("filter.read_gap", "150ms")

	v.SetDefault("control.ec_min", 1.1)
	v.SetDefault("control.ph_max", 6.1)
	v.SetDefault("control.dose_ml", 10.0)
	v.SetDefault("control.pump_ml_per_sec", 1.65)

	v.SetDefault("schedule.cadence", "4h")
	v.SetDefault("schedule.seed_current_slot", false)
	v.SetDefault("schedule.poll_interval", "200ms")
	v.SetDefault("schedule.dose_poll_every", "50ms")

	v.SetDefault("actuators.ab_topic", "GPIO22")
	v.SetDefault("actuators.acid_topic", "GPIO23")
	// Active-low relay board: 0 energises the coil.
	v.SetDefault("actuators.on_value", 0)
	v.SetDefault("actuators.off_value", 1)

	v.SetDefault("storage.kind", "csv")
	v.SetDefault("storage.sensor_csv", "logs/ec_ph_log.csv")
	v.SetDefault("storage.dose_csv", "logs/solution_input_log.csv")
	v.SetDefault("storage.sync_writes", true)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("monitor.poll_every", "10s")
	v.SetDefault("monitor.report_minutes", 2)

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "modbus", "framed":
	default:
		return fmt.Errorf("transport.kind must be \"modbus\" or \"framed\", got %q", c.Transport.Kind)
	}
	switch c.Filter.Strategy {
	case "hampel", "median":
	default:
		return fmt.Errorf("filter.strategy must be \"hampel\" or \"median\", got %q", c.Filter.Strategy)
	}
	switch strings.ToLower(c.AutoMode.RunValue) {
	case "true", "false":
	default:
		return fmt.Errorf("auto_mode.run_value must be \"true\" or \"false\", got %q", c.AutoMode.RunValue)
	}
	switch c.Storage.Kind {
	case "csv", "postgres":
	default:
		return fmt.Errorf("storage.kind must be \"csv\" or \"postgres\", got %q", c.Storage.Kind)
	}
	if c.Control.PumpMLPerSec <= 0 {
		return fmt.Errorf("control.pump_ml_per_sec must be greater than zero")
	}
	if c.Control.DoseML <= 0 {
		return fmt.Errorf("control.dose_ml must be greater than zero")
	}
	if c.Transport.Attempts <= 0 {
		return fmt.Errorf("transport.attempts must be greater than zero")
	}
	if c.Filter.MedianReads < c.Filter.MedianMin {
		return fmt.Errorf("filter.median_reads must be at least filter.median_min")
	}
	if c.Filter.ConfirmM > c.Filter.ConfirmN {
		return fmt.Errorf("filter.confirm_m cannot exceed filter.confirm_n")
	}
	if c.Schedule.PollInterval <= 0 {
		return fmt.Errorf("schedule.poll_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
