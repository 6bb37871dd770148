package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evcsedge/backend/libs/config"
	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/ocpp/protocol"
)

// Timedata backends.
const (
	TimedataPostgres = "postgres"
	TimedataMongo    = "mongo"
	TimedataNone     = "none"
)

// ChargerConfig describes one OCPP connector controlled as an EVCS component.
type ChargerConfig struct {
	ID                     string   `yaml:"id"`
	Alias                  string   `yaml:"alias"`
	Enabled                *bool    `yaml:"enabled"`
	OcppID                 string   `yaml:"ocppId"`
	ConnectorID            int      `yaml:"connectorId"`
	MaximumHardwarePower   int      `yaml:"maximumHardwarePower"`
	MinimumHardwarePower   int      `yaml:"minimumHardwarePower"`
	Managed                bool     `yaml:"managed"`
	Phases                 int      `yaml:"phases"`
	LimitMode              string   `yaml:"limitMode"`
	ReturnsSessionEnergy   bool     `yaml:"returnsSessionEnergy"`
	Measurements           []string `yaml:"measurements"`
	SampleIntervalSeconds  int      `yaml:"sampleIntervalSeconds"`
	PasswordHash           string   `yaml:"passwordHash"`
	ResendIntervalSeconds  int      `yaml:"resendIntervalSeconds"`
	RequestIntervalSeconds int      `yaml:"requestIntervalSeconds"`
}

// IsEnabled reports whether the charger should be built; default true.
func (c ChargerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Component converts the charger entry into component parameters.
func (c ChargerConfig) Component() (evcs.Config, error) {
	mode, err := evcs.ParseLimitMode(c.LimitMode)
	if err != nil {
		return evcs.Config{}, fmt.Errorf("config: charger %s: %w", c.ID, err)
	}
	return evcs.Config{
		ID:                   c.ID,
		Alias:                c.Alias,
		OcppID:               c.OcppID,
		ConnectorID:          c.ConnectorID,
		MaximumHardwarePower: c.MaximumHardwarePower,
		MinimumHardwarePower: c.MinimumHardwarePower,
		Phases:               c.Phases,
		LimitMode:            mode,
		Managed:              c.Managed,
		ResendInterval:       seconds(c.ResendIntervalSeconds, 0),
		RequestInterval:      seconds(c.RequestIntervalSeconds, 0),
	}, nil
}

// Profile builds the OCPP profile of the charger.
func (c ChargerConfig) Profile() evcs.GenericProfile {
	measurements := make([]protocol.Measurand, 0, len(c.Measurements))
	for _, m := range c.Measurements {
		if m = strings.TrimSpace(m); m != "" {
			measurements = append(measurements, protocol.Measurand(m))
		}
	}
	return evcs.GenericProfile{
		ConnectorID:    c.ConnectorID,
		Measurements:   measurements,
		SessionEnergy:  c.ReturnsSessionEnergy,
		SampleInterval: seconds(c.SampleIntervalSeconds, 0),
	}
}

// DatasourceConfig is a CSV file replayed by simulators.
type DatasourceConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
	// Column holds the values; empty means the first column.
	Column string `yaml:"column"`
}

// GridMeterConfig configures a simulated grid meter.
type GridMeterConfig struct {
	ID           string `yaml:"id"`
	Alias        string `yaml:"alias"`
	Enabled      bool   `yaml:"enabled"`
	DatasourceID string `yaml:"datasourceId"`
	ModbusID     string `yaml:"modbusId"`
	ModbusUnitID int    `yaml:"modbusUnitId"`
}

// Config defines evcs-edge configuration.
type Config struct {
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
	HTTP struct {
		Port string `yaml:"port" env:"EVCS_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN       string `yaml:"dsn" env:"EVCS_POSTGRES_DSN"`
		LogFrames bool   `yaml:"logFrames" env:"EVCS_LOG_FRAMES"`
	} `yaml:"database"`
	Redis struct {
		Addr       string `yaml:"addr" env:"EVCS_REDIS_ADDR"`
		Password   string `yaml:"password" env:"EVCS_REDIS_PASSWORD"`
		DB         int    `yaml:"db" env:"EVCS_REDIS_DB"`
		TTLSeconds int    `yaml:"ttlSeconds" env:"EVCS_REDIS_TTL"`
	} `yaml:"redis"`
	Mongo struct {
		URI      string `yaml:"uri" env:"EVCS_MONGO_URI"`
		Database string `yaml:"database" env:"EVCS_MONGO_DATABASE"`
	} `yaml:"mongo"`
	Timedata struct {
		Backend    string `yaml:"backend" env:"EVCS_TIMEDATA_BACKEND"`
		MaxRetries int    `yaml:"maxRetries" env:"EVCS_TIMEDATA_MAX_RETRIES"`
	} `yaml:"timedata"`
	WebSocket struct {
		PingIntervalSeconds int `yaml:"pingIntervalSeconds" env:"EVCS_PING_INTERVAL"`
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"EVCS_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
	OCPP struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"EVCS_HEARTBEAT_INTERVAL"`
		CommandTimeoutSeconds    int `yaml:"commandTimeoutSeconds" env:"EVCS_COMMAND_TIMEOUT"`
		CommandMaxAttempts       int `yaml:"commandMaxAttempts" env:"EVCS_COMMAND_MAX_ATTEMPTS"`
	} `yaml:"ocpp"`
	Cycle struct {
		PeriodMillis int `yaml:"periodMillis" env:"EVCS_CYCLE_PERIOD_MS"`
	} `yaml:"cycle"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"EVCS_JWT_SECRET"`
	} `yaml:"auth"`
	MQTT struct {
		Broker      string `yaml:"broker" env:"EVCS_MQTT_BROKER"`
		ClientID    string `yaml:"clientId" env:"EVCS_MQTT_CLIENT_ID"`
		Username    string `yaml:"username" env:"EVCS_MQTT_USERNAME"`
		Password    string `yaml:"password" env:"EVCS_MQTT_PASSWORD"`
		TopicPrefix string `yaml:"topicPrefix" env:"EVCS_MQTT_TOPIC_PREFIX"`
	} `yaml:"mqtt"`
	Chargers  []ChargerConfig `yaml:"chargers" env:"-"`
	Simulator struct {
		Datasources []DatasourceConfig `yaml:"datasources" env:"-"`
		GridMeters  []GridMeterConfig  `yaml:"gridMeters" env:"-"`
	} `yaml:"simulator"`
}

// Load reads path (CONFIG_FILE when empty), applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Timedata.Backend = TimedataPostgres
	cfg.Timedata.MaxRetries = 3
	cfg.Mongo.Database = "evcs"
	cfg.WebSocket.PingIntervalSeconds = 30
	cfg.WebSocket.WriteTimeoutSeconds = 15
	cfg.OCPP.HeartbeatIntervalSeconds = 30
	cfg.OCPP.CommandTimeoutSeconds = 30
	cfg.OCPP.CommandMaxAttempts = 3
	cfg.Cycle.PeriodMillis = 1000
	cfg.MQTT.ClientID = "evcs-edge"
	cfg.MQTT.TopicPrefix = "evcs"

	var err error
	if path == "" {
		err = libconfig.LoadConfig(cfg)
	} else {
		err = libconfig.LoadConfigFile(path, cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Timedata.Backend {
	case TimedataPostgres, TimedataNone:
	case TimedataMongo:
		if strings.TrimSpace(c.Mongo.URI) == "" {
			return errors.New("config: mongo uri is required for the mongo timedata backend")
		}
	default:
		return fmt.Errorf("config: unknown timedata backend %q", c.Timedata.Backend)
	}
	if c.Timedata.Backend == TimedataPostgres && strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database DSN is required for the postgres timedata backend")
	}

	ids := make(map[string]struct{})
	connectors := make(map[string]struct{})
	for i, ch := range c.Chargers {
		if strings.TrimSpace(ch.ID) == "" {
			return fmt.Errorf("config: charger %d: id is required", i)
		}
		if _, dup := ids[ch.ID]; dup {
			return fmt.Errorf("config: duplicate charger id %s", ch.ID)
		}
		ids[ch.ID] = struct{}{}
		if strings.TrimSpace(ch.OcppID) == "" {
			return fmt.Errorf("config: charger %s: ocppId is required", ch.ID)
		}
		if ch.ConnectorID <= 0 {
			return fmt.Errorf("config: charger %s: connectorId must be positive", ch.ID)
		}
		key := fmt.Sprintf("%s/%d", ch.OcppID, ch.ConnectorID)
		if _, dup := connectors[key]; dup {
			return fmt.Errorf("config: charger %s: connector %s used twice", ch.ID, key)
		}
		connectors[key] = struct{}{}
		if ch.MinimumHardwarePower < 0 || ch.MaximumHardwarePower < 0 {
			return fmt.Errorf("config: charger %s: hardware power must not be negative", ch.ID)
		}
		if ch.MaximumHardwarePower > 0 && ch.MinimumHardwarePower > ch.MaximumHardwarePower {
			return fmt.Errorf("config: charger %s: minimumHardwarePower exceeds maximumHardwarePower", ch.ID)
		}
		if ch.Phases < 0 || ch.Phases > 3 {
			return fmt.Errorf("config: charger %s: phases must be 1..3", ch.ID)
		}
		if _, err := evcs.ParseLimitMode(ch.LimitMode); err != nil {
			return fmt.Errorf("config: charger %s: %w", ch.ID, err)
		}
	}

	sources := make(map[string]struct{})
	for _, ds := range c.Simulator.Datasources {
		sources[ds.ID] = struct{}{}
	}
	for _, gm := range c.Simulator.GridMeters {
		if !gm.Enabled {
			continue
		}
		if _, ok := sources[gm.DatasourceID]; !ok {
			return fmt.Errorf("config: grid meter %s: unknown datasource %q", gm.ID, gm.DatasourceID)
		}
	}
	return nil
}

// EnabledChargers returns the chargers to build.
func (c *Config) EnabledChargers() []ChargerConfig {
	out := make([]ChargerConfig, 0, len(c.Chargers))
	for _, ch := range c.Chargers {
		if ch.IsEnabled() {
			out = append(out, ch)
		}
	}
	return out
}

// Datasource returns a simulator datasource by id.
func (c *Config) Datasource(id string) (DatasourceConfig, bool) {
	for _, ds := range c.Simulator.Datasources {
		if ds.ID == id {
			return ds, true
		}
	}
	return DatasourceConfig{}, false
}

// StationPasswords maps OCPP ids to bcrypt hashes.
func (c *Config) StationPasswords() map[string]string {
	out := make(map[string]string)
	for _, ch := range c.EnabledChargers() {
		if ch.PasswordHash != "" {
			out[ch.OcppID] = ch.PasswordHash
		}
	}
	return out
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// PingInterval returns websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return seconds(c.WebSocket.PingIntervalSeconds, 30*time.Second)
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.WebSocket.WriteTimeoutSeconds, 15*time.Second)
}

// HeartbeatInterval is announced to stations at boot.
func (c *Config) HeartbeatInterval() time.Duration {
	return seconds(c.OCPP.HeartbeatIntervalSeconds, 30*time.Second)
}

// CommandTimeout bounds one outgoing call attempt.
func (c *Config) CommandTimeout() time.Duration {
	return seconds(c.OCPP.CommandTimeoutSeconds, 30*time.Second)
}

// CyclePeriod returns the control loop period.
func (c *Config) CyclePeriod() time.Duration {
	if c.Cycle.PeriodMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Cycle.PeriodMillis) * time.Millisecond
}

// RedisTTL returns the latest-value cache TTL; zero uses the cache default.
func (c *Config) RedisTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds, 0)
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
