// Package config provides configuration loading for go-epuck commands.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default simulator connection settings.
const (
	DefaultSimAddr   = "127.0.0.1"
	DefaultSimPort   = 19999
	DefaultRobotName = "ePuck"
)

// DefaultMaxVelocity is 120 degrees per second, 4/3 of a wheel turn.
var DefaultMaxVelocity = 120 * math.Pi / 180

// Config is the top-level application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Robot     RobotConfig     `yaml:"robot"`
	Sim       SimConfig       `yaml:"sim"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RobotConfig describes the simulated e-Puck and how it is sensed.
type RobotConfig struct {
	Name           string        `yaml:"name"`
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	Synchronous    bool          `yaml:"synchronous"`
	MaxVelocity    float64       `yaml:"max_velocity"` // rad/s
	ImageWidth     int           `yaml:"image_width"`
	ImageHeight    int           `yaml:"image_height"`
	SensorInterval time.Duration `yaml:"sensor_interval"`
	CameraInterval time.Duration `yaml:"camera_interval"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	SenseAll       bool          `yaml:"sense_all_together"`
}

// SimConfig configures the bundled simulator bridge.
type SimConfig struct {
	Listen    string        `yaml:"listen"`
	Tick      time.Duration `yaml:"tick"`
	ArenaHalf float64       `yaml:"arena_half"` // metres from centre to wall
}

// WebConfig defines the dashboard server settings.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// TelemetryConfig defines the broker the sensor stream is mirrored to.
type TelemetryConfig struct {
	Backend     string      `yaml:"backend"` // "none", "mqtt" or "kafka"
	TopicPrefix string      `yaml:"topic_prefix"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// Defaults returns a Config with the values of the physical e-Puck.
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Robot: RobotConfig{
			Name:           DefaultRobotName,
			Address:        DefaultSimAddr,
			Port:           DefaultSimPort,
			MaxVelocity:    DefaultMaxVelocity,
			ImageWidth:     64,
			ImageHeight:    64,
			SensorInterval: 90 * time.Millisecond,
			CameraInterval: 500 * time.Millisecond,
			CallTimeout:    5 * time.Second,
		},
		Sim: SimConfig{
			Listen:    fmt.Sprintf(":%d", DefaultSimPort),
			Tick:      50 * time.Millisecond,
			ArenaHalf: 0.5,
		},
		Web: WebConfig{
			Port: "8080",
		},
		Telemetry: TelemetryConfig{
			Backend:     "none",
			TopicPrefix: "epuck",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "go-epuck",
			},
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv overrides connection settings from SIM_ADDR, SIM_PORT and LOG_LEVEL.
func (c *Config) applyEnv() {
	if addr := os.Getenv("SIM_ADDR"); addr != "" {
		c.Robot.Address = addr
	}
	if port := os.Getenv("SIM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Robot.Port = p
		}
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
}

// Validate returns a list of problems with the configuration.
func (c *Config) Validate() []string {
	var errs []string

	r := c.Robot
	if r.Name == "" {
		errs = append(errs, "robot.name is required")
	}
	if r.Port <= 0 || r.Port > 65535 {
		errs = append(errs, fmt.Sprintf("robot.port %d out of range", r.Port))
	}
	if r.MaxVelocity <= 0 {
		errs = append(errs, "robot.max_velocity must be positive")
	}
	if r.ImageWidth <= 0 || r.ImageHeight <= 0 {
		errs = append(errs, "robot.image_width and robot.image_height must be positive")
	}
	if r.SensorInterval <= 0 {
		errs = append(errs, "robot.sensor_interval must be positive")
	}
	if r.CameraInterval <= 0 {
		errs = append(errs, "robot.camera_interval must be positive")
	}

	switch c.Telemetry.Backend {
	case "", "none", "mqtt", "kafka":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.backend %q unknown", c.Telemetry.Backend))
	}
	if c.Telemetry.Backend == "kafka" && len(c.Telemetry.Kafka.Brokers) == 0 {
		errs = append(errs, "telemetry.kafka.brokers is required for the kafka backend")
	}

	return errs
}

// SignalName returns the prefix of the streaming signals published for the
// robot on the given port, e.g. "epuck19999".
func (r RobotConfig) SignalName() string {
	return fmt.Sprintf("epuck%d", r.Port)
}
