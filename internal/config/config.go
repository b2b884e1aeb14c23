package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SerialConfig describes the link to the potentiometer device.
type SerialConfig struct {
	Port          string `yaml:"port"`            // e.g., "/dev/ttyACM0" or "COM6"
	BaudRate      int    `yaml:"baud_rate"`       // 8N1, default 9600
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // bounded poll per frame (default 5)
	Mock          bool   `yaml:"mock"`            // synthetic device (true=dev/test)
}

// MovementConfig holds avatar locomotion and look parameters.
type MovementConfig struct {
	WalkSpeed        float64 `yaml:"walk_speed"`        // units/s
	SprintSpeed      float64 `yaml:"sprint_speed"`      // units/s
	MouseSensitivity float64 `yaml:"mouse_sensitivity"` // degrees per pointer unit per second
	InvertPitch      bool    `yaml:"invert_pitch"`
}

// Vec3 is a YAML-friendly position.
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// AvatarConfig describes where the avatar spawns and its capsule.
type AvatarConfig struct {
	Start     Vec3    `yaml:"start"`
	YawDeg    float64 `yaml:"yaw_deg"`    // initial facing
	SkinWidth float64 `yaml:"skin_width"` // grounded tolerance
	GroundY   float64 `yaml:"ground_y"`   // height of the ground plane
}

// TargetConfig is the level end point.
type TargetConfig struct {
	Position      Vec3    `yaml:"position"`
	TriggerRadius float64 `yaml:"trigger_radius"`
}

// GameConfig controls the frame loop.
type GameConfig struct {
	TickMs          int    `yaml:"tick_ms"`          // frame period (default 16)
	MaxDeltaMs      int    `yaml:"max_delta_ms"`     // dt clamp for stalled frames (default 100)
	CompleteCommand string `yaml:"complete_command"` // single ASCII byte sent on completion (default "H")
	StopOnComplete  bool   `yaml:"stop_on_complete"` // exit after the completion frame
}

// AutopilotConfig tunes the scripted input source.
type AutopilotConfig struct {
	TurnRateDeg    float64 `yaml:"turn_rate_deg"`   // max heading change per second
	SprintDistance float64 `yaml:"sprint_distance"` // sprint while farther than this
}

// IndicatorConfig describes the optional host-side completion LED.
type IndicatorConfig struct {
	Pin      int  `yaml:"pin"`       // BCM pin, 0 = disabled
	MockGPIO bool `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// WebConfig controls the telemetry surface.
type WebConfig struct {
	PublishIntervalMs int `yaml:"publish_interval_ms"` // SSE snapshot throttle (default 100)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Movement  MovementConfig  `yaml:"movement"`
	Avatar    AvatarConfig    `yaml:"avatar"`
	Target    TargetConfig    `yaml:"target"`
	Game      GameConfig      `yaml:"game"`
	Autopilot AutopilotConfig `yaml:"autopilot"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that leave the configs/ directory or are not .yaml files.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path must not contain '..': %s", path)
		}
	}
	if filepath.Base(filepath.Dir(filepath.Clean(path))) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = 9600
	}
	if c.Serial.ReadTimeoutMs <= 0 {
		c.Serial.ReadTimeoutMs = 5 // keep the frame loop responsive
	}
	if c.Movement.WalkSpeed == 0 {
		c.Movement.WalkSpeed = 5
	}
	if c.Movement.SprintSpeed == 0 {
		c.Movement.SprintSpeed = 10
	}
	if c.Movement.MouseSensitivity == 0 {
		c.Movement.MouseSensitivity = 100
	}
	if c.Avatar.SkinWidth <= 0 {
		c.Avatar.SkinWidth = 0.08
	}
	if c.Target.TriggerRadius == 0 {
		c.Target.TriggerRadius = 1
	}
	if c.Game.TickMs <= 0 {
		c.Game.TickMs = 16 // ~60 fps
	}
	if c.Game.MaxDeltaMs <= 0 {
		c.Game.MaxDeltaMs = 100
	}
	if c.Game.CompleteCommand == "" {
		c.Game.CompleteCommand = "H"
	}
	if c.Autopilot.TurnRateDeg <= 0 {
		c.Autopilot.TurnRateDeg = 180
	}
	if c.Autopilot.SprintDistance <= 0 {
		c.Autopilot.SprintDistance = 10
	}
	if c.Web.PublishIntervalMs <= 0 {
		c.Web.PublishIntervalMs = 100
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if err := positive("movement.walk_speed", c.Movement.WalkSpeed); err != nil {
		return err
	}
	if err := positive("movement.sprint_speed", c.Movement.SprintSpeed); err != nil {
		return err
	}
	if err := positive("movement.mouse_sensitivity", c.Movement.MouseSensitivity); err != nil {
		return err
	}
	if err := positive("target.trigger_radius", c.Target.TriggerRadius); err != nil {
		return err
	}
	// the serial poll runs inside every frame and must not outlast it
	if c.Serial.ReadTimeoutMs > c.Game.TickMs {
		return fmt.Errorf("serial.read_timeout_ms must not exceed game.tick_ms (%d), got %d", c.Game.TickMs, c.Serial.ReadTimeoutMs)
	}
	if c.Serial.BaudRate > 4000000 {
		return fmt.Errorf("serial.baud_rate out of range: %d", c.Serial.BaudRate)
	}
	if len(c.Game.CompleteCommand) != 1 || c.Game.CompleteCommand[0] > 0x7f {
		return fmt.Errorf("game.complete_command must be a single ASCII character, got %q", c.Game.CompleteCommand)
	}
	if c.Indicator.Pin < 0 || c.Indicator.Pin > 27 {
		return fmt.Errorf("indicator.pin must be a BCM pin 0-27, got %d", c.Indicator.Pin)
	}
	return nil
}

func positive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%s must be > 0, got %g", name, v)
	}
	return nil
}

// ReadTimeout returns the bounded serial poll duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMs) * time.Millisecond
}

// Tick returns the frame period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Game.TickMs) * time.Millisecond
}

// MaxDelta returns the largest dt a single frame may integrate.
func (c *Config) MaxDelta() time.Duration {
	return time.Duration(c.Game.MaxDeltaMs) * time.Millisecond
}

// PublishInterval returns the telemetry throttle.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.Web.PublishIntervalMs) * time.Millisecond
}

// CompleteCommand returns the byte sent to the device on completion.
func (c *Config) CompleteCommand() byte {
	return c.Game.CompleteCommand[0]
}
