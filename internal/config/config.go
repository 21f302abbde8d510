// Package config provides configuration management for SignSynth
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (SIGNSYNTH_TIMING_DWELL=2s).
const EnvPrefix = "SIGNSYNTH"

// Config holds all application configuration
type Config struct {
	Poses   PosesConfig   `mapstructure:"poses"`
	Rig     RigConfig     `mapstructure:"rig"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Media   MediaConfig   `mapstructure:"media"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Server  ServerConfig  `mapstructure:"server"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// PosesConfig locates the pose document
type PosesConfig struct {
	Path       string `mapstructure:"path"`
	DefaultKey string `mapstructure:"default_key"`
	HotReload  bool   `mapstructure:"hot_reload"`
}

// RigConfig locates the skeleton. An empty SkeletonPath uses synthetic handles.
type RigConfig struct {
	SkeletonPath string `mapstructure:"skeleton_path"`
	LeftArmNode  string `mapstructure:"left_arm_node"`
	RightArmNode string `mapstructure:"right_arm_node"`
}

// TimingConfig holds the tunable playback constants
type TimingConfig struct {
	HandGlide        time.Duration `mapstructure:"hand_glide"`
	FingerGlide      time.Duration `mapstructure:"finger_glide"`
	ClipBudget       time.Duration `mapstructure:"clip_budget"`
	JointsPerFrame   int           `mapstructure:"joints_per_frame"`
	TweenDelay       time.Duration `mapstructure:"tween_delay"`
	Dwell            time.Duration `mapstructure:"dwell"`
	SlideDistance    float32       `mapstructure:"slide_distance"`
	SlideStep        time.Duration `mapstructure:"slide_step"`
	ClearStatusDelay time.Duration `mapstructure:"clear_status_delay"`
	FrameInterval    time.Duration `mapstructure:"frame_interval"`
}

// MediaConfig configures the media play/pause toggler
type MediaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	PlayInterval  time.Duration `mapstructure:"play_interval"`
	PauseInterval time.Duration `mapstructure:"pause_interval"`
	CyclePauses   bool          `mapstructure:"cycle_pauses"` // resume on a timer, not only after signing
	KeyCommand    []string      `mapstructure:"key_command"`  // e.g. [xdotool, key, space]; empty only logs
}

// SpeechConfig configures the streaming recognizer
type SpeechConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServerURL   string        `mapstructure:"server_url"` // vosk-server websocket
	SampleRate  int           `mapstructure:"sample_rate"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	AudioPath   string        `mapstructure:"audio_path"` // raw PCM source, "-" for stdin
	SignGloss   bool          `mapstructure:"sign_gloss"` // sign the gloss instead of the transcript
	FillerWords []string      `mapstructure:"filler_words"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ServerConfig configures the control server
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	SnapshotEvery   time.Duration `mapstructure:"snapshot_every"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HistoryConfig configures the signing session log. An empty Path means
// history.db in the config directory.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration. Timing defaults give
// a 1.5s dwell per sign and a 50ms hand glide.
func DefaultConfig() *Config {
	return &Config{
		Poses: PosesConfig{
			Path:       "sign_poses.json",
			DefaultKey: "default",
			HotReload:  false,
		},
		Rig: RigConfig{
			LeftArmNode:  "LArm",
			RightArmNode: "RArm",
		},
		Timing: TimingConfig{
			HandGlide:        50 * time.Millisecond,
			FingerGlide:      0,
			ClipBudget:       5 * time.Second,
			JointsPerFrame:   2,
			TweenDelay:       50 * time.Millisecond,
			Dwell:            1500 * time.Millisecond,
			SlideDistance:    0.5,
			SlideStep:        200 * time.Millisecond,
			ClearStatusDelay: 2 * time.Second,
			FrameInterval:    16 * time.Millisecond,
		},
		Media: MediaConfig{
			Enabled:       false,
			StartupDelay:  3 * time.Second,
			PlayInterval:  5 * time.Second,
			PauseInterval: 5 * time.Second,
			CyclePauses:   false,
		},
		Speech: SpeechConfig{
			Enabled:     false,
			ServerURL:   "ws://localhost:2700",
			SampleRate:  16000,
			ChunkSize:   8000,
			AudioPath:   "-",
			DialTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8765",
			SnapshotEvery:   100 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Poses.Path == "" {
		errs = append(errs, errors.New("poses.path is required"))
	}
	if c.Poses.DefaultKey == "" {
		errs = append(errs, errors.New("poses.default_key is required"))
	}
	if c.Timing.JointsPerFrame <= 0 {
		errs = append(errs, fmt.Errorf("timing.joints_per_frame must be positive, got %d", c.Timing.JointsPerFrame))
	}
	if c.Timing.Dwell < 0 || c.Timing.HandGlide < 0 || c.Timing.FingerGlide < 0 ||
		c.Timing.ClipBudget < 0 || c.Timing.TweenDelay < 0 || c.Timing.SlideStep < 0 {
		errs = append(errs, errors.New("timing durations must not be negative"))
	}
	if c.Timing.FrameInterval <= 0 {
		errs = append(errs, errors.New("timing.frame_interval must be positive"))
	}
	if c.Speech.Enabled {
		if c.Speech.ServerURL == "" {
			errs = append(errs, errors.New("speech.server_url is required when speech is enabled"))
		}
		if c.Speech.SampleRate <= 0 || c.Speech.ChunkSize <= 0 {
			errs = append(errs, errors.New("speech.sample_rate and speech.chunk_size must be positive"))
		}
	}
	return errors.Join(errs...)
}

// eachKey walks every configurable key with its value in cfg
func eachKey(cfg *Config, fn func(key string, value any)) {
	fn("poses.path", cfg.Poses.Path)
	fn("poses.default_key", cfg.Poses.DefaultKey)
	fn("poses.hot_reload", cfg.Poses.HotReload)

	fn("rig.skeleton_path", cfg.Rig.SkeletonPath)
	fn("rig.left_arm_node", cfg.Rig.LeftArmNode)
	fn("rig.right_arm_node", cfg.Rig.RightArmNode)

	fn("timing.hand_glide", cfg.Timing.HandGlide)
	fn("timing.finger_glide", cfg.Timing.FingerGlide)
	fn("timing.clip_budget", cfg.Timing.ClipBudget)
	fn("timing.joints_per_frame", cfg.Timing.JointsPerFrame)
	fn("timing.tween_delay", cfg.Timing.TweenDelay)
	fn("timing.dwell", cfg.Timing.Dwell)
	fn("timing.slide_distance", cfg.Timing.SlideDistance)
	fn("timing.slide_step", cfg.Timing.SlideStep)
	fn("timing.clear_status_delay", cfg.Timing.ClearStatusDelay)
	fn("timing.frame_interval", cfg.Timing.FrameInterval)

	fn("media.enabled", cfg.Media.Enabled)
	fn("media.startup_delay", cfg.Media.StartupDelay)
	fn("media.play_interval", cfg.Media.PlayInterval)
	fn("media.pause_interval", cfg.Media.PauseInterval)
	fn("media.cycle_pauses", cfg.Media.CyclePauses)
	fn("media.key_command", cfg.Media.KeyCommand)

	fn("speech.enabled", cfg.Speech.Enabled)
	fn("speech.server_url", cfg.Speech.ServerURL)
	fn("speech.sample_rate", cfg.Speech.SampleRate)
	fn("speech.chunk_size", cfg.Speech.ChunkSize)
	fn("speech.audio_path", cfg.Speech.AudioPath)
	fn("speech.sign_gloss", cfg.Speech.SignGloss)
	fn("speech.filler_words", cfg.Speech.FillerWords)
	fn("speech.dial_timeout", cfg.Speech.DialTimeout)

	fn("server.addr", cfg.Server.Addr)
	fn("server.snapshot_every", cfg.Server.SnapshotEvery)
	fn("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	fn("history.enabled", cfg.History.Enabled)
	fn("history.path", cfg.History.Path)

	fn("logging.level", cfg.Logging.Level)
	fn("logging.dir", cfg.Logging.Dir)
	fn("logging.console", cfg.Logging.Console)
}

var envReplacer = strings.NewReplacer(".", "_")

// NewViper returns a viper instance primed with defaults and env overrides.
// Callers may bind flags onto it before calling LoadWith.
func NewViper() *viper.Viper {
	v := viper.New()
	eachKey(DefaultConfig(), v.SetDefault)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path (if non-empty) or from signsynth.yaml
// in the working directory and ~/.signsynth. A missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWith(NewViper(), path)
}

// LoadWith is Load on a caller-supplied viper instance
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("signsynth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML to path
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	eachKey(cfg, func(key string, value any) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	})

	return v.WriteConfigAs(path)
}

// HistoryPath resolves where the session log lives.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// GetConfigDir returns the per-user configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".signsynth"), nil
}
