// Package config loads the client daemon configuration: an optional YAML
// file, overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// ServerURL is the signaling server base URL.
	ServerURL string `yaml:"server_url"`

	// UserID is our id as issued by the auth store.
	UserID string `yaml:"user_id"`

	// DisplayName is sent to callees as callerName.
	DisplayName string `yaml:"display_name"`

	// Listen is the address of the local control API.
	Listen string `yaml:"listen"`

	// RingTimeout ends an unanswered call. Zero disables it.
	RingTimeout time.Duration `yaml:"ring_timeout"`

	// SendTimeout bounds a single signaling write.
	SendTimeout time.Duration `yaml:"send_timeout"`

	ICE   ICEConfig               `yaml:"ice"`
	Media domain.MediaConstraints `yaml:"media"`

	// KeyFile holds the E2E key pair. It is created on first start.
	KeyFile string `yaml:"key_file"`

	LogLevel string `yaml:"log_level"`
}

type ICEConfig struct {
	STUN          []string      `yaml:"stun"`
	GatherTimeout time.Duration `yaml:"gather_timeout"`
}

func Default() *Config {
	keyFile := "ya-keys.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		keyFile = filepath.Join(dir, "ya", "keys.yaml")
	}
	return &Config{
		ServerURL:   "http://localhost:5001",
		Listen:      "127.0.0.1:8090",
		RingTimeout: 45 * time.Second,
		SendTimeout: 2 * time.Second,
		ICE: ICEConfig{
			STUN: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
			GatherTimeout: 15 * time.Second,
		},
		Media:    domain.DefaultConstraints(),
		KeyFile:  keyFile,
		LogLevel: "info",
	}
}

// LoadFile merges the YAML file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Parse reads flags from args. When --config names a file it is loaded
// first, and only flags given explicitly override it.
func Parse(name string, args []string) (*Config, error) {
	var configPath string
	set := Default()

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	fs.StringVar(&set.ServerURL, "server", set.ServerURL, "signaling server URL")
	fs.StringVarP(&set.UserID, "user", "u", set.UserID, "our user id")
	fs.StringVarP(&set.DisplayName, "name", "n", set.DisplayName, "display name shown to callees")
	fs.StringVarP(&set.Listen, "listen", "l", set.Listen, "control API listen address")
	fs.DurationVar(&set.RingTimeout, "ring-timeout", set.RingTimeout, "end unanswered calls after this long (0 disables)")
	fs.DurationVar(&set.SendTimeout, "send-timeout", set.SendTimeout, "upper bound on one signaling write")
	fs.StringSliceVar(&set.ICE.STUN, "stun", set.ICE.STUN, "STUN server URLs")
	fs.DurationVar(&set.ICE.GatherTimeout, "ice-gather-timeout", set.ICE.GatherTimeout, "upper bound on ICE candidate gathering")
	fs.BoolVar(&set.Media.Video, "video", set.Media.Video, "capture the camera")
	fs.BoolVar(&set.Media.Audio, "audio", set.Media.Audio, "capture the microphone")
	fs.StringVar(&set.KeyFile, "key-file", set.KeyFile, "E2E key pair file")
	fs.StringVar(&set.LogLevel, "log-level", set.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if configPath == "" {
		return set, set.Validate()
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "server":
			cfg.ServerURL = set.ServerURL
		case "user":
			cfg.UserID = set.UserID
		case "name":
			cfg.DisplayName = set.DisplayName
		case "listen":
			cfg.Listen = set.Listen
		case "ring-timeout":
			cfg.RingTimeout = set.RingTimeout
		case "send-timeout":
			cfg.SendTimeout = set.SendTimeout
		case "stun":
			cfg.ICE.STUN = set.ICE.STUN
		case "ice-gather-timeout":
			cfg.ICE.GatherTimeout = set.ICE.GatherTimeout
		case "video":
			cfg.Media.Video = set.Media.Video
		case "audio":
			cfg.Media.Audio = set.Media.Audio
		case "key-file":
			cfg.KeyFile = set.KeyFile
		case "log-level":
			cfg.LogLevel = set.LogLevel
		}
	})
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.UserID == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if u, err := url.Parse(c.ServerURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid server url %q", c.ServerURL))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.RingTimeout < 0 {
		errs = append(errs, errors.New("ring timeout cannot be negative"))
	}
	if c.SendTimeout <= 0 {
		errs = append(errs, errors.New("send timeout must be positive"))
	}
	if !c.Media.Video && !c.Media.Audio {
		errs = append(errs, errors.New("at least one of video and audio must be enabled"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, info if it does not parse.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// DisplayNameOrID falls back to the user id when no name is set.
func (c *Config) DisplayNameOrID() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.UserID
}
