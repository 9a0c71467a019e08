// Package config loads server settings from an optional YAML file plus
// TINYOPDS_-prefixed environment overrides.
package config

import (
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	LibraryPath string `koanf:"library_path" validate:"required"`
	DataDir     string `koanf:"data_dir" default:"."`

	ServerPort  int    `koanf:"server_port" default:"8080" validate:"gte=0,lte=65535"`
	InterfaceIP string `koanf:"interface_ip" default:"0.0.0.0"`
	RootPrefix  string `koanf:"root_prefix"`

	UseHTTPAuth        bool   `koanf:"use_http_auth"`
	RememberClients    bool   `koanf:"remember_clients" default:"true"`
	BanClients         bool   `koanf:"ban_clients"`
	WrongAttemptsCount int    `koanf:"wrong_attempts_count" default:"3" validate:"gte=1"`
	Credentials        string `koanf:"credentials"`
	CredentialsKey     string `koanf:"credentials_key" default:"tinyopds"`

	Language      string `koanf:"language" default:"en"`
	ConvertorPath string `koanf:"convertor_path"`
	WatchLibrary  bool   `koanf:"watch_library" default:"true"`

	PageSize        int `koanf:"page_size" default:"50" validate:"gte=1"`
	CoverWidth      int `koanf:"cover_width" default:"480"`
	CoverHeight     int `koanf:"cover_height" default:"800"`
	ThumbnailWidth  int `koanf:"thumbnail_width" default:"48"`
	ThumbnailHeight int `koanf:"thumbnail_height" default:"80"`

	SocketTimeoutSeconds int `koanf:"socket_timeout_seconds" default:"10" validate:"gte=1"`
}

const envPrefix = "TINYOPDS_"

// New loads configuration: struct defaults, then the YAML file (when it
// exists), then environment overrides, then validation.
func New(configFile string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "load config file %s", configFile)
			}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return cfg, nil
}

// RussianLanguage reports whether Russian collation and genre translations
// should be used.
func (c *Config) RussianLanguage() bool {
	return strings.EqualFold(c.Language, "ru")
}
