// Package config loads the bridge configuration: a YAML file layered
// with GZS_* environment overrides for the secrets and deploy-specific
// knobs.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/welp-ops/gazelle-subsonic/internal/music"
	"github.com/welp-ops/gazelle-subsonic/internal/selection"
)

type Config struct {
	Gazelle          Gazelle           `yaml:"gazelle"`
	TorrentSelection TorrentSelection  `yaml:"torrentSelection"`
	Subsonic         Subsonic          `yaml:"subsonic"`
	Server           Server            `yaml:"server"`
	Torrent          Torrent           `yaml:"torrent"`
	Users            map[string]string `yaml:"users"`
}

type Gazelle struct {
	// BaseURL is the tracker root, no trailing slash.
	BaseURL   string `yaml:"baseUrl"`
	AuthToken string `yaml:"authToken"`
	Passkey   string `yaml:"passkey"`
	// SearchPageSize must match the page size the tracker actually
	// returns; the pager's window math is built on it.
	SearchPageSize int `yaml:"searchPageSize"`
}

type TorrentSelection struct {
	SortOrder         []string         `yaml:"sortOrder"`
	Seeders           SeedersThreshold `yaml:"seeders"`
	Formats           []string         `yaml:"formats"`
	PreferNewEditions bool             `yaml:"preferNewEditions"`
}

type Subsonic struct {
	DefaultCoverArt     string `yaml:"defaultCoverArt"`
	DefaultCoverArtType string `yaml:"defaultCoverArtType"`
}

type Server struct {
	BindIP      string      `yaml:"bindIp"`
	Port        int         `yaml:"port"`
	CORSOrigins CORSOrigins `yaml:"corsOrigins"`
}

type Torrent struct {
	DataDir    string `yaml:"dataDir"`
	ListenPort int    `yaml:"listenPort"`
	PeerID     string `yaml:"peerId"`
}

// SeedersThreshold is either a number ("this many seeders is enough")
// or the literal true ("always maximize").
type SeedersThreshold struct {
	Always bool
	Min    int
}

func (s *SeedersThreshold) UnmarshalYAML(unmarshal func(any) error) error {
	var always bool
	if err := unmarshal(&always); err == nil {
		*s = SeedersThreshold{Always: always}
		return nil
	}
	var min int
	if err := unmarshal(&min); err != nil {
		return fmt.Errorf("seeders must be a number or true")
	}
	*s = SeedersThreshold{Min: min}
	return nil
}

// CORSOrigins is false (no CORS), "*" (any origin) or a list of
// allowed origins.
type CORSOrigins struct {
	AllowAll bool
	Origins  []string
}

func (c *CORSOrigins) UnmarshalYAML(unmarshal func(any) error) error {
	var enabled bool
	if err := unmarshal(&enabled); err == nil {
		*c = CORSOrigins{AllowAll: enabled}
		return nil
	}
	var star string
	if err := unmarshal(&star); err == nil {
		if star == "*" {
			*c = CORSOrigins{AllowAll: true}
			return nil
		}
		*c = CORSOrigins{Origins: []string{star}}
		return nil
	}
	var origins []string
	if err := unmarshal(&origins); err != nil {
		return fmt.Errorf("corsOrigins must be false, \"*\" or a list of origins")
	}
	*c = CORSOrigins{Origins: origins}
	return nil
}

// envOverrides are applied after the file so deployments can keep
// secrets out of it. GZS_PEERID predates the others, some peers only
// whitelist known client ids.
type envOverrides struct {
	AuthToken string `env:"GZS_AUTH_TOKEN"`
	Passkey   string `env:"GZS_PASSKEY"`
	BindIP    string `env:"GZS_BIND_IP"`
	Port      int    `env:"GZS_PORT"`
	DataDir   string `env:"GZS_DATA_DIR"`
	PeerID    string `env:"GZS_PEERID"`
}

// Load reads, defaults and validates the configuration.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyOverrides(ov)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gazelle.SearchPageSize == 0 {
		c.Gazelle.SearchPageSize = 50
	}
	if c.Server.BindIP == "" {
		c.Server.BindIP = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 2773
	}
	if len(c.TorrentSelection.SortOrder) == 0 {
		c.TorrentSelection.SortOrder = []string{"seeders", "format", "year", "numTracks"}
	}
	if c.TorrentSelection.Seeders == (SeedersThreshold{}) {
		c.TorrentSelection.Seeders.Min = 6
	}
	if len(c.TorrentSelection.Formats) == 0 {
		c.TorrentSelection.Formats = []string{"MP3 V0", "MP3 320", "FLAC", "MP3 V2", "MP3 Other"}
	}
	if c.Subsonic.DefaultCoverArtType == "" && c.Subsonic.DefaultCoverArt != "" {
		c.Subsonic.DefaultCoverArtType = "image/png"
	}
}

func (c *Config) applyOverrides(ov envOverrides) {
	if ov.AuthToken != "" {
		c.Gazelle.AuthToken = ov.AuthToken
	}
	if ov.Passkey != "" {
		c.Gazelle.Passkey = ov.Passkey
	}
	if ov.BindIP != "" {
		c.Server.BindIP = ov.BindIP
	}
	if ov.Port != 0 {
		c.Server.Port = ov.Port
	}
	if ov.DataDir != "" {
		c.Torrent.DataDir = ov.DataDir
	}
	if ov.PeerID != "" {
		c.Torrent.PeerID = ov.PeerID
	}
}

func (c *Config) validate() error {
	if c.Gazelle.BaseURL == "" {
		return fmt.Errorf("gazelle.baseUrl is required")
	}
	if c.Gazelle.AuthToken == "" {
		return fmt.Errorf("gazelle.authToken is required")
	}
	if len(c.Users) == 0 {
		return fmt.Errorf("at least one user is required")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy converts the selection section into a selection.Policy.
func (c *Config) Policy() (selection.Policy, error) {
	policy := selection.Policy{
		Seeders: selection.SeederThreshold{
			Always: c.TorrentSelection.Seeders.Always,
			Min:    c.TorrentSelection.Seeders.Min,
		},
		PreferNewEditions: c.TorrentSelection.PreferNewEditions,
	}
	for _, name := range c.TorrentSelection.SortOrder {
		criterion := selection.Criterion(name)
		switch criterion {
		case selection.BySeeders, selection.ByFormat, selection.ByYear, selection.ByNumTracks:
			policy.SortOrder = append(policy.SortOrder, criterion)
		default:
			return selection.Policy{}, fmt.Errorf("unknown sort criterion %q", name)
		}
	}
	for _, f := range c.TorrentSelection.Formats {
		policy.Formats = append(policy.Formats, music.Format(f))
	}
	return policy, nil
}
