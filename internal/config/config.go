// Package config loads the eamsync configuration file and applies
// EAMSYNC_* environment overrides on top of it. Every local file the
// tool writes (journal, snapshot, token cache, taxonomy cache) defaults
// to a location under StateDir, so a bare config still yields a working
// layout.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the decoded configuration with overrides and defaults applied.
type Config struct {
	StateDir string `yaml:"stateDir"`
	Journal  string `yaml:"journal"`
	Snapshot string `yaml:"snapshot"`

	Source struct {
		URL       string `yaml:"url"`
		ProjectID string `yaml:"projectId"`
		ModelID   string `yaml:"modelId"`
	} `yaml:"source"`

	Target struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"apiKey"`
	} `yaml:"target"`

	Auth struct {
		Issuer      string   `yaml:"issuer"`
		ClientID    string   `yaml:"clientId"`
		RedirectURL string   `yaml:"redirectUrl"`
		Audience    string   `yaml:"audience"`
		Scopes      []string `yaml:"scopes"`
		TokenFile   string   `yaml:"tokenFile"`
	} `yaml:"auth"`

	Taxonomy struct {
		URL   string `yaml:"url"`
		Cache string `yaml:"cache"`
	} `yaml:"taxonomy"`

	Rules string `yaml:"rules"`
}

// Load reads the config file at path, overlays EAMSYNC_* environment
// variables and fills in defaults. An empty path skips the file and
// builds the config from environment and defaults alone.
//
// Unknown YAML fields are rejected so typos surface immediately.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks the fields a reconciliation run cannot do without.
// It reports the first missing field, together with the environment
// variable that can supply it.
func (c Config) Validate() error {
	required := []struct {
		value string
		field string
		env   string
	}{
		{c.Source.URL, "source.url", "EAMSYNC_SOURCE_URL"},
		{c.Source.ProjectID, "source.projectId", "EAMSYNC_PROJECT_ID"},
		{c.Source.ModelID, "source.modelId", "EAMSYNC_MODEL_ID"},
		{c.Target.URL, "target.url", "EAMSYNC_TARGET_URL"},
		{c.Target.APIKey, "target.apiKey", "EAMSYNC_TARGET_API_KEY"},
		{c.Auth.Issuer, "auth.issuer", "EAMSYNC_AUTH_ISSUER"},
		{c.Auth.ClientID, "auth.clientId", "EAMSYNC_AUTH_CLIENT_ID"},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required config field %s (or set %s)", r.field, r.env)
		}
	}
	return nil
}

// ValidateAuth checks only what the login flow needs.
func (c Config) ValidateAuth() error {
	if c.Auth.Issuer == "" {
		return errors.New("missing required config field auth.issuer (or set EAMSYNC_AUTH_ISSUER)")
	}
	if c.Auth.ClientID == "" {
		return errors.New("missing required config field auth.clientId (or set EAMSYNC_AUTH_CLIENT_ID)")
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"EAMSYNC_STATE_DIR", &c.StateDir},
		{"EAMSYNC_JOURNAL_FILE", &c.Journal},
		{"EAMSYNC_SNAPSHOT_FILE", &c.Snapshot},
		{"EAMSYNC_SOURCE_URL", &c.Source.URL},
		{"EAMSYNC_PROJECT_ID", &c.Source.ProjectID},
		{"EAMSYNC_MODEL_ID", &c.Source.ModelID},
		{"EAMSYNC_TARGET_URL", &c.Target.URL},
		{"EAMSYNC_TARGET_API_KEY", &c.Target.APIKey},
		{"EAMSYNC_AUTH_ISSUER", &c.Auth.Issuer},
		{"EAMSYNC_AUTH_CLIENT_ID", &c.Auth.ClientID},
		{"EAMSYNC_AUTH_REDIRECT_URL", &c.Auth.RedirectURL},
		{"EAMSYNC_AUTH_AUDIENCE", &c.Auth.Audience},
		{"EAMSYNC_TOKEN_FILE", &c.Auth.TokenFile},
		{"EAMSYNC_TAXONOMY_URL", &c.Taxonomy.URL},
		{"EAMSYNC_TAXONOMY_CACHE", &c.Taxonomy.Cache},
		{"EAMSYNC_RULES_FILE", &c.Rules},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.dst = v
		}
	}
	if v, ok := os.LookupEnv("EAMSYNC_AUTH_SCOPE"); ok {
		c.Auth.Scopes = strings.Fields(v)
	}
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = ".eamsync"
	}
	if c.Journal == "" {
		c.Journal = filepath.Join(c.StateDir, "journal.jsonl")
	}
	if c.Snapshot == "" {
		c.Snapshot = filepath.Join(c.StateDir, "snapshot.json")
	}
	if c.Auth.RedirectURL == "" {
		c.Auth.RedirectURL = "http://127.0.0.1:8765/callback"
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = []string{"openid", "offline_access"}
	}
	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = filepath.Join(c.StateDir, "token.json")
	}
	if c.Taxonomy.URL == "" {
		c.Taxonomy.URL = "https://api.bsdd.buildingsmart.org/api"
	}
	if c.Taxonomy.Cache == "" {
		c.Taxonomy.Cache = filepath.Join(c.StateDir, "taxonomy.db")
	}
	if c.Rules == "" {
		c.Rules = "rules.yaml"
	}
}
