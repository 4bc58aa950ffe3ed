package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/davarch/ci-wiki-sync/internal/domain"
)

const (
	defaultGitLabURL     = "https://gitlab.example.com"
	defaultConfluenceURL = "https://confluence.example.com"
	placeholder          = "changeme"
)

type Target struct {
	Name      string `yaml:"name,omitempty" toml:"name,omitempty"`
	ProjectID string `yaml:"project_id" toml:"project_id"`
	Ref       string `yaml:"ref" toml:"ref"`
	PageID    string `yaml:"page_id" toml:"page_id"`
	Section   string `yaml:"section,omitempty" toml:"section,omitempty"`
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
}

func (t Target) Domain() domain.Target {
	return domain.Target{Name: t.Name, ProjectID: t.ProjectID, Ref: t.Ref, PageID: t.PageID, Section: t.Section}
}

type GitLab struct {
	URL     string        `yaml:"url,omitempty" toml:"url,omitempty"`
	Token   string        `yaml:"token,omitempty" toml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

type Confluence struct {
	URL     string        `yaml:"url,omitempty" toml:"url,omitempty"`
	Email   string        `yaml:"email,omitempty" toml:"email,omitempty"`
	Token   string        `yaml:"token,omitempty" toml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

type Options struct {
	HistoryCount  int    `yaml:"history_count,omitempty" toml:"history_count,omitempty"`
	HistoryMetric string `yaml:"history_metric,omitempty" toml:"history_metric,omitempty"`
	HeadingLevel  int    `yaml:"heading_level,omitempty" toml:"heading_level,omitempty"`
}

type Watch struct {
	Interval  time.Duration `yaml:"interval,omitempty" toml:"interval,omitempty"`
	PauseFile string        `yaml:"pause_file,omitempty" toml:"pause_file,omitempty"`
	StatePath string        `yaml:"state_path,omitempty" toml:"state_path,omitempty"`
	Targets   []Target      `yaml:"targets,omitempty" toml:"targets,omitempty"`
}

type Config struct {
	GitLab     GitLab     `yaml:"gitlab,omitempty" toml:"gitlab,omitempty"`
	Confluence Confluence `yaml:"confluence,omitempty" toml:"confluence,omitempty"`
	Options    Options    `yaml:"options,omitempty" toml:"options,omitempty"`
	Watch      Watch      `yaml:"watch,omitempty" toml:"watch,omitempty"`
}

// Overrides carries values given on the command line. Zero values mean
// "not given".
type Overrides struct {
	GitLabURL       string
	GitLabToken     string
	ConfluenceURL   string
	ConfluenceEmail string
	ConfluenceToken string
	HistoryCount    int
	HistoryMetric   string
}

func Defaults() Config {
	var c Config
	c.GitLab.URL = defaultGitLabURL
	c.GitLab.Token = placeholder
	c.GitLab.Timeout = 10 * time.Second
	c.Confluence.URL = defaultConfluenceURL
	c.Confluence.Email = placeholder
	c.Confluence.Token = placeholder
	c.Confluence.Timeout = 30 * time.Second
	c.Options.HistoryCount = domain.DefaultHistoryCount
	c.Options.HistoryMetric = string(domain.MetricDuration)
	c.Options.HeadingLevel = 2
	c.Watch.Interval = time.Minute
	c.Watch.PauseFile = expandHome("~/.cache/ci-wiki-sync.paused")
	c.Watch.StatePath = expandHome("~/.cache/ci-wiki-sync/state.json")
	return c
}

// Load layers defaults < environment < file. Command line values are applied
// on top by ApplyOverrides. A missing file at path is an error; an empty path
// skips the file layer.
func Load(fs afero.Fs, path string) (Config, error) {
	c := Defaults()
	applyEnv(&c)

	if path != "" {
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return c, fmt.Errorf("config file: %w", err)
		}
		if err := decode(path, b, &c); err != nil {
			return c, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	normalize(&c)
	return c, nil
}

// LoadFile decodes only what is written in the file at path, without defaults
// or environment. Commands that rewrite the file edit this value so nothing
// from the process environment ends up on disk.
func LoadFile(fs afero.Fs, path string) (Config, error) {
	var c Config
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return c, fmt.Errorf("config file: %w", err)
	}
	if err := decode(path, b, &c); err != nil {
		return c, fmt.Errorf("config file %s: %w", path, err)
	}
	return c, nil
}

func ApplyOverrides(c Config, o Overrides) Config {
	if o.GitLabURL != "" {
		c.GitLab.URL = o.GitLabURL
	}
	if o.GitLabToken != "" {
		c.GitLab.Token = o.GitLabToken
	}
	if o.ConfluenceURL != "" {
		c.Confluence.URL = o.ConfluenceURL
	}
	if o.ConfluenceEmail != "" {
		c.Confluence.Email = o.ConfluenceEmail
	}
	if o.ConfluenceToken != "" {
		c.Confluence.Token = o.ConfluenceToken
	}
	if o.HistoryCount > 0 {
		c.Options.HistoryCount = o.HistoryCount
	}
	if o.HistoryMetric != "" {
		c.Options.HistoryMetric = o.HistoryMetric
	}
	return c
}

// Validate checks what a sync needs before any API is contacted.
func (c Config) Validate() error {
	var errs []error
	if c.GitLab.Token == "" || c.GitLab.Token == placeholder {
		errs = append(errs, errors.New("gitlab token is not configured (GITLAB_TOKEN)"))
	}
	if c.Confluence.Token == "" || c.Confluence.Token == placeholder {
		errs = append(errs, errors.New("confluence token is not configured (CONFLUENCE_TOKEN)"))
	}
	if c.Confluence.Email == "" || c.Confluence.Email == placeholder {
		errs = append(errs, errors.New("confluence email is not configured (CONFLUENCE_EMAIL)"))
	}
	if c.Options.HistoryCount > domain.MaxHistoryCount {
		errs = append(errs, fmt.Errorf("history count must be at most %d, got %d", domain.MaxHistoryCount, c.Options.HistoryCount))
	}
	switch domain.HistoryMetric(c.Options.HistoryMetric) {
	case domain.MetricDuration, domain.MetricTests:
	default:
		errs = append(errs, fmt.Errorf("unknown history metric %q", c.Options.HistoryMetric))
	}
	if c.Options.HeadingLevel != 1 && c.Options.HeadingLevel != 2 {
		errs = append(errs, fmt.Errorf("heading level must be 1 or 2, got %d", c.Options.HeadingLevel))
	}
	return errors.Join(errs...)
}

// WriteTemplate writes the default configuration to path and refuses to
// overwrite an existing file.
func WriteTemplate(fs afero.Fs, path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if ok, err := afero.Exists(fs, path); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("file already exists: %s", path)
	}

	c := Defaults()
	c.Watch = Watch{
		Interval: time.Minute,
		Targets:  []Target{{Name: "example", ProjectID: "123", Ref: "main", PageID: "456"}},
	}

	b, err := encode(path, c)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, b, 0o600)
}

// Save rewrites the file at path atomically.
func Save(fs afero.Fs, path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := encode(path, c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, b, 0o600); err != nil {
		return err
	}
	return fs.Rename(tmp, path)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, b []byte, c *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(b), c)
		return err
	}
	return yaml.Unmarshal(b, c)
}

func encode(path string, c Config) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(&c)
}

func applyEnv(c *Config) {
	if v := os.Getenv("GITLAB_URL"); v != "" {
		c.GitLab.URL = v
	}
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		c.GitLab.Token = v
	}
	if v := os.Getenv("GITLAB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GitLab.Timeout = d
		}
	}
	if v := os.Getenv("CONFLUENCE_URL"); v != "" {
		c.Confluence.URL = v
	}
	if v := os.Getenv("CONFLUENCE_EMAIL"); v != "" {
		c.Confluence.Email = v
	}
	if v := os.Getenv("CONFLUENCE_TOKEN"); v != "" {
		c.Confluence.Token = v
	}
	if v := os.Getenv("HISTORY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Options.HistoryCount = n
		}
	}
	if v := os.Getenv("HISTORY_METRIC"); v != "" {
		c.Options.HistoryMetric = v
	}
}

func normalize(c *Config) {
	d := Defaults()
	c.GitLab.URL = strings.TrimRight(c.GitLab.URL, "/")
	c.Confluence.URL = strings.TrimRight(c.Confluence.URL, "/")
	if c.GitLab.URL == "" {
		c.GitLab.URL = d.GitLab.URL
	}
	if c.Confluence.URL == "" {
		c.Confluence.URL = d.Confluence.URL
	}
	if c.GitLab.Timeout <= 0 {
		c.GitLab.Timeout = d.GitLab.Timeout
	}
	if c.Confluence.Timeout <= 0 {
		c.Confluence.Timeout = d.Confluence.Timeout
	}
	if c.Options.HistoryCount <= 0 {
		c.Options.HistoryCount = d.Options.HistoryCount
	}
	if c.Options.HistoryMetric == "" {
		c.Options.HistoryMetric = d.Options.HistoryMetric
	}
	if c.Options.HeadingLevel == 0 {
		c.Options.HeadingLevel = d.Options.HeadingLevel
	}
	if c.Watch.Interval <= 0 {
		c.Watch.Interval = d.Watch.Interval
	}
	if c.Watch.PauseFile == "" {
		c.Watch.PauseFile = d.Watch.PauseFile
	}
	if c.Watch.StatePath == "" {
		c.Watch.StatePath = d.Watch.StatePath
	}
	c.Watch.PauseFile = expandHome(c.Watch.PauseFile)
	c.Watch.StatePath = expandHome(c.Watch.StatePath)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
