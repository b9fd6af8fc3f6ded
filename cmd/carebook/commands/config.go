package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carebook/internal/components/chrono"
	"carebook/internal/components/configutil"
	"carebook/internal/components/telemetry"
	"carebook/internal/notebook"
	"carebook/internal/pipeline"
	"carebook/internal/portal"
	"carebook/internal/render"
	"carebook/internal/walker"

	"dario.cat/mergo"
)

type ChildConfig struct {
	Name string `json:"name" yaml:"name"`
	// Birthday is YYYY-MM-DD.
	Birthday string `json:"birthday" yaml:"birthday"`
}

type Config struct {
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	StateDir  string `json:"state_dir" yaml:"state_dir"`

	BaseURL     string `json:"base_url" yaml:"base_url"`
	HandoutsURL string `json:"handouts_url" yaml:"handouts_url"`
	LoginID     string `json:"login_id" yaml:"login_id"`
	Password    string `json:"password" yaml:"password"`
	// RequestDelay is waited after every request, e.g. "1s".
	RequestDelay string `json:"request_delay" yaml:"request_delay"`
	MaxPages     int    `json:"max_pages" yaml:"max_pages"`

	WrapWidth   int           `json:"wrap_width" yaml:"wrap_width"`
	Timezone    string        `json:"timezone" yaml:"timezone"`
	DefaultDays int           `json:"default_days" yaml:"default_days"`
	Schedule    string        `json:"schedule" yaml:"schedule"`
	PostBuild   []string      `json:"post_build" yaml:"post_build"`
	Children    []ChildConfig `json:"children" yaml:"children"`

	Otlp telemetry.OtlpConfig `json:"otlp" yaml:"otlp"`
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".carebook"
	}
	return filepath.Join(dir, "carebook")
}

func DefaultConfig() Config {
	return Config{
		DataDir:      "data",
		OutputDir:    "output",
		StateDir:     defaultStateDir(),
		BaseURL:      portal.DefaultBaseURL,
		HandoutsURL:  portal.DefaultHandoutsURL,
		RequestDelay: "1s",
		MaxPages:     walker.DefaultMaxPages,
		WrapWidth:    render.DefaultWrapWidth,
		Timezone:     "Asia/Tokyo",
		DefaultDays:  pipeline.DefaultDays,
		Schedule:     "0 6 * * *",
	}
}

// WithDefaults fills every field left empty with its default.
func (c Config) WithDefaults() (Config, error) {
	err := mergo.Merge(&c, DefaultConfig())
	return c, err
}

func (c Config) Delay() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestDelay)
	if err != nil {
		return 0, fmt.Errorf("request_delay: %w", err)
	}
	return d, nil
}

func (c Config) NotebookChildren() ([]notebook.Child, error) {
	out := make([]notebook.Child, 0, len(c.Children))
	for _, child := range c.Children {
		var birthday chrono.Date
		if child.Birthday != "" {
			var err error
			birthday, err = chrono.ParseDate(child.Birthday)
			if err != nil {
				return nil, fmt.Errorf("birthday of %s: %w", child.Name, err)
			}
		}
		out = append(out, notebook.Child{Name: child.Name, Birthday: birthday})
	}
	return out, nil
}

func (c Config) StateDBPath() string {
	return filepath.Join(c.StateDir, "state.db")
}

func (c Config) CookiesPath() string {
	return filepath.Join(c.StateDir, "cookies.json")
}

func (c Config) LockPath() string {
	return filepath.Join(c.StateDir, "carebook.lock")
}

// LoadConfig reads the config at `path` (and its .local override), running without
// a config file at all is allowed.
func LoadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", path)
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults()
}
