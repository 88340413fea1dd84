// Package config loads and validates the tool configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ELMSTARTER_SERVER_PORT.
const EnvPrefix = "ELMSTARTER"

// Config captures every knob of the tool. The project itself is described by
// the conf the Elm worker produces; this only covers how the tool runs.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Elm       ElmConfig       `mapstructure:"elm"`
	Build     BuildConfig     `mapstructure:"build"`
	Prerender PrerenderConfig `mapstructure:"prerender"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Debug       bool `mapstructure:"debug"`
}

// ElmConfig locates the project and the tools used to bootstrap it.
type ElmConfig struct {
	ProjectDir   string `mapstructure:"project_dir"`
	BinDir       string `mapstructure:"bin_dir"`
	Worker       string `mapstructure:"worker"`
	Node         string `mapstructure:"node"`
	IgnoredByGit string `mapstructure:"ignored_by_git"`
	// ConfFile, when set, is decoded instead of running the Elm worker.
	ConfFile string `mapstructure:"conf_file"`
}

// BuildConfig tunes the production build.
type BuildConfig struct {
	// ServerWarmup is how long build waits for the static server to come up.
	ServerWarmup time.Duration `mapstructure:"server_warmup"`
}

// PrerenderConfig tunes the headless browser.
type PrerenderConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxPagesPerSecond float64       `mapstructure:"max_pages_per_second"`
	ChromePath        string        `mapstructure:"chrome_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
}

// WatchConfig tunes watchStartElm.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// ServerConfig controls the built-in build server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig controls metric export after a build.
type MetricsConfig struct {
	// Textfile, when set, receives the registry in Prometheus text format.
	Textfile string `mapstructure:"textfile"`
}

// UploadConfig selects where upload publishes the build.
type UploadConfig struct {
	Bucket      string `mapstructure:"bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	Parallelism int    `mapstructure:"parallelism"`
	// Topic, when set, receives a notification after each upload.
	Topic   string `mapstructure:"topic"`
	Project string `mapstructure:"project"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.debug", false)
	v.SetDefault("elm.project_dir", ".")
	v.SetDefault("elm.bin_dir", "node_modules/.bin")
	v.SetDefault("elm.worker", "src-elm-starter/Worker.elm")
	v.SetDefault("elm.node", "node")
	v.SetDefault("elm.ignored_by_git", "elm-stuff/elm-starter-files")
	v.SetDefault("elm.conf_file", "")
	v.SetDefault("build.server_warmup", 2*time.Second)
	v.SetDefault("prerender.navigation_timeout", 30*time.Second)
	v.SetDefault("prerender.max_pages_per_second", 0)
	v.SetDefault("prerender.chrome_path", "")
	v.SetDefault("prerender.no_sandbox", false)
	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("server.port", 9000)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.local_dir", "")
	v.SetDefault("upload.prefix", "")
	v.SetDefault("upload.parallelism", 8)
	v.SetDefault("upload.topic", "")
	v.SetDefault("upload.project", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Elm.ProjectDir) == "" {
		return errors.New("elm.project_dir must be set")
	}
	if c.Build.ServerWarmup < 0 {
		return errors.New("build.server_warmup must be >= 0")
	}
	if c.Prerender.NavigationTimeout <= 0 {
		return errors.New("prerender.navigation_timeout must be > 0")
	}
	if c.Prerender.MaxPagesPerSecond < 0 {
		return errors.New("prerender.max_pages_per_second must be >= 0")
	}
	if c.Watch.Debounce <= 0 {
		return errors.New("watch.debounce must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be within 1..65535")
	}
	if c.Upload.Bucket != "" && c.Upload.LocalDir != "" {
		return errors.New("upload.bucket and upload.local_dir are mutually exclusive")
	}
	if c.Upload.Topic != "" && c.Upload.Project == "" {
		return errors.New("upload.project must be set when upload.topic is")
	}
	if c.Upload.Parallelism <= 0 {
		return errors.New("upload.parallelism must be > 0")
	}
	return nil
}
