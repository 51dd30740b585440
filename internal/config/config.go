package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Document error policies.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Config is the build-time settings bundle. It is decoded once and passed by
// value to every stage.
type Config struct {
	SiteTitle        string           `mapstructure:"siteTitle"`
	PresentationsDir string           `mapstructure:"presentationsDir"`
	OutputDir        string           `mapstructure:"outputDir"`
	MetadataDir      string           `mapstructure:"metadataDir"`
	DefaultAuthor    string           `mapstructure:"defaultAuthor"`
	OnDocumentError  string           `mapstructure:"onDocumentError"`
	IgnoreDirs       []string         `mapstructure:"ignoreDirs"`
	Thumbnail        ThumbnailConfig  `mapstructure:"thumbnail"`
	AccessGate       AccessGateConfig `mapstructure:"accessGate"`
}

type ThumbnailConfig struct {
	Width             int           `mapstructure:"width"`
	Height            int           `mapstructure:"height"`
	ViewportWidth     int           `mapstructure:"viewportWidth"`
	ViewportHeight    int           `mapstructure:"viewportHeight"`
	NavigationTimeout time.Duration `mapstructure:"navigationTimeout"`
	SettleDelay       time.Duration `mapstructure:"settleDelay"`
	LaunchTimeout     time.Duration `mapstructure:"launchTimeout"`
	Render            bool          `mapstructure:"render"`
	BrowserBin        string        `mapstructure:"browserBin"`
}

type AccessGateConfig struct {
	Codes    []string      `mapstructure:"codes"`
	Window   time.Duration `mapstructure:"window"`
	Generate bool          `mapstructure:"generate"`
	CodePage string        `mapstructure:"codePage"`
}

// Enabled reports whether the landing page gets an access gate.
func (a AccessGateConfig) Enabled() bool {
	return len(a.Codes) > 0 || a.Generate
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		SiteTitle:        "Presentation Library",
		PresentationsDir: "presentations",
		OutputDir:        "docs",
		MetadataDir:      "metadata",
		DefaultAuthor:    "Unknown",
		OnDocumentError:  OnErrorAbort,
		IgnoreDirs:       []string{"assets", "node_modules"},
		Thumbnail: ThumbnailConfig{
			Width:             800,
			Height:            450,
			ViewportWidth:     1920,
			ViewportHeight:    1080,
			NavigationTimeout: 10 * time.Second,
			SettleDelay:       2 * time.Second,
			LaunchTimeout:     30 * time.Second,
			Render:            true,
		},
		AccessGate: AccessGateConfig{
			Window:   24 * time.Hour,
			CodePage: ".preslib/access-code.html",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("siteTitle", d.SiteTitle)
	v.SetDefault("presentationsDir", d.PresentationsDir)
	v.SetDefault("outputDir", d.OutputDir)
	v.SetDefault("metadataDir", d.MetadataDir)
	v.SetDefault("defaultAuthor", d.DefaultAuthor)
	v.SetDefault("onDocumentError", d.OnDocumentError)
	v.SetDefault("ignoreDirs", d.IgnoreDirs)
	v.SetDefault("thumbnail.width", d.Thumbnail.Width)
	v.SetDefault("thumbnail.height", d.Thumbnail.Height)
	v.SetDefault("thumbnail.viewportWidth", d.Thumbnail.ViewportWidth)
	v.SetDefault("thumbnail.viewportHeight", d.Thumbnail.ViewportHeight)
	v.SetDefault("thumbnail.navigationTimeout", d.Thumbnail.NavigationTimeout)
	v.SetDefault("thumbnail.settleDelay", d.Thumbnail.SettleDelay)
	v.SetDefault("thumbnail.launchTimeout", d.Thumbnail.LaunchTimeout)
	v.SetDefault("thumbnail.render", d.Thumbnail.Render)
	v.SetDefault("thumbnail.browserBin", d.Thumbnail.BrowserBin)
	v.SetDefault("accessGate.codes", []string{})
	v.SetDefault("accessGate.window", d.AccessGate.Window)
	v.SetDefault("accessGate.generate", d.AccessGate.Generate)
	v.SetDefault("accessGate.codePage", d.AccessGate.CodePage)
}

// Load reads configuration from cfgFile, or from ./config.yaml when cfgFile
// is empty, layering PRESLIB_* environment variables on top. A missing
// default config file is not an error; a missing explicit one is.
// The returned string names the file used, if any.
func Load(cfgFile string) (Config, string, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PRESLIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return Config{}, "", fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, used, nil
}

// Validate rejects settings no stage can work with.
func (c Config) Validate() error {
	if c.PresentationsDir == "" {
		return errors.New("config: presentationsDir must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("config: outputDir must not be empty")
	}
	if c.Thumbnail.Width <= 0 || c.Thumbnail.Height <= 0 {
		return fmt.Errorf("config: invalid thumbnail size %dx%d", c.Thumbnail.Width, c.Thumbnail.Height)
	}
	if c.Thumbnail.ViewportWidth <= 0 || c.Thumbnail.ViewportHeight <= 0 {
		return fmt.Errorf("config: invalid viewport %dx%d", c.Thumbnail.ViewportWidth, c.Thumbnail.ViewportHeight)
	}
	if c.Thumbnail.NavigationTimeout <= 0 {
		return errors.New("config: thumbnail.navigationTimeout must be positive")
	}
	if c.Thumbnail.LaunchTimeout <= 0 {
		return errors.New("config: thumbnail.launchTimeout must be positive")
	}
	switch c.OnDocumentError {
	case OnErrorAbort, OnErrorSkip:
	default:
		return fmt.Errorf("config: onDocumentError must be %q or %q, got %q", OnErrorAbort, OnErrorSkip, c.OnDocumentError)
	}
	if c.AccessGate.Enabled() && c.AccessGate.Window <= 0 {
		return errors.New("config: accessGate.window must be positive")
	}
	for _, code := range c.AccessGate.Codes {
		if strings.TrimSpace(code) == "" {
			return errors.New("config: accessGate.codes must not contain empty codes")
		}
	}
	return nil
}
