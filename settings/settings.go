package settings

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/analysis/provider"
	"github.com/theimaginaryfoundation/digest-o-bot/archive"
)

// EnvPrefix marks environment overrides. Nested keys use "__", e.g. DIGEST_RETRY__MAX_ATTEMPTS.
const EnvPrefix = "DIGEST_"

// DefaultPaths are tried in order when Load is given no explicit path.
var DefaultPaths = []string{"./digest-o-bot.toml", "$HOME/.digest-o-bot.toml"}

type Settings struct {
	Model string `koanf:"model"`

	Provider ProviderSettings `koanf:"provider"`
	Archive  ArchiveSettings  `koanf:"archive"`
	Analysis AnalysisSettings `koanf:"analysis"`
	Retry    RetrySettings    `koanf:"retry"`
	Prompts  PromptSettings   `koanf:"prompts"`
	Log      LogSettings      `koanf:"log"`

	// Models overrides the built-in price table when non-empty.
	Models analysis.PriceTable `koanf:"models"`
}

type ProviderSettings struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Referer string `koanf:"referer"`
	Title   string `koanf:"title"`
}

type ArchiveSettings struct {
	Encoding      string `koanf:"encoding"`
	SelfMarker    string `koanf:"self_marker"`
	OwnerName     string `koanf:"owner_name"`
	TimeDelimiter string `koanf:"time_delimiter"`
	ShardPattern  string `koanf:"shard_pattern"`
	Direction     string `koanf:"direction"`
}

type AnalysisSettings struct {
	ChunkBytes  int           `koanf:"chunk_bytes"`
	MinInterval time.Duration `koanf:"min_interval"`
}

type RetrySettings struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	Delay          time.Duration `koanf:"delay"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type PromptSettings struct {
	Library string `koanf:"library"`
	Default string `koanf:"default"`
}

type LogSettings struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

func defaults() map[string]any {
	rp := analysis.DefaultRetryPolicy()
	return map[string]any{
		"model":                  "openai/gpt-4.1-mini",
		"provider.base_url":      provider.DefaultBaseURL,
		"provider.referer":       provider.DefaultReferer,
		"provider.title":         provider.DefaultTitle,
		"archive.encoding":       archive.DefaultEncoding,
		"archive.self_marker":    archive.DefaultSelfMarker,
		"archive.owner_name":     archive.DefaultOwnerName,
		"archive.time_delimiter": archive.DefaultTimeDelimiter,
		"archive.shard_pattern":  archive.DefaultShardPattern.String(),
		"archive.direction":      string(archive.NewestFirst),
		"analysis.chunk_bytes":   analysis.DefaultMaxChunkBytes,
		"analysis.min_interval":  "0s",
		"retry.max_attempts":     rp.MaxAttempts,
		"retry.delay":            rp.Delay.String(),
		"retry.request_timeout":  rp.RequestTimeout.String(),
		"log.level":              "info",
		"log.console":            true,
	}
}

// Default returns the built-in settings without reading any file or environment.
func Default() (Settings, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: defaults: %w", err)
	}
	return unmarshal(k)
}

// Load layers defaults, a TOML file and DIGEST_* environment variables.
// An explicit path must exist; without one the first existing DefaultPaths entry is used.
func Load(path string) (Settings, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("settings: load %s: %w", path, err)
		}
	} else {
		for _, p := range DefaultPaths {
			p = os.ExpandEnv(p)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
				return Settings{}, fmt.Errorf("settings: load %s: %w", p, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Settings{}, fmt.Errorf("settings: env: %w", err)
	}
	return unmarshal(k)
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func unmarshal(k *koanf.Koanf) (Settings, error) {
	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("settings: unmarshal: %w", err)
	}
	if len(s.Models) == 0 {
		s.Models = analysis.DefaultPriceTable()
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if s.Analysis.ChunkBytes <= 0 {
		return errors.New("settings: analysis.chunk_bytes must be > 0")
	}
	if s.Retry.MaxAttempts <= 0 {
		return errors.New("settings: retry.max_attempts must be > 0")
	}
	if s.Retry.Delay < 0 || s.Retry.RequestTimeout < 0 || s.Analysis.MinInterval < 0 {
		return errors.New("settings: durations must be >= 0")
	}
	if _, err := archive.ParseDirection(s.Archive.Direction); err != nil {
		return fmt.Errorf("settings: archive.direction: %w", err)
	}
	if _, err := regexp.Compile(s.Archive.ShardPattern); err != nil {
		return fmt.Errorf("settings: archive.shard_pattern: %w", err)
	}
	for _, m := range s.Models {
		if m.ID == "" {
			return errors.New("settings: models: entry without id")
		}
	}
	return nil
}

// APIKey returns the configured key, falling back to OPENROUTER_API_KEY then OPENAI_API_KEY.
func (s Settings) APIKey() string {
	if s.Provider.APIKey != "" {
		return s.Provider.APIKey
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (s Settings) RetryPolicy() analysis.RetryPolicy {
	return analysis.RetryPolicy{
		MaxAttempts:    s.Retry.MaxAttempts,
		Delay:          s.Retry.Delay,
		RequestTimeout: s.Retry.RequestTimeout,
	}
}

func (s Settings) ChunkOptions() analysis.ChunkOptions {
	return analysis.ChunkOptions{MaxBytes: s.Analysis.ChunkBytes}
}

func (s Settings) ExtractOptions() archive.ExtractOptions {
	return archive.ExtractOptions{Encoding: s.Archive.Encoding, SelfMarker: s.Archive.SelfMarker}
}

// MergeOptions compiles the shard pattern; an empty pattern keeps the default.
func (s Settings) MergeOptions() (archive.MergeOptions, error) {
	dir, err := archive.ParseDirection(s.Archive.Direction)
	if err != nil {
		return archive.MergeOptions{}, err
	}
	opts := archive.MergeOptions{Direction: dir}
	if s.Archive.ShardPattern != "" {
		re, err := regexp.Compile(s.Archive.ShardPattern)
		if err != nil {
			return archive.MergeOptions{}, err
		}
		opts.Pattern = re
	}
	return opts, nil
}

func (s Settings) FormatOptions() archive.FormatOptions {
	return archive.FormatOptions{
		SelfMarker:    s.Archive.SelfMarker,
		OwnerName:     s.Archive.OwnerName,
		TimeDelimiter: s.Archive.TimeDelimiter,
	}
}

func (s Settings) ProviderConfig(apiKey string) provider.Config {
	if apiKey == "" {
		apiKey = s.APIKey()
	}
	return provider.Config{
		APIKey:  apiKey,
		BaseURL: s.Provider.BaseURL,
		Referer: s.Provider.Referer,
		Title:   s.Provider.Title,
	}
}
