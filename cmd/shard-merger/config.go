package main

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/theimaginaryfoundation/digest-o-bot/archive"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InDir      string
	OutPath    string
	ConfigPath string

	Pattern   string
	Direction string

	Overwrite bool
}

func (c Config) Validate() error {
	if c.InDir == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutPath == "" {
		return fmt.Errorf("missing -out")
	}
	if _, err := archive.ParseDirection(c.Direction); err != nil {
		return fmt.Errorf("-direction: %w", err)
	}
	if _, err := regexp.Compile(c.Pattern); err != nil {
		return fmt.Errorf("-pattern: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InDir:   filepath.FromSlash("data/shards"),
		OutPath: filepath.FromSlash("data/merged.json"),
	}
}

func (c Config) withSettings(s settings.Settings) Config {
	if c.Pattern == "" {
		c.Pattern = s.Archive.ShardPattern
	}
	if c.Direction == "" {
		c.Direction = s.Archive.Direction
	}
	return c
}

// mergeOptions assumes Validate passed.
func (c Config) mergeOptions() archive.MergeOptions {
	dir, _ := archive.ParseDirection(c.Direction)
	opts := archive.MergeOptions{Direction: dir}
	if c.Pattern != "" {
		opts.Pattern = regexp.MustCompile(c.Pattern)
	}
	return opts
}
