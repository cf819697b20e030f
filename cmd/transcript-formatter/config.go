package main

import (
	"fmt"
	"path/filepath"

	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InPaths    []string
	OutPath    string
	ConfigPath string

	OwnerName     string
	SelfMarker    string
	TimeDelimiter string
	KeepFullNames bool

	Stats       bool
	CountTokens bool
	Encoding    string

	Overwrite bool
}

func (c Config) Validate() error {
	if len(c.InPaths) == 0 {
		return fmt.Errorf("missing -in")
	}
	if c.OutPath == "" {
		return fmt.Errorf("missing -out")
	}
	if c.CountTokens && !c.Stats {
		return fmt.Errorf("-count-tokens requires -stats")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPaths:  []string{filepath.FromSlash("data/merged.json")},
		OutPath:  filepath.FromSlash("data/transcript.txt"),
		Stats:    true,
		Encoding: "cl100k_base",
	}
}

func (c Config) withSettings(s settings.Settings) Config {
	if c.OwnerName == "" {
		c.OwnerName = s.Archive.OwnerName
	}
	if c.SelfMarker == "" {
		c.SelfMarker = s.Archive.SelfMarker
	}
	if c.TimeDelimiter == "" {
		c.TimeDelimiter = s.Archive.TimeDelimiter
	}
	return c
}

func statsPath(out string) string {
	ext := filepath.Ext(out)
	return out[:len(out)-len(ext)] + ".stats.json"
}
