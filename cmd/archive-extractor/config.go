package main

import (
	"fmt"
	"path/filepath"

	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InDir      string
	OutDir     string
	ConfigPath string

	Encoding   string
	SelfMarker string

	Pretty    bool
	Overwrite bool
	Resume    bool
}

func (c Config) Validate() error {
	if c.InDir == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutDir == "" {
		return fmt.Errorf("missing -out")
	}
	if c.Overwrite && c.Resume {
		return fmt.Errorf("-overwrite and -resume are mutually exclusive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InDir:  filepath.FromSlash("data/messages"),
		OutDir: filepath.FromSlash("data/shards"),
	}
}

// withSettings fills options not given on the command line.
func (c Config) withSettings(s settings.Settings) Config {
	if c.Encoding == "" {
		c.Encoding = s.Archive.Encoding
	}
	if c.SelfMarker == "" {
		c.SelfMarker = s.Archive.SelfMarker
	}
	return c
}
