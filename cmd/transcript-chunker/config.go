package main

import (
	"fmt"
	"path/filepath"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

type Config struct {
	InPath     string
	OutDir     string
	ConfigPath string

	MaxBytes int
	Size     string

	Overwrite bool
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutDir == "" {
		return fmt.Errorf("missing -out")
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("max-bytes must be >= 0")
	}
	if c.Size != "" {
		if _, err := analysis.ChunkSizePreset(c.Size); err != nil {
			return err
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InPath: filepath.FromSlash("data/transcript.txt"),
		OutDir: filepath.FromSlash("data/chunks"),
	}
}

// chunkOptions resolves the byte budget: -max-bytes, then -size, then settings.
func (c Config) chunkOptions(s settings.Settings) analysis.ChunkOptions {
	opts := s.ChunkOptions()
	switch {
	case c.MaxBytes > 0:
		opts.MaxBytes = c.MaxBytes
	case c.Size != "":
		if n, err := analysis.ChunkSizePreset(c.Size); err == nil {
			opts.MaxBytes = n
		}
	}
	return opts
}
