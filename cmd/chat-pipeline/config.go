package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var allStages = []string{"extract", "merge", "format", "analyze"}

type Config struct {
	ExportDir  string
	BaseDir    string
	ConfigPath string

	Model      string
	PromptName string
	PromptFile string
	Size       string
	Aggregate  bool

	FromStage string
	OnlyStage string

	Pretty    bool
	Overwrite bool
	DryRun    bool
}

func (c Config) Validate() error {
	if c.ExportDir == "" {
		return errors.New("missing -in")
	}
	if c.BaseDir == "" {
		return errors.New("missing -base-dir")
	}
	if c.OnlyStage != "" && c.FromStage != "" {
		return errors.New("use only one of -only-stage or -from-stage")
	}
	for _, s := range []string{c.OnlyStage, c.FromStage} {
		if s != "" && !isStage(s) {
			return fmt.Errorf("unknown stage %q (want %s)", s, strings.Join(allStages, "|"))
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		ExportDir: filepath.FromSlash("export/messages"),
		BaseDir:   filepath.FromSlash("data"),
		Aggregate: true,
	}
}

func isStage(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range allStages {
		if st == s {
			return true
		}
	}
	return false
}

// layout is where each stage reads and writes below the base directory.
type layout struct {
	Shards     string
	Merged     string
	Transcript string
	Analysis   string
}

func newLayout(base string) layout {
	base = filepath.Clean(base)
	return layout{
		Shards:     filepath.Join(base, "shards"),
		Merged:     filepath.Join(base, "merged.json"),
		Transcript: filepath.Join(base, "transcript.txt"),
		Analysis:   filepath.Join(base, "analysis"),
	}
}
