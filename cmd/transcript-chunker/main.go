package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
	"github.com/theimaginaryfoundation/digest-o-bot/logging"
	"github.com/theimaginaryfoundation/digest-o-bot/settings"
)

// ManifestEntry describes one chunk file written by the chunker.
type ManifestEntry struct {
	Index  int    `json:"index"`
	Total  int    `json:"total"`
	Offset int    `json:"offset"`
	Bytes  int    `json:"bytes"`
	Path   string `json:"path"`
}

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	st, err := settings.Load(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := logging.Setup(st.Log.Level, st.Log.Console, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	b, err := os.ReadFile(cfg.InPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	opts := cfg.chunkOptions(st)
	chunks := analysis.SplitText(string(b), opts)
	if len(chunks) == 0 {
		fmt.Fprintln(os.Stderr, "transcript is empty")
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("mkdir -out: %w", err).Error())
		os.Exit(2)
	}
	manifest, err := writeChunks(cfg.OutDir, chunks, cfg.Overwrite)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	manifestPath := filepath.Join(cfg.OutDir, "chunks.json")
	if err := fileutils.CheckWritable(manifestPath, cfg.Overwrite); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := fileutils.WriteJSONFileAtomic(manifestPath, manifest, true); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "chunks=%d bytes=%d max_bytes=%d out_dir=%s manifest=%s\n",
		len(chunks), len(b), opts.MaxBytes, cfg.OutDir, manifestPath)
}

func chunkFileName(c analysis.Chunk) string {
	return fmt.Sprintf("chunk_%d_of_%d.txt", c.Index, c.Total)
}

func writeChunks(dir string, chunks []analysis.Chunk, overwrite bool) ([]ManifestEntry, error) {
	manifest := make([]ManifestEntry, 0, len(chunks))
	for _, c := range chunks {
		path := filepath.Join(dir, chunkFileName(c))
		if err := fileutils.CheckWritable(path, overwrite); err != nil {
			return nil, err
		}
		if err := fileutils.WriteFileAtomicSameDir(path, []byte(c.Text), 0o644); err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", c.Index, err)
		}
		log.Debug().Int("chunk", c.Index).Int("bytes", len(c.Text)).Str("path", path).Msg("chunk written")
		manifest = append(manifest, ManifestEntry{
			Index:  c.Index,
			Total:  c.Total,
			Offset: c.Offset,
			Bytes:  len(c.Text),
			Path:   path,
		})
	}
	return manifest, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Transcript text file")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory to write chunk_<i>_of_<n>.txt files and chunks.json into")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional TOML settings file")
	fs.IntVar(&cfg.MaxBytes, "max-bytes", 0, "Max UTF-8 bytes per chunk (0 = -size or settings)")
	fs.StringVar(&cfg.Size, "size", "", "Chunk size preset: full|medium|small")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-chunker -in data/transcript.txt -out data/chunks")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/transcript-chunker -size small -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InPath = filepath.Clean(cfg.InPath)
	cfg.OutDir = filepath.Clean(cfg.OutDir)
	return cfg, nil
}
