package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

// Direction controls how numbered shards are ordered by their embedded number.
type Direction string

const (
	// NewestFirst puts higher shard numbers first. The exporter numbers shards so this is the packaged default.
	NewestFirst Direction = "newest-first"
	// OldestFirst puts lower shard numbers first.
	OldestFirst Direction = "oldest-first"
)

// DefaultShardPattern captures the sequence number embedded in exported shard names.
var DefaultShardPattern = regexp.MustCompile(`messages(\d+)\.`)

// ParseDirection accepts the Direction names plus "desc"/"asc".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(NewestFirst), "desc":
		return NewestFirst, nil
	case string(OldestFirst), "asc":
		return OldestFirst, nil
	default:
		return "", fmt.Errorf("unknown merge direction %q (want %s or %s)", s, NewestFirst, OldestFirst)
	}
}

type MergeOptions struct {
	Pattern   *regexp.Regexp
	Direction Direction
}

// ShardInput is one shard's records plus what the merger needs to place it.
type ShardInput struct {
	Name    string
	ModTime time.Time
	Records []MessageRecord
}

type MergeResult struct {
	Records      []MessageRecord
	Order        []string
	FilesMerged  int
	TotalRecords int
}

// MergeInputError reports an intermediate shard file that could not be loaded.
type MergeInputError struct {
	Path string
	Err  error
}

func (e *MergeInputError) Error() string {
	return fmt.Sprintf("merge input %s: %v", e.Path, e.Err)
}

func (e *MergeInputError) Unwrap() error { return e.Err }

// ShardNumber returns the sequence number embedded in name, if any.
func ShardNumber(pattern *regexp.Regexp, name string) (int64, bool) {
	if pattern == nil {
		pattern = DefaultShardPattern
	}
	m := pattern.FindStringSubmatch(filepath.Base(name))
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Merge orders shards and concatenates their records without reordering inside a shard.
// Numbered shards come first in the configured direction; the rest follow, most recently modified first.
func Merge(shards []ShardInput, opts MergeOptions) MergeResult {
	if opts.Direction == "" {
		opts.Direction = NewestFirst
	}

	type keyed struct {
		ShardInput
		num      int64
		numbered bool
	}
	ks := make([]keyed, 0, len(shards))
	for _, s := range shards {
		n, ok := ShardNumber(opts.Pattern, s.Name)
		ks = append(ks, keyed{ShardInput: s, num: n, numbered: ok})
	}

	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.numbered != b.numbered {
			return a.numbered
		}
		if a.numbered {
			if a.num == b.num {
				return false
			}
			if opts.Direction == OldestFirst {
				return a.num < b.num
			}
			return a.num > b.num
		}
		return a.ModTime.After(b.ModTime)
	})

	var res MergeResult
	for _, k := range ks {
		res.Records = append(res.Records, k.Records...)
		res.Order = append(res.Order, k.Name)
		res.FilesMerged++
	}
	res.TotalRecords = len(res.Records)
	return res
}

// LoadShardDir reads every per-shard *.json artifact in dir. Unreadable files are returned
// as MergeInputErrors instead of failing the load.
func LoadShardDir(dir string) ([]ShardInput, []*MergeInputError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadShardDir: read dir: %w", err)
	}

	var shards []ShardInput
	var skipped []*MergeInputError
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())

		info, err := e.Info()
		if err != nil {
			skipped = append(skipped, &MergeInputError{Path: path, Err: err})
			continue
		}
		var recs []MessageRecord
		if err := fileutils.ReadJSONFile(path, &recs); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipping unreadable shard")
			skipped = append(skipped, &MergeInputError{Path: path, Err: err})
			continue
		}
		shards = append(shards, ShardInput{Name: e.Name(), ModTime: info.ModTime(), Records: recs})
	}
	return shards, skipped, nil
}

// WriteMerged writes records to path (pretty) and to the sibling .min.json (compact).
func WriteMerged(path string, records []MessageRecord, overwrite bool) (string, error) {
	if path == "" {
		return "", errors.New("WriteMerged: empty path")
	}
	if records == nil {
		records = []MessageRecord{}
	}
	minPath := MinifiedPath(path)
	for _, p := range []string{path, minPath} {
		if err := fileutils.CheckWritable(p, overwrite); err != nil {
			return "", fmt.Errorf("WriteMerged: %w", err)
		}
	}
	if err := fileutils.WriteJSONFileAtomic(path, records, true); err != nil {
		return "", fmt.Errorf("WriteMerged: %w", err)
	}
	if err := fileutils.WriteJSONFileAtomic(minPath, records, false); err != nil {
		return "", fmt.Errorf("WriteMerged: %w", err)
	}
	return minPath, nil
}

// MinifiedPath returns the compact sibling of a merged artifact path.
func MinifiedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".min" + ext
}

// ReadMerged loads a merged artifact written by WriteMerged.
func ReadMerged(path string) ([]MessageRecord, error) {
	var recs []MessageRecord
	if err := fileutils.ReadJSONFile(path, &recs); err != nil {
		return nil, fmt.Errorf("ReadMerged: %w", err)
	}
	return recs, nil
}
