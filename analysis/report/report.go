package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theimaginaryfoundation/digest-o-bot/analysis"
	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

type Kind string

const (
	KindChunk     Kind = "chunk"
	KindAggregate Kind = "aggregate"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Document is the report artifact written for one chunk or for an aggregation.
type Document struct {
	RunID      string `json:"run_id" jsonschema:"description=Identifier shared by every report of one analysis run"`
	Kind       Kind   `json:"kind" jsonschema:"enum=chunk,enum=aggregate"`
	ChunkIndex int    `json:"chunk_index" jsonschema:"description=1-based chunk index; 0 for an aggregate report"`
	Total      int    `json:"total_chunks"`
	// Succeeded is the number of chunk sections an aggregate was built from.
	Succeeded int `json:"succeeded_chunks"`

	Model string `json:"model_id"`
	// RequestedModel is the model id the request named, before any endpoint aliasing.
	RequestedModel string         `json:"requested_model"`
	ModelName      string         `json:"model_name"`
	Prompt         string         `json:"prompt"`
	ResponseText   string         `json:"response_text"`
	Usage          analysis.Usage `json:"usage"`
	Cost           analysis.Cost  `json:"cost"`

	Status    Status    `json:"status"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRunID returns a fresh identifier for tagging one run's reports.
func NewRunID() string {
	return uuid.NewString()
}

func NewChunkDocument(runID string, res analysis.AnalysisResult, prices analysis.PriceTable) Document {
	d := baseDocument(runID, res, prices)
	d.Kind = KindChunk
	return d
}

func NewAggregateDocument(runID string, sum analysis.AnalysisResult, succeeded int, prices analysis.PriceTable) Document {
	d := baseDocument(runID, sum, prices)
	d.Kind = KindAggregate
	d.ChunkIndex = 0
	d.Succeeded = succeeded
	return d
}

func baseDocument(runID string, res analysis.AnalysisResult, prices analysis.PriceTable) Document {
	d := Document{
		RunID:          runID,
		ChunkIndex:     res.ChunkIndex,
		Total:          res.Total,
		Model:          res.Model,
		RequestedModel: res.RequestedModel,
		Prompt:         res.Prompt,
		ResponseText:   res.ResponseText,
		Usage:          res.Usage,
		Cost:           prices.Cost(res.Model, res.Usage),
		Status:         StatusFailed,
		Error:          res.Error,
		Attempts:       res.Attempts,
		Timestamp:      res.Timestamp,
	}
	if m, ok := prices.Lookup(res.Model); ok {
		d.ModelName = m.Name
	}
	if res.Succeeded {
		d.Status = StatusSucceeded
	}
	return d
}

// Result converts a report back into the orchestrator's result form.
func (d Document) Result() analysis.AnalysisResult {
	return analysis.AnalysisResult{
		ChunkIndex:     d.ChunkIndex,
		Total:          d.Total,
		Model:          d.Model,
		RequestedModel: d.RequestedModel,
		Prompt:         d.Prompt,
		ResponseText:   d.ResponseText,
		Usage:          d.Usage,
		Succeeded:      d.Status == StatusSucceeded,
		Error:          d.Error,
		Attempts:       d.Attempts,
		Timestamp:      d.Timestamp,
	}
}

func ChunkReportName(index, total int) string {
	return fmt.Sprintf("analysis_part_%d_of_%d.json", index, total)
}

func AggregateReportName(succeeded, total int) string {
	return fmt.Sprintf("analysis_summary_of_%d_of_%d.json", succeeded, total)
}

var chunkReportRe = regexp.MustCompile(`^analysis_part_(\d+)_of_(\d+)\.json$`)

// WriteChunkReport writes <dir>/analysis_part_<i>_of_<n>.json and returns its path.
func WriteChunkReport(dir string, doc Document, overwrite bool) (string, error) {
	if doc.Kind != KindChunk {
		return "", fmt.Errorf("WriteChunkReport: kind %q", doc.Kind)
	}
	if doc.ChunkIndex <= 0 || doc.Total <= 0 {
		return "", fmt.Errorf("WriteChunkReport: invalid chunk %d of %d", doc.ChunkIndex, doc.Total)
	}
	return writeDocument(filepath.Join(dir, ChunkReportName(doc.ChunkIndex, doc.Total)), doc, overwrite)
}

// WriteAggregateReport writes <dir>/analysis_summary_of_<k>_of_<n>.json and returns its path.
func WriteAggregateReport(dir string, doc Document, overwrite bool) (string, error) {
	if doc.Kind != KindAggregate {
		return "", fmt.Errorf("WriteAggregateReport: kind %q", doc.Kind)
	}
	return writeDocument(filepath.Join(dir, AggregateReportName(doc.Succeeded, doc.Total)), doc, overwrite)
}

func writeDocument(path string, doc Document, overwrite bool) (string, error) {
	if path == "" {
		return "", errors.New("writeDocument: empty path")
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return "", err
	}
	if err := fileutils.WriteJSONFileAtomic(path, doc, true); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

// ReadDocument loads one report file, rejecting files that do not match the report schema.
func ReadDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("ReadDocument: %w", err)
	}
	if err := ValidateDocument(raw); err != nil {
		return Document{}, fmt.Errorf("ReadDocument %s: %w", path, err)
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return Document{}, fmt.Errorf("ReadDocument %s: %w", path, err)
	}
	return d, nil
}

// LoadChunkReports reads every chunk report in dir, ordered by chunk index.
// When reports of several runs share the directory only the most recent run is returned.
func LoadChunkReports(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadChunkReports: read dir: %w", err)
	}

	byRun := map[string][]Document{}
	latest := map[string]time.Time{}
	for _, e := range entries {
		m := chunkReportRe.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		d, err := ReadDocument(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("LoadChunkReports: %w", err)
		}
		if d.Kind != KindChunk {
			continue
		}
		if d.ChunkIndex == 0 {
			d.ChunkIndex, _ = strconv.Atoi(m[1])
		}
		if d.Total == 0 {
			d.Total, _ = strconv.Atoi(m[2])
		}
		byRun[d.RunID] = append(byRun[d.RunID], d)
		if ts, ok := latest[d.RunID]; !ok || d.Timestamp.After(ts) {
			latest[d.RunID] = d.Timestamp
		}
	}
	if len(byRun) == 0 {
		return nil, fmt.Errorf("LoadChunkReports: no chunk reports in %s", dir)
	}

	run := ""
	first := true
	for id, ts := range latest {
		if first || ts.After(latest[run]) || (ts.Equal(latest[run]) && id > run) {
			run = id
			first = false
		}
	}
	docs := byRun[run]
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ChunkIndex < docs[j].ChunkIndex })
	return docs, nil
}

// RequestedModel returns the model a run of docs asked for. Reports written without a
// requested id fall back to the echoed id of the first successful chunk.
func RequestedModel(docs []Document) string {
	for _, d := range docs {
		if d.RequestedModel != "" {
			return d.RequestedModel
		}
	}
	for _, d := range docs {
		if d.Status == StatusSucceeded && d.Model != "" {
			return d.Model
		}
	}
	if len(docs) > 0 {
		return docs[0].Model
	}
	return ""
}

// Results converts documents into orchestrator results.
func Results(docs []Document) []analysis.AnalysisResult {
	out := make([]analysis.AnalysisResult, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Result())
	}
	return out
}

func summaryLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	return fileutils.Truncate(s, max)
}
