package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

// IndexRecord is one row of the run index: a report file plus enough to scan it without opening it.
type IndexRecord struct {
	RunID       string  `json:"run_id"`
	Kind        Kind    `json:"kind"`
	ChunkIndex  int     `json:"chunk_index,omitempty"`
	Total       int     `json:"total_chunks"`
	Model       string  `json:"model_id"`
	Status      Status  `json:"status"`
	ReportPath  string  `json:"report_path"`
	Summary     string  `json:"summary,omitempty"`
	Error       string  `json:"error,omitempty"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost_usd"`
}

// BuildIndexRecord creates a stable index row for a report written to path.
func BuildIndexRecord(doc Document, path string, summaryMax int) IndexRecord {
	if summaryMax <= 0 {
		summaryMax = 400
	}
	return IndexRecord{
		RunID:       doc.RunID,
		Kind:        doc.Kind,
		ChunkIndex:  doc.ChunkIndex,
		Total:       doc.Total,
		Model:       doc.Model,
		Status:      doc.Status,
		ReportPath:  path,
		Summary:     summaryLine(doc.ResponseText, summaryMax),
		Error:       strings.TrimSpace(doc.Error),
		TotalTokens: doc.Usage.TotalTokens,
		TotalCost:   doc.Cost.Total,
	}
}

// WriteIndex writes index records as JSONL.
func WriteIndex(path string, records []IndexRecord, overwrite bool) error {
	if path == "" {
		return errors.New("WriteIndex: path is empty")
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteIndex: %w", err)
	}

	var b strings.Builder
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return fileutils.WriteFileAtomicSameDir(path, []byte(b.String()), 0o644)
}
