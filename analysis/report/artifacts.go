package report

import (
	"fmt"
	"path/filepath"
)

const (
	IndexFileName  = "index.jsonl"
	DigestFileName = "digest.md"
)

// Artifacts are the run-level files written next to the per-chunk reports.
type Artifacts struct {
	IndexPath  string
	DigestPath string
}

// WriteRunArtifacts writes the JSONL index and the markdown digest for d into dir.
func WriteRunArtifacts(dir string, d Digest, overwrite bool) (Artifacts, error) {
	records := make([]IndexRecord, 0, len(d.Chunks)+1)
	if d.Summary != nil {
		path := filepath.Join(dir, AggregateReportName(d.Summary.Succeeded, d.Summary.Total))
		records = append(records, BuildIndexRecord(*d.Summary, path, 0))
	}
	for _, c := range d.Chunks {
		records = append(records, BuildIndexRecord(c, filepath.Join(dir, ChunkReportName(c.ChunkIndex, c.Total)), 0))
	}

	a := Artifacts{
		IndexPath:  filepath.Join(dir, IndexFileName),
		DigestPath: filepath.Join(dir, DigestFileName),
	}
	if err := WriteIndex(a.IndexPath, records, overwrite); err != nil {
		return Artifacts{}, fmt.Errorf("WriteRunArtifacts: %w", err)
	}
	if err := WriteDigest(a.DigestPath, d, overwrite); err != nil {
		return Artifacts{}, fmt.Errorf("WriteRunArtifacts: %w", err)
	}
	return a, nil
}
