package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/writer"
)

// SnapshotKey returns the storage key of one snapshot document in a run.
func SnapshotKey(runUUID string, role model.SnapshotRole) string {
	return path.Join("runs", runUUID, fmt.Sprintf("%s.heapsnapshot", role))
}

// ResultKey returns the storage key of a run's result artifact.
func ResultKey(runUUID string) string {
	return path.Join("runs", runUUID, "result.json.gz")
}

// RunPrefix returns the key prefix under which a run's artifacts live.
func RunPrefix(runUUID string) string {
	return "runs/" + runUUID + "/"
}

// ListRunArtifacts returns the stored keys of one run: its snapshot
// documents and, once analysis finished, its result artifact.
func ListRunArtifacts(ctx context.Context, store Storage, runUUID string) ([]string, error) {
	return store.List(ctx, RunPrefix(runUUID))
}

// FetchSnapshot downloads one snapshot document, transparently
// decompressing gzipped archives.
func FetchSnapshot(ctx context.Context, store Storage, runUUID string, role model.SnapshotRole) ([]byte, error) {
	rc, err := store.Download(ctx, SnapshotKey(runUUID, role))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return writer.ReadMaybeGzip(rc)
}

// PutResult uploads a run's result as a gzipped JSON artifact.
func PutResult(ctx context.Context, store Storage, res *model.AnalysisResult) error {
	if res == nil || res.RunUUID == "" {
		return fmt.Errorf("result must carry a run UUID")
	}

	var buf bytes.Buffer
	gz := writer.NewGzipWriter[*model.AnalysisResult]()
	if err := gz.Write(res, &buf); err != nil {
		return fmt.Errorf("failed to encode result artifact: %w", err)
	}

	return store.Upload(ctx, ResultKey(res.RunUUID), &buf)
}
