package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facegate/internal/models"
)

// Enroller is the engine operation the manager drives.
type Enroller interface {
	Enroll(ctx context.Context, identityID uuid.UUID, images [][]byte) (*models.EnrollmentReport, error)
}

// EnsureFunc makes sure the batch's identity exists before its photos are sent.
type EnsureFunc func(ctx context.Context, b Batch) error

// Result is the outcome of one identity's batch. Enrolled and Failed sum the
// per-photo results across every chunk sent for the identity.
type Result struct {
	Batch              Batch
	Enrolled           int
	Failed             int
	PossibleDuplicates []uuid.UUID
	Err                error
}

type Manager struct {
	enroller Enroller
	ensure   EnsureFunc
	workers  int
	chunk    int
	log      *slog.Logger
}

// NewManager builds a manager that runs up to workers identities at once and
// splits photo lists into chunks of at most chunk images.
func NewManager(enroller Enroller, ensure EnsureFunc, workers, chunk int, log *slog.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{enroller: enroller, ensure: ensure, workers: workers, chunk: chunk, log: log}
}

// Run enrolls every batch and returns results in batch order. onDone is
// called once per batch as it finishes, never concurrently.
func (m *Manager) Run(ctx context.Context, batches []Batch, onDone func(Result)) []Result {
	results := make([]Result, len(batches))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, b := range batches {
		g.Go(func() error {
			res := m.runBatch(gctx, b)
			mu.Lock()
			results[i] = res
			if onDone != nil {
				onDone(res)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) runBatch(ctx context.Context, b Batch) Result {
	res := Result{Batch: b}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if m.ensure != nil {
		if err := m.ensure(ctx, b); err != nil {
			res.Err = fmt.Errorf("identity %s: %w", b.IdentityID, err)
			return res
		}
	}

	for _, files := range chunks(b.Files, m.chunk) {
		images := make([][]byte, 0, len(files))
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				m.log.Warn("skip unreadable photo", "path", path, "error", err)
				res.Failed++
				continue
			}
			images = append(images, data)
		}
		if len(images) == 0 {
			continue
		}

		report, err := m.enroller.Enroll(ctx, b.IdentityID, images)
		if err != nil {
			res.Err = fmt.Errorf("enroll %s: %w", b.IdentityID, err)
			return res
		}
		res.Enrolled += report.Enrolled
		res.Failed += report.Failed
		res.PossibleDuplicates = append(res.PossibleDuplicates, report.PossibleDuplicates...)
	}

	m.log.Info("identity enrolled",
		"identity", b.IdentityID,
		"photos", len(b.Files),
		"enrolled", res.Enrolled,
		"failed", res.Failed,
	)
	return res
}

func chunks(files []string, size int) [][]string {
	if size <= 0 || len(files) <= size {
		return [][]string{files}
	}
	var out [][]string
	for start := 0; start < len(files); start += size {
		out = append(out, files[start:min(start+size, len(files))])
	}
	return out
}
