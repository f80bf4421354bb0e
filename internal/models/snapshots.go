package models

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/errs"
)

// SnapshotPolicy selects among the snapshots eligible at a point in time.
type SnapshotPolicy string

const (
	// PolicyFirst picks the earliest snapshot available at or before the
	// target time.
	PolicyFirst SnapshotPolicy = "first"
	// PolicyLast picks the latest one. Historical evaluation uses this so
	// each row sees the freshest kernel that existed at row time.
	PolicyLast SnapshotPolicy = "last"
)

// SnapshotFor resolves the snapshot to use for asOf. Only snapshots whose
// availability timestamp is not later than asOf qualify; anything newer would
// leak future information into the evaluation.
func SnapshotFor(h *Handle, asOf int64, policy SnapshotPolicy) (*Snapshot, error) {
	if policy != PolicyFirst && policy != PolicyLast {
		return nil, errs.Internal("models", fmt.Errorf("unknown snapshot policy %q", policy))
	}

	// Snapshots are sorted ascending by availability, so the eligible set is
	// a prefix.
	last := -1
	for i, s := range h.Snapshots {
		if s.AvailableFrom > asOf {
			break
		}
		last = i
	}
	if last < 0 {
		return nil, errs.NoSnapshot(h.TaskID, fmt.Errorf("no snapshot available at ts %d", asOf))
	}
	if policy == PolicyFirst {
		return h.Snapshots[0], nil
	}
	return h.Snapshots[last], nil
}

// SnapshotKernelSource fetches the serialized kernel of one snapshot.
type SnapshotKernelSource interface {
	FetchSnapshotKernel(ctx context.Context, slug, snapshotID string) ([]byte, error)
}

// BulkLoadSnapshots materializes every snapshot kernel of the handle.
// History generation calls this once up front so per-row resolution never
// touches the artifact store. Already-loaded snapshots are kept as is.
func BulkLoadSnapshots(ctx context.Context, src SnapshotKernelSource, slug string, h *Handle) error {
	loaded := 0
	for _, s := range h.Snapshots {
		if s.Kernel() != nil {
			continue
		}
		payload, err := src.FetchSnapshotKernel(ctx, slug, s.ID)
		if err != nil {
			return fmt.Errorf("fetch snapshot %s/%s: %w", slug, s.ID, err)
		}
		kernel, err := ParseKernel(h.Framework, payload)
		if err != nil {
			return fmt.Errorf("snapshot %s/%s: %w", slug, s.ID, err)
		}
		s.setKernel(kernel)
		loaded++
	}
	log.Debug().Str("model", slug).Int("loaded", loaded).Int("total", len(h.Snapshots)).
		Msg("Snapshot kernels loaded")
	return nil
}

// UnloadSnapshots drops the snapshot kernels so the batch's memory can be
// reclaimed. The snapshot index itself stays resident with the handle.
func UnloadSnapshots(h *Handle) {
	for _, s := range h.Snapshots {
		s.setKernel(nil)
	}
}
