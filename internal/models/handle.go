package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ProcessorSpec names a post-processor and its parameters. The forecasting
// coordinator resolves specs into the executable pipeline.
type ProcessorSpec struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Snapshot is one versioned checkpoint of a model. Kernel stays nil until
// bulk loading materializes it.
type Snapshot struct {
	ID            string `json:"snapshot_id"`
	AvailableFrom int64  `json:"available_from_ts"`

	mu     sync.Mutex
	kernel Kernel
}

// Kernel returns the loaded kernel, nil before BulkLoadSnapshots.
func (s *Snapshot) Kernel() Kernel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kernel
}

func (s *Snapshot) setKernel(k Kernel) {
	s.mu.Lock()
	s.kernel = k
	s.mu.Unlock()
}

// Handle is the cached value object for one forecasting task's artifacts:
// the live kernel, the snapshot index ordered by availability, and the
// post-processing the task's outputs go through.
type Handle struct {
	TaskID         string
	Framework      string
	Variation      string
	MainKernel     Kernel
	Snapshots      []*Snapshot
	FeatureList    []string
	PostProcessors []ProcessorSpec
}

// artifactBundle is the wire format of a model artifact.
type artifactBundle struct {
	TaskID         string          `json:"task_id"`
	Framework      string          `json:"framework"`
	Variation      string          `json:"variation"`
	Kernel         json.RawMessage `json:"kernel"`
	Snapshots      []snapshotEntry `json:"snapshots"`
	PostProcessors []ProcessorSpec `json:"post_processors"`
}

type snapshotEntry struct {
	ID            string `json:"snapshot_id"`
	AvailableFrom int64  `json:"available_from_ts"`
}

// ParseArtifact decodes a model artifact bundle. Snapshots come back sorted
// by availability ascending regardless of wire order.
func ParseArtifact(data []byte) (*Handle, error) {
	var bundle artifactBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if bundle.TaskID == "" {
		return nil, fmt.Errorf("artifact has no task_id")
	}

	kernel, err := ParseKernel(bundle.Framework, bundle.Kernel)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", bundle.TaskID, err)
	}

	snaps := make([]*Snapshot, 0, len(bundle.Snapshots))
	for _, e := range bundle.Snapshots {
		if e.ID == "" {
			return nil, fmt.Errorf("artifact %s: snapshot without id", bundle.TaskID)
		}
		snaps = append(snaps, &Snapshot{ID: e.ID, AvailableFrom: e.AvailableFrom})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].AvailableFrom < snaps[j].AvailableFrom })

	return &Handle{
		TaskID:         bundle.TaskID,
		Framework:      bundle.Framework,
		Variation:      bundle.Variation,
		MainKernel:     kernel,
		Snapshots:      snaps,
		FeatureList:    kernel.Features(),
		PostProcessors: bundle.PostProcessors,
	}, nil
}

// ParseKernel decodes a kernel payload for the given framework.
func ParseKernel(framework string, payload []byte) (Kernel, error) {
	switch framework {
	case "", "linear":
		var k LinearKernel
		if err := json.Unmarshal(payload, &k); err != nil {
			return nil, fmt.Errorf("decode linear kernel: %w", err)
		}
		if err := k.Validate(); err != nil {
			return nil, err
		}
		return &k, nil
	default:
		return nil, fmt.Errorf("unsupported model framework %q", framework)
	}
}
