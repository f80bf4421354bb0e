package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifactSortsSnapshots(t *testing.T) {
	raw := []byte(`{
		"task_id": "tb_5d_tech",
		"framework": "linear",
		"variation": "v2",
		"kernel": {
			"targets": ["y"],
			"feature_list": ["f1"],
			"weights": [[1]],
			"intercepts": [0]
		},
		"snapshots": [
			{"snapshot_id": "s3", "available_from_ts": 3000},
			{"snapshot_id": "s1", "available_from_ts": 1000},
			{"snapshot_id": "s2", "available_from_ts": 2000}
		],
		"post_processors": [{"name": "round", "params": {"digits": 2}}]
	}`)

	h, err := ParseArtifact(raw)
	require.NoError(t, err)

	assert.Equal(t, "tb_5d_tech", h.TaskID)
	assert.Equal(t, "v2", h.Variation)
	assert.Equal(t, []string{"f1"}, h.FeatureList)

	ids := make([]string, 0, len(h.Snapshots))
	for _, s := range h.Snapshots {
		ids = append(ids, s.ID)
		assert.Nil(t, s.Kernel())
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)

	require.Len(t, h.PostProcessors, 1)
	assert.Equal(t, "round", h.PostProcessors[0].Name)
	assert.Equal(t, 2.0, h.PostProcessors[0].Params["digits"])
}

func TestParseArtifactRejectsBadBundles(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"no task id", `{"kernel": {"targets":["y"],"feature_list":[],"weights":[[]],"intercepts":[0]}}`},
		{"snapshot without id", `{
			"task_id": "t",
			"kernel": {"targets":["y"],"feature_list":[],"weights":[[]],"intercepts":[0]},
			"snapshots": [{"available_from_ts": 1}]
		}`},
		{"bad kernel dims", `{
			"task_id": "t",
			"kernel": {"targets":["y"],"feature_list":["f1"],"weights":[[1,2]],"intercepts":[0]}
		}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseKernelUnknownFramework(t *testing.T) {
	_, err := ParseKernel("gradient_forest", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gradient_forest")
}
