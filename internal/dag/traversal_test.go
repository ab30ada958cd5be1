package dag

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/stolos/internal/taskconfig"
)

func mustView(t *testing.T, doc string) *taskconfig.View {
	t.Helper()
	v, err := taskconfig.Decode([]byte(doc))
	require.NoError(t, err)
	return v
}

func sortedJobIDs(ps []WithGroup) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.App + "/" + p.JobID + "/" + p.Group
	}
	sort.Strings(out)
	return out
}

const simpleChainDoc = `{
  "ingest": {"job_type": "bash", "job_id": "{date}_{client_id}"},
  "transform": {
    "job_type": "bash",
    "job_id": "{date}_{client_id}",
    "depends_on": {"app_name": ["ingest"]}
  }
}`

func TestGetParentsInheritsJobID(t *testing.T) {
	view := mustView(t, simpleChainDoc)
	g, err := Build(view)
	require.NoError(t, err)

	parents, err := GetParents(g, "transform", "2024-01-01_42", nil, nil)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "ingest", parents[0].App)
	assert.Equal(t, "2024-01-01_42", parents[0].JobID)
	assert.Equal(t, taskconfig.DefaultGroupName, parents[0].Group)
}

func TestGetChildrenInheritsJobID(t *testing.T) {
	view := mustView(t, simpleChainDoc)
	g, err := Build(view)
	require.NoError(t, err)

	children, err := GetChildren(g, "ingest", "2024-01-01_42")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "transform", children[0].App)
	assert.Equal(t, "2024-01-01_42", children[0].JobID)
}

const fieldRestrictedDoc = `{
  "extract": {"job_type": "bash", "job_id": "{date}_{client_id}"},
  "report": {
    "job_type": "bash",
    "job_id": "{date}_{client_id}",
    "depends_on": {
      "app_name": ["extract"],
      "date": ["2024-01-01"],
      "client_id": ["1111", "2222"]
    }
  }
}`

func TestGetParentsCrossProductOverRestrictedFields(t *testing.T) {
	view := mustView(t, fieldRestrictedDoc)
	g, err := Build(view)
	require.NoError(t, err)

	// report's depends_on restricts every field of extract's template, so
	// extract's job ids are the cross product of the listed date and
	// client_id values; report's own job_id only has to fall within them.
	parents, err := GetParents(g, "report", "2024-01-01_1111", nil, nil)
	require.NoError(t, err)

	got := sortedJobIDs(parents)
	assert.Equal(t, []string{
		"extract/2024-01-01_1111/default",
		"extract/2024-01-01_2222/default",
	}, got)
}

const namedGroupsDoc = `{
  "a": {"job_type": "bash", "job_id": "{date}"},
  "b": {"job_type": "bash", "job_id": "{date}"},
  "c": {
    "job_type": "bash",
    "job_id": "{date}",
    "depends_on": {
      "from_a": {"app_name": ["a"]},
      "from_b": {"app_name": ["b"]}
    }
  }
}`

func TestGetParentsFilterDeps(t *testing.T) {
	view := mustView(t, namedGroupsDoc)
	g, err := Build(view)
	require.NoError(t, err)

	parents, err := GetParents(g, "c", "2024-01-01", []string{"from_a"}, nil)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, "a", parents[0].App)
	assert.Equal(t, "from_a", parents[0].Group)
}

func TestGetParentsFilterDepsUnknownGroup(t *testing.T) {
	view := mustView(t, namedGroupsDoc)
	g, err := Build(view)
	require.NoError(t, err)

	_, err = GetParents(g, "c", "2024-01-01", []string{"nope"}, nil)
	assert.Error(t, err)
}

const subgroupDoc = `{
  "us_extract": {"job_type": "bash", "job_id": "{date}_{region}"},
  "eu_extract": {"job_type": "bash", "job_id": "{date}_{region}"},
  "combine": {
    "job_type": "bash",
    "job_id": "{date}",
    "depends_on": {
      "regions": [
        {"app_name": ["us_extract"], "job_id": ["2024-01-01_us"]},
        {"app_name": ["eu_extract"], "job_id": ["2024-01-01_eu"]}
      ]
    }
  }
}`

func TestGetParentsSubgroupsAllMustMatch(t *testing.T) {
	view := mustView(t, subgroupDoc)
	g, err := Build(view)
	require.NoError(t, err)

	parents, err := GetParents(g, "combine", "2024-01-01", nil, nil)
	require.NoError(t, err)

	got := sortedJobIDs(parents)
	assert.Equal(t, []string{
		"eu_extract/2024-01-01_eu/regions",
		"us_extract/2024-01-01_us/regions",
	}, got)
}

func TestGetChildrenSubgroupsAreIndependent(t *testing.T) {
	view := mustView(t, subgroupDoc)
	g, err := Build(view)
	require.NoError(t, err)

	children, err := GetChildren(g, "us_extract", "2024-01-01_us")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "combine", children[0].App)
	assert.Equal(t, "2024-01-01", children[0].JobID)
}

func TestTopologicalSortOrdersParentsBeforeChildren(t *testing.T) {
	view := mustView(t, simpleChainDoc)
	g, err := Build(view)
	require.NoError(t, err)

	pairs := []AppJob{
		{App: "transform", JobID: "x"},
		{App: "ingest", JobID: "x"},
	}
	sorted := TopologicalSort(g, pairs)
	require.Len(t, sorted, 2)
	assert.Equal(t, "ingest", sorted[0].App)
	assert.Equal(t, "transform", sorted[1].App)
}

func TestBuildDetectsCycle(t *testing.T) {
	view := mustView(t, `{
	  "a": {"job_type": "bash", "depends_on": {"app_name": ["b"]}},
	  "b": {"job_type": "bash", "depends_on": {"app_name": ["a"]}}
	}`)
	_, err := Build(view)
	assert.Error(t, err)
}

func TestBuildUnknownParentIsDAGMisconfigured(t *testing.T) {
	view := mustView(t, `{
	  "a": {"job_type": "bash", "depends_on": {"app_name": ["ghost"]}}
	}`)
	_, err := Build(view)
	assert.Error(t, err)
}
