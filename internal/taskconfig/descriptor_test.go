package taskconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsMissingJobType(t *testing.T) {
	_, err := Decode([]byte(`{"a": {}}`))
	require.Error(t, err)
}

func TestDecodeRejectsEmptyAppNameList(t *testing.T) {
	doc := `{
	  "a": {"job_type": "bash"},
	  "b": {"job_type": "bash", "depends_on": {"app_name": []}}
	}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
}

func TestDecodeRejectsNegativeMaxRetry(t *testing.T) {
	doc := `{"a": {"job_type": "bash", "max_retry": -1}}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
}

func TestDecodeAcceptsWellFormedDescriptor(t *testing.T) {
	doc := `{
	  "a": {"job_type": "bash", "job_id": "{date}"},
	  "b": {
	    "job_type": "bash",
	    "job_id": "{date}",
	    "depends_on": {"app_name": ["a"]},
	    "max_retry": 2
	  }
	}`
	view, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, view.Len())

	desc, ok := view.Get("b")
	require.True(t, ok)
	require.NotNil(t, desc.MaxRetry)
	require.Equal(t, 2, *desc.MaxRetry)
}
