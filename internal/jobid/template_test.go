package jobid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	tmpl, err := Compile("ingest", "{date}_{client_id}_{type}")
	require.NoError(t, err)

	fields, err := tmpl.Parse("ingest", "2024-01-01_42_full")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"date": "2024-01-01", "client_id": "42", "type": "full"}, fields)

	out, err := tmpl.Format("ingest", fields, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01_42_full", out)
}

func TestParseRejectsPartialMatch(t *testing.T) {
	tmpl, err := Compile("ingest", "{date}_{client_id}")
	require.NoError(t, err)

	_, err = tmpl.Parse("ingest", "2024-01-01_42_extra")
	assert.Error(t, err)
}

func TestFormatMissingFieldIsDAGMisconfigured(t *testing.T) {
	tmpl, err := Compile("ingest", "{date}_{client_id}")
	require.NoError(t, err)

	_, err = tmpl.Format("ingest", map[string]string{"date": "2024-01-01"}, "")
	assert.Error(t, err)
}

func TestFormatBindsReservedGroupField(t *testing.T) {
	tmpl, err := Compile("ingest", "{date}_{dependency_group_name}")
	require.NoError(t, err)

	out, err := tmpl.Format("ingest", map[string]string{"date": "2024-01-01"}, "upstream")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01_upstream", out)
}

func TestRepeatedFieldMustAgree(t *testing.T) {
	tmpl, err := Compile("ingest", "{date}/{date}")
	require.NoError(t, err)

	_, err = tmpl.Parse("ingest", "2024-01-01/2024-01-01")
	assert.NoError(t, err)

	_, err = tmpl.Parse("ingest", "2024-01-01/2024-01-02")
	assert.Error(t, err)
}

func TestCompileRejectsEmptyTemplate(t *testing.T) {
	_, err := Compile("ingest", "")
	assert.Error(t, err)
}
