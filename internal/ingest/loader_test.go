package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	input := "question,answer\nWhat is Go?,A programming language\nWho made it?,Google\n"

	records, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, "question: What is Go?\nanswer: A programming language", records[0].Text)
	assert.Equal(t, 2, records[1].Row)
	assert.Equal(t, "question: Who made it?\nanswer: Google", records[1].Text)
}

func TestLoadCSV_QuotedCells(t *testing.T) {
	input := "name,notes\nwidget,\"line one\nline two, with comma\"\n"

	records, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "name: widget\nnotes: line one\nline two, with comma", records[0].Text)
}

func TestLoadCSV_RaggedRows(t *testing.T) {
	input := "a,b\n1\n2,3,4\n"

	records, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "a: 1", records[0].Text)
	assert.Equal(t, "a: 2\nb: 3\ncolumn_3: 4", records[1].Text)
}

func TestLoadCSV_SkipsEmptyRows(t *testing.T) {
	input := "a,b\n,\nx,y\n"

	records, err := LoadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Row numbers count all data rows, including skipped ones.
	assert.Equal(t, 2, records[0].Row)
}

func TestLoadCSV_NoRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "header only", input: "a,b\n"},
		{name: "header and blank cells", input: "a,b\n,\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrNoRecords)
		})
	}
}

func TestLoadCSV_MalformedQuotes(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("a,b\n\"unterminated,x\n"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecords)
}
