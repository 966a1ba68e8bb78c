package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(rows int) Table {
	t := Table{
		Title:   "Audit log",
		Columns: []Column{{Header: "Action", Weight: 2}, {Header: "Entity"}, {Header: "Performer", Weight: 1.5}},
	}
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, []string{"EXAM_UPDATE", "exam-1", strings.Repeat("Dean Example ", 4)})
	}
	return t
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestCSVRender(t *testing.T) {
	out, err := For(FormatCSV).Render(Table{
		Columns: []Column{{Header: "a"}, {Header: "b"}},
		Rows:    [][]string{{"1", "x,y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", string(out))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	_, err := CSV{}.Render(Table{Columns: []Column{{Header: "a"}}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
	_, err = PDF{}.Render(Table{})
	assert.Error(t, err)
}

func TestPDFRenderPaginates(t *testing.T) {
	out, err := For(FormatPDF).Render(sampleTable(120))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(sampleTable(0).Columns)
	sum := 0.0
	for _, w := range widths {
		sum += w
	}
	assert.InDelta(t, pageWidth, sum, 0.001)
	assert.Greater(t, widths[0], widths[1])
	assert.Equal(t, "audit-log-20261019.pdf", Filename("audit-log", "20261019", FormatPDF))
}
