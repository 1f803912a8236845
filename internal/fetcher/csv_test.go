package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	var err error
	for e := range errCh {
		if e != nil {
			err = e
		}
	}
	return rows, err
}

func TestStreamCSV_CameraRows(t *testing.T) {
	input := "ID,Latitude,Longitude,Speed_Limit\ncam-1,13.05,80.25,60\ncam-2,13.06,80.26,80\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"cam-1", "13.05", "80.25", "60"}, rows[0])
	assert.Equal(t, []string{"ID", "Latitude", "Longitude", "Speed_Limit"}, <-headerCh)
}

func TestStreamCSV_HeaderSkippedWithoutChannel(t *testing.T) {
	input := "id,lat\n1,13.05\n2,13.06\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{HasHeader: true})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "13.05"}, rows[0])
}

func TestStreamCSV_PipeDelimited(t *testing.T) {
	input := "cam-1|13.05|80.25\ncam-2|13.06|80.26\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"cam-1", "13.05", "80.25"}, rows[0])
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := " ID , Street \n cam-1 , Anna Salai \n"
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"cam-1", "Anna Salai"}, rows[0])
	assert.Equal(t, []string{"ID", "Street"}, <-headerCh)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := "cam-1,Mount \"Road\" North\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestStreamCSV_Comment(t *testing.T) {
	input := "# registry export 2025-07\ncam-1,13.05\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#'})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"cam-1", "13.05"}, rows[0])
}

func TestStreamCSV_VariableWidth(t *testing.T) {
	input := "a,b,c\n1,2\n3,4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})

	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 2)
	assert.Len(t, rows[2], 4)
}

func TestStreamCSV_Empty(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStreamCSV_ReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a,b\n"), &failingReader{})
	rowCh, errCh := StreamCSV(context.Background(), r, CSVOptions{})

	rows, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
	assert.Len(t, rows, 1)
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\nc,d\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

// failingReader errors on the first read.
type failingReader struct{}

func (r *failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
