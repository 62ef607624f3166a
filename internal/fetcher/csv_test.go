package fetcher

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	return rows, <-errCh
}

func TestStreamCSVHeader(t *testing.T) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("ags;cdu\n01001000; 0.3 \n"), CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"ags", "cdu"}, <-headerCh)
	assert.Equal(t, [][]string{{"01001000", "0.3"}}, rows)
}

func TestStreamCSVLatin1(t *testing.T) {
	raw, err := charmap.ISO8859_1.NewEncoder().String("name\nMünchen\n")
	require.NoError(t, err)

	rowCh, errCh := StreamCSV(context.Background(), bytes.NewReader([]byte(raw)), CSVOptions{HasHeader: true, Charset: "iso-8859-1"})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"München"}}, rows)
}

func TestStreamCSVUnknownCharset(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{Charset: "klingon"})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "klingon")
}

func TestStreamCSVMalformed(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
}

func TestStreamCSVCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
}
