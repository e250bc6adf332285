package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestReadCSV_SemicolonWithHeader(t *testing.T) {
	input := "Kennziffer;Raumeinheit;2019\n09161;Ingolstadt;21,4\n09162;München;24,9\n"
	header, rows, err := ReadCSV(strings.NewReader(input), CSVOptions{Delimiter: ';', HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Kennziffer", "Raumeinheit", "2019"}, header)
	assert.Equal(t, [][]string{
		{"09161", "Ingolstadt", "21,4"},
		{"09162", "München", "24,9"},
	}, rows)
}

func TestReadCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFid,value\ns1,30\n"
	header, _, err := ReadCSV(strings.NewReader(input), CSVOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, "id", header[0])
}

func TestReadCSV_Windows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("09162;München\n")
	require.NoError(t, err)

	_, rows, err := ReadCSV(strings.NewReader(encoded), CSVOptions{Delimiter: ';', Encoding: "windows-1252"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "München", rows[0][1])
}

func TestReadCSV_UnknownEncoding(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("a\n"), CSVOptions{Encoding: "klingon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestReadCSV_TrimSpaceAndComment(t *testing.T) {
	input := "# generated\n s1 , 30 \n"
	_, rows, err := ReadCSV(strings.NewReader(input), CSVOptions{Comment: '#', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"s1", "30"}}, rows)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("a,\"b\n"), CSVOptions{})
	require.Error(t, err)
}

func TestScanCSV_WithHeader(t *testing.T) {
	input := "station,year,value\nDEBY001,2019,30\n\"DEBY\n002\",2019,50\n"

	var header []string
	var lines []int
	var rows [][]string
	err := ScanCSV(context.Background(), strings.NewReader(input), CSVOptions{HasHeader: true},
		func(h []string) error {
			header = h
			return nil
		},
		func(line int, row []string) error {
			lines = append(lines, line)
			rows = append(rows, row)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"station", "year", "value"}, header)
	assert.Equal(t, [][]string{{"DEBY001", "2019", "30"}, {"DEBY\n002", "2019", "50"}}, rows)
	assert.Equal(t, []int{2, 3}, lines)
}

func TestScanCSV_StopsOnCallbackError(t *testing.T) {
	input := "code,value\na,1\nb,2\nc,3\n"
	stop := errors.New("bad row")

	tests := []struct {
		name   string
		header func([]string) error
		wantN  int
	}{
		{"header rejects", func([]string) error { return stop }, 0},
		{"row rejects", nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 0
			err := ScanCSV(context.Background(), strings.NewReader(input), CSVOptions{HasHeader: true},
				tt.header,
				func(_ int, row []string) error {
					n++
					if row[0] == "b" {
						return stop
					}
					return nil
				})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestScanCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := ScanCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{}, nil, func(int, []string) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan cancelled")
	assert.False(t, called)
}

func TestScanCSV_Empty(t *testing.T) {
	n := 0
	err := ScanCSV(context.Background(), strings.NewReader(""), CSVOptions{HasHeader: true}, nil,
		func(int, []string) error {
			n++
			return nil
		})
	require.NoError(t, err)
	assert.Zero(t, n)
}
