package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter  rune   // default ','
	Encoding   string // WHATWG label, e.g. "windows-1252"; empty means UTF-8
	HasHeader  bool   // first row is the header
	Comment    rune   // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeReader converts r from the named encoding to UTF-8 and drops a
// leading UTF-8 byte order mark.
func DecodeReader(r io.Reader, encoding string) (io.Reader, error) {
	label := strings.ToLower(strings.TrimSpace(encoding))
	if label != "" && label != "utf-8" && label != "utf8" {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, eris.Wrapf(err, "csv: unsupported encoding %q", encoding)
		}
		r = enc.NewDecoder().Reader(r)
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br, nil
}

func newCSVReader(r io.Reader, opts CSVOptions) (*csv.Reader, error) {
	dec, err := DecodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(dec)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1
	return reader, nil
}

// ReadCSV reads every row of r. The header row, when HasHeader is set, is
// returned separately.
func ReadCSV(r io.Reader, opts CSVOptions) (header []string, rows [][]string, err error) {
	err = ScanCSV(context.Background(), r, opts,
		func(h []string) error {
			header = h
			return nil
		},
		func(_ int, row []string) error {
			rows = append(rows, row)
			return nil
		})
	return header, rows, err
}

// ScanCSV streams r into row one record at a time, so large long-format
// tables are never held in memory as raw text. With HasHeader set the first
// record goes to header (which may be nil) instead; an error from header or
// row stops the scan and is returned as is. line is the record's line number
// in the input. ctx is checked between records.
func ScanCSV(ctx context.Context, r io.Reader, opts CSVOptions,
	header func([]string) error, row func(line int, record []string) error) error {
	reader, err := newCSVReader(r, opts)
	if err != nil {
		return err
	}

	first := opts.HasHeader
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "csv: scan cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: read row")
		}
		if opts.TrimSpace {
			trimFields(record)
		}
		if first {
			first = false
			if header != nil {
				if err := header(record); err != nil {
					return err
				}
			}
			continue
		}
		line, _ := reader.FieldPos(0)
		if err := row(line, record); err != nil {
			return err
		}
	}
}

func trimFields(record []string) {
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
	}
}
