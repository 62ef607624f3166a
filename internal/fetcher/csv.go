package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	// HasHeader sends the first row to HeaderCh instead of the row channel.
	HasHeader  bool
	HeaderCh   chan<- []string
	Comment    rune
	LazyQuotes bool
	TrimSpace  bool
	// Charset names the input encoding (WHATWG label). Empty means UTF-8.
	Charset string
}

// StreamCSV reads r and sends rows to the returned channel. Both channels
// are closed when reading completes; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		decoded, err := DecodeCharset(r, opts.Charset)
		if err != nil {
			errCh <- err
			return
		}

		reader := csv.NewReader(decoded)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		send := func(ch chan<- []string, rec []string) bool {
			select {
			case ch <- rec:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return false
			}
		}

		for first := true; ; first = false {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}
			if first && opts.HasHeader {
				if opts.HeaderCh != nil && !send(opts.HeaderCh, record) {
					return
				}
				continue
			}
			if !send(rowCh, record) {
				return
			}
		}
	}()

	return rowCh, errCh
}
