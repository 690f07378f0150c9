// Package writer drains the priority buffer into a delimiter-separated
// file, one row per record after a header row.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/alfredjeanlab/harvest/internal/model"
	"github.com/alfredjeanlab/harvest/internal/pqueue"
)

// DefaultDelimiter separates fields when none is configured.
const DefaultDelimiter = '\t'

// Writer serializes records. The zero value writes tab-separated rows.
type Writer struct {
	Delimiter rune
}

// ParseDelimiter validates a configured delimiter: exactly one character
// that encoding/csv accepts as a separator.
func ParseDelimiter(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

func (w Writer) delimiter() rune {
	if w.Delimiter == 0 {
		return DefaultDelimiter
	}
	return w.Delimiter
}

// WriteTo writes the header and then every record of buf in key order,
// leaving buf empty. It returns the number of data rows written.
func (w Writer) WriteTo(out io.Writer, buf *pqueue.Buffer) (int, error) {
	cw := csv.NewWriter(out)
	cw.Comma = w.delimiter()

	if err := cw.Write(model.Fields()); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	row := make([]string, 7)
	err := buf.Drain(func(r model.Record) error {
		row[0] = strconv.FormatInt(r.EventTimestamp, 10)
		row[1] = strconv.FormatInt(r.OriginCreatedTimestamp, 10)
		row[2] = r.OriginHandle
		row[3] = strconv.FormatInt(r.OriginID, 10)
		row[4] = strconv.FormatInt(r.EventID, 10)
		row[5] = model.CleanBody(r.Body)
		row[6] = r.OriginDisplayName
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", r.EventID, err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush output: %w", err)
	}
	return rows, nil
}

// WriteFile creates or truncates path and writes buf to it. A partly
// written file is left in place on error.
func (w Writer) WriteFile(path string, buf *pqueue.Buffer) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("open output: %w", err)
	}
	n, err := w.WriteTo(f, buf)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return n, err
}
