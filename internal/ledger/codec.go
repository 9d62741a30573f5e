package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// record is one CSV record together with the exact bytes it was read from
type record struct {
	line   int    // 1-based line the record starts on
	prefix []byte // blank lines skipped before the record
	raw    []byte // source bytes, including the line terminator when present
	fields []string
	dirty  bool

	changed map[int]bool // field indexes set since load
}

// document is a parsed ledger file that can be written back byte for byte
type document struct {
	bom     bool
	header  *record
	rows    []*record
	trailer []byte
}

func parseDocument(data []byte) (*document, error) {
	doc := &document{}
	if bytes.HasPrefix(data, utf8BOM) {
		doc.bom = true
		data = data[len(utf8BOM):]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var prev int64
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		line, _ := r.FieldPos(0)
		end := r.InputOffset()
		segment := data[prev:end]
		skip := 0
		for skip < len(segment) && (segment[skip] == '\n' || segment[skip] == '\r') {
			skip++
		}
		rec := &record{
			line:   line,
			prefix: segment[:skip],
			raw:    segment[skip:],
			fields: fields,
		}
		prev = end

		if doc.header == nil {
			doc.header = rec
			continue
		}
		doc.rows = append(doc.rows, rec)
	}

	if doc.header == nil {
		return nil, errors.New("no header row")
	}
	doc.trailer = data[prev:]
	if len(bytes.TrimSpace(doc.trailer)) > 0 {
		return nil, fmt.Errorf("unterminated record after line %d", doc.lastLine())
	}
	return doc, nil
}

func (d *document) lastLine() int {
	if len(d.rows) == 0 {
		return d.header.line
	}
	return d.rows[len(d.rows)-1].line
}

// encode writes the document, re-encoding only records that were modified
func (d *document) encode(w io.Writer) error {
	var buf bytes.Buffer
	if d.bom {
		buf.Write(utf8BOM)
	}
	buf.Write(d.header.prefix)
	buf.Write(d.header.raw)
	for _, rec := range d.rows {
		buf.Write(rec.prefix)
		if !rec.dirty {
			buf.Write(rec.raw)
			continue
		}
		encoded, err := d.encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("line %d: %w", rec.line, err)
		}
		buf.Write(encoded)
	}
	buf.Write(d.trailer)

	_, err := w.Write(buf.Bytes())
	return err
}

// encodeRecord keeps the source bytes of every field that was not changed and
// encodes only the changed ones
func (d *document) encodeRecord(rec *record) ([]byte, error) {
	cells, term := splitRaw(rec.raw)
	if len(cells) > len(rec.fields) {
		return nil, fmt.Errorf("record has %d source fields but %d values", len(cells), len(rec.fields))
	}

	var buf bytes.Buffer
	for i, field := range rec.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if i < len(cells) && !rec.changed[i] {
			buf.Write(cells[i])
			continue
		}
		buf.WriteString(encodeField(field))
	}
	buf.Write(term)
	return buf.Bytes(), nil
}

// splitRaw cuts one well-formed source record into its field bytes and its
// terminator. Commas inside quotes do not split.
func splitRaw(raw []byte) ([][]byte, []byte) {
	body := raw
	var term []byte
	switch {
	case bytes.HasSuffix(body, []byte("\r\n")):
		term = body[len(body)-2:]
	case bytes.HasSuffix(body, []byte("\n")):
		term = body[len(body)-1:]
	}
	body = body[:len(body)-len(term)]

	var cells [][]byte
	quoted := false
	start := 0
	for i, b := range body {
		switch {
		case b == '"':
			quoted = !quoted
		case b == ',' && !quoted:
			cells = append(cells, body[start:i])
			start = i + 1
		}
	}
	cells = append(cells, body[start:])
	return cells, term
}

func encodeField(field string) string {
	if field == "" || !(field[0] == ' ' || field[0] == '\t' || strings.ContainsAny(field, ",\"\r\n")) {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
