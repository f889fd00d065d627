// Package sequence parses FASTA text into named regions and finds forward and
// reverse-complement occurrences of a query within a region.
//
// Everything in this package is pure: no I/O, no logging, no shared state.
package sequence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
)

// Record is one named region of a genome.
type Record struct {
	Name        string
	Description string
	Sequence    string
}

// Document is the ordered set of records produced by one Parse call.
type Document struct {
	records []Record
	index   map[string]int
}

// Parse reads FASTA text. A header line starts with '>' and its first
// whitespace-delimited token is the record name. Sequence lines are trimmed
// and concatenated until the next header. Lines before the first header are
// ignored. A repeated name replaces the earlier sequence but keeps its
// position.
func Parse(text string) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", apperrors.ErrParse)
	}

	doc := &Document{index: make(map[string]int)}
	var (
		current *Record
		seq     strings.Builder
		lineNo  int
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Sequence = seq.String()
		doc.add(*current)
		seq.Reset()
	}

	for line := range strings.Lines(text) {
		lineNo++
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] == '>' {
			flush()
			name, desc := splitHeader(line[1:])
			if name == "" {
				return nil, fmt.Errorf("%w: header without a name on line %d", apperrors.ErrParse, lineNo)
			}
			current = &Record{Name: name, Description: desc}
			continue
		}
		if current != nil {
			seq.WriteString(line)
		}
	}
	flush()

	if len(doc.records) == 0 {
		return nil, fmt.Errorf("%w: no header line found", apperrors.ErrParse)
	}
	return doc, nil
}

func splitHeader(header string) (name, desc string) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", ""
	}
	name = fields[0]
	rest := strings.TrimSpace(header)
	desc = strings.TrimSpace(rest[len(name):])
	return name, desc
}

func (d *Document) add(r Record) {
	if i, ok := d.index[r.Name]; ok {
		d.records[i] = r
		return
	}
	d.index[r.Name] = len(d.records)
	d.records = append(d.records, r)
}

// Len returns the number of distinct regions.
func (d *Document) Len() int { return len(d.records) }

// Names returns region names in order of first appearance.
func (d *Document) Names() []string {
	names := make([]string, len(d.records))
	for i, r := range d.records {
		names[i] = r.Name
	}
	return names
}

// Records returns a copy of the records in document order.
func (d *Document) Records() []Record {
	return append([]Record(nil), d.records...)
}

// Get looks up a region by name.
func (d *Document) Get(name string) (Record, bool) {
	i, ok := d.index[name]
	if !ok {
		return Record{}, false
	}
	return d.records[i], true
}

// TotalBases sums the sequence lengths of every region.
func (d *Document) TotalBases() int {
	total := 0
	for _, r := range d.records {
		total += len(r.Sequence)
	}
	return total
}

// Slice returns sequence[start:end+1] of the named region. Both bounds are
// 0-based and inclusive; an end past the sequence is clamped.
func (d *Document) Slice(name string, start, end int) (string, error) {
	if start < 0 || end < 0 {
		return "", fmt.Errorf("%w: start and end must be non-negative", apperrors.ErrInvalidInput)
	}
	if end < start {
		return "", fmt.Errorf("%w: end %d is before start %d", apperrors.ErrInvalidInput, end, start)
	}
	rec, ok := d.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrRegionNotFound, name)
	}
	n := len(rec.Sequence)
	if start >= n {
		return "", nil
	}
	return rec.Sequence[start:min(end+1, n)], nil
}

// MarshalJSON encodes the document as an object of name to sequence, keeping
// document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range d.records {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(r.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.Sequence)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Format renders the document back to FASTA with the given line width.
// A width <= 0 writes each sequence on a single line.
func (d *Document) Format(width int) string {
	var b strings.Builder
	for _, r := range d.records {
		b.WriteByte('>')
		b.WriteString(r.Name)
		if r.Description != "" {
			b.WriteByte(' ')
			b.WriteString(r.Description)
		}
		b.WriteByte('\n')
		s := r.Sequence
		if width <= 0 {
			if s != "" {
				b.WriteString(s)
				b.WriteByte('\n')
			}
			continue
		}
		for len(s) > 0 {
			n := min(width, len(s))
			b.WriteString(s[:n])
			b.WriteByte('\n')
			s = s[n:]
		}
	}
	return b.String()
}
