// Package fasta reads and writes FASTA files.
package fasta

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one FASTA entry. Header excludes the leading '>'.
type Record struct {
	Header   string
	Sequence string
}

// ID returns the header up to the first whitespace.
func (r Record) ID() string {
	if i := strings.IndexAny(r.Header, " \t"); i >= 0 {
		return r.Header[:i]
	}
	return r.Header
}

// Fields splits the header on sep.
func (r Record) Fields(sep string) []string {
	return strings.Split(r.Header, sep)
}

// Reader streams records from FASTA text.
type Reader struct {
	scanner *bufio.Scanner
	header  string
	started bool
	line    int
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long sequences
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024) // 10MB max line
	return &Reader{scanner: scanner}
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var seq strings.Builder
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimRight(r.scanner.Text(), "\r")

		if strings.HasPrefix(line, ">") {
			if !r.started {
				r.started = true
				r.header = line[1:]
				continue
			}
			rec := Record{Header: r.header, Sequence: seq.String()}
			r.header = line[1:]
			return rec, nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !r.started {
			return Record{}, fmt.Errorf("line %d: sequence data before first header", r.line)
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("scan FASTA: %w", err)
	}
	if !r.started {
		return Record{}, io.EOF
	}
	r.started = false
	return Record{Header: r.header, Sequence: seq.String()}, nil
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([]Record, error) {
	fr := NewReader(r)
	var out []Record
	for {
		rec, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Open opens a FASTA file, transparently decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// ReadFile reads every record of the file at path.
func ReadFile(path string) ([]Record, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadAll(rc)
}

// Writer writes records, wrapping sequence lines at a fixed width.
type Writer struct {
	w     *bufio.Writer
	width int
}

// NewWriter creates a writer. A width of zero or less writes each sequence
// on a single line.
func NewWriter(w io.Writer, width int) *Writer {
	return &Writer{w: bufio.NewWriter(w), width: width}
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	if _, err := fmt.Fprintf(w.w, ">%s\n", rec.Header); err != nil {
		return fmt.Errorf("write FASTA header: %w", err)
	}
	s := rec.Sequence
	for len(s) > 0 {
		n := len(s)
		if w.width > 0 && n > w.width {
			n = w.width
		}
		if _, err := w.w.WriteString(s[:n]); err != nil {
			return fmt.Errorf("write FASTA sequence: %w", err)
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write FASTA sequence: %w", err)
		}
		s = s[n:]
	}
	return nil
}

// Flush writes any buffered data.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
