package repository

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"time"

	"specscrape/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVRepository appends product rows to a category CSV. The header is the
// union of every column seen: rows that fit the current header are appended
// and padded with empty cells, a row with new columns rewrites the whole
// file under a widened, sorted header.
type CSVRepository struct {
	path    string
	header  []string
	columns map[string]int
	rows    int
	urls    map[string]struct{}
	// the existing file does not end with a newline
	needsNewline bool
}

func OpenCSV(path string) (*CSVRepository, error) {
	r := &CSVRepository{
		path:    path,
		columns: map[string]int{},
		urls:    map[string]struct{}{},
	}

	header, records, err := readCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv %s: %w", ErrPersistence, path, err)
	}
	r.setHeader(header)
	for _, rec := range records {
		r.track(rec)
	}

	if len(header) > 0 {
		last, err := lastByte(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read csv %s: %w", ErrPersistence, path, err)
		}
		r.needsNewline = last != '\n'
	}
	return r, nil
}

func (r *CSVRepository) Path() string {
	return r.path
}

func (r *CSVRepository) Header() []string {
	out := make([]string, len(r.header))
	copy(out, r.header)
	return out
}

// Rows is the number of data rows in the file.
func (r *CSVRepository) Rows() int {
	return r.rows
}

// URLs returns the values of the URL column, sorted.
func (r *CSVRepository) URLs() []string {
	out := make([]string, 0, len(r.urls))
	for u := range r.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Rotate moves the current file aside as <path>.bak-<timestamp> so the next
// row starts a new file. It returns the backup path, or "" if there was no file.
func (r *CSVRepository) Rotate(now time.Time) (string, error) {
	backup := r.path + ".bak-" + now.UTC().Format("20060102T150405Z")
	if err := os.Rename(r.path, backup); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			backup = ""
		} else {
			return "", fmt.Errorf("%w: rotate csv %s: %w", ErrPersistence, r.path, err)
		}
	}
	r.setHeader(nil)
	r.rows = 0
	r.urls = map[string]struct{}{}
	r.needsNewline = false
	return backup, nil
}

func (r *CSVRepository) AppendRow(row model.FlatRow) error {
	widen := len(r.header) == 0
	for k := range row {
		if _, ok := r.columns[k]; !ok {
			widen = true
			break
		}
	}

	var err error
	if widen {
		err = r.rewrite(row)
	} else {
		err = r.append(row)
	}
	if err != nil {
		return fmt.Errorf("%w: write csv %s: %w", ErrPersistence, r.path, err)
	}
	return nil
}

func (r *CSVRepository) append(row model.FlatRow) error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if r.needsNewline {
		bw.WriteByte('\n')
	}
	rec := r.record(row)
	w := csv.NewWriter(bw)
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	r.needsNewline = false
	r.track(rec)
	return nil
}

func (r *CSVRepository) rewrite(row model.FlatRow) error {
	oldHeader := r.header
	_, records, err := readCSV(r.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	union := make(map[string]struct{}, len(oldHeader)+len(row))
	for _, c := range oldHeader {
		union[c] = struct{}{}
	}
	for c := range row {
		union[c] = struct{}{}
	}
	header := make([]string, 0, len(union))
	for c := range union {
		header = append(header, c)
	}
	sort.Strings(header)
	r.setHeader(header)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		out := make([]string, len(header))
		for i, c := range oldHeader {
			if i < len(rec) {
				out[r.columns[c]] = rec[i]
			}
		}
		if err := w.Write(out); err != nil {
			return err
		}
	}
	rec := r.record(row)
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := writeFileAtomic(r.path, buf.Bytes()); err != nil {
		return err
	}

	r.needsNewline = false
	r.track(rec)
	return nil
}

func (r *CSVRepository) setHeader(header []string) {
	r.header = header
	r.columns = make(map[string]int, len(header))
	for i, c := range header {
		if _, dup := r.columns[c]; !dup {
			r.columns[c] = i
		}
	}
}

// record lays a row out in header order.
func (r *CSVRepository) record(row model.FlatRow) []string {
	rec := make([]string, len(r.header))
	for i, c := range r.header {
		rec[i] = row[c]
	}
	return rec
}

func (r *CSVRepository) track(rec []string) {
	r.rows++
	if i, ok := r.columns[model.ColURL]; ok && i < len(rec) && rec[i] != "" {
		r.urls[rec[i]] = struct{}{}
	}
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if first, _ := br.Peek(3); bytes.Equal(first, utf8BOM) {
		br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return header, records, nil
}

func lastByte(path string) (byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Size() == 0 {
		return '\n', nil
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, fi.Size()-1); err != nil {
		return 0, err
	}
	return b[0], nil
}
