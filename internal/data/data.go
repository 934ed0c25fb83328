// Package data reads and writes observed concentration-time tables.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrInvalidData = errors.New("data: invalid dataset")

// Dataset is a time column plus one or more value columns of one subject.
// Values[i][j] is column j at Times[i]; a missing observation is NaN.
type Dataset struct {
	// Subject is the patient ID, empty when the file has no ID column.
	Subject    string
	TimeName   string
	ValueNames []string
	Times      []float64
	Values     [][]float64
	// Doses are the subject's dose events in file order.
	Doses []Dose
}

// Dose is an amount given at Time, read from the dose column.
type Dose struct {
	Time   float64
	Amount float64
}

// Column returns a copy of value column j.
func (d *Dataset) Column(j int) []float64 {
	out := make([]float64, len(d.Values))
	for i, row := range d.Values {
		out[i] = row[j]
	}
	return out
}

func (d *Dataset) Len() int {
	return len(d.Times)
}

type Options struct {
	// Comma defaults to ','.
	Comma rune
	// TimeColumn defaults to the first column that is not the ID column.
	TimeColumn string
	// ValueColumns defaults to every column but the time, ID and dose columns.
	ValueColumns []string
	// IDColumn groups rows by subject.
	IDColumn string
	// DoseColumn holds dose amounts; empty or NaN cells mean no dose.
	DoseColumn string
	// Subject picks one subject when the file holds several.
	Subject string
}

// Load reads a delimited file with a header row and returns one subject;
// see Read.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: failed to open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// LoadAll reads every subject of a file.
func LoadAll(path string, opts Options) ([]*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: failed to open %s: %w", path, err)
	}
	defer f.Close()

	subjects, err := ReadAll(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return subjects, nil
}

// Read returns the subject named by opts.Subject, or the only subject in
// the file.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	subjects, err := ReadAll(r, opts)
	if err != nil {
		return nil, err
	}
	if opts.Subject != "" {
		for _, ds := range subjects {
			if ds.Subject == opts.Subject {
				return ds, nil
			}
		}
		return nil, fmt.Errorf("%w: no subject %q", ErrInvalidData, opts.Subject)
	}
	if len(subjects) > 1 {
		return nil, fmt.Errorf("%w: file holds %d subjects, select one", ErrInvalidData, len(subjects))
	}
	return subjects[0], nil
}

// ReadAll parses every row, grouped by subject in order of first
// appearance. Blank lines and lines starting with '#' are skipped. Empty
// and NaN value cells are missing observations; rows where every value is
// missing are dropped, keeping any dose they carry. Per subject, times
// must be non-negative and never decrease, and observation times must be
// strictly increasing.
func ReadAll(r io.Reader, opts Options) ([]*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: missing header", ErrInvalidData)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	cols, err := selectColumns(header, opts)
	if err != nil {
		return nil, err
	}

	valueNames := make([]string, len(cols.values))
	for k, j := range cols.values {
		valueNames[k] = header[j]
	}

	var subjects []*Dataset
	byID := make(map[string]*Dataset)
	lastTime := make(map[string]float64)

	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}

		id := ""
		if cols.id >= 0 {
			id = strings.TrimSpace(record[cols.id])
			if id == "" {
				return nil, fmt.Errorf("%w: row %d: empty subject ID", ErrInvalidData, line)
			}
		}
		ds, ok := byID[id]
		if !ok {
			ds = &Dataset{Subject: id, TimeName: header[cols.time], ValueNames: valueNames}
			byID[id] = ds
			subjects = append(subjects, ds)
		}

		tm, err := parseCell(record[cols.time])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d, column %q: %v", ErrInvalidData, line, ds.TimeName, err)
		}
		if tm < 0 || math.IsNaN(tm) || math.IsInf(tm, 0) {
			return nil, fmt.Errorf("%w: row %d: time %g must be finite and non-negative", ErrInvalidData, line, tm)
		}
		if prev, seen := lastTime[id]; seen && tm < prev {
			return nil, fmt.Errorf("%w: row %d: time %g decreases", ErrInvalidData, line, tm)
		}
		lastTime[id] = tm

		if cols.dose >= 0 {
			amount, missing, err := parseValue(record[cols.dose])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d, column %q: %v", ErrInvalidData, line, header[cols.dose], err)
			}
			if !missing {
				if amount < 0 {
					return nil, fmt.Errorf("%w: row %d: dose %g is negative", ErrInvalidData, line, amount)
				}
				ds.Doses = append(ds.Doses, Dose{Time: tm, Amount: amount})
			}
		}

		row := make([]float64, len(cols.values))
		observed := false
		for k, j := range cols.values {
			v, missing, err := parseValue(record[j])
			if err != nil {
				return nil, fmt.Errorf("%w: row %d, column %q: %v", ErrInvalidData, line, header[j], err)
			}
			row[k] = v
			observed = observed || !missing
		}
		if !observed {
			continue
		}

		if n := len(ds.Times); n > 0 && tm <= ds.Times[n-1] {
			return nil, fmt.Errorf("%w: row %d: time %g does not increase", ErrInvalidData, line, tm)
		}
		ds.Times = append(ds.Times, tm)
		ds.Values = append(ds.Values, row)
	}

	if len(subjects) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrInvalidData)
	}
	for _, ds := range subjects {
		if len(ds.Times) == 0 {
			if ds.Subject == "" {
				return nil, fmt.Errorf("%w: no observations", ErrInvalidData)
			}
			return nil, fmt.Errorf("%w: subject %q has no observations", ErrInvalidData, ds.Subject)
		}
	}
	return subjects, nil
}

type columns struct {
	time   int
	id     int
	dose   int
	values []int
}

func selectColumns(header []string, opts Options) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; dup {
			return columns{}, fmt.Errorf("%w: duplicate column %q", ErrInvalidData, h)
		}
		index[h] = i
	}

	lookup := func(name, role string) (int, error) {
		if name == "" {
			return -1, nil
		}
		i, ok := index[name]
		if !ok {
			return -1, fmt.Errorf("%w: no %s column %q", ErrInvalidData, role, name)
		}
		return i, nil
	}

	cols := columns{}
	var err error
	if cols.id, err = lookup(opts.IDColumn, "ID"); err != nil {
		return columns{}, err
	}
	if cols.dose, err = lookup(opts.DoseColumn, "dose"); err != nil {
		return columns{}, err
	}
	if cols.time, err = lookup(opts.TimeColumn, "time"); err != nil {
		return columns{}, err
	}
	if cols.time < 0 {
		cols.time = 0
		if cols.id == 0 {
			cols.time = 1
		}
	}
	if cols.time >= len(header) || cols.time == cols.id || cols.time == cols.dose {
		return columns{}, fmt.Errorf("%w: no time column", ErrInvalidData)
	}
	if cols.id >= 0 && cols.id == cols.dose {
		return columns{}, fmt.Errorf("%w: column %q cannot be both ID and dose", ErrInvalidData, header[cols.id])
	}

	reserved := func(i int) bool {
		return i == cols.time || i == cols.id || i == cols.dose
	}
	if len(opts.ValueColumns) > 0 {
		for _, name := range opts.ValueColumns {
			i, ok := index[name]
			if !ok {
				return columns{}, fmt.Errorf("%w: no column %q", ErrInvalidData, name)
			}
			if reserved(i) {
				return columns{}, fmt.Errorf("%w: column %q is the time, ID or dose column", ErrInvalidData, name)
			}
			cols.values = append(cols.values, i)
		}
	} else {
		for i := range header {
			if !reserved(i) {
				cols.values = append(cols.values, i)
			}
		}
	}

	if len(cols.values) == 0 {
		return columns{}, fmt.Errorf("%w: no value columns", ErrInvalidData)
	}
	return cols, nil
}

func parseCell(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseValue reads an observation or dose cell. Empty and NaN cells are
// missing; infinite values are rejected.
func parseValue(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return v, true, nil
	}
	if math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("value %q is not finite", s)
	}
	return v, false, nil
}

// Write stores ds as comma-separated text with a header row.
func Write(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Encode(f, ds); err != nil {
		return err
	}
	return f.Close()
}

func Encode(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)

	header := append([]string{ds.TimeName}, ds.ValueNames...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, tm := range ds.Times {
		row := []string{strconv.FormatFloat(tm, 'g', -1, 64)}
		for _, v := range ds.Values[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
