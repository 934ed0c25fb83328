package data

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `time_h,concentration_ng_mL
# synthesised
0,2.5
1, 1.52

2.5,0.71
`

func TestRead(t *testing.T) {
	ds, err := Read(strings.NewReader(sample), Options{})
	require.NoError(t, err)

	assert.Equal(t, "time_h", ds.TimeName)
	assert.Equal(t, []string{"concentration_ng_mL"}, ds.ValueNames)
	assert.Equal(t, []float64{0, 1, 2.5}, ds.Times)
	assert.Equal(t, []float64{2.5, 1.52, 0.71}, ds.Column(0))
	assert.Equal(t, 3, ds.Len())
}

func TestReadSelectsColumns(t *testing.T) {
	body := "id;C_c;t;C_p\n1;5;0;0\n2;4;1;0.5\n"
	ds, err := Read(strings.NewReader(body), Options{
		Comma:        ';',
		TimeColumn:   "t",
		ValueColumns: []string{"C_c", "C_p"},
	})
	require.NoError(t, err)

	assert.Equal(t, "t", ds.TimeName)
	assert.Equal(t, []string{"C_c", "C_p"}, ds.ValueNames)
	assert.Equal(t, [][]float64{{5, 0}, {4, 0.5}}, ds.Values)
}

func TestReadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		opts Options
	}{
		{"empty", "", Options{}},
		{"header only", "t,c\n", Options{}},
		{"decreasing", "t,c\n0,1\n2,1\n1,1\n", Options{}},
		{"repeated time", "t,c\n0,1\n0,2\n", Options{}},
		{"negative time", "t,c\n-1,1\n", Options{}},
		{"not a number", "t,c\n0,abc\n", Options{}},
		{"ragged", "t,c\n0,1,2\n", Options{}},
		{"single column", "t\n0\n", Options{}},
		{"unknown time column", "t,c\n0,1\n", Options{TimeColumn: "x"}},
		{"unknown value column", "t,c\n0,1\n", Options{ValueColumns: []string{"x"}}},
		{"time as value", "t,c\n0,1\n", Options{ValueColumns: []string{"t"}}},
		{"duplicate header", "t,c,c\n0,1,1\n", Options{}},
		{"infinite value", "t,c\n0,Inf\n", Options{}},
		{"only missing values", "t,c\n0,NaN\n1,\n", Options{}},
		{"unknown ID column", "t,c\n0,1\n", Options{IDColumn: "id"}},
		{"unknown dose column", "t,c\n0,1\n", Options{DoseColumn: "dose"}},
		{"negative dose", "t,c,dose\n0,1,-5\n", Options{DoseColumn: "dose"}},
		{"empty subject ID", "id,t,c\n,0,1\n", Options{IDColumn: "id"}},
		{"several subjects", "id,t,c\n1,0,1\n2,0,1\n", Options{IDColumn: "id"}},
		{"unknown subject", "id,t,c\n1,0,1\n", Options{IDColumn: "id", Subject: "7"}},
		{"value is dose column", "t,c,dose\n0,1,1\n", Options{DoseColumn: "dose", ValueColumns: []string{"dose"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.body), tt.opts)
			assert.ErrorIs(t, err, ErrInvalidData)
		})
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	ds := &Dataset{
		TimeName:   "time_h",
		ValueNames: []string{"C"},
		Times:      []float64{0, 0.25, 24},
		Values:     [][]float64{{1.5}, {1.25}, {0.001}},
	}

	require.NoError(t, Write(path, ds))

	got, err := Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, ds, got)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.csv"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Dataset{TimeName: "t", ValueNames: []string{"a", "b"}, Times: []float64{1}, Values: [][]float64{{2, 3}}})
	require.NoError(t, err)
	assert.Equal(t, "t,a,b\n1,2,3\n", buf.String())
}

func TestReadDropsMissingRows(t *testing.T) {
	body := "t,central,peripheral\n0,2,NaN\n1,NaN,\n2,1,0.5\n3,,0.25\n"
	ds, err := Read(strings.NewReader(body), Options{})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 2, 3}, ds.Times)
	assert.True(t, math.IsNaN(ds.Values[0][1]))
	assert.True(t, math.IsNaN(ds.Values[2][0]))
	assert.Equal(t, 0.25, ds.Values[2][1])
}

const subjects = `patient,time,C,dose
1,0,,10
1,0.5,4.1,
1,2,2.2,NaN
1,2,,5
1,4,3.0,
2,0,,20
2,1,7.5,
`

func TestReadSubjectsAndDoses(t *testing.T) {
	all, err := ReadAll(strings.NewReader(subjects), Options{IDColumn: "patient", DoseColumn: "dose"})
	require.NoError(t, err)
	require.Len(t, all, 2)

	first := all[0]
	assert.Equal(t, "1", first.Subject)
	assert.Equal(t, "time", first.TimeName)
	assert.Equal(t, []string{"C"}, first.ValueNames)
	assert.Equal(t, []float64{0.5, 2, 4}, first.Times)
	assert.Equal(t, []float64{4.1, 2.2, 3.0}, first.Column(0))
	assert.Equal(t, []Dose{{Time: 0, Amount: 10}, {Time: 2, Amount: 5}}, first.Doses)

	second, err := Read(strings.NewReader(subjects), Options{IDColumn: "patient", DoseColumn: "dose", Subject: "2"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, second.Times)
	assert.Equal(t, []Dose{{Time: 0, Amount: 20}}, second.Doses)
}

func TestReadSubjectTimesRestart(t *testing.T) {
	body := "id,t,c\na,0,1\na,1,0.5\nb,0,2\nb,1,1\na,2,0.25\n"
	all, err := ReadAll(strings.NewReader(body), Options{IDColumn: "id"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []float64{0, 1, 2}, all[0].Times)
	assert.Equal(t, []float64{0, 1}, all[1].Times)

	_, err = ReadAll(strings.NewReader("id,t,c\na,1,1\na,0,1\n"), Options{IDColumn: "id"})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestLoadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.csv")
	require.NoError(t, os.WriteFile(path, []byte(subjects), 0644))

	all, err := LoadAll(path, Options{IDColumn: "patient", DoseColumn: "dose"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
