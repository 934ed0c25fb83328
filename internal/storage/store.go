// Package storage keeps simulation and calibration runs on disk, one
// directory per run holding metadata.json and outputs.csv.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/pkpdsim/internal/data"
)

const (
	KindSimulate = "simulate"
	KindFit      = "fit"

	metadataFile = "metadata.json"
	outputsFile  = "outputs.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Model      string    `json:"model"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Integrator string    `json:"integrator"`

	// Names and Parameters describe the fit vector the outputs were
	// simulated with.
	Names      []string  `json:"names"`
	Parameters []float64 `json:"parameters"`

	// Metrics holds exposure metrics keyed by "output/metric".
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Fit     *FitRecord         `json:"fit,omitempty"`
}

type FitRecord struct {
	DataFile    string  `json:"data_file"`
	Subject     string  `json:"subject,omitempty"`
	Optimiser   string  `json:"optimiser"`
	Objective   string  `json:"objective"`
	Score       float64 `json:"score"`
	Evaluations int     `json:"evaluations"`
	Status      string  `json:"status"`
	Seconds     float64 `json:"seconds"`
}

// Save writes a new run and returns its ID. ID and Timestamp are assigned
// here.
func (s *Store) Save(meta RunMetadata, outputs *data.Dataset) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%s_%d", meta.Kind, slug(meta.Model), now.UnixNano())
	meta.Timestamp = now
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if outputs != nil {
		if err := data.Write(filepath.Join(runDir, outputsFile), outputs); err != nil {
			return "", err
		}
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	return &meta, nil
}

func (s *Store) LoadOutputs(runID string) (*data.Dataset, error) {
	return data.Load(filepath.Join(s.baseDir, runID, outputsFile), data.Options{})
}

func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "model"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, name)
}
