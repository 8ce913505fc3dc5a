package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ligustah/pagepress/internal/job"
)

// ManifestEntry is one document in a batch manifest.
type ManifestEntry struct {
	Token          string `yaml:"token" json:"token"`
	StartPage      int    `yaml:"start_page" json:"start_page"`
	EndPage        int    `yaml:"end_page" json:"end_page"`
	OutputFilename string `yaml:"output_filename" json:"output_filename"`
}

// LoadManifest reads a list of jobs from a YAML or JSON file. Output names
// get a .pdf extension when they lack one. Every entry is validated.
func LoadManifest(path string) ([]job.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	// JSON is valid YAML, so one decoder covers both.
	var entries []ManifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("manifest: no jobs")
	}

	specs := make([]job.Spec, 0, len(entries))
	for i, e := range entries {
		spec := job.Spec{
			Token:     strings.TrimSpace(e.Token),
			StartPage: e.StartPage,
			EndPage:   e.EndPage,
			Output:    withPDFExt(strings.TrimSpace(e.OutputFilename)),
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i+1, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// SaveManifest writes specs to path, as JSON when path ends in .json and as
// YAML otherwise.
func SaveManifest(path string, specs []job.Spec) error {
	entries := make([]ManifestEntry, len(specs))
	for i, s := range specs {
		entries[i] = ManifestEntry{
			Token:          s.Token,
			StartPage:      s.StartPage,
			EndPage:        s.EndPage,
			OutputFilename: s.Output,
		}
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(entries, "", "  ")
	} else {
		data, err = yaml.Marshal(entries)
	}
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func withPDFExt(name string) string {
	if name == "" || strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name
	}
	return name + ".pdf"
}
