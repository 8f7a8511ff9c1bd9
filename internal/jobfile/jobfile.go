// Package jobfile reads batches of job requests from YAML.
package jobfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"ffqueue/internal/model"
)

var ErrNoJobs = errors.New("job file contains no jobs")

type File struct {
	Jobs []model.Request `yaml:"jobs"`
}

func Load(path string) ([]model.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	reqs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reqs, nil
}

// Parse decodes a job document. Entries must name a command; everything
// else is passed through as given.
func Parse(data []byte) ([]model.Request, error) {
	var doc File
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	if len(doc.Jobs) == 0 {
		return nil, ErrNoJobs
	}
	out := make([]model.Request, 0, len(doc.Jobs))
	for i, req := range doc.Jobs {
		req.Command = strings.TrimSpace(req.Command)
		if req.Command == "" {
			return nil, fmt.Errorf("job %d (%q): command is required", i+1, req.Name)
		}
		if req.Args == nil {
			req.Args = []string{}
		}
		out = append(out, req)
	}
	return out, nil
}
