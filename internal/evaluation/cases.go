package evaluation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"

	"gopkg.in/yaml.v3"
)

type caseFile struct {
	Cases []struct {
		ID       string `yaml:"id"`
		Query    string `yaml:"query"`
		Expected string `yaml:"expected"`
	} `yaml:"cases"`
}

// ParseTestCases reads a YAML document of the form
//
//	cases:
//	  - id: volatility
//	    query: "one minute I'm fine, the next I'm furious"
//	    expected: B
//
// Expected accepts A, B, Unknown and the CBT/DBT aliases. Cases without an id
// are numbered case-1, case-2, ...
func ParseTestCases(r io.Reader) ([]model.TestCase, error) {
	var file caseFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode test cases: %w", err)
	}
	if len(file.Cases) == 0 {
		return nil, common.ErrNoTestCases
	}

	cases := make([]model.TestCase, 0, len(file.Cases))
	seen := make(map[string]bool, len(file.Cases))
	for i, c := range file.Cases {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = fmt.Sprintf("case-%d", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate test case id %q", common.ErrInvalidConfig, id)
		}
		seen[id] = true

		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("%w: test case %s has no query", common.ErrInvalidConfig, id)
		}
		expected, err := model.ParseCategory(c.Expected)
		if err != nil {
			return nil, fmt.Errorf("%w: test case %s: %w", common.ErrInvalidConfig, id, err)
		}
		cases = append(cases, model.TestCase{ID: id, Query: c.Query, Expected: expected})
	}
	return cases, nil
}

// LoadTestCases reads test cases from a YAML file.
func LoadTestCases(path string) ([]model.TestCase, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied test file
	if err != nil {
		return nil, fmt.Errorf("failed to open test cases: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseTestCases(f)
}

// ParseParamGrid reads a YAML grid such as
//
//	similarity_threshold: [0.4, 0.5, 0.6]
//	min_confidence: [0.5, 0.6]
func ParseParamGrid(r io.Reader) (ParamGrid, error) {
	var grid ParamGrid
	if err := yaml.NewDecoder(r).Decode(&grid); err != nil && !errors.Is(err, io.EOF) {
		return ParamGrid{}, fmt.Errorf("failed to decode parameter grid: %w", err)
	}
	if grid.Empty() {
		return ParamGrid{}, common.ErrEmptyParamGrid
	}
	return grid, nil
}

// LoadParamGrid reads a parameter grid from a YAML file.
func LoadParamGrid(path string) (ParamGrid, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied grid file
	if err != nil {
		return ParamGrid{}, fmt.Errorf("failed to open parameter grid: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseParamGrid(f)
}
