package narrative

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the structure of a narrative answers YAML file. It holds either a
// single answer set at the top level or a list of sets under "monsters", one
// per monster to generate.
//
// Example:
//
//	dark_secret: "It devoured the village elder's memories."
//	environment: "Flooded salt mines"
//	motivation: "It wants to be remembered"
//	interaction: "Mimics the voices of lost children"
//	terror: "Its victims forget their own names"
//
// or:
//
//	monsters:
//	  - dark_secret: "..."
//	    environment: "..."
//	  - dark_secret: "..."
type File struct {
	Set      `yaml:",inline"`
	Monsters []Set `yaml:"monsters"`
}

// LoadFile reads and parses an answers YAML file from disk.
func LoadFile(path string) ([]Answers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("narrative: open answers file %q: %w", path, err)
	}
	defer f.Close()

	answers, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("narrative: parse answers file %q: %w", path, err)
	}
	return answers, nil
}

// LoadFromReader parses answers YAML from an [io.Reader]. Unknown keys are
// rejected. A file that sets both top-level answers and "monsters" is an error.
func LoadFromReader(r io.Reader) ([]Answers, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("narrative: answers file is empty")
		}
		return nil, fmt.Errorf("narrative: decode answers yaml: %w", err)
	}

	single := f.Set != (Set{})
	switch {
	case single && len(f.Monsters) > 0:
		return nil, fmt.Errorf("narrative: use either top-level answers or a monsters list, not both")
	case single:
		return []Answers{f.Set.Answers()}, nil
	case len(f.Monsters) > 0:
		out := make([]Answers, len(f.Monsters))
		for i, s := range f.Monsters {
			out[i] = s.Answers()
		}
		return out, nil
	default:
		return nil, fmt.Errorf("narrative: answers file contains no answers")
	}
}
