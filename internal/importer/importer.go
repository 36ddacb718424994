// Package importer reads game definitions uploaded by organizers.
package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"questbot/internal/quest"

	"gopkg.in/yaml.v3"
)

// MaxSize bounds the size of an uploaded definition.
const MaxSize = 1 << 20

// ErrMissingStart is returned when a definition has no start time. Parse
// still returns the rest of the definition alongside it.
var ErrMissingStart = fmt.Errorf("%w: missing start", quest.ErrInvalidGame)

// StartLayouts are the accepted start time formats, tried in order. Layouts
// without a zone are read in the location passed to Parse.
var StartLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type document struct {
	Name   string          `yaml:"name"`
	Start  string          `yaml:"start"`
	Levels []levelDocument `yaml:"levels"`
}

type levelDocument struct {
	Name     string         `yaml:"name"`
	Task     string         `yaml:"task"`
	Duration int            `yaml:"duration"`
	ToPass   int            `yaml:"to_pass"`
	Codes    []codeDocument `yaml:"codes"`
}

type codeDocument struct {
	Code  string `yaml:"code"`
	Bonus int    `yaml:"bonus"`
}

// UnmarshalYAML accepts a code either as a bare scalar or as a mapping with
// code and bonus keys.
func (c *codeDocument) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Code = node.Value
		return nil
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch key := node.Content[i].Value; key {
			case "code", "bonus":
			default:
				return fmt.Errorf("%w: unknown code key %q", quest.ErrInvalidGame, key)
			}
		}
	}
	type plain codeDocument
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = codeDocument(p)
	return nil
}

// Parse decodes a YAML game definition from r.
func Parse(r io.Reader, loc *time.Location) (quest.GameDefinition, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return quest.GameDefinition{}, fmt.Errorf("error reading definition: %w", err)
	}
	if len(data) > MaxSize {
		return quest.GameDefinition{}, fmt.Errorf("%w: definition exceeds %d bytes", quest.ErrInvalidGame, MaxSize)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return quest.GameDefinition{}, fmt.Errorf("%w: empty definition", quest.ErrInvalidGame)
		}
		return quest.GameDefinition{}, fmt.Errorf("%w: %v", quest.ErrInvalidGame, err)
	}

	def := quest.GameDefinition{
		Name:   doc.Name,
		Levels: make([]quest.LevelDefinition, 0, len(doc.Levels)),
	}
	for _, ld := range doc.Levels {
		level := quest.LevelDefinition{
			Name:     ld.Name,
			Task:     ld.Task,
			Duration: ld.Duration,
			ToPass:   ld.ToPass,
		}
		for _, cd := range ld.Codes {
			level.Codes = append(level.Codes, quest.CodeDefinition{Value: cd.Code, Bonus: cd.Bonus})
		}
		def.Levels = append(def.Levels, level)
	}

	start, err := ParseStart(doc.Start, loc)
	if err != nil {
		return def, err
	}
	def.Start = start
	return def, nil
}

// ParseStart reads a start time in one of StartLayouts.
func ParseStart(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingStart
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range StartLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse start %q", quest.ErrInvalidGame, s)
}
