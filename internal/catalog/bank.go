// Package catalog loads the read-only question bank: from YAML files for
// seeding, and from the store (optionally through Redis) at request time.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ashureev/selve/internal/domain"
	"gopkg.in/yaml.v3"
)

// bankFile is the on-disk YAML layout of a question bank.
type bankFile struct {
	Sections []struct {
		ID    string `yaml:"id"`
		Order int    `yaml:"order"`
		Title string `yaml:"title"`
	} `yaml:"sections"`
	Questions []struct {
		ID       string         `yaml:"id"`
		Order    int            `yaml:"order"`
		Section  string         `yaml:"section"`
		Type     string         `yaml:"type"`
		Text     string         `yaml:"text"`
		Required bool           `yaml:"required"`
		Config   map[string]any `yaml:"config"`
	} `yaml:"questions"`
	Checkpoints []struct {
		ID      string `yaml:"id"`
		Section string `yaml:"section"`
		Order   int    `yaml:"order"`
		Title   string `yaml:"title"`
		Message string `yaml:"message"`
	} `yaml:"checkpoints"`
}

// LoadFile reads and validates a YAML question bank.
func LoadFile(path string) (*domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML question bank.
func Parse(data []byte) (*domain.Catalog, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	c := &domain.Catalog{
		Sections:    make([]*domain.Section, 0, len(f.Sections)),
		Questions:   make([]*domain.Question, 0, len(f.Questions)),
		Checkpoints: make([]*domain.Checkpoint, 0, len(f.Checkpoints)),
	}
	for _, s := range f.Sections {
		c.Sections = append(c.Sections, &domain.Section{ID: s.ID, Order: s.Order, Title: s.Title})
	}
	for _, q := range f.Questions {
		var config json.RawMessage
		if q.Config != nil {
			raw, err := json.Marshal(q.Config)
			if err != nil {
				return nil, fmt.Errorf("question %s: encode config: %w", q.ID, err)
			}
			config = raw
		}
		c.Questions = append(c.Questions, &domain.Question{
			ID:        q.ID,
			Order:     q.Order,
			SectionID: q.Section,
			Type:      q.Type,
			Text:      q.Text,
			Config:    config,
			Required:  q.Required,
		})
	}
	for _, cp := range f.Checkpoints {
		c.Checkpoints = append(c.Checkpoints, &domain.Checkpoint{
			ID: cp.ID, SectionID: cp.Section, Order: cp.Order, Title: cp.Title, Message: cp.Message,
		})
	}

	if err := Validate(c); err != nil {
		return nil, err
	}
	domain.SortQuestions(c.Questions)
	return c, nil
}

// Validate checks ids are unique and every reference resolves.
func Validate(c *domain.Catalog) error {
	sections := make(map[string]bool, len(c.Sections))
	for _, s := range c.Sections {
		if s.ID == "" {
			return fmt.Errorf("section with empty id")
		}
		if sections[s.ID] {
			return fmt.Errorf("duplicate section id %q", s.ID)
		}
		sections[s.ID] = true
	}

	questions := make(map[string]bool, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == "" {
			return fmt.Errorf("question with empty id")
		}
		if questions[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		questions[q.ID] = true
		if !sections[q.SectionID] {
			return fmt.Errorf("question %q references unknown section %q", q.ID, q.SectionID)
		}
		if q.Type == "" {
			return fmt.Errorf("question %q has no type", q.ID)
		}
	}

	checkpoints := make(map[string]bool, len(c.Checkpoints))
	for _, cp := range c.Checkpoints {
		if cp.ID == "" {
			return fmt.Errorf("checkpoint with empty id")
		}
		if checkpoints[cp.ID] {
			return fmt.Errorf("duplicate checkpoint id %q", cp.ID)
		}
		checkpoints[cp.ID] = true
		if !sections[cp.SectionID] {
			return fmt.Errorf("checkpoint %q references unknown section %q", cp.ID, cp.SectionID)
		}
	}
	return nil
}
