package domain

import (
	"encoding/json"
	"sort"
)

// Question is a read-only question definition.
type Question struct {
	ID        string          `json:"id"`
	Order     int             `json:"order"`
	SectionID string          `json:"sectionId"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Config    json.RawMessage `json:"config,omitempty"`
	Required  bool            `json:"required"`
}

// Section groups ordered questions.
type Section struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
	Title string `json:"title"`
}

// Checkpoint is a milestone message shown when a section is entered.
type Checkpoint struct {
	ID        string `json:"id"`
	SectionID string `json:"sectionId"`
	Order     int    `json:"order"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// Catalog is the full read-only question bank.
type Catalog struct {
	Questions   []*Question   `json:"questions"`
	Sections    []*Section    `json:"sections"`
	Checkpoints []*Checkpoint `json:"checkpoints"`
}

// SortQuestions orders questions by Order, breaking ties by ID.
func SortQuestions(qs []*Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Order != qs[j].Order {
			return qs[i].Order < qs[j].Order
		}
		return qs[i].ID < qs[j].ID
	})
}

// Question returns the question with the given ID, or nil.
func (c *Catalog) Question(id string) *Question {
	for _, q := range c.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}
