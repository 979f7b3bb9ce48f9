// Package adaptive implements the client for the external adaptive
// question-selection engine.
package adaptive

import (
	"encoding/json"

	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/render"
)

// typeTable maps engine question types to internal render types.
var typeTable = map[string]string{
	"scale":           render.TypeScaleSlider,
	"likert":          render.TypeScaleSlider,
	"multiple_choice": render.TypeRadioGroup,
	"single_choice":   render.TypeRadioGroup,
	"multi_select":    render.TypeCheckboxGroup,
	"text":            render.TypeTextInput,
	"long_text":       render.TypeTextArea,
	"boolean":         render.TypeYesNo,
	"ranking":         render.TypeRankOrder,
}

// TranslateType maps an engine type to the internal render type.
// Unknown types pass through unchanged.
func TranslateType(external string) string {
	if t, ok := typeTable[external]; ok {
		return t
	}
	return external
}

// NextRequest is sent to the engine.
type NextRequest struct {
	SessionID string          `json:"session_id"`
	Answers   []AnsweredEntry `json:"answers"`
}

// AnsweredEntry is one recorded answer in a NextRequest.
type AnsweredEntry struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// engineQuestion is the engine's question shape.
type engineQuestion struct {
	ID           string          `json:"id"`
	Position     int             `json:"position"`
	SectionID    string          `json:"section_id"`
	QuestionType string          `json:"question_type"`
	Prompt       string          `json:"prompt"`
	RenderConfig json.RawMessage `json:"render_config"`
	Required     bool            `json:"required"`
}

type engineProgress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

type engineResponse struct {
	Done     bool            `json:"done"`
	Question *engineQuestion `json:"question"`
	Progress *engineProgress `json:"progress"`
}

// NextResult is the translated engine decision.
type NextResult struct {
	Done     bool
	Question *domain.Question
	Progress domain.Progress
}

func (r *engineResponse) toResult(answered int) *NextResult {
	out := &NextResult{Done: r.Done}
	if r.Progress != nil {
		out.Progress = domain.CalculateProgress(r.Progress.Total, r.Progress.Answered)
	} else {
		out.Progress = domain.CalculateProgress(0, answered)
	}
	if r.Question != nil && !r.Done {
		out.Question = &domain.Question{
			ID:        r.Question.ID,
			Order:     r.Question.Position,
			SectionID: r.Question.SectionID,
			Type:      TranslateType(r.Question.QuestionType),
			Text:      r.Question.Prompt,
			Config:    r.Question.RenderConfig,
			Required:  r.Question.Required,
		}
	}
	return out
}
