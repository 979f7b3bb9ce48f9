package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Internal render types.
const (
	TypeScaleSlider   = "scale-slider"
	TypeRadioGroup    = "radio-group"
	TypeCheckboxGroup = "checkbox-group"
	TypeTextInput     = "text-input"
	TypeTextArea      = "textarea"
	TypeYesNo         = "yes-no"
	TypeRankOrder     = "rank-order"
)

var errEmptyValue = errors.New("value is required")

// Option is a selectable choice. It decodes from "value" or {"value": ..., "label": ...}.
type Option struct {
	Value   string `json:"value"`
	Label   string `json:"label,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
}

func (o *Option) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Value, o.Label = s, s
		return nil
	}
	type plain Option
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("option must be a string or object: %w", err)
	}
	*o = Option(p)
	if o.Label == "" {
		o.Label = o.Value
	}
	return nil
}

type choiceConfig struct {
	Options     []Option `json:"options"`
	MinSelected int      `json:"minSelected"`
	MaxSelected int      `json:"maxSelected"`
}

func (c choiceConfig) has(v string) bool {
	for _, o := range c.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func decodeConfig(config json.RawMessage, dst any) error {
	if len(config) == 0 || string(config) == "null" {
		return nil
	}
	if err := json.Unmarshal(config, dst); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func decodeChoices(config json.RawMessage) (choiceConfig, error) {
	var c choiceConfig
	if err := decodeConfig(config, &c); err != nil {
		return c, err
	}
	if len(c.Options) == 0 {
		return c, errors.New("invalid config: options are required")
	}
	return c, nil
}

func isEmpty(value json.RawMessage) bool {
	return len(value) == 0 || string(value) == "null"
}

func view(kind string, config, value json.RawMessage) View {
	return View{Kind: kind, Config: config, Value: value}
}

// ScaleSlider renders a numeric scale between min and max.
type ScaleSlider struct{}

type scaleConfig struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Step     float64 `json:"step"`
	MinLabel string  `json:"minLabel,omitempty"`
	MaxLabel string  `json:"maxLabel,omitempty"`
}

func decodeScale(config json.RawMessage) (scaleConfig, error) {
	c := scaleConfig{Min: 1, Max: 5, Step: 1}
	if err := decodeConfig(config, &c); err != nil {
		return c, err
	}
	if c.Max <= c.Min {
		return c, fmt.Errorf("invalid config: max %v must exceed min %v", c.Max, c.Min)
	}
	return c, nil
}

func (ScaleSlider) Type() string { return TypeScaleSlider }

func (ScaleSlider) Render(config, value json.RawMessage) (View, error) {
	c, err := decodeScale(config)
	if err != nil {
		return View{}, err
	}
	normalized, err := json.Marshal(c)
	if err != nil {
		return View{}, err
	}
	return view(TypeScaleSlider, normalized, value), nil
}

func (ScaleSlider) Validate(config, value json.RawMessage) error {
	c, err := decodeScale(config)
	if err != nil {
		return err
	}
	if isEmpty(value) {
		return errEmptyValue
	}
	var n float64
	if err := json.Unmarshal(value, &n); err != nil {
		return errors.New("value must be a number")
	}
	if n < c.Min || n > c.Max {
		return fmt.Errorf("value %v outside [%v, %v]", n, c.Min, c.Max)
	}
	return nil
}

// RadioGroup renders a single choice.
type RadioGroup struct{}

func (RadioGroup) Type() string { return TypeRadioGroup }

func (RadioGroup) Render(config, value json.RawMessage) (View, error) {
	if _, err := decodeChoices(config); err != nil {
		return View{}, err
	}
	return view(TypeRadioGroup, config, value), nil
}

func (RadioGroup) Validate(config, value json.RawMessage) error {
	c, err := decodeChoices(config)
	if err != nil {
		return err
	}
	if isEmpty(value) {
		return errEmptyValue
	}
	var v string
	if err := json.Unmarshal(value, &v); err != nil {
		return errors.New("value must be a string")
	}
	if !c.has(v) {
		return fmt.Errorf("value %q is not an option", v)
	}
	return nil
}

// CheckboxGroup renders a multi-select.
type CheckboxGroup struct{}

func (CheckboxGroup) Type() string { return TypeCheckboxGroup }

func (CheckboxGroup) Render(config, value json.RawMessage) (View, error) {
	if _, err := decodeChoices(config); err != nil {
		return View{}, err
	}
	return view(TypeCheckboxGroup, config, value), nil
}

func (CheckboxGroup) Validate(config, value json.RawMessage) error {
	c, err := decodeChoices(config)
	if err != nil {
		return err
	}
	if isEmpty(value) {
		return errEmptyValue
	}
	var vs []string
	if err := json.Unmarshal(value, &vs); err != nil {
		return errors.New("value must be an array of strings")
	}
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		if !c.has(v) {
			return fmt.Errorf("value %q is not an option", v)
		}
		if seen[v] {
			return fmt.Errorf("value %q selected twice", v)
		}
		seen[v] = true
	}
	if c.MinSelected > 0 && len(vs) < c.MinSelected {
		return fmt.Errorf("select at least %d options", c.MinSelected)
	}
	if c.MaxSelected > 0 && len(vs) > c.MaxSelected {
		return fmt.Errorf("select at most %d options", c.MaxSelected)
	}
	return nil
}

type textConfig struct {
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"maxLength,omitempty"`
	Rows        int    `json:"rows,omitempty"`
}

func validateText(config, value json.RawMessage) error {
	var c textConfig
	if err := decodeConfig(config, &c); err != nil {
		return err
	}
	if isEmpty(value) {
		return errEmptyValue
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return errors.New("value must be a string")
	}
	if c.MaxLength > 0 && utf8.RuneCountInString(s) > c.MaxLength {
		return fmt.Errorf("value longer than %d characters", c.MaxLength)
	}
	return nil
}

// TextInput renders a single-line text field.
type TextInput struct{}

func (TextInput) Type() string { return TypeTextInput }

func (TextInput) Render(config, value json.RawMessage) (View, error) {
	var c textConfig
	if err := decodeConfig(config, &c); err != nil {
		return View{}, err
	}
	return view(TypeTextInput, config, value), nil
}

func (TextInput) Validate(config, value json.RawMessage) error { return validateText(config, value) }

// TextArea renders a multi-line text field.
type TextArea struct{}

func (TextArea) Type() string { return TypeTextArea }

func (TextArea) Render(config, value json.RawMessage) (View, error) {
	var c textConfig
	if err := decodeConfig(config, &c); err != nil {
		return View{}, err
	}
	return view(TypeTextArea, config, value), nil
}

func (TextArea) Validate(config, value json.RawMessage) error { return validateText(config, value) }

// YesNo renders a boolean toggle.
type YesNo struct{}

func (YesNo) Type() string { return TypeYesNo }

func (YesNo) Render(config, value json.RawMessage) (View, error) {
	return view(TypeYesNo, config, value), nil
}

func (YesNo) Validate(_, value json.RawMessage) error {
	if isEmpty(value) {
		return errEmptyValue
	}
	var b bool
	if err := json.Unmarshal(value, &b); err != nil {
		return errors.New("value must be a boolean")
	}
	return nil
}

// RankOrder renders a drag-to-rank list. The value is a full permutation of the options.
type RankOrder struct{}

func (RankOrder) Type() string { return TypeRankOrder }

func (RankOrder) Render(config, value json.RawMessage) (View, error) {
	if _, err := decodeChoices(config); err != nil {
		return View{}, err
	}
	return view(TypeRankOrder, config, value), nil
}

func (RankOrder) Validate(config, value json.RawMessage) error {
	c, err := decodeChoices(config)
	if err != nil {
		return err
	}
	if isEmpty(value) {
		return errEmptyValue
	}
	var vs []string
	if err := json.Unmarshal(value, &vs); err != nil {
		return errors.New("value must be an array of strings")
	}
	if len(vs) != len(c.Options) {
		return fmt.Errorf("rank all %d options", len(c.Options))
	}
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		if !c.has(v) || seen[v] {
			return fmt.Errorf("value %q is not a unique option", v)
		}
		seen[v] = true
	}
	return nil
}
