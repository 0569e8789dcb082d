// Package form discovers the fillable fields of an arbitrary web form.
package form

// InputKind is the semantic kind of a form control.
type InputKind string

const (
	KindText     InputKind = "text"
	KindEmail    InputKind = "email"
	KindDate     InputKind = "date"
	KindSelect   InputKind = "select"
	KindCheckbox InputKind = "checkbox"
	KindRadio    InputKind = "radio"
	KindUnknown  InputKind = "unknown"
)

// Control says which DOM mechanism writes a value into the field.
type Control string

const (
	ControlInput    Control = "input"
	ControlTextarea Control = "textarea"
	ControlEditable Control = "contenteditable"
	ControlSelect   Control = "select"
	ControlListbox  Control = "listbox"
	ControlChoices  Control = "choices"
	ControlToggle   Control = "toggle"
)

// Option is one choice of a select, radio or checkbox group.
type Option struct {
	Label   string `json:"label"`
	Value   string `json:"value,omitempty"`
	Locator string `json:"locator,omitempty"`
}

// Descriptor is one discovered fillable element. Hidden, Disabled and
// Prefilled elements are still reported so the matcher can deprioritize
// them.
type Descriptor struct {
	Locator     string `json:"locator"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Name        string `json:"name,omitempty"`
	// Autocomplete is the element's autocomplete token, e.g. "bday".
	Autocomplete string    `json:"autocomplete,omitempty"`
	Kind         InputKind `json:"input_kind"`
	Control      Control   `json:"control"`
	Required     bool      `json:"required"`
	Hidden       bool      `json:"hidden,omitempty"`
	Disabled     bool      `json:"disabled,omitempty"`
	Prefilled    bool      `json:"prefilled,omitempty"`
	Options      []Option  `json:"options,omitempty"`
}

// Fillable reports whether a user could type into the element.
func (d Descriptor) Fillable() bool {
	return !d.Hidden && !d.Disabled
}

// Texts returns the label and placeholder, the strings matched against
// extracted keys.
func (d Descriptor) Texts() []string {
	out := make([]string, 0, 2)
	if d.Label != "" {
		out = append(out, d.Label)
	}
	if d.Placeholder != "" && d.Placeholder != d.Label {
		out = append(out, d.Placeholder)
	}
	return out
}
