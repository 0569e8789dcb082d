package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
)

func fields(kv ...string) []extraction.Field {
	out := make([]extraction.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, extraction.Field{Key: kv[i], Value: kv[i+1], Confidence: 1})
	}
	return out
}

func text(locator, label string) form.Descriptor {
	return form.Descriptor{Locator: locator, Label: label, Kind: form.KindText, Control: form.ControlInput}
}

func byKey(ms []Match) map[string]Match {
	out := make(map[string]Match, len(ms))
	for _, m := range ms {
		out[m.ExtractedKey] = m
	}
	return out
}

func TestMatch_NameAndDateOfBirth(t *testing.T) {
	m := New(Config{})
	got := m.Match(
		fields("name", "Asha Rao", "dob", "1990-01-01"),
		[]form.Descriptor{text("#full-name", "Full Name"), text("#dob", "Date of Birth")},
	)

	require.Len(t, got, 2)
	assert.Equal(t, "name", got[0].ExtractedKey)
	assert.Equal(t, "#full-name", got[0].DescriptorLocator)
	assert.InDelta(t, 0.85, got[0].Score, 0.001)
	assert.Equal(t, "dob", got[1].ExtractedKey)
	assert.Equal(t, "#dob", got[1].DescriptorLocator)
	assert.InDelta(t, 0.7, got[1].Score, 0.001)
	for _, match := range got {
		assert.False(t, match.Applied)
	}
}

func TestMatch_NoRelatedDescriptors(t *testing.T) {
	got := New(Config{}).Match(
		fields("name", "Asha Rao", "dob", "1990-01-01"),
		[]form.Descriptor{text("#colour", "Favourite colour"), text("#comments", "Comments")},
	)
	assert.Empty(t, got)
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := New(Config{})
	assert.Empty(t, m.Match(nil, []form.Descriptor{text("#n", "Name")}))
	assert.Empty(t, m.Match(fields("name", "Asha Rao"), nil))
	assert.Empty(t, m.Match(fields("name", "  "), []form.Descriptor{text("#n", "Name")}))
}

func TestMatch_NoDoubleAssignment(t *testing.T) {
	m := New(Config{})
	got := m.Match(
		fields("name", "Asha Rao", "father_name", "Ravi Rao"),
		[]form.Descriptor{text("#father", "Father's Name")},
	)
	require.Len(t, got, 1)
	assert.Equal(t, "father_name", got[0].ExtractedKey)

	got = m.Match(
		fields("name", "Asha Rao", "father_name", "Ravi Rao"),
		[]form.Descriptor{text("#father", "Father's Name"), text("#name", "Name")},
	)
	require.Len(t, got, 2)
	assert.Equal(t, "#name", byKey(got)["name"].DescriptorLocator)
	assert.Equal(t, "#father", byKey(got)["father_name"].DescriptorLocator)
}

func TestMatch_LocatorsAreUnique(t *testing.T) {
	got := New(Config{}).Match(
		fields("name", "Asha Rao", "full_name", "Asha Rao"),
		[]form.Descriptor{text("#a", "Name"), text("#b", "Name")},
	)
	seen := map[string]bool{}
	for _, m := range got {
		assert.False(t, seen[m.DescriptorLocator], m.DescriptorLocator)
		seen[m.DescriptorLocator] = true
	}
}

func TestMatch_TieGoesToFirstDescriptor(t *testing.T) {
	got := New(Config{}).Match(
		fields("email", "asha@example.com"),
		[]form.Descriptor{text("#first", "Email"), text("#second", "Email")},
	)
	require.Len(t, got, 1)
	assert.Equal(t, "#first", got[0].DescriptorLocator)
}

func TestMatch_Threshold(t *testing.T) {
	in := fields("name", "Asha Rao", "dob", "1990-01-01")
	descs := []form.Descriptor{text("#full-name", "Full Name"), text("#dob", "Date of Birth")}

	strict := New(Config{Threshold: 0.8})
	got := strict.Match(in, descs)
	require.Len(t, got, 1)
	assert.Equal(t, "name", got[0].ExtractedKey)

	for _, match := range New(Config{}).Match(in, descs) {
		assert.GreaterOrEqual(t, match.Score, DefaultThreshold)
	}
	assert.Equal(t, DefaultThreshold, New(Config{Threshold: -1}).Threshold())
}

func TestMatch_ScoreNeverBelowThreshold(t *testing.T) {
	in := fields("name", "Asha Rao")
	descs := []form.Descriptor{text("#n", "Applicant First Name")}

	got := New(Config{}).Match(in, descs)
	require.Len(t, got, 1)
	assert.Equal(t, 0.573, got[0].Score)

	assert.Empty(t, New(Config{Threshold: 0.5733}).Match(in, descs))

	got = New(Config{Threshold: 0.573}).Match(in, descs)
	require.Len(t, got, 1)
	assert.GreaterOrEqual(t, got[0].Score, 0.573)
}

func TestMatch_OtherPersonLabels(t *testing.T) {
	descs := []form.Descriptor{
		text("#f", "Father's Name"),
		text("#m", "Mother's Name"),
		text("#e", "Emergency Contact Name"),
		text("#en", "Emergency Contact Number"),
		text("#g", "Name of Guardian"),
	}
	m := New(Config{})
	assert.Empty(t, m.Match(fields("name", "Asha Rao", "phone", "9876543210"), descs))

	for _, d := range descs {
		assert.Less(t, m.Score(extraction.Field{Key: "name", Value: "Asha Rao"}, d), DefaultThreshold, d.Label)
		assert.Less(t, m.Score(extraction.Field{Key: "phone", Value: "9876543210"}, d), DefaultThreshold, d.Label)
	}

	got := m.Match(fields("name", "Asha Rao", "phone", "9876543210"),
		append(descs, text("#name", "Applicant Name"), text("#mobile", "Mobile Number")))
	require.Len(t, got, 2)
	assert.Equal(t, "#name", byKey(got)["name"].DescriptorLocator)
	assert.Equal(t, "#mobile", byKey(got)["phone"].DescriptorLocator)

	got = m.Match(fields("father_name", "Ravi Rao"), descs)
	require.Len(t, got, 1)
	assert.Equal(t, "#f", got[0].DescriptorLocator)
}

func TestMatch_KindCompatibility(t *testing.T) {
	tests := []struct {
		name  string
		field []extraction.Field
		desc  form.Descriptor
		match bool
	}{
		{
			name:  "date never fills a checkbox",
			field: fields("dob", "01/01/1990"),
			desc: form.Descriptor{Locator: "#c", Label: "Date of Birth", Kind: form.KindCheckbox, Control: form.ControlChoices,
				Options: []form.Option{{Label: "01/01/1990"}}},
		},
		{
			name:  "date fills a date input",
			field: fields("dob", "01/01/1990"),
			desc:  form.Descriptor{Locator: "#d", Label: "Date of Birth", Kind: form.KindDate, Control: form.ControlInput},
			match: true,
		},
		{
			name:  "non-date into date input",
			field: fields("dob", "unknown"),
			desc:  form.Descriptor{Locator: "#d", Label: "Date of Birth", Kind: form.KindDate, Control: form.ControlInput},
		},
		{
			name:  "select with matching option",
			field: fields("gender", "Female"),
			desc: form.Descriptor{Locator: "#g", Label: "Gender", Kind: form.KindSelect, Control: form.ControlSelect,
				Options: []form.Option{{Label: "Male"}, {Label: "Female"}}},
			match: true,
		},
		{
			name:  "select without matching option",
			field: fields("gender", "Other"),
			desc: form.Descriptor{Locator: "#g", Label: "Gender", Kind: form.KindSelect, Control: form.ControlSelect,
				Options: []form.Option{{Label: "Male"}, {Label: "Female"}}},
		},
		{
			name:  "email input needs an address",
			field: fields("email", "not an address"),
			desc:  form.Descriptor{Locator: "#e", Label: "Email", Kind: form.KindEmail, Control: form.ControlInput},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(Config{}).Match(tt.field, []form.Descriptor{tt.desc})
			if tt.match {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestMatch_Deprioritized(t *testing.T) {
	m := New(Config{})
	hidden := text("#hidden", "Full Name")
	hidden.Hidden = true
	assert.Empty(t, m.Match(fields("name", "Asha Rao"), []form.Descriptor{hidden}))

	prefilled := text("#pre", "Name")
	prefilled.Prefilled = true
	got := m.Match(fields("name", "Asha Rao"), []form.Descriptor{prefilled, text("#empty", "Name")})
	require.Len(t, got, 1)
	assert.Equal(t, "#empty", got[0].DescriptorLocator)
}

func TestMatch_CustomSynonyms(t *testing.T) {
	in := fields("pincode", "560001")
	descs := []form.Descriptor{text("#area", "Area Code")}

	assert.Empty(t, New(Config{}).Match(in, descs))

	got := New(Config{Synonyms: map[string][]string{"PIN Code": {"Area Code"}}}).Match(in, descs)
	require.Len(t, got, 1)
	assert.Equal(t, "#area", got[0].DescriptorLocator)
}

func TestMatch_AutocompleteAndNameFallback(t *testing.T) {
	d := form.Descriptor{Locator: "#f3", Name: "field3", Autocomplete: "bday", Kind: form.KindText, Control: form.ControlInput}
	got := New(Config{}).Match(fields("date", "1990-01-01"), []form.Descriptor{d})
	require.Len(t, got, 1)
	assert.Equal(t, "date", got[0].ExtractedKey)
	assert.InDelta(t, 0.7, got[0].Score, 0.001)
}

func TestMatch_UnknownKeyByTokenOverlap(t *testing.T) {
	got := New(Config{}).Match(fields("blood_group", "O+"), []form.Descriptor{text("#bg", "Blood Group")})
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 0.001)

	got = New(Config{}).Match(fields("mother_name", "Lata Rao"), []form.Descriptor{text("#m", "Name of Mother")})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Score, 0.001)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "father name", normalize("Father's Name *"))
	assert.Equal(t, "e mail", normalize("E-Mail"))
	assert.Equal(t, "", normalize("  * "))
}
