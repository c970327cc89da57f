package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobpilot/driver/drivertest"
	"jobpilot/models"
)

func labeled(label string, attrs ...string) *drivertest.Element {
	return drivertest.NewElement("", append([]string{"aria-label", label}, attrs...)...)
}

func nativeSelect(label string, options ...string) *drivertest.Element {
	el := labeled(label, "required", "")
	el.Options = options
	for _, o := range options {
		el.Child("option", drivertest.NewElement(o))
	}
	return el
}

func newFiller(t *testing.T, oracle Oracle) (*FormFiller, *FieldAnswerResolver) {
	r := NewFieldAnswerResolver(testProfile(), oracle, zaptest.NewLogger(t))
	return NewFormFiller(r, "/tmp/resume.pdf", zaptest.NewLogger(t)), r
}

func TestFormFiller_TextFields(t *testing.T) {
	email := labeled("Email address", "required", "")
	optional := labeled("Nickname")
	prefilled := labeled("First name", "required", "")
	prefilled.ValueStr = "Augusta"
	starred := drivertest.NewElement("", "placeholder", "Phone *")

	page := drivertest.NewPage("https://jobs.example.com/apply")
	page.Set(textFieldSelector, email, optional, prefilled, starred)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"ada@example.com"}, email.Fills)
	assert.Empty(t, optional.Fills)
	assert.Empty(t, prefilled.Fills)
	assert.Equal(t, []string{"+1 555 0100"}, starred.Fills)
	assert.Equal(t, 2, report.Filled)
	assert.Equal(t, 4, report.Fields)
}

func TestFormFiller_TextFallsBackToScriptedValue(t *testing.T) {
	el := labeled("City", "required", "")
	el.FillErr = errors.New("element is not editable")
	page := drivertest.NewPage("")
	page.Set(textFieldSelector, el)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"Austin"}, el.SetValues)
	assert.Equal(t, 1, report.Filled)
}

func TestFormFiller_Checkboxes(t *testing.T) {
	required := labeled("Receive updates", "aria-required", "true")
	consent := labeled("I agree to the terms and conditions")
	optional := labeled("Subscribe to newsletter")
	already := labeled("I certify the above", "required", "")
	already.Checked = true

	page := drivertest.NewPage("")
	page.Set(checkboxSelector, required, consent, optional, already)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.True(t, required.Checked)
	assert.True(t, consent.Checked)
	assert.False(t, optional.Checked)
	assert.Equal(t, 2, report.Checked)
}

func TestFormFiller_Selects(t *testing.T) {
	auth := nativeSelect("Are you authorized to work in the US?", "Select an option", "Yes", "No")
	country := nativeSelect("Country of residence", "Select...", "Canada", "United States")
	answered := nativeSelect("Do you require sponsorship?", "Select an option", "Yes", "No")
	answered.ValueStr = "No"

	page := drivertest.NewPage("")
	page.Set(singleSelectSelector, auth, country, answered)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"Yes"}, auth.Selections)
	assert.Empty(t, country.Selections, "country fields are left to the platform")
	assert.Empty(t, answered.Selections)
	assert.Equal(t, 1, report.Selected)
}

func TestFormFiller_SelectCascade(t *testing.T) {
	t.Run("scripted assignment after direct selection fails", func(t *testing.T) {
		el := nativeSelect("Are you willing to relocate?", "Yes", "No")
		el.SelectErr = errors.New("not a select element")
		page := drivertest.NewPage("")
		page.Set(singleSelectSelector, el)

		f, _ := newFiller(t, nil)
		report, err := f.Fill(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, []string{"No"}, el.SetValues)
		assert.Equal(t, 1, report.Selected)
	})

	t.Run("open and click as last resort", func(t *testing.T) {
		el := nativeSelect("Are you willing to relocate?", "Yes", "No")
		el.SelectErr = errors.New("not a select element")
		el.SetErr = errors.New("script blocked")
		option := drivertest.NewElement("No")
		page := drivertest.NewPage("")
		page.Set(singleSelectSelector, el)
		page.Set(`[role='option']:has-text("No")`, option)

		f, _ := newFiller(t, nil)
		report, err := f.Fill(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, 1, el.Clicks)
		assert.Equal(t, 1, option.Clicks)
		assert.Equal(t, 1, report.Selected)
	})

	t.Run("all strategies fail", func(t *testing.T) {
		el := nativeSelect("Are you willing to relocate?", "Yes", "No")
		el.SelectErr = errors.New("not a select element")
		el.SetErr = errors.New("script blocked")
		page := drivertest.NewPage("")
		page.Set(singleSelectSelector, el)

		f, _ := newFiller(t, nil)
		report, err := f.Fill(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Selected)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, []string{"Are you willing to relocate?"}, report.Unresolved)
	})
}

func TestFormFiller_CustomMenu(t *testing.T) {
	menu := drivertest.NewElement("Select...", "aria-label", "How did you hear about us?", "role", "combobox")
	linkedIn := drivertest.NewElement("LinkedIn")
	page := drivertest.NewPage("")
	page.Set(customMenuSelector, menu)
	page.Set("[role='option']", drivertest.NewElement("Referral"), linkedIn)
	page.Set(`[role='option']:has-text("LinkedIn")`, linkedIn)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, 1, menu.Clicks)
	assert.Equal(t, 1, linkedIn.Clicks)
	assert.Equal(t, 1, report.Selected)
}

func TestFormFiller_CustomMenuTypeahead(t *testing.T) {
	menu := drivertest.NewElement("", "aria-label", "Years of experience", "role", "combobox")
	page := drivertest.NewPage("")
	page.Set(customMenuSelector, menu)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"6"}, menu.Fills)
	assert.Equal(t, []string{"Enter"}, menu.Pressed)
	assert.Equal(t, 1, report.Selected)
}

func TestFormFiller_ResumeUpload(t *testing.T) {
	input := drivertest.NewElement("", "name", "resume")
	input.Hidden = true
	page := drivertest.NewPage("")
	page.Set(fileInputSelector, input)

	f, _ := newFiller(t, nil)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/resume.pdf"}, input.Files)
	assert.Equal(t, 1, report.Uploaded)
}

func TestFormFiller_OracleFallback(t *testing.T) {
	essay := labeled("Why do you want to work here?", "required", "")
	choice := nativeSelect("Which cloud do you prefer?", "Select", "AWS", "GCP")

	page := drivertest.NewPage("")
	page.Set(textFieldSelector, essay)
	page.Set(singleSelectSelector, choice)

	oracle := &mockOracle{replies: map[string]string{
		"Why do you want to work here?": "I enjoy building reliable systems",
		"Which cloud do you prefer?":    "GCP",
	}}
	f, _ := newFiller(t, oracle)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"I enjoy building reliable systems"}, essay.Fills)
	assert.Equal(t, []string{"GCP"}, choice.Selections)
	assert.Len(t, oracle.requests, 2)
	assert.Empty(t, report.Unresolved)
}

func TestFormFiller_OracleUnavailableSkipsField(t *testing.T) {
	essay := labeled("Why do you want to work here?", "required", "")
	hedge := nativeSelect("Which cloud do you prefer?", "AWS", "GCP")
	page := drivertest.NewPage("")
	page.Set(textFieldSelector, essay)
	page.Set(singleSelectSelector, hedge)

	oracle := &mockOracle{replies: map[string]string{
		"Which cloud do you prefer?": "I'm not sure",
	}, err: nil}
	r := NewFieldAnswerResolver(testProfile(), nil, nil)
	f := NewFormFiller(r, "", nil)

	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, essay.Fills)
	assert.ElementsMatch(t, []string{"Why do you want to work here?", "Which cloud do you prefer?"}, report.Unresolved)
	assert.Empty(t, oracle.requests)

	// With an oracle, a hedged choice is never submitted.
	f = NewFormFiller(NewFieldAnswerResolver(testProfile(), oracle, nil), "", nil)
	report, err = f.Fill(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, hedge.Selections)
	assert.Contains(t, report.Unresolved, "Which cloud do you prefer?")
}

// Every required field left empty either belongs to a known rule category or
// cost an oracle call.
func TestFormFiller_RequiredFieldsExhaustFallback(t *testing.T) {
	fields := []*drivertest.Element{
		labeled("Salary expectations", "required", ""),
		labeled("Describe your biggest failure", "required", ""),
		labeled("Email", "required", ""),
	}
	page := drivertest.NewPage("")
	page.Set(textFieldSelector, fields...)

	oracle := &mockOracle{err: errors.New("upstream 503")}
	f, r := newFiller(t, oracle)
	report, err := f.Fill(context.Background(), page)
	require.NoError(t, err)

	asked := map[string]bool{}
	for _, req := range oracle.requests {
		asked[req.Question] = true
	}
	require.NotEmpty(t, report.Unresolved)
	for _, label := range report.Unresolved {
		known := QuestionCategory(label) != CategoryUnknown
		assert.True(t, known || asked[label], "field %q left empty without rule or oracle", label)
	}
	assert.Equal(t, 2, r.Stats().OracleCalls)
}

func TestSkipSelect(t *testing.T) {
	tests := []struct {
		label, value string
		want         bool
	}{
		{"Country", "", true},
		{"Phone country code", "", true},
		{"Email", "", true},
		{"Are you authorized to work?", "", false},
		{"Are you authorized to work?", "Select an option", false},
		{"Are you authorized to work?", "Yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.label+"/"+tt.value, func(t *testing.T) {
			f := &models.FieldDescriptor{Kind: models.FieldSingleSelect, Label: tt.label, Value: tt.value}
			assert.Equal(t, tt.want, skipSelect(f))
		})
	}
}
