package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := `
full_name: Jane Q Doe
email: jane@example.com
phone: "+1 555 0100"
city: Austin
state: TX
country: United States
years_of_experience: 6
work_authorized: true
requires_sponsorship: false
skills: [Go, Kubernetes]
extra_qa:
  Preferred pronouns: she/her
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "Jane", p.FirstName)
	assert.Equal(t, "Q Doe", p.LastName)
	assert.Equal(t, "Austin, TX, United States", p.Location())

	doc := p.Document()
	assert.Contains(t, doc, "Name: Jane Q Doe")
	assert.Contains(t, doc, "Authorized to work: yes")
	assert.Contains(t, doc, "Requires visa sponsorship: no")
	assert.Contains(t, doc, "Skills: Go, Kubernetes")
	assert.Contains(t, doc, "Preferred pronouns: she/her")
}

func TestLoadProfile_FullNameFromParts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"first_name":"Ada","last_name":"Lovelace"}`), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.FullName)
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestOutcomeKind(t *testing.T) {
	assert.False(t, Succeeded.Failed())
	for _, k := range []OutcomeKind{FailedSubmission, FailedTimeout, FailedNoApplyControl, FailedException} {
		assert.True(t, k.Failed(), string(k))
	}

	o := NewOutcome(FailedTimeout, "Engineer", "https://jobs.example.com/1", "no confirmation")
	assert.NotEmpty(t, o.ID)
	assert.False(t, o.Timestamp.IsZero())
	assert.Equal(t, FailedTimeout, o.Kind)
}

func TestFieldDescriptor_SelectLike(t *testing.T) {
	assert.True(t, FieldDescriptor{Kind: FieldSingleSelect}.SelectLike())
	assert.True(t, FieldDescriptor{Kind: FieldCustomMenu}.SelectLike())
	assert.False(t, FieldDescriptor{Kind: FieldText}.SelectLike())
	assert.False(t, FieldDescriptor{Kind: FieldCheckbox}.SelectLike())
}
