package models

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CandidateProfile is the applicant's data. It feeds the deterministic answer
// rules and is rendered as the grounding document for the oracle.
type CandidateProfile struct {
	FullName  string `yaml:"full_name" json:"full_name"`
	FirstName string `yaml:"first_name" json:"first_name"`
	LastName  string `yaml:"last_name" json:"last_name"`
	Email     string `yaml:"email" json:"email"`
	Phone     string `yaml:"phone" json:"phone"`
	City      string `yaml:"city" json:"city"`
	State     string `yaml:"state" json:"state"`
	Country   string `yaml:"country" json:"country"`
	LinkedIn  string `yaml:"linkedin" json:"linkedin"`
	Portfolio string `yaml:"portfolio" json:"portfolio"`
	GitHub    string `yaml:"github" json:"github"`

	Summary           string   `yaml:"summary" json:"summary"`
	Skills            []string `yaml:"skills" json:"skills"`
	YearsOfExperience int      `yaml:"years_of_experience" json:"years_of_experience"`
	CurrentCompany    string   `yaml:"current_company" json:"current_company"`
	CurrentTitle      string   `yaml:"current_title" json:"current_title"`
	PreviousEmployers []string `yaml:"previous_employers" json:"previous_employers"`

	// Job application specific answers
	WorkAuthorized      bool   `yaml:"work_authorized" json:"work_authorized"`
	RequiresSponsorship bool   `yaml:"requires_sponsorship" json:"requires_sponsorship"`
	WillingToRelocate   bool   `yaml:"willing_to_relocate" json:"willing_to_relocate"`
	OpenToRemote        bool   `yaml:"open_to_remote" json:"open_to_remote"`
	AvailableStartDate  string `yaml:"available_start_date" json:"available_start_date"`
	SalaryExpectation   string `yaml:"salary_expectation" json:"salary_expectation"`
	ReferralSource      string `yaml:"referral_source" json:"referral_source"`

	// Extra question/answer pairs for questions outside the schema
	ExtraQA map[string]string `yaml:"extra_qa" json:"extra_qa"`
}

// LoadProfile reads a YAML (or JSON) profile from path.
func LoadProfile(path string) (*CandidateProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p CandidateProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	p.fillNames()
	return &p, nil
}

func (p *CandidateProfile) fillNames() {
	if p.FullName == "" {
		p.FullName = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	parts := strings.Fields(p.FullName)
	if p.FirstName == "" && len(parts) > 0 {
		p.FirstName = parts[0]
	}
	if p.LastName == "" && len(parts) > 1 {
		p.LastName = strings.Join(parts[1:], " ")
	}
}

// Location renders city, state and country as one line.
func (p *CandidateProfile) Location() string {
	var parts []string
	for _, s := range []string{p.City, p.State, p.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Document renders the profile as the plain-text candidate document the
// oracle answers from.
func (p *CandidateProfile) Document() string {
	var b strings.Builder
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	yesNo := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}

	line("Name", p.FullName)
	line("Email", p.Email)
	line("Phone", p.Phone)
	line("Location", p.Location())
	line("LinkedIn", p.LinkedIn)
	line("Portfolio", p.Portfolio)
	line("GitHub", p.GitHub)
	line("Current title", p.CurrentTitle)
	line("Current company", p.CurrentCompany)
	if p.YearsOfExperience > 0 {
		line("Years of experience", fmt.Sprint(p.YearsOfExperience))
	}
	line("Previous employers", strings.Join(p.PreviousEmployers, ", "))
	line("Skills", strings.Join(p.Skills, ", "))
	line("Authorized to work", yesNo(p.WorkAuthorized))
	line("Requires visa sponsorship", yesNo(p.RequiresSponsorship))
	line("Willing to relocate", yesNo(p.WillingToRelocate))
	line("Open to remote work", yesNo(p.OpenToRemote))
	line("Available start date", p.AvailableStartDate)
	line("Salary expectation", p.SalaryExpectation)
	line("Summary", p.Summary)

	if len(p.ExtraQA) > 0 {
		keys := make([]string, 0, len(p.ExtraQA))
		for k := range p.ExtraQA {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line(k, p.ExtraQA[k])
		}
	}
	return b.String()
}
