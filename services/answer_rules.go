package services

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"jobpilot/models"
)

// Question categories recognised by the deterministic rules.
const (
	CategoryIdentity        = "identity"
	CategoryCountry         = "country"
	CategoryAuthorization   = "work-authorization"
	CategorySponsorship     = "sponsorship"
	CategoryPriorEmployment = "prior-employment"
	CategoryRemote          = "remote-work"
	CategoryRelocation      = "relocation"
	CategoryExperience      = "years-of-experience"
	CategoryStartDate       = "start-date"
	CategorySalary          = "salary"
	CategoryReferral        = "referral-source"
	CategoryDemographic     = "demographic"
	CategoryConsent         = "consent"
	CategoryProfile         = "profile-extra"
	CategoryUnknown         = ""
)

// answerRule answers one category of question from the profile. match groups
// are OR-ed; the words inside a group must all appear in the normalized
// question. Words match at the start of a question word, so "relocat" covers
// "relocation" but "race" does not hit "embrace". answer receives nil options
// for free-text fields and returns "" when the profile has nothing to say.
type answerRule struct {
	category string
	match    [][]string
	exclude  []string
	answer   func(p *models.CandidateProfile, q string, options []string) string
}

func (r answerRule) matches(q string) bool {
	for _, ex := range r.exclude {
		if hasWord(q, ex) {
			return false
		}
	}
	for _, group := range r.match {
		all := true
		for _, w := range group {
			if !hasWord(q, w) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// hasWord reports whether w starts at a word boundary of the normalized
// question q.
func hasWord(q, w string) bool {
	return strings.Contains(" "+q, " "+w)
}

var preferNotToAnswer = []string{
	"Prefer not to answer",
	"Prefer not to say",
	"Decline to self identify",
	"Decline to self-identify",
	"I don't wish to answer",
	"I do not wish to answer",
	"Choose not to disclose",
}

// answerRules is ordered: the first matching rule wins, so narrower
// categories come before the ones whose keywords they contain.
var answerRules = []answerRule{
	{
		category: CategoryDemographic,
		match: [][]string{
			{"gender"}, {"race"}, {"racial"}, {"ethnic"}, {"veteran"}, {"disabilit"},
			{"sexual orientation"}, {"transgender"}, {"pronoun"}, {"hispanic"},
		},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			if len(options) == 0 {
				return "Prefer not to answer"
			}
			if v := pick(options, preferNotToAnswer...); v != "" {
				return v
			}
			if strings.Contains(q, "veteran") {
				return pick(options, "I am not a protected veteran", "No")
			}
			if strings.Contains(q, "disability") {
				return pick(options, "No, I do not have a disability", "No")
			}
			return ""
		},
	},
	{
		// "Do you require sponsorship to work legally" asks about sponsorship
		// even though it mentions legal work.
		category: CategorySponsorship,
		match:    [][]string{{"requir", "sponsor"}, {"need", "sponsor"}},
		exclude: []string{
			"without need", "without requir", "without sponsor", "without visa",
			"without a visa", "without the need", "without any sponsor",
		},
		answer: sponsorshipAnswer,
	},
	{
		category: CategoryAuthorization,
		match: [][]string{
			{"authorized", "work"}, {"authorised", "work"}, {"legally", "work"},
			{"eligible", "work"}, {"right to work"}, {"work authorization"},
			{"without", "sponsor"}, {"without", "visa"},
		},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			return pickBool(options, p.WorkAuthorized)
		},
	},
	{
		category: CategorySponsorship,
		match:    [][]string{{"sponsor"}, {"visa"}, {"work permit"}},
		answer:   sponsorshipAnswer,
	},
	{
		category: CategoryPriorEmployment,
		match: [][]string{
			{"previously", "employed"}, {"ever", "employed"}, {"ever", "worked", "for"},
			{"previously", "worked"}, {"former", "employee"}, {"worked", "here", "before"},
		},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			worked := false
			for _, e := range p.PreviousEmployers {
				if k := NormalizeQuestion(e); k != "" && strings.Contains(q, k) {
					worked = true
				}
			}
			return pickBool(options, worked)
		},
	},
	{
		category: CategoryRemote,
		match:    [][]string{{"remote"}, {"work from home"}, {"hybrid"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			if len(options) > 0 && !yesNoShaped(options) {
				if p.OpenToRemote {
					return pick(options, "Remote", "Hybrid")
				}
				return pick(options, "Hybrid", "On-site", "Onsite", "Office")
			}
			return pickBool(options, p.OpenToRemote)
		},
	},
	{
		category: CategoryRelocation,
		match:    [][]string{{"relocat"}, {"commut"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			return pickBool(options, p.WillingToRelocate)
		},
	},
	{
		category: CategoryExperience,
		match:    [][]string{{"years", "experience"}, {"how many years"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			if p.YearsOfExperience <= 0 {
				return ""
			}
			if len(options) == 0 {
				return strconv.Itoa(p.YearsOfExperience)
			}
			return pickYears(options, p.YearsOfExperience)
		},
	},
	{
		category: CategoryStartDate,
		match:    [][]string{{"start date"}, {"notice period"}, {"when can you start"}, {"earliest", "start"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			v := p.AvailableStartDate
			if v == "" {
				v = "Immediately"
			}
			return pick(options, v, "Immediately", "2 weeks")
		},
	},
	{
		category: CategorySalary,
		match:    [][]string{{"salary"}, {"compensation"}, {"pay expectation"}, {"desired pay"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			if p.SalaryExpectation == "" {
				return ""
			}
			return pick(options, p.SalaryExpectation)
		},
	},
	{
		category: CategoryReferral,
		match:    [][]string{{"how did you hear"}, {"hear about"}, {"referral source"}, {"how did you find"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			return pick(options, p.ReferralSource, "LinkedIn", "Job board", "Online job board", "Other")
		},
	},
	{
		category: CategoryConsent,
		match: [][]string{
			{"i agree"}, {"acknowledge"}, {"consent"}, {"privacy policy"},
			{"terms"}, {"certify"}, {"attest"},
		},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			return pick(options, "Yes", "I agree", "I acknowledge", "Agree", "I consent")
		},
	},
	{
		category: CategoryCountry,
		match:    [][]string{{"country"}},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			if p.Country == "" {
				return ""
			}
			return pick(options, p.Country)
		},
	},
	{
		category: CategoryIdentity,
		match: [][]string{
			{"name"}, {"email"}, {"phone"}, {"telephone"}, {"mobile"}, {"linkedin"}, {"github"},
			{"website"}, {"portfolio"}, {"city"}, {"location"}, {"address"},
			{"current company"}, {"current employer"}, {"current title"}, {"job title"},
		},
		// Someone else's details.
		exclude: []string{"referr", "emergency", "manager", "reference", "recruiter"},
		answer: func(p *models.CandidateProfile, q string, options []string) string {
			v := identityValue(p, q)
			if v == "" {
				return ""
			}
			return pick(options, v)
		},
	},
}

func sponsorshipAnswer(p *models.CandidateProfile, q string, options []string) string {
	return pickBool(options, p.RequiresSponsorship)
}

func identityValue(p *models.CandidateProfile, q string) string {
	switch {
	case strings.Contains(q, "linkedin"):
		return p.LinkedIn
	case strings.Contains(q, "github"):
		return p.GitHub
	case strings.Contains(q, "website"), strings.Contains(q, "portfolio"):
		if p.Portfolio != "" {
			return p.Portfolio
		}
		return p.GitHub
	case strings.Contains(q, "email"):
		return p.Email
	case strings.Contains(q, "phone"), strings.Contains(q, "mobile"):
		return p.Phone
	case strings.Contains(q, "company"), strings.Contains(q, "employer"):
		return p.CurrentCompany
	case strings.Contains(q, "title"):
		return p.CurrentTitle
	case strings.Contains(q, "first name"), strings.Contains(q, "given name"):
		return p.FirstName
	case strings.Contains(q, "last name"), strings.Contains(q, "surname"), strings.Contains(q, "family name"):
		return p.LastName
	case strings.Contains(q, "name"):
		return p.FullName
	case strings.Contains(q, "city"):
		return p.City
	case strings.Contains(q, "location"), strings.Contains(q, "address"):
		return p.Location()
	}
	return ""
}

// QuestionCategory returns the deterministic category of a question label, or
// CategoryUnknown.
func QuestionCategory(question string) string {
	q := NormalizeQuestion(question)
	for _, r := range answerRules {
		if r.matches(q) {
			return r.category
		}
	}
	return CategoryUnknown
}

var (
	folder     = cases.Fold()
	nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// NormalizeQuestion is the answer cache key: NFKC, case folded, punctuation
// and whitespace runs collapsed to one space.
func NormalizeQuestion(q string) string {
	s := folder.String(norm.NFKC.String(q))
	s = nonWordRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var placeholderPrefixes = []string{"select", "choose", "please select", "--", "none selected"}

// IsPlaceholderOption reports whether an option is a "Select an option" style
// prompt rather than a real value.
func IsPlaceholderOption(option string) bool {
	o := NormalizeQuestion(option)
	if o == "" {
		return true
	}
	raw := strings.ToLower(strings.TrimSpace(option))
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(raw, p) || strings.HasPrefix(o, p) {
			return true
		}
	}
	return false
}

// pick returns the first real option matching a preferred value, trying exact,
// prefix, then word-contains matches across all preferences in turn. With no
// options it returns the first non-empty preference.
func pick(options []string, preferred ...string) string {
	if len(options) == 0 {
		for _, p := range preferred {
			if p != "" {
				return p
			}
		}
		return ""
	}
	type cand struct{ raw, key string }
	var real []cand
	for _, o := range options {
		if !IsPlaceholderOption(o) {
			real = append(real, cand{o, NormalizeQuestion(o)})
		}
	}
	matchers := []func(opt, want string) bool{
		func(opt, want string) bool { return opt == want },
		func(opt, want string) bool { return strings.HasPrefix(opt, want+" ") },
		func(opt, want string) bool { return strings.Contains(" "+opt+" ", " "+want+" ") },
	}
	for _, m := range matchers {
		for _, p := range preferred {
			want := NormalizeQuestion(p)
			if want == "" {
				continue
			}
			for _, c := range real {
				if m(c.key, want) {
					return c.raw
				}
			}
		}
	}
	return ""
}

func pickBool(options []string, v bool) string {
	if v {
		return pick(options, "Yes", "True")
	}
	return pick(options, "No", "False")
}

// yesNoShaped reports whether every real option starts with yes or no.
func yesNoShaped(options []string) bool {
	n := 0
	for _, o := range options {
		if IsPlaceholderOption(o) {
			continue
		}
		k := NormalizeQuestion(o)
		if k != "yes" && k != "no" && !strings.HasPrefix(k, "yes ") && !strings.HasPrefix(k, "no ") {
			return false
		}
		n++
	}
	return n > 0
}

var (
	rangeRe = regexp.MustCompile(`(\d+)\s*(?:-|–|to)\s*(\d+)`)
	plusRe  = regexp.MustCompile(`(\d+)\s*\+|(\d+)\s*(?:or more|and above|or greater)`)
	lessRe  = regexp.MustCompile(`(?:less than|under|fewer than|<)\s*(\d+)`)
	exactRe = regexp.MustCompile(`^\s*(\d+)\s*(?:years?)?\s*$`)
)

// pickYears chooses the experience bucket containing years.
func pickYears(options []string, years int) string {
	for _, o := range options {
		lo := strings.ToLower(o)
		if m := rangeRe.FindStringSubmatch(lo); m != nil {
			a, _ := strconv.Atoi(m[1])
			b, _ := strconv.Atoi(m[2])
			if years >= a && years <= b {
				return o
			}
			continue
		}
		if m := plusRe.FindStringSubmatch(lo); m != nil {
			n := m[1]
			if n == "" {
				n = m[2]
			}
			a, _ := strconv.Atoi(n)
			if years >= a {
				return o
			}
			continue
		}
		if m := lessRe.FindStringSubmatch(lo); m != nil {
			a, _ := strconv.Atoi(m[1])
			if years < a {
				return o
			}
			continue
		}
		if m := exactRe.FindStringSubmatch(lo); m != nil {
			a, _ := strconv.Atoi(m[1])
			if years == a {
				return o
			}
		}
	}
	return ""
}
