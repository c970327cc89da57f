package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"jobpilot/models"
)

// Sentinel answers returned instead of low-confidence oracle text.
const (
	SentinelChoice = "Not sure"
	SentinelText   = "Not available"
)

// maxTextAnswer caps free-text answers written into a form.
const maxTextAnswer = 400

// AnswerSource tells where an answer came from.
type AnswerSource string

const (
	SourceRule   AnswerSource = "rule"
	SourceOracle AnswerSource = "oracle"
	SourceCache  AnswerSource = "cache"
)

// Answer is a resolved field value.
type Answer struct {
	Value    string       `json:"value"`
	Source   AnswerSource `json:"source"`
	Category string       `json:"category,omitempty"`
}

// Sentinel reports whether the answer is one of the "don't know" sentinels.
func (a Answer) Sentinel() bool {
	return a.Value == SentinelChoice || a.Value == SentinelText
}

// ResolverStats counts how questions were answered during a run.
type ResolverStats struct {
	RuleHits    int `json:"rule_hits"`
	CacheHits   int `json:"cache_hits"`
	OracleCalls int `json:"oracle_calls"`
	Sentinels   int `json:"sentinels"`
}

// FieldAnswerResolver answers form questions from deterministic rules first
// and the oracle second. Every resolution is cached for the resolver's life,
// which is one orchestrator run.
type FieldAnswerResolver struct {
	profile *models.CandidateProfile
	oracle  Oracle
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]Answer
	stats ResolverStats
}

// NewFieldAnswerResolver builds a resolver. oracle may be nil, in which case
// unmatched questions fail with ErrOracleUnavailable.
func NewFieldAnswerResolver(profile *models.CandidateProfile, oracle Oracle, logger *zap.Logger) *FieldAnswerResolver {
	if profile == nil {
		profile = &models.CandidateProfile{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldAnswerResolver{
		profile: profile,
		oracle:  oracle,
		logger:  logger.Named("resolver"),
		cache:   map[string]Answer{},
	}
}

// ResolveChoice picks one of options for question.
func (r *FieldAnswerResolver) ResolveChoice(ctx context.Context, question string, options []string) (Answer, error) {
	var real []string
	for _, o := range options {
		if !IsPlaceholderOption(o) {
			real = append(real, o)
		}
	}
	return r.resolve(ctx, "choice", question, real)
}

// ResolveText produces a short free-text answer for question.
func (r *FieldAnswerResolver) ResolveText(ctx context.Context, question string) (Answer, error) {
	return r.resolve(ctx, "text", question, nil)
}

// Stats returns a snapshot of the counters.
func (r *FieldAnswerResolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *FieldAnswerResolver) resolve(ctx context.Context, kind, question string, options []string) (Answer, error) {
	q := NormalizeQuestion(question)
	key := kind + "|" + q

	r.mu.Lock()
	if a, ok := r.cache[key]; ok {
		r.stats.CacheHits++
		r.mu.Unlock()
		a.Source = SourceCache
		return a, nil
	}
	r.mu.Unlock()

	if a, ok := r.fromRules(q, options); ok {
		r.store(key, a, func(s *ResolverStats) { s.RuleHits++ })
		r.logger.Debug("Answered by rule",
			zap.String("question", question),
			zap.String("category", a.Category))
		return a, nil
	}

	if r.oracle == nil {
		return Answer{}, fmt.Errorf("no rule for %q: %w", question, ErrOracleUnavailable)
	}

	req := OracleRequest{
		SystemContext: r.profile.Document(),
		Question:      strings.TrimSpace(question),
		Constraint:    constraintFor(kind, options),
		Options:       options,
	}
	reply, err := r.oracle.Complete(ctx, req)
	r.mu.Lock()
	r.stats.OracleCalls++
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("Oracle call failed", zap.String("question", question), zap.Error(err))
		return Answer{}, fmt.Errorf("oracle failed for %q: %w: %v", question, ErrOracleUnavailable, err)
	}

	a := Answer{Source: SourceOracle, Category: QuestionCategory(question)}
	if kind == "choice" {
		a.Value = normalizeChoiceReply(reply, req.Constraint, options)
	} else {
		a.Value = normalizeTextReply(reply)
	}
	r.store(key, a, func(s *ResolverStats) {
		if a.Sentinel() {
			s.Sentinels++
		}
	})
	r.logger.Debug("Answered by oracle",
		zap.String("question", question),
		zap.Bool("sentinel", a.Sentinel()))
	return a, nil
}

func (r *FieldAnswerResolver) fromRules(q string, options []string) (Answer, bool) {
	for k, v := range r.profile.ExtraQA {
		if NormalizeQuestion(k) == q && v != "" {
			if val := pick(options, v); val != "" {
				return Answer{Value: val, Source: SourceRule, Category: CategoryProfile}, true
			}
		}
	}
	for _, rule := range answerRules {
		if !rule.matches(q) {
			continue
		}
		if v := rule.answer(r.profile, q, options); v != "" {
			return Answer{Value: v, Source: SourceRule, Category: rule.category}, true
		}
		// The first matching category owns the question even without an answer.
		return Answer{}, false
	}
	return Answer{}, false
}

func (r *FieldAnswerResolver) store(key string, a Answer, count func(*ResolverStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = a
	count(&r.stats)
}

func constraintFor(kind string, options []string) ResponseConstraint {
	switch {
	case kind == "text":
		return ConstraintShortText
	case len(options) == 0 || yesNoShaped(options):
		return ConstraintYesNo
	default:
		return ConstraintOneOf
	}
}

var refusalMarkers = []string{
	"i'm sorry", "i am sorry", "as an ai", "as a language model", "i cannot", "i can't",
	"i can not", "unable to", "not sure", "don't know", "do not know", "unknown",
	"n/a", "no information", "not provided", "not specified", "not mentioned",
	"cannot determine", "can't determine", "insufficient", "not available",
	"does not contain", "doesn't contain", "does not say", "doesn't say",
}

func isRefusal(reply string) bool {
	l := strings.ToLower(reply)
	if l == "" || l == "na" || l == "none" {
		return true
	}
	for _, m := range refusalMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

func cleanReply(reply string) string {
	s := strings.TrimSpace(reply)
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimSpace(strings.TrimSuffix(s, "."))
	return s
}

// normalizeChoiceReply maps an oracle reply onto one of options, or onto the
// choice sentinel when the reply is a refusal or matches nothing.
func normalizeChoiceReply(reply string, constraint ResponseConstraint, options []string) string {
	s := cleanReply(reply)
	if isRefusal(s) {
		return sentinelChoice(options)
	}
	if constraint == ConstraintYesNo {
		first := strings.ToLower(strings.Fields(s + " ")[0])
		first = strings.Trim(first, ",.!;:")
		switch first {
		case "yes":
			s = "Yes"
		case "no":
			s = "No"
		default:
			return sentinelChoice(options)
		}
	}
	if len(options) == 0 {
		return s
	}
	if v := pick(options, s); v != "" {
		return v
	}
	return sentinelChoice(options)
}

// sentinelChoice prefers a real "not sure" style option when the field offers
// one.
func sentinelChoice(options []string) string {
	if v := pick(options, append([]string{SentinelChoice, "Unsure", "Maybe"}, preferNotToAnswer...)...); v != "" {
		return v
	}
	return SentinelChoice
}

func normalizeTextReply(reply string) string {
	s := cleanReply(reply)
	if isRefusal(s) {
		return SentinelText
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxTextAnswer {
		s = truncateSentence(s, maxTextAnswer)
	}
	return s
}

// truncateSentence cuts s to at most n runes, at the last sentence end when
// there is one.
func truncateSentence(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := r[:n]
	for i := len(cut) - 1; i > n/2; i-- {
		switch cut[i] {
		case '.', '!', '?':
			return string(cut[:i+1])
		}
	}
	return strings.TrimSpace(string(cut))
}
