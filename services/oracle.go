package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"jobpilot/config"
)

// ResponseConstraint tells the oracle what shape of answer is acceptable.
type ResponseConstraint int

const (
	ConstraintYesNo ResponseConstraint = iota
	ConstraintOneOf
	ConstraintShortText
)

func (c ResponseConstraint) String() string {
	switch c {
	case ConstraintYesNo:
		return "yes-no"
	case ConstraintOneOf:
		return "one-of"
	default:
		return "short-text"
	}
}

// OracleRequest is one question put to the text-completion oracle.
type OracleRequest struct {
	SystemContext string
	Question      string
	Constraint    ResponseConstraint
	Options       []string
}

// Oracle answers questions the deterministic rules cannot. Replies are
// untrusted and always normalized by the resolver.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (string, error)
}

// NewOracle builds the oracle selected by cfg.Provider. "none" yields a nil
// oracle, which makes the resolver skip unmatched questions.
func NewOracle(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (Oracle, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "none":
		return nil, nil
	case "gemini":
		o, err := NewGeminiOracle(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// GeminiOracle asks a Gemini model through the genai SDK.
type GeminiOracle struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewGeminiOracle(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiOracle{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.Named("oracle.gemini"),
	}, nil
}

func (o *GeminiOracle) Complete(ctx context.Context, req OracleRequest) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.client.Models.GenerateContent(ctx, o.model,
		genai.Text(BuildOraclePrompt(req)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(BuildSystemInstruction(req.SystemContext), genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
			MaxOutputTokens:   256,
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	o.logger.Debug("Oracle reply",
		zap.String("constraint", req.Constraint.String()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("reply_len", len(text)))
	return text, nil
}

// BuildSystemInstruction frames the candidate document for the model.
func BuildSystemInstruction(document string) string {
	var b strings.Builder
	b.WriteString("You are filling out a job application on behalf of the candidate described below. ")
	b.WriteString("Answer only from the candidate document. Never invent facts. ")
	b.WriteString("If the document does not contain the answer, say exactly: " + SentinelText + ".\n\n")
	b.WriteString("Candidate document:\n")
	b.WriteString(document)
	return b.String()
}

// BuildOraclePrompt renders the question with its response constraint.
func BuildOraclePrompt(req OracleRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	switch req.Constraint {
	case ConstraintYesNo:
		b.WriteString("Answer strictly with Yes or No and nothing else.")
	case ConstraintOneOf:
		b.WriteString("Answer with exactly one of the following options, copied verbatim:\n")
		for _, o := range req.Options {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	default:
		b.WriteString("Answer in one short phrase or sentence of at most 30 words.")
	}
	return b.String()
}
