// Package assistant decides when the automated participant replies to a
// conversation and builds those replies.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

// Confidence reported with each structured recommendation.
const (
	LenderMatchConfidence    = 92
	RiskAssessmentConfidence = 88
)

// FallbackContent is appended when a reply cannot be synthesized.
const FallbackContent = "I encountered an error while processing your request. Please try again."

var triggerKeywords = []string{"eva", "match", "lender", "recommend", "analyze", "help"}

// ShouldRespond reports whether content asks for the assistant. Matching is a
// case-insensitive substring test against a fixed keyword list.
func ShouldRespond(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range triggerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Reply is a synthesized assistant message before it is appended.
type Reply struct {
	Content  string
	Metadata *model.MessageMetadata
}

// MessageType is eva_recommendation when the reply carries a recommendation.
func (r Reply) MessageType() model.MessageType {
	if r.Metadata != nil && r.Metadata.EvaRecommendation != nil {
		return model.MessageTypeEvaRecommendation
	}
	return model.MessageTypeText
}

// Recommender supplies ranked lenders for a conversation.
type Recommender interface {
	Recommend(conv model.Conversation) ([]model.LenderRecommendation, error)
}

// RecommenderFunc adapts a function to Recommender.
type RecommenderFunc func(conv model.Conversation) ([]model.LenderRecommendation, error)

// Recommend calls f.
func (f RecommenderFunc) Recommend(conv model.Conversation) ([]model.LenderRecommendation, error) {
	return f(conv)
}

// Narrator rewrites the prose of a rule-based reply. It never changes the
// decision or the structured metadata.
type Narrator interface {
	Narrate(ctx context.Context, conv model.Conversation, trigger model.Message, draft Reply) (string, error)
}

// Engine synthesizes replies with fixed precedence rules.
type Engine struct {
	recommender Recommender
	narrator    Narrator
	logger      *logger.Logger
}

// NewEngine creates an engine. narrator may be nil.
func NewEngine(recommender Recommender, narrator Narrator, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Global()
	}
	return &Engine{
		recommender: recommender,
		narrator:    narrator,
		logger:      log,
	}
}

// Synthesize builds the reply to trigger. Rules, first match wins:
//  1. "match" or "lender": lender-match recommendation
//  2. "analyze" or "credit": risk assessment
//  3. otherwise a clarifying question without metadata
func (e *Engine) Synthesize(ctx context.Context, conv model.Conversation, trigger model.Message) (Reply, error) {
	lower := strings.ToLower(trigger.Content)

	var (
		reply Reply
		err   error
	)
	switch {
	case strings.Contains(lower, "match") || strings.Contains(lower, "lender"):
		reply, err = e.lenderMatch(conv)
	case strings.Contains(lower, "analyze") || strings.Contains(lower, "credit"):
		reply = riskAssessment(conv)
	default:
		reply = clarify(conv)
	}
	if err != nil {
		return Reply{}, err
	}

	if e.narrator != nil {
		text, nerr := e.narrator.Narrate(ctx, conv, trigger, reply)
		switch {
		case nerr != nil:
			e.logger.Warn("narration failed, using rule-based reply",
				zap.String("conversation_id", conv.ID),
				zap.Error(nerr),
			)
		case strings.TrimSpace(text) != "":
			reply.Content = text
		}
	}
	return reply, nil
}

func (e *Engine) lenderMatch(conv model.Conversation) (Reply, error) {
	if e.recommender == nil {
		return Reply{}, fmt.Errorf("no recommender configured")
	}
	recs, err := e.recommender.Recommend(conv)
	if err != nil {
		return Reply{}, fmt.Errorf("recommend lenders: %w", err)
	}
	if len(recs) == 0 {
		return Reply{Content: fmt.Sprintf(
			"I reviewed our lender panel for this %s %s deal but none of them currently write this type and size of transaction. "+
				"Adjusting the amount or structure may open up options.",
			formatAmount(conv.DealAmount), conv.DealType.Label(),
		)}, nil
	}

	top := recs[0]
	speed := fmt.Sprintf("Closes in %d days", top.TimeToClose)
	terms := fmt.Sprintf("%.2f%% estimated rate, %s", top.EstimatedRate, top.EstimatedTerms)
	if len(recs) > 1 {
		next := recs[1]
		if diff := next.TimeToClose - top.TimeToClose; diff > 0 {
			speed = fmt.Sprintf("Closes %d days faster than %s", diff, next.LenderName)
		}
		if diff := next.EstimatedRate - top.EstimatedRate; diff > 0 {
			terms = fmt.Sprintf("%.2f%% estimated rate, %.2f points below %s", top.EstimatedRate, diff, next.LenderName)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on my analysis of this %s %s deal, here are the best lender matches:\n\n",
		formatAmount(conv.DealAmount), conv.DealType.Label())
	for i, r := range recs {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s: %d%% approval probability, %.2f%% estimated rate, %d days to close\n",
			i+1, r.LenderName, r.ApprovalProbability, r.EstimatedRate, r.TimeToClose)
	}
	fmt.Fprintf(&b, "\n%s is my top recommendation. %s.", top.LenderName, top.CompetitiveEdge)

	return Reply{
		Content: b.String(),
		Metadata: &model.MessageMetadata{EvaRecommendation: &model.EvaRecommendation{
			Type:       model.RecommendationLenderMatch,
			Confidence: LenderMatchConfidence,
			Data: map[string]any{
				"topRecommendation": top.LenderName,
				"speedAdvantage":    speed,
				"termAdvantage":     terms,
			},
		}},
	}, nil
}

func riskAssessment(conv model.Conversation) Reply {
	risk := conv.BorrowerRisk
	level := RiskLevel(risk)

	credit := "not yet provided"
	if risk.CreditScore > 0 {
		credit = fmt.Sprintf("%d", risk.CreditScore)
	}
	dscr := "not yet provided"
	if risk.DSCR > 0 {
		dscr = fmt.Sprintf("%.2fx", risk.DSCR)
	}

	content := fmt.Sprintf(
		"Credit analysis for %s:\n\n- Credit score: %s\n- Debt service coverage: %s\n- Overall risk: %s\n\n%s",
		borrowerLabel(conv), credit, dscr, level, riskAdvice(level),
	)

	return Reply{
		Content: content,
		Metadata: &model.MessageMetadata{EvaRecommendation: &model.EvaRecommendation{
			Type:       model.RecommendationRiskAssessment,
			Confidence: RiskAssessmentConfidence,
			Data: map[string]any{
				"creditScore": risk.CreditScore,
				"dscr":        risk.DSCR,
				"riskLevel":   level,
			},
		}},
	}
}

func clarify(conv model.Conversation) Reply {
	return Reply{Content: fmt.Sprintf(
		"I can help with lender matching, credit analysis and deal structuring for this %s deal. "+
			"Ask me to find lender matches or to analyze the borrower's credit.",
		conv.DealType.Label(),
	)}
}

// RiskLevel grades a borrower profile as low, moderate, high or undetermined.
func RiskLevel(r model.BorrowerRisk) string {
	if r.CreditScore == 0 && r.DSCR == 0 {
		return "undetermined"
	}
	points := 0
	switch {
	case r.CreditScore == 0:
		points++
	case r.CreditScore >= 720:
	case r.CreditScore >= 660:
		points++
	default:
		points += 3
	}
	switch {
	case r.DSCR == 0:
		points++
	case r.DSCR >= 1.5:
	case r.DSCR >= 1.25:
		points++
	default:
		points += 3
	}
	switch {
	case points <= 1:
		return "low"
	case points <= 3:
		return "moderate"
	default:
		return "high"
	}
}

func riskAdvice(level string) string {
	switch level {
	case "low":
		return "This profile should qualify for bank and preferred-rate programs."
	case "moderate":
		return "Expect standard pricing; stronger collateral or a guarantor would widen the lender pool."
	case "high":
		return "Consider alternative lenders and be ready to document recent cash flow."
	default:
		return "Share the borrower's credit score and DSCR so I can complete the assessment."
	}
}

func borrowerLabel(conv model.Conversation) string {
	if conv.BorrowerName != "" {
		return conv.BorrowerName
	}
	return "this borrower"
}

func formatAmount(amount float64) string {
	whole := fmt.Sprintf("%.0f", amount)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}
