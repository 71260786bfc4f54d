// Package intent implements the IntentClassifier (C8): a two-phase
// classifier that first applies cheap regex heuristics to recognize
// obviously technical OHADA/SYSCOHADA queries, and only falls back to an
// LLM classification call when the heuristics are inconclusive. Grounded
// on original_source/backend/src/generation/intent_classifier.py's
// is_technical_query_fast and LLMIntentAnalyzer.analyze_intent.
package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"dev.ohada.ragengine/internal/llm"
)

// Intent enumerates the categories an incoming query can be classified
// into, mirroring the four buckets the Python classifier's prompt names.
type Intent string

const (
	IntentGreeting  Intent = "greeting"
	IntentIdentity  Intent = "identity"
	IntentSmalltalk Intent = "smalltalk"
	IntentTechnical Intent = "technical"
)

// DetectionMethod records which phase produced the classification, useful
// for observability and matching the Python code's "detection_method" field.
type DetectionMethod string

const (
	MethodFastHeuristics DetectionMethod = "fast_heuristics"
	MethodLLM            DetectionMethod = "llm"
)

// Result is the outcome of classifying one query.
type Result struct {
	Intent              Intent
	Confidence          float64
	NeedsKnowledgeBase  bool
	Subcategory         string
	Explanation         string
	DetectionMethod     DetectionMethod
}

var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bcompte\s+\d+`),
	regexp.MustCompile(`\barticle\s+\d+`),
	regexp.MustCompile(`\bsection\s+\d+`),
	regexp.MustCompile(`\bchapitre\s+\d+`),
	regexp.MustCompile(`\bpartie\s+\d+`),
	regexp.MustCompile(`\bcomptabilis(er|ation)`),
	regexp.MustCompile(`\bsyscohada\b`),
	regexp.MustCompile(`\bohada\b`),
	regexp.MustCompile(`\bplan\s+comptable`),
	regexp.MustCompile(`\bquel(le)?\s+(est|sont)\s+(le|les)\s+compte`),
	regexp.MustCompile(`\bcomment\s+(enregistrer|comptabiliser)`),
	regexp.MustCompile(`\b(bilan|actif|passif|amortissement)`),
	regexp.MustCompile(`\b(débit|crédit|journal|écriture)`),
	regexp.MustCompile(`\b(immobilisation|stock|trésorerie)`),
	regexp.MustCompile(`\bnorme\s+(comptable|ohada)`),
}

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(bonjour|salut|hello|hi|hey|bonsoir)\s*[!.?]?\s*$`),
}

var smalltalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(merci(\s+beaucoup)?|thanks|au\s+revoir|bye)\s*[!.?]?\s*$`),
}

// fastClassify applies phase 1's regex heuristics. ok is true when the
// query is unambiguously technical or a short greeting/smalltalk form, in
// which case Result is terminal and phase 2's LLM call must not run. ok is
// false when phase 1 is inconclusive.
func fastClassify(query string) (Result, bool) {
	lower := strings.ToLower(query)

	for _, p := range technicalPatterns {
		if p.MatchString(lower) {
			return Result{
				Intent:             IntentTechnical,
				Confidence:         0.95,
				NeedsKnowledgeBase: true,
				Explanation:        "Requête technique détectée par analyse de patterns",
				DetectionMethod:    MethodFastHeuristics,
			}, true
		}
	}

	for _, p := range greetingPatterns {
		if p.MatchString(lower) {
			return Result{
				Intent:             IntentGreeting,
				Confidence:         0.95,
				NeedsKnowledgeBase: false,
				Explanation:        "Salutation détectée par analyse de patterns",
				DetectionMethod:    MethodFastHeuristics,
			}, true
		}
	}

	for _, p := range smalltalkPatterns {
		if p.MatchString(lower) {
			return Result{
				Intent:             IntentSmalltalk,
				Confidence:         0.9,
				NeedsKnowledgeBase: false,
				Explanation:        "Conversation générale détectée par analyse de patterns",
				DetectionMethod:    MethodFastHeuristics,
			}, true
		}
	}

	return Result{}, false
}

// Classifier implements the two-phase classification. LLM is optional: a
// nil LLM degrades phase two to the "technical" fallback, matching the
// Python code's behavior when analyze_intent's own LLM call errors.
type Classifier struct {
	llmClient *llm.Manager
	logger    *logrus.Entry
}

func New(llmClient *llm.Manager, logger *logrus.Entry) *Classifier {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Classifier{llmClient: llmClient, logger: logger}
}

const systemPrompt = `Tu es un assistant spécialisé dans l'analyse d'intention des questions utilisateur.

Ta tâche est de classifier les questions en différentes catégories :
- "greeting": Salutations comme "bonjour", "salut", etc.
- "identity": Questions sur l'identité ou les capacités de l'assistant.
- "smalltalk": Conversations générales comme remerciements, questions de courtoisie, au revoir.
- "technical": Questions techniques qui nécessitent des connaissances spécifiques.

Si c'est du "smalltalk", précise la sous-catégorie ("merci", "comment_ca_va", "au_revoir", etc.)

Réponds uniquement avec un objet JSON au format suivant:
{
    "intent": "greeting|identity|smalltalk|technical",
    "confidence": 0.XX,
    "subcategory": "string",
    "explanation": "string",
    "needs_knowledge_base": true|false
}`

type llmIntentPayload struct {
	Intent             string  `json:"intent"`
	Confidence         float64 `json:"confidence"`
	Subcategory        string  `json:"subcategory"`
	Explanation        string  `json:"explanation"`
	NeedsKnowledgeBase bool    `json:"needs_knowledge_base"`
}

// Classify runs the fast heuristic and, when inconclusive, phase two's LLM
// call. It never errors: any LLM or parse failure degrades to a
// low-confidence "technical" verdict so the pipeline always proceeds to
// retrieval, per the Python reference's except-block fallback.
func (c *Classifier) Classify(ctx context.Context, query string) Result {
	if result, ok := fastClassify(query); ok {
		c.logger.WithField("query", truncate(query, 50)).Debug("intent: fast heuristic match")
		return result
	}

	if c.llmClient == nil {
		return Result{Intent: IntentTechnical, NeedsKnowledgeBase: true, DetectionMethod: MethodLLM}
	}

	userPrompt := `Question utilisateur: "` + query + `"`
	response := c.llmClient.Complete(ctx, systemPrompt, userPrompt, 300, 0.1)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		c.logger.Warn("intent: no JSON object found in LLM response")
		return Result{Intent: IntentTechnical, NeedsKnowledgeBase: true, DetectionMethod: MethodLLM}
	}

	var parsed llmIntentPayload
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		c.logger.WithError(err).Warn("intent: malformed LLM classification JSON")
		return Result{Intent: IntentTechnical, NeedsKnowledgeBase: true, DetectionMethod: MethodLLM}
	}
	if parsed.Intent == "" {
		parsed.Intent = string(IntentTechnical)
		parsed.NeedsKnowledgeBase = true
	}

	return Result{
		Intent:             Intent(parsed.Intent),
		Confidence:         parsed.Confidence,
		NeedsKnowledgeBase: parsed.NeedsKnowledgeBase,
		Subcategory:        parsed.Subcategory,
		Explanation:        parsed.Explanation,
		DetectionMethod:    MethodLLM,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
