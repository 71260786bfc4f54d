// Package pipeline implements the AnswerPipeline (C12): the explicit
// state machine that turns a free-text query into a ScoredAnswer, wiring
// together every other component (cache, intent, reformulate, retriever,
// context builder, LLM). Grounded on spec.md §4.12's state table and on
// original_source's search_and_stream_response event shape for the
// streaming variant.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.ohada.ragengine/internal/cache"
	"dev.ohada.ragengine/internal/config"
	"dev.ohada.ragengine/internal/ctxbuilder"
	"dev.ohada.ragengine/internal/intent"
	"dev.ohada.ragengine/internal/llm"
	"dev.ohada.ragengine/internal/models"
	"dev.ohada.ragengine/internal/perr"
	"dev.ohada.ragengine/internal/reformulate"
	"dev.ohada.ragengine/internal/retriever"
)

const (
	minK            = 1
	maxK            = 20
	defaultK        = 5
	contextMaxTokens = 1800
)

// Pipeline wires C1-C11 into the Search/SearchStream state machine.
type Pipeline struct {
	cacheTier    *cache.Tier
	classifier   *intent.Classifier
	reformulator *reformulate.Reformulator
	retriever    *retriever.Retriever
	llmManager   *llm.Manager
	persona      config.AssistantPersonality
	answerTTL    time.Duration
	logger       *logrus.Entry
}

func New(cacheTier *cache.Tier, classifier *intent.Classifier, reformulator *reformulate.Reformulator, r *retriever.Retriever, llmManager *llm.Manager, persona config.AssistantPersonality, answerTTL time.Duration, logger *logrus.Entry) *Pipeline {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Pipeline{
		cacheTier:    cacheTier,
		classifier:   classifier,
		reformulator: reformulator,
		retriever:    r,
		llmManager:   llmManager,
		persona:      persona,
		answerTTL:    answerTTL,
		logger:       logger,
	}
}

func clampK(k int) int {
	if k <= 0 {
		return defaultK
	}
	if k > maxK {
		return maxK
	}
	if k < minK {
		return minK
	}
	return k
}

func validate(query string, k int) error {
	if query == "" {
		return perr.ErrInputInvalid
	}
	if k != 0 && (k < minK || k > maxK) {
		return perr.ErrInputInvalid
	}
	return nil
}

// Search implements spec.md §4.12's non-streaming state machine.
func (p *Pipeline) Search(ctx context.Context, query string, filters []models.Filter, k int, includeSources, cacheOK bool) (*models.ScoredAnswer, error) {
	start := time.Now()
	if err := validate(query, k); err != nil {
		return nil, err
	}
	k = clampK(k)

	var timings []models.PhaseTiming
	phase := func(name string, since time.Time) {
		timings = append(timings, models.PhaseTiming{Phase: name, Seconds: time.Since(since).Seconds()})
	}

	// cache-check
	cacheStart := time.Now()
	if cacheOK && p.cacheTier != nil {
		if cached, hit := p.cacheTier.GetAnswer(ctx, query, filters); hit {
			phase("cache-check", cacheStart)
			cached.Performance = append(cached.Performance, models.PhaseTiming{Phase: "total", Seconds: time.Since(start).Seconds()})
			return cached, nil
		}
	}
	phase("cache-check", cacheStart)

	// classify-intent
	classifyStart := time.Now()
	result := p.classifier.Classify(ctx, query)
	phase("classify-intent", classifyStart)

	if !result.NeedsKnowledgeBase {
		if reply, ok := p.directReply(ctx, query, result); ok {
			answer := &models.ScoredAnswer{
				QueryID:     uuid.New(),
				Query:       query,
				Answer:      reply,
				Sources:     []models.SourceView{},
				Intent:      string(result.Intent),
				Timestamp:   time.Now(),
				Performance: append(timings, models.PhaseTiming{Phase: "total", Seconds: time.Since(start).Seconds()}),
			}
			p.writeCache(ctx, query, filters, answer)
			return answer, nil
		}
		// direct-reply failed: fall through to reformulate/retrieve, per the
		// state table's direct-reply -> reformulate failure transition.
	}

	// reformulate
	reformulateStart := time.Now()
	searchQuery := query
	if p.reformulator != nil {
		searchQuery = p.reformulator.Reformulate(ctx, query)
	}
	phase("reformulate", reformulateStart)

	// retrieve
	retrieveStart := time.Now()
	var candidates []models.RetrievalCandidate
	if p.retriever != nil {
		candidates = p.retriever.SearchHybrid(ctx, searchQuery, filters, k, true)
	}
	phase("retrieve", retrieveStart)

	// build-context
	contextStart := time.Now()
	packedContext := ctxbuilder.SummarizeContext(candidates, contextMaxTokens)
	phase("build-context", contextStart)

	// generate (or llm-only when retrieval produced nothing)
	generateStart := time.Now()
	answerText := p.generate(ctx, query, packedContext)
	phase("generate", generateStart)

	// enrich-sources
	var sources []models.SourceView
	if includeSources {
		enrichStart := time.Now()
		sources = ctxbuilder.PrepareSources(candidates)
		phase("enrich-sources", enrichStart)
	} else {
		sources = []models.SourceView{}
	}

	answer := &models.ScoredAnswer{
		QueryID:     uuid.New(),
		Query:       query,
		Answer:      answerText,
		Sources:     sources,
		Intent:      string(result.Intent),
		Timestamp:   time.Now(),
		Performance: append(timings, models.PhaseTiming{Phase: "total", Seconds: time.Since(start).Seconds()}),
	}

	// cache-write (best-effort; failures do not fail the request)
	p.writeCache(ctx, query, filters, answer)

	return answer, nil
}

func (p *Pipeline) writeCache(ctx context.Context, query string, filters []models.Filter, answer *models.ScoredAnswer) {
	if p.cacheTier == nil {
		return
	}
	if err := p.cacheTier.PutAnswer(ctx, query, filters, answer, p.answerTTL); err != nil {
		p.logger.WithError(err).Warn("pipeline: cache-write failed, answer still returned")
	}
}

const directReplySystemTemplate = `Tu es %s, un assistant spécialisé en %s dans la %s.

Tu dois répondre de manière naturelle à l'utilisateur en fonction de l'intention de sa question.

Points importants sur ton identité:
- Tu es spécialiste des normes comptables OHADA et SYSCOHADA
- Tu connais parfaitement le plan comptable OHADA
- Tu es conçu pour aider avec des questions de comptabilité dans la zone OHADA
- Tu peux expliquer les procédures comptables, les normes, et comment appliquer le plan comptable

Réponds de façon concise, professionnelle mais chaleureuse.`

// directReply generates a persona-shaped reply for greeting/identity/
// smalltalk intents without touching retrieval, grounded on
// intent_classifier.py's generate_response. ok is false when the intent
// isn't one of the three direct-reply categories, signalling the caller
// to fall through to retrieval instead.
func (p *Pipeline) directReply(ctx context.Context, query string, result intent.Result) (string, bool) {
	var userPrompt string
	switch result.Intent {
	case intent.IntentGreeting:
		userPrompt = fmt.Sprintf(`L'utilisateur te dit: "%s". Réponds avec une salutation professionnelle qui mentionne ton rôle d'expert OHADA et propose ton aide.`, query)
	case intent.IntentIdentity:
		userPrompt = fmt.Sprintf(`L'utilisateur te demande qui tu es ou ce que tu peux faire: "%s". Présente-toi en détaillant tes capacités en tant qu'expert comptable OHADA.`, query)
	case intent.IntentSmalltalk:
		userPrompt = fmt.Sprintf(`L'utilisateur fait du smalltalk, catégorie '%s': "%s". Réponds de façon appropriée tout en rappelant subtilement ton domaine d'expertise OHADA.`, result.Subcategory, query)
	default:
		return "", false
	}

	if p.llmManager == nil {
		return "", false
	}

	system := fmt.Sprintf(directReplySystemTemplate, p.persona.Name, p.persona.Expertise, p.persona.Region)
	reply := p.llmManager.Complete(ctx, system, userPrompt, p.persona.MaxTokens, p.persona.Temp)
	if reply == "" {
		return "", false
	}
	return reply, true
}

const generateSystemTemplate = `Tu es %s, expert en %s dans la %s. Réponds à la question en t'appuyant strictement sur le contexte fourni. Si le contexte est vide ou insuffisant, réponds avec tes connaissances générales en le signalant.`

// generate produces the final answer text from the (possibly empty)
// packed context, per spec §4.12's generate/llm-only transition.
func (p *Pipeline) generate(ctx context.Context, query, contextText string) string {
	if p.llmManager == nil {
		return ""
	}
	system := fmt.Sprintf(generateSystemTemplate, p.persona.Name, p.persona.Expertise, p.persona.Region)
	user := query
	if contextText != "" {
		user = "Contexte:\n" + contextText + "\n\nQuestion: " + query
	}
	return p.llmManager.Complete(ctx, system, user, p.persona.MaxTokens, p.persona.Temp)
}
