package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dev.ohada.ragengine/internal/ctxbuilder"
	"dev.ohada.ragengine/internal/models"
)

// EventType enumerates SearchStream's typed event kinds, per spec §4.12.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one frame of a SearchStream response. Only the fields relevant
// to Type are populated.
type Event struct {
	Type       EventType             `json:"type"`
	ID         uuid.UUID             `json:"id"`
	Query      string                `json:"query,omitempty"`
	Timestamp  time.Time             `json:"timestamp,omitempty"`
	Status     string                `json:"status,omitempty"`
	Completion float64               `json:"completion"`
	Text       string                `json:"text,omitempty"`
	Answer     *models.ScoredAnswer  `json:"answer,omitempty"`
	Message    string                `json:"message,omitempty"`
}

// phaseOrder and phaseCompletion assign a monotonically increasing
// completion fraction to each named phase boundary, matching the state machine's fixed step
// order so progress is deterministic regardless of timing.
var phaseOrder = []string{
	"cache-check", "classify-intent", "reformulate", "retrieve",
	"build-context", "generate", "enrich-sources",
}

func phaseCompletion(phase string) float64 {
	for i, p := range phaseOrder {
		if p == phase {
			return float64(i+1) / float64(len(phaseOrder))
		}
	}
	return 0
}

// SearchStream implements spec.md §4.12's streaming state machine: the
// non-generate phases run exactly as in Search, emitting `progress` events
// at each boundary; `generate` is replaced by `generate-stream`, which
// relays LLM chunks with monotonically increasing `completion`. Closing
// ctx (sink disconnect, per the caller's convention) cancels the
// in-flight LLM stream within one round trip; no `complete` follows a
// cancellation. sink is never closed by SearchStream — the caller owns it.
func (p *Pipeline) SearchStream(ctx context.Context, query string, filters []models.Filter, k int, includeSources, cacheOK bool, sink chan<- Event) (*models.ScoredAnswer, error) {
	start := time.Now()
	if err := validate(query, k); err != nil {
		return nil, err
	}
	k = clampK(k)

	id := uuid.New()
	emit := func(e Event) {
		e.ID = id
		select {
		case sink <- e:
		case <-ctx.Done():
		}
	}

	emit(Event{Type: EventStart, Query: query, Timestamp: time.Now()})

	if cacheOK && p.cacheTier != nil {
		if cached, hit := p.cacheTier.GetAnswer(ctx, query, filters); hit {
			emit(Event{Type: EventProgress, Status: "cache-check", Completion: 1.0})
			cached.Performance = append(cached.Performance, models.PhaseTiming{Phase: "total", Seconds: time.Since(start).Seconds()})
			emit(Event{Type: EventComplete, Answer: cached, Completion: 1.0})
			return cached, nil
		}
	}
	emit(Event{Type: EventProgress, Status: "cache-check", Completion: phaseCompletion("cache-check")})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := p.classifier.Classify(ctx, query)
	emit(Event{Type: EventProgress, Status: "classify-intent", Completion: phaseCompletion("classify-intent")})

	if !result.NeedsKnowledgeBase {
		if reply, ok := p.directReply(ctx, query, result); ok {
			answer := &models.ScoredAnswer{
				QueryID:     id,
				Query:       query,
				Answer:      reply,
				Sources:     []models.SourceView{},
				Intent:      string(result.Intent),
				Timestamp:   time.Now(),
				Performance: []models.PhaseTiming{{Phase: "total", Seconds: time.Since(start).Seconds()}},
			}
			p.writeCache(ctx, query, filters, answer)
			emit(Event{Type: EventComplete, Answer: answer, Completion: 1.0})
			return answer, nil
		}
	}

	searchQuery := query
	if p.reformulator != nil {
		searchQuery = p.reformulator.Reformulate(ctx, query)
	}
	emit(Event{Type: EventProgress, Status: "reformulate", Completion: phaseCompletion("reformulate")})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var candidates []models.RetrievalCandidate
	if p.retriever != nil {
		candidates = p.retriever.SearchHybrid(ctx, searchQuery, filters, k, true)
	}
	emit(Event{Type: EventProgress, Status: "retrieve", Completion: phaseCompletion("retrieve")})

	packedContext := ctxbuilder.SummarizeContext(candidates, contextMaxTokens)
	emit(Event{Type: EventProgress, Status: "build-context", Completion: phaseCompletion("build-context")})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	answerText, err := p.generateStream(ctx, query, packedContext, emit)
	if err != nil {
		emit(Event{Type: EventError, Message: err.Error()})
		return nil, err
	}

	var sources []models.SourceView
	if includeSources {
		sources = ctxbuilder.PrepareSources(candidates)
	} else {
		sources = []models.SourceView{}
	}
	emit(Event{Type: EventProgress, Status: "enrich-sources", Completion: phaseCompletion("enrich-sources")})

	answer := &models.ScoredAnswer{
		QueryID:     id,
		Query:       query,
		Answer:      answerText,
		Sources:     sources,
		Intent:      string(result.Intent),
		Timestamp:   time.Now(),
		Performance: []models.PhaseTiming{{Phase: "total", Seconds: time.Since(start).Seconds()}},
	}

	p.writeCache(ctx, query, filters, answer)

	emit(Event{Type: EventComplete, Answer: answer, Completion: 1.0})
	return answer, nil
}

// generateStream relays llm.Manager's chunk stream to sink via emit,
// accumulating the full answer text. Cancellation of ctx stops relaying
// immediately and returns ctx.Err() — the caller must not emit `complete`
// in that case.
func (p *Pipeline) generateStream(ctx context.Context, query, contextText string, emit func(Event)) (string, error) {
	if p.llmManager == nil {
		return "", nil
	}

	system := fmt.Sprintf(generateSystemTemplate, p.persona.Name, p.persona.Expertise, p.persona.Region)
	user := query
	if contextText != "" {
		user = "Contexte:\n" + contextText + "\n\nQuestion: " + query
	}

	ch := p.llmManager.CompleteStream(ctx, system, user, p.persona.MaxTokens, p.persona.Temp)

	var full []byte
	chunkIdx := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return string(full), nil
			}
			if chunk.Err != nil {
				return "", chunk.Err
			}
			full = append(full, chunk.Text...)
			chunkIdx++
			completion := phaseCompletion("build-context") + (1.0-phaseCompletion("build-context"))*chunkCompletionFraction(chunkIdx)
			emit(Event{Type: EventChunk, Text: chunk.Text, Completion: completion})
		}
	}
}

// chunkCompletionFraction asymptotically approaches but never reaches 1.0
// purely from chunk count, since the true chunk total is unknown until the
// stream closes; the generate phase's fractional budget is exhausted by
// the subsequent enrich-sources/complete events.
func chunkCompletionFraction(chunkIdx int) float64 {
	return 1.0 - 1.0/float64(chunkIdx+1)
}
