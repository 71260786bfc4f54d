package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"dev.ohada.ragengine/internal/llm"
)

func TestFastClassify_Technical(t *testing.T) {
	cases := []string{
		"Quel est le compte 401 ?",
		"article 23 du SYSCOHADA",
		"comment comptabiliser un stock",
	}
	for _, query := range cases {
		result, ok := fastClassify(query)
		assert.True(t, ok, "query=%q", query)
		assert.Equal(t, IntentTechnical, result.Intent, "query=%q", query)
	}
}

func TestFastClassify_Greeting(t *testing.T) {
	for _, query := range []string{"bonjour", "salut"} {
		result, ok := fastClassify(query)
		assert.True(t, ok, "query=%q", query)
		assert.Equal(t, IntentGreeting, result.Intent, "query=%q", query)
		assert.False(t, result.NeedsKnowledgeBase, "query=%q", query)
		assert.Equal(t, MethodFastHeuristics, result.DetectionMethod, "query=%q", query)
	}
}

func TestFastClassify_Smalltalk(t *testing.T) {
	result, ok := fastClassify("merci beaucoup")
	assert.True(t, ok)
	assert.Equal(t, IntentSmalltalk, result.Intent)
	assert.False(t, result.NeedsKnowledgeBase)
}

func TestFastClassify_InconclusiveForOrdinaryProse(t *testing.T) {
	_, ok := fastClassify("ça va")
	assert.False(t, ok)
}

func TestClassify_FastPathSkipsLLM(t *testing.T) {
	c := New(nil, nil)
	result := c.Classify(context.Background(), "article 23 du plan comptable")
	assert.Equal(t, IntentTechnical, result.Intent)
	assert.Equal(t, MethodFastHeuristics, result.DetectionMethod)
	assert.True(t, result.NeedsKnowledgeBase)
}

func TestClassify_GreetingShortCircuitsNoLLM(t *testing.T) {
	c := New(nil, nil)
	result := c.Classify(context.Background(), "bonjour")
	assert.Equal(t, IntentGreeting, result.Intent)
	assert.Equal(t, MethodFastHeuristics, result.DetectionMethod)
	assert.False(t, result.NeedsKnowledgeBase)
}

type fakeProvider struct {
	response string
}

func (f *fakeProvider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return f.response, nil
}

func (f *fakeProvider) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Text: f.response}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func TestClassify_LLMPathParsesJSON(t *testing.T) {
	fake := &fakeProvider{response: `{"intent":"greeting","confidence":0.8,"explanation":"salutation","needs_knowledge_base":false}`}
	manager := llm.NewManager(nil, fake)

	c := New(manager, nil)
	result := c.Classify(context.Background(), "comment vas tu aujourd'hui")

	assert.Equal(t, IntentGreeting, result.Intent)
	assert.False(t, result.NeedsKnowledgeBase)
	assert.Equal(t, MethodLLM, result.DetectionMethod)
}

func TestClassify_MalformedJSONDegradesToTechnical(t *testing.T) {
	fake := &fakeProvider{response: "not json at all"}
	manager := llm.NewManager(nil, fake)

	c := New(manager, nil)
	result := c.Classify(context.Background(), "comment vas tu aujourd'hui")

	assert.Equal(t, IntentTechnical, result.Intent)
	assert.True(t, result.NeedsKnowledgeBase)
}
