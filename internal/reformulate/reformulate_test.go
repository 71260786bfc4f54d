package reformulate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"dev.ohada.ragengine/internal/llm"
)

func TestShouldReformulate(t *testing.T) {
	cases := map[string]bool{
		"Quel est le compte 401 ?":                                              false,
		"Comment enregistrer une immobilisation dans SYSCOHADA":                 false,
		"Dis-moi tout ce que tu sais à propos du traitement de ce dossier complexe avant la clôture annuelle": true,
		"bonjour":                                                               false,
	}
	for query, want := range cases {
		assert.Equal(t, want, ShouldReformulate(query), "query=%q", query)
	}
}

func TestReformulate_SkipsPreciseQuery(t *testing.T) {
	r := New(nil, nil)
	out := r.Reformulate(context.Background(), "Quel est le compte 401 ?")
	assert.Equal(t, "Quel est le compte 401 ?", out)
}

type fakeProvider struct{ response string }

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	return f.response, nil
}
func (f *fakeProvider) CompleteStream(ctx context.Context, system, user string, maxTokens int, temperature float64) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func TestReformulate_RewritesComplexQuery(t *testing.T) {
	fake := &fakeProvider{response: "  stocks obsolètes dépréciation provisions SYSCOHADA  "}
	manager := llm.NewManager(nil, fake)
	r := New(manager, nil)

	out := r.Reformulate(context.Background(), "Dis-moi tout ce que tu sais à propos du traitement de ce dossier complexe avant la clôture annuelle de cette entreprise")

	assert.Equal(t, "stocks obsolètes dépréciation provisions SYSCOHADA", out)
}

func TestReformulate_EmptyLLMResponseFallsBackToOriginal(t *testing.T) {
	fake := &fakeProvider{response: "   "}
	manager := llm.NewManager(nil, fake)
	r := New(manager, nil)

	query := "Dis-moi tout ce que tu sais à propos du traitement de ce dossier complexe avant la clôture annuelle de cette entreprise"
	out := r.Reformulate(context.Background(), query)

	assert.Equal(t, query, out)
}
