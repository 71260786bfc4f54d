package vectorindex

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"

	"dev.ohada.ragengine/internal/models"
)

func TestScoreToSimilarity_MatchesSpecFormula(t *testing.T) {
	// score=0.5 -> d=0.5 -> s=1-0.25=0.75, per spec §4.5's s = 1 - d/2.
	assert.InDelta(t, 0.75, scoreToSimilarity(0.5), 1e-9)
	assert.InDelta(t, 0.5, scoreToSimilarity(0.0), 1e-9)
	assert.InDelta(t, 1.0, scoreToSimilarity(1.0), 1e-9)
	assert.InDelta(t, 0.0, scoreToSimilarity(-1.0), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.42, clamp01(0.42))
}

func TestBuildFilter_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, buildFilter(nil))
}

func TestBuildFilter_BuildsMustConditions(t *testing.T) {
	f := buildFilter([]models.Filter{{Key: "partie", Value: "2"}})
	assert.Len(t, f.Must, 1)
}

func TestPointIDString_PrefersUUID(t *testing.T) {
	id := &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: "abc-123"}}
	assert.Equal(t, "abc-123", pointIDString(id))
}

func TestPayloadToHierarchy(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"partie": {Kind: &qdrant.Value_StringValue{StringValue: "2"}},
	}
	h := payloadToHierarchy(payload)
	assert.Equal(t, "2", h.Partie)
}
