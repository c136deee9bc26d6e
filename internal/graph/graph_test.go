package graph

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protype-ai/protype/internal/extract"
	"github.com/protype-ai/protype/internal/log"
	"github.com/protype-ai/protype/internal/store"
)

func entry(q, a, source string, w float64) store.Entry {
	return store.Entry{Question: store.Normalize(q), Answer: a, Source: source, Weight: w}
}

func TestNodeIDStable(t *testing.T) {
	assert.Equal(t, NodeID(KindQuestion, "What is  Gravity?"), NodeID(KindQuestion, "what is gravity?"),
		"normalized phrasings must share a node")
	assert.NotEqual(t, NodeID(KindQuestion, "gravity"), NodeID(KindEntity, "gravity"),
		"kind must separate node identity")
}

func TestBuildBasicShape(t *testing.T) {
	v := Build([]store.Entry{
		entry("what is gravity", "Gravity pulls masses together.", "wikipedia", 0.6),
		entry("what is light", "Light is electromagnetic radiation.", "gemini_flash_direct", 0.7),
	}, nil, 30)

	st := v.Stats()
	assert.Equal(t, 2, st.Questions)
	assert.Equal(t, 2, st.Sources)
	assert.Greater(t, st.Entities, 0)
	assert.Zero(t, st.Skipped)

	q, ok := v.QuestionNode("what is gravity")
	require.True(t, ok)

	var fromEdges, containsEdges int
	for _, e := range v.Edges(q.ID) {
		switch e.Relation {
		case EdgeFrom:
			fromEdges++
			assert.InDelta(t, 0.6, e.Confidence, 1e-9)
			to, _ := v.Node(e.To)
			assert.Equal(t, "wikipedia", to.Label)
		case EdgeContains:
			containsEdges++
			to, _ := v.Node(e.To)
			assert.Equal(t, KindEntity, to.Kind)
			assert.Equal(t, extract.TypeTerm, to.EntityType)
		}
	}
	assert.Equal(t, 1, fromEdges)
	assert.Greater(t, containsEdges, 0)
}

func TestBuildSkipsFailedExtraction(t *testing.T) {
	boom := errors.New("extractor down")
	failing := func(text string) ([]extract.Entity, error) { return nil, boom }

	v := Build([]store.Entry{
		entry("what is gravity", "Gravity pulls masses.", "wikipedia", 0.6),
	}, failing, 30)

	st := v.Stats()
	assert.Equal(t, 1, st.Questions, "question node survives extraction failure")
	assert.Equal(t, 1, st.Sources, "source node survives extraction failure")
	assert.Zero(t, st.Entities)
	assert.Equal(t, 1, st.Skipped)
}

func TestAddInferredEdgeCap(t *testing.T) {
	v := NewView(3)
	var ids []string
	for _, q := range []string{"q a", "q b", "q c", "q d", "q e"} {
		ids = append(ids, v.addNode(Node{Kind: KindQuestion, Label: q}))
	}

	accepted := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if v.AddInferredEdge(ids[i], ids[j], 0.5) {
				accepted++
			}
		}
	}

	assert.Equal(t, 3, accepted)
	assert.Equal(t, 3, v.Stats().Inferred, "exactly cap inferred edges exist")
	assert.Equal(t, 7, v.Stats().InferredRejected)

	assert.False(t, v.AddInferredEdge("missing", ids[0], 0.5), "unknown node rejected")
}

func TestInferenceFromSharedEntities(t *testing.T) {
	v := Build([]store.Entry{
		entry("q one", "shared gravity topic alpha", "user", 0.5),
		entry("q two", "shared gravity topic beta", "user", 0.5),
		entry("q three", "completely different words here", "user", 0.5),
	}, nil, 30)

	require.Greater(t, v.Stats().Inferred, 0)

	one, ok := v.QuestionNode("q one")
	require.True(t, ok)
	three, _ := v.QuestionNode("q three")

	var linked bool
	for _, e := range v.Edges(one.ID) {
		if e.Relation == EdgeInferred {
			to, _ := v.Node(e.To)
			assert.Equal(t, "q two", to.Label)
			assert.True(t, e.Inferred)
			linked = true
		}
		assert.NotEqual(t, three.ID, e.To, "unrelated question must not be linked")
	}
	assert.True(t, linked, "shared entities must produce an inferred edge")
}

func TestInferenceDeterministic(t *testing.T) {
	entries := []store.Entry{
		entry("q a", "alpha beta gamma", "user", 0.5),
		entry("q b", "alpha beta delta", "user", 0.5),
		entry("q c", "alpha epsilon zeta", "user", 0.5),
	}

	first := Build(entries, nil, 2)
	firstData, err := first.Export()
	require.NoError(t, err)
	for range 20 {
		again := Build(entries, nil, 2)
		againData, err := again.Export()
		require.NoError(t, err)
		assert.Equal(t, firstData, againData)
	}
}

func TestRelatedConcepts(t *testing.T) {
	v := Build([]store.Entry{
		entry("what is gravity", "gravity attraction masses", "wikipedia", 0.9),
		entry("what is light", "light radiation", "user", 0.3),
	}, nil, 0)

	q, ok := v.QuestionNode("what is gravity")
	require.True(t, ok)

	related := v.RelatedConcepts(q.ID, 10)
	require.NotEmpty(t, related)
	labels := make([]string, len(related))
	for i, n := range related {
		labels[i] = n.Label
	}
	assert.Contains(t, labels, "gravity")
	assert.Contains(t, labels, "wikipedia")
	assert.NotContains(t, labels, "light")

	assert.Len(t, v.RelatedConcepts(q.ID, 2), 2, "limit respected")
}

func TestShortestPath(t *testing.T) {
	// Distinct sources, so the only routes run through shared entities.
	v := Build([]store.Entry{
		entry("q one", "mentions gravity here", "wikipedia", 0.5),
		entry("q two", "gravity and magnetism together", "gemini_flash_direct", 0.5),
		entry("q three", "magnetism alone discussed", "user", 0.5),
		entry("q island", "nothing common whatsoever", "system", 0.5),
	}, nil, 0)

	one, _ := v.QuestionNode("q one")
	three, _ := v.QuestionNode("q three")
	island, _ := v.QuestionNode("q island")

	path := v.ShortestPath(one.ID, three.ID, 6)
	require.NotNil(t, path)
	assert.Equal(t, "q one", path[0].Label)
	assert.Equal(t, "q three", path[len(path)-1].Label)
	// q1 -(gravity)- q2 -(magnetism)- q3
	assert.Len(t, path, 5)

	assert.Nil(t, v.ShortestPath(one.ID, three.ID, 3), "bound excludes four-hop path")
	assert.Nil(t, v.ShortestPath(one.ID, island.ID, 6), "no path to disconnected node")
	assert.Nil(t, v.ShortestPath(one.ID, "missing", 6))

	self := v.ShortestPath(one.ID, one.ID, 6)
	require.Len(t, self, 1)
}

func TestLowConnectivityEntities(t *testing.T) {
	v := Build([]store.Entry{
		entry("q one", "gravity magnetism", "user", 0.5),
		entry("q two", "gravity inertia", "user", 0.5),
	}, nil, 0)

	thin := v.LowConnectivityEntities(10)
	labels := make([]string, len(thin))
	for i, n := range thin {
		labels[i] = n.Label
	}
	assert.Contains(t, labels, "magnetism")
	assert.Contains(t, labels, "inertia")
	assert.NotContains(t, labels, "gravity", "entity shared by two questions is not a gap")

	assert.Len(t, v.LowConnectivityEntities(1), 1, "limit respected")
}

func TestExportImportRoundTrip(t *testing.T) {
	v := Build([]store.Entry{
		entry("what is gravity", "gravity attraction masses", "wikipedia", 0.9),
		entry("what is mass", "mass resists gravity changes", "user", 0.5),
	}, nil, 30)

	data, err := v.Export()
	require.NoError(t, err)

	imported, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, v.Stats(), imported.Stats())

	q, ok := imported.QuestionNode("what is gravity")
	require.True(t, ok)
	assert.Equal(t, v.Edges(NodeID(KindQuestion, "what is gravity")), imported.Edges(q.ID))

	_, err = Import([]byte(`{"nodes":[{"id":"a","kind":"question","label":"x"}],"edges":[{"from":"a","to":"ghost","relation":"contains"}]}`))
	assert.Error(t, err, "edge to unknown node rejected")

	_, err = Import([]byte(`not json`))
	assert.Error(t, err)
}

func TestRebuildSwapsAtomically(t *testing.T) {
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))

	s, err := store.New(db, log.NewNop())
	require.NoError(t, err)
	g, err := New(s, nil, 30, log.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, 0, g.View().Stats().Questions, "initial view is empty")
	assert.True(t, g.BuiltAt().IsZero())

	require.NoError(t, s.Upsert(ctx, "what is gravity", "Gravity pulls masses.", 0.5, "user", "t"))
	require.NoError(t, g.Rebuild(ctx))
	assert.Equal(t, 1, g.View().Stats().Questions)
	assert.False(t, g.BuiltAt().IsZero())

	// Readers on a captured view stay consistent while rebuilds run.
	old := g.View()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = g.Rebuild(ctx)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, old.Stats().Questions, "captured view must not change")
}
