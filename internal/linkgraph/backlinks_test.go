package linkgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/models"
)

func TestBacklinks_Excerpts(t *testing.T) {
	long := strings.Repeat("x", 60)
	notes := []*models.Note{
		note("t", "Target", linkContent(ref{shown: "[[Target]]", target: "t"})),
		note("s1", "Source one", linkContent(
			ref{before: "  intro ", shown: "[[Target]]", after: " outro  ", target: "t"},
			ref{before: long, shown: "[[Target]]", after: "", target: "t"},
			ref{before: "other ", shown: "[[Else]]", target: "e"},
		)),
		note("s2", "Broken", "{not json"),
		note("s3", "No refs", linkContent(ref{shown: "[[Else]]", target: "e"})),
	}

	got := New(WithExcerptRadius(10)).Backlinks("t", notes)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SourceID)
	assert.Equal(t, "Source one", got[0].SourceTitle)
	assert.Equal(t, []string{
		"intro [[Target]] outro",
		strings.Repeat("x", 10) + "[[Target]]",
	}, got[0].Excerpts)
}

func TestBacklinks_DefaultEngineKeepsOrder(t *testing.T) {
	notes := []*models.Note{
		note("z", "Zed", linkContent(ref{shown: "[[T]]", target: "t"})),
		note("t", "T", ""),
		note("a", "Ay", linkContent(ref{shown: "[[T]]", target: "t"}, ref{shown: "[[T]]", target: "t"})),
	}
	got := Backlinks("t", notes)
	require.Len(t, got, 2)
	assert.Equal(t, "z", got[0].SourceID)
	assert.Equal(t, "a", got[1].SourceID)
	assert.Len(t, got[1].Excerpts, 2)
}

func TestGraph(t *testing.T) {
	notes := Reconcile([]*models.Note{
		note("a", "A", linkContent(ref{shown: "b", target: "b"})),
		note("b", "B", ""),
		note("c", "C", ""),
	})
	g := Graph(notes)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, Node{ID: "a", Title: "A", OutDegree: 1}, g.Nodes[0])
	assert.Equal(t, Node{ID: "b", Title: "B", InDegree: 1}, g.Nodes[1])
	assert.Equal(t, []Edge{{Source: "a", Target: "b"}}, g.Edges)
	assert.Equal(t, []string{"c"}, g.Orphans)
}
