package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/models"
)

var (
	t0  = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now = t0.Add(time.Hour)
)

func mk(id, parent string, order int) *models.Note {
	return &models.Note{ID: id, Title: "Note " + id, ParentID: parent, Order: order, CreatedAt: t0, UpdatedAt: t0}
}

// layout renders parent buckets as "parent:child,child" for compact asserts.
func layout(notes []*models.Note, parent string) []string {
	var ids []string
	for _, n := range models.Siblings(notes, parent) {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestMove_Scenario(t *testing.T) {
	notes := []*models.Note{mk("1", "", 0), mk("2", "", 1)}
	got, err := Move(notes, "2", "1", 0, now)
	require.NoError(t, err)

	idx := models.Index(got)
	assert.Equal(t, "1", idx["2"].ParentID)
	assert.Equal(t, 0, idx["2"].Order)
	assert.Equal(t, now, idx["2"].UpdatedAt)
	assert.Equal(t, "", idx["1"].ParentID)
	assert.Equal(t, 0, idx["1"].Order)
	assert.Same(t, notes[0], idx["1"], "untouched note keeps identity")
	assert.Equal(t, "", notes[1].ParentID, "input is not mutated")
	require.NoError(t, Check(got))
}

func TestMove_Rejections(t *testing.T) {
	notes := []*models.Note{
		mk("a", "", 0),
		mk("b", "", 1),
		mk("c", "a", 0),
	}
	tests := []struct {
		name   string
		id     string
		parent string
		kind   apperr.Kind
		reason string
	}{
		{"unknown note", "zz", "", apperr.KindNotFound, ""},
		{"self parent", "a", "a", apperr.KindValidation, ReasonSelfParent},
		{"missing parent", "b", "nope", apperr.KindValidation, ReasonParentAbsent},
		{"cycle", "a", "c", apperr.KindValidation, ReasonCycle},
		{"too deep", "b", "c", apperr.KindValidation, ReasonTooDeep},
		{"nesting a parent", "a", "b", apperr.KindValidation, ReasonHasChildren},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Move(notes, tt.id, tt.parent, 0, now)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			if tt.reason != "" {
				assert.Equal(t, tt.reason, apperr.Reason(err))
			}
			assert.Equal(t, notes, got)
		})
	}
}

func TestMove_CycleWalkTerminatesOnMalformedInput(t *testing.T) {
	notes := []*models.Note{mk("x", "y", 0), mk("y", "x", 0), mk("z", "", 0)}
	_, err := Move(notes, "z", "x", 0, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMove_WithinList(t *testing.T) {
	base := func() []*models.Note {
		return []*models.Note{mk("a", "", 0), mk("b", "", 1), mk("c", "", 2), mk("d", "", 3)}
	}
	tests := []struct {
		name  string
		id    string
		index int
		want  []string
	}{
		{"down before d", "a", 3, []string{"b", "c", "a", "d"}},
		{"down to end", "a", 4, []string{"b", "c", "d", "a"}},
		{"up to front", "d", 0, []string{"d", "a", "b", "c"}},
		{"clamped high", "b", 99, []string{"a", "c", "d", "b"}},
		{"clamped low", "c", -5, []string{"c", "a", "b", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Move(base(), tt.id, "", tt.index, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, layout(got, ""))
			require.NoError(t, Check(got))
		})
	}
}

func TestMove_SamePositionIsNoop(t *testing.T) {
	notes := []*models.Note{mk("a", "", 0), mk("b", "", 1), mk("c", "", 2)}
	for _, idx := range []int{1, 2} {
		got, err := Move(notes, "b", "", idx, now)
		require.NoError(t, err)
		for i := range notes {
			assert.Same(t, notes[i], got[i])
		}
	}
}

func TestMove_AcrossLists(t *testing.T) {
	notes := []*models.Note{
		mk("p", "", 0), mk("q", "", 1), mk("r", "", 2),
		mk("p1", "p", 0), mk("p2", "p", 1),
	}
	got, err := Move(notes, "p1", "", 1, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "p1", "q", "r"}, layout(got, ""))
	assert.Equal(t, []string{"p2"}, layout(got, "p"))
	require.NoError(t, Check(got))

	got, err = Move(got, "r", "p", 0, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"r", "p2"}, layout(got, "p"))
	assert.Equal(t, []string{"p", "p1", "q"}, layout(got, ""))
	require.NoError(t, Check(got))
}

func TestInsert(t *testing.T) {
	notes := []*models.Note{mk("a", "", 0), mk("c", "a", 0)}

	got, err := Insert(notes, mk("b", "", 7))
	require.NoError(t, err)
	assert.Equal(t, 1, models.Index(got)["b"].Order)

	got, err = Insert(got, mk("d", "a", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, layout(got, "a"))
	require.NoError(t, Check(got))

	_, err = Insert(got, mk("e", "c", 0))
	assert.Equal(t, ReasonTooDeep, apperr.Reason(err))
	_, err = Insert(got, mk("a", "", 0))
	assert.Equal(t, ReasonDuplicateID, apperr.Reason(err))
	_, err = Insert(got, mk("e", "ghost", 0))
	assert.Equal(t, ReasonParentAbsent, apperr.Reason(err))
}

func TestReparent(t *testing.T) {
	notes := []*models.Note{
		mk("a", "", 0), mk("b", "", 1), mk("c", "", 2),
		mk("b1", "b", 0), mk("b2", "b", 1),
	}

	got, err := Reparent(notes, "a", "c", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, layout(got, ""))
	assert.Equal(t, []string{"a"}, layout(got, "c"))
	assert.Equal(t, now, models.Index(got)["a"].UpdatedAt)

	got, err = Reparent(got, "b1", "c", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b1"}, layout(got, "c"))
	assert.Equal(t, 0, models.Index(got)["b2"].Order)
	require.NoError(t, Check(got))

	same, err := Reparent(got, "b2", "b", now)
	require.NoError(t, err)
	assert.Equal(t, got, same)

	_, err = Reparent(got, "b", "b2", now)
	assert.Equal(t, ReasonCycle, apperr.Reason(err))
	_, err = Reparent(got, "b", "c", now)
	assert.Equal(t, ReasonHasChildren, apperr.Reason(err))
	_, err = Reparent(got, "b", "b", now)
	assert.Equal(t, ReasonSelfParent, apperr.Reason(err))
}

func TestRemove_FlattensChildrenIntoSlot(t *testing.T) {
	notes := []*models.Note{
		mk("a", "", 0), mk("x", "", 1), mk("b", "", 2),
		mk("x1", "x", 0), mk("x2", "x", 1),
	}
	got, err := Remove(notes, "x", now)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "x1", "x2", "b"}, layout(got, ""))
	assert.NotContains(t, models.Index(got), "x")
	assert.Equal(t, now, models.Index(got)["x1"].UpdatedAt)
	assert.Same(t, notes[0], models.Index(got)["a"])
	require.NoError(t, Check(got))

	got, err = Remove(got, "x1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x2", "b"}, layout(got, ""))

	_, err = Remove(got, "x1", now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemove_ChildKeepsParentListContiguous(t *testing.T) {
	notes := []*models.Note{mk("p", "", 0), mk("c1", "p", 0), mk("c2", "p", 1), mk("c3", "p", 2)}
	got, err := Remove(notes, "c2", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, layout(got, "p"))
	require.NoError(t, Check(got))
}

func TestNormalize(t *testing.T) {
	notes := []*models.Note{
		mk("a", "", 4),
		mk("b", "", 9),
		mk("orphan", "ghost", 0),
		mk("self", "self", 0),
		mk("a1", "a", 3),
		mk("deep", "a1", 0),
		mk("loop1", "loop2", 0),
		mk("loop2", "loop1", 0),
	}
	got := Normalize(notes)
	require.NoError(t, Check(got))

	idx := models.Index(got)
	assert.Equal(t, "", idx["orphan"].ParentID)
	assert.Equal(t, "", idx["self"].ParentID)
	assert.Equal(t, "", idx["deep"].ParentID)
	assert.Equal(t, "a", idx["a1"].ParentID)
	assert.Equal(t, 0, idx["a1"].Order)
	assert.Equal(t, []string{"orphan", "self", "deep", "loop1", "a", "b"}, layout(got, ""))
	assert.Equal(t, "loop1", idx["loop2"].ParentID)
	assert.Len(t, got, len(notes))
}

func TestDiff(t *testing.T) {
	notes := []*models.Note{mk("a", "", 0), mk("b", "", 1), mk("c", "", 2)}
	got, err := Remove(notes, "a", now)
	require.NoError(t, err)

	changed, removed := Diff(notes, got)
	assert.Equal(t, []string{"a"}, removed)
	var ids []string
	for _, n := range changed {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestDescendants(t *testing.T) {
	notes := []*models.Note{mk("a", "", 0), mk("b", "a", 0), mk("c", "b", 0), mk("d", "a", 1)}
	assert.Equal(t, []string{"b", "d", "c"}, Descendants(notes, "a"))
	assert.Empty(t, Descendants(notes, "c"))
}

type countingReconciler struct{ calls int }

func (c *countingReconciler) Reconcile(notes []*models.Note) []*models.Note {
	c.calls++
	return notes
}

func TestMutator_ReconcilesWithItsEngine(t *testing.T) {
	rec := &countingReconciler{}
	m := NewMutator(rec)
	notes := []*models.Note{mk("a", "", 0), mk("b", "", 1)}

	notes, err := m.Insert(notes, mk("c", "", 0))
	require.NoError(t, err)
	notes, err = m.Move(notes, "c", "a", 0, now)
	require.NoError(t, err)
	notes, err = m.Reparent(notes, "c", "", now)
	require.NoError(t, err)
	notes, err = m.Remove(notes, "c", now)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.calls)
	assert.Equal(t, []string{"a", "b"}, layout(notes, ""))

	_, err = m.Move(notes, "a", "a", 0, now)
	require.Error(t, err)
	assert.Equal(t, 4, rec.calls, "rejected operations do not reconcile")
}
