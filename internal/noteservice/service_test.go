package noteservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lattice/internal/apperr"
	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/content"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/testutil"
	"github.com/starford/lattice/internal/tree"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T, store storage.Provider) *Service {
	t.Helper()
	c := &clock{t: testutil.Epoch}
	return NewService(store, WithClock(c.now))
}

func TestCreate_AssignsOrderAndValidatesParent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	svc := newService(t, store)

	a, err := svc.Create(ctx, models.NoteInput{Title: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, models.NoteInput{Title: "B"})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Note.Order)
	assert.Equal(t, 1, b.Note.Order)
	assert.True(t, content.IsDocument(a.Note.Content), "empty content becomes an empty document")
	assert.Empty(t, a.Note.Links.Outbound)
	assert.Empty(t, a.Note.Embeds)

	child, err := svc.Create(ctx, models.NoteInput{Title: "A1", ParentID: a.Note.ID})
	require.NoError(t, err)
	assert.Equal(t, a.Note.ID, child.Note.ParentID)
	assert.Equal(t, 0, child.Note.Order)

	_, err = svc.Create(ctx, models.NoteInput{Title: "deep", ParentID: child.Note.ID})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, tree.ReasonTooDeep, apperr.Reason(err))

	_, err = svc.Create(ctx, models.NoteInput{Title: "lost", ParentID: "ghost"})
	assert.Equal(t, tree.ReasonParentAbsent, apperr.Reason(err))

	all, err := store.GetNotes(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3, "rejected creates write nothing")
}

func TestCreate_ConvertsMarkdown(t *testing.T) {
	svc := newService(t, storage.NewMemory())
	res, err := svc.Create(context.Background(), models.NoteInput{Title: "md", Content: "# Heading\n\nSome **bold** text"})
	require.NoError(t, err)

	doc, err := content.Parse(res.Note.Content)
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, content.Heading(1), doc.Blocks[0].Type)
}

func TestUpdate_RenamePropagatesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestDB(t)
	svc := newService(t, store)

	foo, err := svc.Create(ctx, models.NoteInput{Title: "Foo"})
	require.NoError(t, err)
	ref, err := svc.Create(ctx, models.NoteInput{
		Title:   "Ref",
		Content: testutil.LinkTo("see ", foo.Note.ID, "Foo", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{foo.Note.ID}, ref.Note.Links.Outbound)

	res, err := svc.Update(ctx, foo.Note.ID, UpdateInput{Title: models.Ptr("Bar")}, "")
	require.NoError(t, err)
	assert.Len(t, res.Changed, 2)

	stored, err := store.GetNote(ctx, ref.Note.ID)
	require.NoError(t, err)
	doc, err := content.Parse(stored.Content)
	require.NoError(t, err)
	assert.Equal(t, "see [[Bar]]", doc.Blocks[0].Text)
	assert.True(t, stored.UpdatedAt.After(ref.Note.UpdatedAt), "rewritten link text counts as an update")

	target, err := store.GetNote(ctx, foo.Note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ref.Note.ID}, target.Links.Inbound)
	assert.True(t, target.UpdatedAt.After(target.CreatedAt))
}

func TestUpdate_IfMatchAndNoop(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, storage.NewMemory())
	created, err := svc.Create(ctx, models.NoteInput{Title: "A", Content: "hello"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.Note.ID, UpdateInput{Title: models.Ptr("B")}, "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	same, err := svc.Update(ctx, created.Note.ID, UpdateInput{Title: models.Ptr("A")},
		checksum.Note(created.Note.Title, created.Note.Content))
	require.NoError(t, err)
	assert.Empty(t, same.Changed, "identical title is not a write")
	assert.Equal(t, created.Note.UpdatedAt, same.Note.UpdatedAt)

	_, err = svc.Update(ctx, "missing", UpdateInput{Title: models.Ptr("x")}, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdate_ReparentAppends(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, storage.NewMemory())
	p, _ := svc.Create(ctx, models.NoteInput{Title: "P"})
	_, _ = svc.Create(ctx, models.NoteInput{Title: "P1", ParentID: p.Note.ID})
	x, _ := svc.Create(ctx, models.NoteInput{Title: "X"})

	res, err := svc.Update(ctx, x.Note.ID, UpdateInput{ParentID: &p.Note.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, p.Note.ID, res.Note.ParentID)
	assert.Equal(t, 1, res.Note.Order)
	require.NoError(t, tree.Check(res.Notes))

	_, err = svc.Update(ctx, p.Note.ID, UpdateInput{ParentID: &x.Note.ID}, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Update(ctx, x.Note.ID, UpdateInput{ParentID: &x.Note.ID}, "")
	assert.Equal(t, tree.ReasonSelfParent, apperr.Reason(err))
}

func TestDelete_FlattensAndDemotesLinks(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestDB(t)
	svc := newService(t, store)

	p, _ := svc.Create(ctx, models.NoteInput{Title: "Parent"})
	c1, _ := svc.Create(ctx, models.NoteInput{Title: "C1", ParentID: p.Note.ID})
	ref, _ := svc.Create(ctx, models.NoteInput{Title: "Ref", Content: testutil.LinkTo("", p.Note.ID, "Parent", "")})

	res, err := svc.Delete(ctx, p.Note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.Note.ID}, res.Removed)

	kid, err := store.GetNote(ctx, c1.Note.ID)
	require.NoError(t, err)
	assert.Equal(t, "", kid.ParentID)
	assert.Equal(t, 0, kid.Order)

	stored, err := store.GetNote(ctx, ref.Note.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Links.Outbound)
	doc, err := content.Parse(stored.Content)
	require.NoError(t, err)
	assert.Equal(t, "[[Parent]]", doc.Blocks[0].Text)
	assert.Empty(t, doc.Blocks[0].EntityRanges)

	_, err = svc.Delete(ctx, p.Note.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMove_PersistsOrder(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestDB(t)
	svc := newService(t, store)

	one, _ := svc.Create(ctx, models.NoteInput{Title: "A"})
	two, _ := svc.Create(ctx, models.NoteInput{Title: "B"})

	res, err := svc.Move(ctx, two.Note.ID, one.Note.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, one.Note.ID, res.Note.ParentID)
	assert.Equal(t, 0, res.Note.Order)

	kids, err := store.GetNotesByParent(ctx, one.Note.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, two.Note.ID, kids[0].ID)

	_, err = svc.Move(ctx, one.Note.ID, two.Note.ID, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestImport_ReplacesAndRepairs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	svc := newService(t, store)
	_, err := svc.Create(ctx, models.NoteInput{Title: "old"})
	require.NoError(t, err)

	in := []*models.Note{
		testutil.Note("a", "Alpha", "", 5),
		testutil.Note("b", "Beta", "ghost", 0),
		{ID: "c", Title: "Gamma", Content: testutil.LinkTo("", "a", "Old alpha", ""), CreatedAt: testutil.Epoch, UpdatedAt: testutil.Epoch, Order: 2},
	}
	res, err := svc.Import(ctx, in)
	require.NoError(t, err)
	assert.Len(t, res.Removed, 1)
	require.NoError(t, tree.Check(res.Notes))

	all, err := store.GetNotes(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	a, _ := store.GetNote(ctx, "a")
	assert.Equal(t, []string{"c"}, a.Links.Inbound)

	_, err = svc.Import(ctx, []*models.Note{testutil.Note("x", "X", "", 0), testutil.Note("x", "X", "", 1)})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestLoad_Reconciles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	n := testutil.Note("a", "A", "", 0)
	n.Links.Inbound = []string{"gone"}
	testutil.Seed(t, store, n)

	notes, err := newService(t, store).Load(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Empty(t, notes[0].Links.Inbound)
}
