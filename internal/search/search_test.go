package search

import (
	"testing"

	"github.com/quillnote/core/internal/models"
	"github.com/stretchr/testify/assert"
)

func note(id, spaceID, title, body string, opts ...func(*models.Note)) *models.Note {
	n := &models.Note{ID: id, SpaceID: spaceID, Title: title, Body: body}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func withBoards(ids ...string) func(*models.Note) {
	return func(n *models.Note) { n.BoardIDs = ids }
}

func withTags(tags ...string) func(*models.Note) {
	return func(n *models.Note) { n.Tags = tags }
}

func TestFind_ExactToken(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "Greeting", "hello world"))
	ix.UpsertNote(note("n2", "s1", "Other", "goodbye world"))

	assert.ElementsMatch(t, []string{"n1"}, ix.Find(Query{Text: "hello"}))
	assert.ElementsMatch(t, []string{"n1", "n2"}, ix.Find(Query{Text: "world"}))
	assert.Empty(t, ix.Find(Query{Text: "absent"}))
}

func TestFind_MultipleTokensAreAnded(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "alpha beta"))
	ix.UpsertNote(note("n2", "s1", "", "alpha gamma"))

	assert.ElementsMatch(t, []string{"n1"}, ix.Find(Query{Text: "alpha beta"}))
}

func TestFind_Prefix(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "synchronize"))
	ix.UpsertNote(note("n2", "s1", "", "syntax"))
	ix.UpsertNote(note("n3", "s1", "", "other"))

	assert.ElementsMatch(t, []string{"n1", "n2"}, ix.Find(Query{Text: "syn*"}))
	assert.ElementsMatch(t, []string{"n1"}, ix.Find(Query{Text: "synchronize"}))
}

func TestFind_ScopedBySpaceAndBoard(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "shared term", withBoards("b1")))
	ix.UpsertNote(note("n2", "s1", "", "shared term", withBoards("b2")))
	ix.UpsertNote(note("n3", "s2", "", "shared term"))

	assert.ElementsMatch(t, []string{"n1", "n2"}, ix.Find(Query{Text: "shared", SpaceID: "s1"}))
	assert.ElementsMatch(t, []string{"n1"}, ix.Find(Query{Text: "shared", SpaceID: "s1", BoardIDs: []string{"b1"}}))
	assert.ElementsMatch(t, []string{"n1", "n2", "n3"}, ix.Find(Query{Text: "shared"}))
}

func TestUpsert_ReplacesTokens(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "original content"))
	ix.UpsertNote(note("n1", "s1", "", "replacement text"))

	assert.Empty(t, ix.Find(Query{Text: "original"}))
	assert.ElementsMatch(t, []string{"n1"}, ix.Find(Query{Text: "replacement"}))
}

func TestDeleteNote(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "hello"))
	ix.DeleteNote("n1")
	assert.Empty(t, ix.Find(Query{Text: "hello"}))

	// Deleting twice is harmless.
	ix.DeleteNote("n1")
}

func TestTagsByFrequency(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "", withTags("work", "urgent")))
	ix.UpsertNote(note("n2", "s1", "", "", withTags("work")))
	ix.UpsertNote(note("n3", "s2", "", "", withTags("home")))

	got := ix.TagsByFrequency("s1", nil, 0)
	assert.Equal(t, []TagCount{{Tag: "work", Count: 2}, {Tag: "urgent", Count: 1}}, got)

	limited := ix.TagsByFrequency("s1", nil, 1)
	assert.Equal(t, []TagCount{{Tag: "work", Count: 2}}, limited)

	assert.Empty(t, ix.TagsByFrequency("s3", nil, 0))
}

func TestRebuild(t *testing.T) {
	ix := New()
	ix.UpsertNote(note("n1", "s1", "", "stale"))

	ix.Rebuild([]*models.Note{note("n2", "s1", "", "fresh")})
	assert.Empty(t, ix.Find(Query{Text: "stale"}))
	assert.ElementsMatch(t, []string{"n2"}, ix.Find(Query{Text: "fresh"}))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, WORLD! 42"))
	assert.Equal(t, []string{"hello"}, Tokenize("hello hello"))
	assert.Empty(t, Tokenize("  ...  "))
}
