// Package search maintains an in-memory inverted index over decrypted note
// plaintext. The index is a derived, rebuildable projection: it owns no
// authoritative state and can always be reconstructed by replaying the item
// store's current contents.
package search

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/quillnote/core/internal/models"
)

// Query selects notes by token match, optionally scoped to a space and a set
// of boards. A token ending in '*' matches by prefix; multiple tokens are
// ANDed.
type Query struct {
	Text     string
	SpaceID  string
	BoardIDs []string
}

// TagCount is one entry of a tag-frequency listing.
type TagCount struct {
	Tag   string
	Count int
}

type noteEntry struct {
	spaceID  string
	boardIDs []string
	tokens   []string
	tags     []string
}

// Index is the inverted index. Reads may proceed concurrently; mutations are
// serialized by the store's per-resource critical sections plus the internal
// lock.
type Index struct {
	mu     sync.RWMutex
	tokens map[string]map[string]struct{} // token -> note ids
	notes  map[string]*noteEntry
}

func New() *Index {
	return &Index{
		tokens: make(map[string]map[string]struct{}),
		notes:  make(map[string]*noteEntry),
	}
}

// UpsertNote replaces the note's tokens with those of its current plaintext.
func (ix *Index) UpsertNote(n *models.Note) {
	tokens := Tokenize(n.Title + " " + n.Body + " " + strings.Join(n.Tags, " "))

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(n.ID)
	for _, tok := range tokens {
		if ix.tokens[tok] == nil {
			ix.tokens[tok] = make(map[string]struct{})
		}
		ix.tokens[tok][n.ID] = struct{}{}
	}
	ix.notes[n.ID] = &noteEntry{
		spaceID:  n.SpaceID,
		boardIDs: append([]string(nil), n.BoardIDs...),
		tokens:   tokens,
		tags:     append([]string(nil), n.Tags...),
	}
}

// DeleteNote removes all of the note's tokens.
func (ix *Index) DeleteNote(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id string) {
	entry, ok := ix.notes[id]
	if !ok {
		return
	}
	for _, tok := range entry.tokens {
		delete(ix.tokens[tok], id)
		if len(ix.tokens[tok]) == 0 {
			delete(ix.tokens, tok)
		}
	}
	delete(ix.notes, id)
}

// Find returns the unordered set of note ids matching the query. Callers
// re-apply permission filtering before returning results to a user.
func (ix *Index) Find(q Query) []string {
	terms := Tokenize(strings.TrimSuffix(q.Text, "*"))
	prefix := strings.HasSuffix(strings.TrimSpace(q.Text), "*")

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result map[string]struct{}
	for i, term := range terms {
		isLast := i == len(terms)-1
		matches := ix.lookupLocked(term, prefix && isLast)
		if result == nil {
			result = matches
			continue
		}
		for id := range result {
			if _, ok := matches[id]; !ok {
				delete(result, id)
			}
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		if entry := ix.notes[id]; entry != nil && ix.scopedLocked(entry, q) {
			out = append(out, id)
		}
	}
	return out
}

func (ix *Index) lookupLocked(term string, prefix bool) map[string]struct{} {
	if !prefix {
		matches := make(map[string]struct{}, len(ix.tokens[term]))
		for id := range ix.tokens[term] {
			matches[id] = struct{}{}
		}
		return matches
	}
	matches := make(map[string]struct{})
	for tok, ids := range ix.tokens {
		if strings.HasPrefix(tok, term) {
			for id := range ids {
				matches[id] = struct{}{}
			}
		}
	}
	return matches
}

func (ix *Index) scopedLocked(entry *noteEntry, q Query) bool {
	if q.SpaceID != "" && entry.spaceID != q.SpaceID {
		return false
	}
	if len(q.BoardIDs) > 0 {
		for _, want := range q.BoardIDs {
			for _, have := range entry.boardIDs {
				if want == have {
					return true
				}
			}
		}
		return false
	}
	return true
}

// TagsByFrequency lists the most used tags in a space, optionally narrowed to
// boards, most frequent first. limit <= 0 means all.
func (ix *Index) TagsByFrequency(spaceID string, boardIDs []string, limit int) []TagCount {
	ix.mu.RLock()
	counts := make(map[string]int)
	for _, entry := range ix.notes {
		if !ix.scopedLocked(entry, Query{SpaceID: spaceID, BoardIDs: boardIDs}) {
			continue
		}
		for _, tag := range entry.tags {
			counts[tag]++
		}
	}
	ix.mu.RUnlock()

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Rebuild discards the index and replays the given notes. This is the
// recovery path after a detected inconsistency.
func (ix *Index) Rebuild(notes []*models.Note) {
	ix.mu.Lock()
	ix.tokens = make(map[string]map[string]struct{})
	ix.notes = make(map[string]*noteEntry)
	ix.mu.Unlock()
	for _, n := range notes {
		ix.UpsertNote(n)
	}
}

// Tokenize normalizes text into lowercase tokens, splitting on anything that
// is not a letter or digit. Duplicates are removed.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
