// Package mentions implements the backlink graph: a mention is a reference
// from a source node to a target node expressed in content, and a content
// change produces a diff of mentions (added, removed) that is applied to
// the mention table in the same transaction as the source write.
//
// Mentions are written with an explicit wikilink syntax, "[[target-id]]",
// so the scan itself is a small regexp. Confirming that a mention target
// is a known node is served by a trie; bulk re-scans across the whole
// corpus go through an Aho-Corasick automaton so a single pass over the
// text finds every known id at once.
package mentions

import (
	"regexp"
	"sync"

	"github.com/coregx/ahocorasick"
	trie "github.com/derekparker/trie/v3"
)

// wikilinkPattern matches [[id]] spans. Node ids are opaque strings; we
// accept anything but brackets/pipe so a display-title extension
// ("[[id|Title]]") stays parseable later without a breaking format change.
var wikilinkPattern = regexp.MustCompile(`\[\[([^\[\]\|]+)(?:\|[^\[\]]*)?\]\]`)

// Extract returns the distinct target ids mentioned in content, in first-
// occurrence order.
func Extract(content string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Diff computes the mention delta between an old and new content string.
func Diff(oldContent, newContent string) (added, removed []string) {
	oldSet := toSet(Extract(oldContent))
	newSet := toSet(Extract(newContent))

	for id := range newSet {
		if !oldSet[id] {
			added = append(added, id)
		}
	}
	for id := range oldSet {
		if !newSet[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Index is a lookup structure over known node ids, used to quickly
// validate mention targets and to re-scan arbitrary text for any of them
// without re-running the regexp per candidate. It is safe for concurrent
// use: the node service consults Known before writing a mention edge and
// calls Add as each new node commits, so the index stays live across the
// service's lifetime instead of only reflecting a startup snapshot.
type Index struct {
	mu    sync.RWMutex
	ids   *trie.Trie[struct{}]
	ac    *ahocorasick.Automaton
	dict  []string
	dirty bool // automaton needs rebuilding against dict before next scan
}

// NewIndex compiles an Index over the given node ids.
func NewIndex(ids []string) *Index {
	idx := &Index{ids: trie.New[struct{}]()}
	for _, id := range ids {
		if _, ok := idx.ids.Find(id); ok {
			continue
		}
		idx.ids.Add(id, struct{}{})
		idx.dict = append(idx.dict, id)
	}
	idx.ac = buildAutomaton(idx.dict)
	return idx
}

// buildAutomaton compiles the id dictionary into an Aho-Corasick automaton.
// An empty dictionary yields a nil automaton and ScanKnownIDs simply
// matches nothing.
func buildAutomaton(dict []string) *ahocorasick.Automaton {
	if len(dict) == 0 {
		return nil
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(dict).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil
	}
	return ac
}

// Add registers a newly created node id, so a subsequent Known or
// ScanKnownIDs call observes it. The automaton is rebuilt lazily on the
// next ScanKnownIDs call rather than on every Add, since node creation is
// far more frequent than a bulk corpus re-scan.
func (idx *Index) Add(id string) {
	if idx == nil {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.ids == nil {
		idx.ids = trie.New[struct{}]()
	}
	if _, ok := idx.ids.Find(id); ok {
		return
	}
	idx.ids.Add(id, struct{}{})
	idx.dict = append(idx.dict, id)
	idx.dirty = true
}

// Known reports whether id is a recognized node id.
func (idx *Index) Known(id string) bool {
	if idx == nil {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.ids == nil {
		return false
	}
	_, ok := idx.ids.Find(id)
	return ok
}

// ScanKnownIDs runs an Aho-Corasick pass over text and returns every
// indexed id that occurs as a substring, for bulk corpus re-scans (e.g.
// after a batch rename) where calling Known per wikilink candidate would
// mean re-walking the text once per candidate instead of once total.
func (idx *Index) ScanKnownIDs(text string) []string {
	if idx == nil {
		return nil
	}
	idx.mu.Lock()
	if idx.dirty {
		idx.ac = buildAutomaton(idx.dict)
		idx.dirty = false
	}
	ac, dict := idx.ac, idx.dict
	idx.mu.Unlock()

	if ac == nil {
		return nil
	}
	hits := ac.FindAllOverlapping([]byte(text))
	if len(hits) == 0 {
		return nil
	}
	out := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if h.PatternID < 0 || h.PatternID >= len(dict) {
			continue
		}
		id := dict[h.PatternID]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
