package matching

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"media-vault/internal/logging"
)

// RegexPrefix marks an alias as a raw regular expression.
const RegexPrefix = "regex:"

// IsRegexAlias reports whether alias is a raw pattern rather than a name.
func IsRegexAlias(alias string) bool {
	return strings.HasPrefix(alias, RegexPrefix)
}

// Candidate is anything with a name and aliases that can be found in text.
type Candidate struct {
	ID      string
	Name    string
	Aliases []string
}

// Hit is one matched candidate. Index and Last are the offsets of the
// first and last occurrence in the normalized text; Length is the longest
// matched span.
type Hit struct {
	ID     string
	Name   string
	Alias  string
	Index  int
	Last   int
	Length int
}

// SortMode orders the result of Match.
type SortMode int

const (
	// SortDiscovery keeps candidate input order.
	SortDiscovery SortMode = iota
	// SortLongestMatch orders by matched length, longest first.
	SortLongestMatch
	// SortReverseAppearance orders by last occurrence, latest first. Used for
	// studios, which conventionally close a file name.
	SortReverseAppearance
)

// Options configures a Match call.
type Options struct {
	Sort              SortMode
	IgnoreSingleNames bool
}

type document struct {
	tokens  []string
	offsets []int
	folded  foldedText
}

func newDocument(text string) *document {
	folded := foldText(text)
	d := &document{tokens: folded.tokens, folded: folded}
	d.offsets = make([]int, len(d.tokens))
	pos := 0
	for i, tok := range d.tokens {
		d.offsets[i] = pos
		pos += len(tok) + 1
	}
	return d
}

type occurrence struct {
	first, last, length int
}

func (o *occurrence) add(start, length int, seen bool) {
	if !seen {
		o.first = start
	}
	o.last = start
	if length > o.length {
		o.length = length
	}
}

// find locates every run of whole tokens whose concatenation equals the
// concatenation of want.
func (d *document) find(want []string) (occurrence, bool) {
	var (
		occ   occurrence
		found bool
	)
	target := strings.Join(want, "")
	if target == "" {
		return occ, false
	}

	for i := range d.tokens {
		rest := target
		j := i
		for j < len(d.tokens) && strings.HasPrefix(rest, d.tokens[j]) {
			rest = rest[len(d.tokens[j]):]
			j++
			if rest == "" {
				break
			}
		}
		if rest != "" {
			continue
		}
		start := d.offsets[i]
		end := d.offsets[j-1] + len(d.tokens[j-1])
		occ.add(start, end-start, found)
		found = true
	}
	return occ, found
}

// findRegex runs re against the folded text and reports positions in the
// token string, the same coordinates find uses.
func (d *document) findRegex(re *regexp.Regexp) (occurrence, bool) {
	var (
		occ   occurrence
		found bool
	)
	for _, loc := range re.FindAllStringIndex(d.folded.text, -1) {
		if loc[1] <= loc[0] {
			continue
		}
		start := d.folded.starts[loc[0]]
		end := d.folded.ends[loc[1]-1]
		occ.add(start, max(end-start, 0), found)
		found = true
	}
	return occ, found
}

var regexCache sync.Map // pattern -> *regexp.Regexp, nil when invalid

func compileAlias(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		logging.Warn("Ignoring invalid regex alias %q: %v", pattern, err)
		re = nil
	}
	regexCache.Store(pattern, re)
	return re
}

// Match returns the candidates mentioned in text, one entry per candidate
// id, ordered by opts.Sort.
func Match(candidates []Candidate, text string, opts Options) []Hit {
	if strings.TrimSpace(text) == "" || len(candidates) == 0 {
		return nil
	}

	doc := newDocument(text)
	var out []Hit
	byID := make(map[string]int)

	for _, c := range candidates {
		m, ok := matchCandidate(doc, c, opts)
		if !ok {
			continue
		}
		if i, dup := byID[c.ID]; dup {
			out[i] = mergeMatch(out[i], m)
			continue
		}
		byID[c.ID] = len(out)
		out = append(out, m)
	}

	switch opts.Sort {
	case SortLongestMatch:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Length > out[j].Length
		})
	case SortReverseAppearance:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Last != out[j].Last {
				return out[i].Last > out[j].Last
			}
			return out[i].Length > out[j].Length
		})
	}
	return out
}

func matchCandidate(doc *document, c Candidate, opts Options) (Hit, bool) {
	m := Hit{ID: c.ID, Name: c.Name}
	found := false

	names := make([]string, 0, len(c.Aliases)+1)
	names = append(names, c.Name)
	names = append(names, c.Aliases...)

	for _, alias := range names {
		var (
			occ occurrence
			ok  bool
		)
		if pattern, isRegex := strings.CutPrefix(alias, RegexPrefix); isRegex {
			re := compileAlias(pattern)
			if re == nil {
				continue
			}
			occ, ok = doc.findRegex(re)
		} else {
			tokens := Tokenize(alias)
			if len(tokens) == 0 || (opts.IgnoreSingleNames && len(tokens) == 1) {
				continue
			}
			occ, ok = doc.find(tokens)
		}
		if !ok {
			continue
		}

		if !found {
			m.Alias = alias
			m.Index = occ.first
			m.Last = occ.last
			m.Length = occ.length
			found = true
			continue
		}
		if occ.first < m.Index {
			m.Index = occ.first
		}
		if occ.last > m.Last {
			m.Last = occ.last
		}
		if occ.length > m.Length {
			m.Length = occ.length
			m.Alias = alias
		}
	}
	return m, found
}

func mergeMatch(a, b Hit) Hit {
	if b.Index < a.Index {
		a.Index = b.Index
	}
	if b.Last > a.Last {
		a.Last = b.Last
	}
	if b.Length > a.Length {
		a.Length = b.Length
		a.Alias = b.Alias
	}
	return a
}
