package ngram

import (
	"fmt"
	"strings"
)

// keySentinel is the Unicode Private Use Area codepoint used internally to
// represent Sentinel inside a context's map key. Passwords containing a
// literal character in this range are treated the same as any other
// character here; this is an accepted, near-impossible edge case rather
// than something this package tries to prevent.
const keySentinel rune = '\uE000'

// Pair is one (context, successor) observation produced by Segment.
type Pair struct {
	Context   []rune // length n-1, each entry either an ordinary rune or Sentinel
	Successor rune   // an ordinary rune or Sentinel
}

// Segment slides a window of length n across s, padded with n-1 Sentinels
// on each side, producing (context, successor) pairs. For s = "ab", n = 3
// this yields exactly:
//
//	((⊥,⊥),'a'), ((⊥,'a'),'b'), (('a','b'),⊥), (('b',⊥),⊥)
func Segment(s string, n int) []Pair {
	if n < 2 {
		n = 2
	}
	runes := []rune(s)
	pad := make([]rune, 0, len(runes)+2*(n-1))
	for i := 0; i < n-1; i++ {
		pad = append(pad, Sentinel)
	}
	pad = append(pad, runes...)
	for i := 0; i < n-1; i++ {
		pad = append(pad, Sentinel)
	}

	pairs := make([]Pair, 0, len(pad)-n+1)
	for i := 0; i+n <= len(pad); i++ {
		ctx := make([]rune, n-1)
		copy(ctx, pad[i:i+n-1])
		pairs = append(pairs, Pair{Context: ctx, Successor: pad[i+n-1]})
	}
	return pairs
}

// contextKey renders a context as a comparable map key.
func contextKey(ctx []rune) string {
	var b strings.Builder
	b.Grow(len(ctx))
	for _, r := range ctx {
		if r == Sentinel {
			b.WriteRune(keySentinel)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Model is a character n-gram language model: a mapping from context to
// histogram of observed successors, plus a scalar returned for unseen
// contexts.
type Model struct {
	n           int
	defaultBits float64
	histograms  map[string]*Histogram
	// contexts preserves the original []rune form of each key, needed to
	// serialize the model back out (map keys alone lose the Sentinel
	// distinction once collapsed into a string).
	contexts map[string][]rune
}

// New returns an empty model for n-grams of length n, using defaultBits for
// unseen contexts.
func New(n int, defaultBits float64) *Model {
	if n < 2 {
		n = 2
	}
	return &Model{
		n:           n,
		defaultBits: defaultBits,
		histograms:  make(map[string]*Histogram),
		contexts:    make(map[string][]rune),
	}
}

// N returns the configured n-gram window length.
func (m *Model) N() int { return m.n }

// DefaultBits returns the scalar used for unseen contexts.
func (m *Model) DefaultBits() float64 { return m.defaultBits }

// Extend trains the model on pairs, incrementing the histogram at each
// pair's context.
func (m *Model) Extend(pairs []Pair) {
	for _, p := range pairs {
		key := contextKey(p.Context)
		h, ok := m.histograms[key]
		if !ok {
			h = NewHistogram()
			m.histograms[key] = h
			ctx := make([]rune, len(p.Context))
			copy(ctx, p.Context)
			m.contexts[key] = ctx
		}
		h.Increment(p.Successor, 1)
	}
}

// Train segments s at the model's configured n-gram length and extends the
// model with the result. It is a convenience wrapper used by the corpus
// ingestion tool.
func (m *Model) Train(s string) {
	m.Extend(Segment(s, m.n))
}

// Bits scores s: the sum, over every segmentation pair except the last, of
// the entropy of that pair's successor under its context. The final
// (c_{m-1},⊥)→⊥ pair is deterministic and dropped.
func (m *Model) Bits(s string) float64 {
	pairs := Segment(s, m.n)
	if len(pairs) == 0 {
		return 0
	}

	var total float64
	for _, p := range pairs[:len(pairs)-1] {
		key := contextKey(p.Context)
		h, ok := m.histograms[key]
		if !ok {
			total += m.defaultBits
			continue
		}
		total += h.Bits(p.Successor, m.defaultBits)
	}
	return total
}

// Contexts returns every trained context alongside its histogram's raw
// counts, for persistence and equality testing.
func (m *Model) Contexts() map[string]map[rune]int {
	out := make(map[string]map[rune]int, len(m.histograms))
	for key, h := range m.histograms {
		out[contextLabel(m.contexts[key])] = h.Counts()
	}
	return out
}

// contextLabel renders a context as a human-readable string for tests and
// diagnostics, e.g. "(⊥,⊥)".
func contextLabel(ctx []rune) string {
	parts := make([]string, len(ctx))
	for i, r := range ctx {
		if r == Sentinel {
			parts[i] = "⊥"
		} else {
			parts[i] = string(r)
		}
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// RawContext is one trained context in its lossless form: the original
// symbol sequence (ordinary runes or Sentinel) alongside its histogram's
// counts. Used only by internal/persist to serialize the model without
// losing the Sentinel/ordinary-rune distinction that Contexts' string form
// discards.
type RawContext struct {
	Symbols []rune
	Counts  map[rune]int
}

// RawContexts returns every trained context in its lossless form.
func (m *Model) RawContexts() []RawContext {
	out := make([]RawContext, 0, len(m.histograms))
	for key, h := range m.histograms {
		out = append(out, RawContext{Symbols: m.contexts[key], Counts: h.Counts()})
	}
	return out
}

// LoadContext installs a single context's histogram from persisted data.
// It is the inverse of RawContexts' per-entry shape.
func (m *Model) LoadContext(symbols []rune, counts map[rune]int) error {
	if len(symbols) != m.n-1 {
		return fmt.Errorf("ngram: context length %d does not match model n-1=%d", len(symbols), m.n-1)
	}
	key := contextKey(symbols)
	ctx := make([]rune, len(symbols))
	copy(ctx, symbols)
	m.contexts[key] = ctx
	m.histograms[key] = FromCounts(counts)
	return nil
}
