package ngram

import (
	"math"
	"testing"
)

// TestSegmentationWindows checks the exact (context, successor) pairs
// produced by sliding an n=3 window across a padded string.
func TestSegmentationWindows(t *testing.T) {
	pairs := Segment("string", 3)
	if len(pairs) != 8 {
		t.Fatalf("len(pairs) = %d; want 8", len(pairs))
	}

	want := []struct {
		label     string
		successor rune
	}{
		{"(⊥,⊥)", 's'},
		{"(⊥,s)", 't'},
		{"(s,t)", 'r'},
		{"(t,r)", 'i'},
		{"(r,i)", 'n'},
		{"(i,n)", 'g'},
		{"(n,g)", Sentinel},
		{"(g,⊥)", Sentinel},
	}
	for i, w := range want {
		if got := contextLabel(pairs[i].Context); got != w.label {
			t.Errorf("pair %d context = %s; want %s", i, got, w.label)
		}
		if pairs[i].Successor != w.successor {
			t.Errorf("pair %d successor = %q; want %q", i, pairs[i].Successor, w.successor)
		}
	}
}

// TestSegmentationRoundTrip checks that concatenating the successor
// symbols of Segment(s, n), filtering sentinels, reproduces s.
func TestSegmentationRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "string", "aaa aab"} {
		for _, n := range []int{2, 3, 4} {
			pairs := Segment(s, n)
			var got []rune
			for _, p := range pairs {
				if p.Successor != Sentinel {
					got = append(got, p.Successor)
				}
			}
			if string(got) != s {
				t.Fatalf("Segment(%q, %d) successors = %q; want %q", s, n, string(got), s)
			}
		}
	}
}

// TestBitsScoresTrainedPasswordsByFrequency checks that a more common
// trained password scores fewer bits than a rarer one.
func TestBitsScoresTrainedPasswordsByFrequency(t *testing.T) {
	m := New(3, DefaultBits)
	corpus := []string{"aaa", "aab", "abb", "aaa"}
	for _, w := range corpus {
		m.Train(w)
	}

	if got := m.Bits("aaa"); math.Abs(got-2.0) > 0.005 {
		t.Errorf("Bits(aaa) = %.4f; want ~2.00", got)
	}
	if got := m.Bits("aab"); math.Abs(got-3.32) > 0.01 {
		t.Errorf("Bits(aab) = %.4f; want ~3.32", got)
	}
}

// TestContextsExactHistogramShape checks the exact per-context successor
// counts built up by training on a small corpus.
func TestContextsExactHistogramShape(t *testing.T) {
	m := New(3, DefaultBits)
	for _, w := range []string{"aaa", "aab", "abb", "aaa"} {
		m.Train(w)
	}

	want := map[string]map[string]int{
		"(⊥,⊥)": {"a": 4},
		"(⊥,a)": {"a": 3, "b": 1},
		"(a,a)": {"a": 2, "b": 1, "⊥": 2},
		"(a,b)": {"b": 1, "⊥": 1},
		"(b,b)": {"⊥": 1},
		"(a,⊥)": {"⊥": 2},
		"(b,⊥)": {"⊥": 2},
	}

	got := make(map[string]map[string]int)
	for label, counts := range m.Contexts() {
		converted := make(map[string]int, len(counts))
		for sym, n := range counts {
			if sym == Sentinel {
				converted["⊥"] = n
			} else {
				converted[string(sym)] = n
			}
		}
		got[label] = converted
	}

	if len(got) != len(want) {
		t.Fatalf("got %d contexts, want %d: %v", len(got), len(want), got)
	}
	for label, wantCounts := range want {
		gotCounts, ok := got[label]
		if !ok {
			t.Fatalf("missing context %s", label)
		}
		if len(gotCounts) != len(wantCounts) {
			t.Fatalf("context %s: got counts %v, want %v", label, gotCounts, wantCounts)
		}
		for sym, n := range wantCounts {
			if gotCounts[sym] != n {
				t.Errorf("context %s successor %s: got %d, want %d", label, sym, gotCounts[sym], n)
			}
		}
	}
}

// TestEntropyAdditivity checks that Bits(s) equals the sum of each
// non-terminal pair's per-context entropy, independently recomputed from
// a hand-built histogram.
func TestEntropyAdditivity(t *testing.T) {
	m := New(2, DefaultBits)
	m.Train("aab")

	pairs := Segment("aab", 2)
	hand := make(map[string]*Histogram)
	for _, p := range pairs {
		key := contextLabel(p.Context)
		h, ok := hand[key]
		if !ok {
			h = NewHistogram()
			hand[key] = h
		}
		h.Increment(p.Successor, 1)
	}

	var want float64
	for _, p := range pairs[:len(pairs)-1] {
		h := hand[contextLabel(p.Context)]
		want += h.Bits(p.Successor, DefaultBits)
	}

	if got := m.Bits("aab"); math.Abs(got-want) > 1e-9 {
		t.Errorf("Bits(aab) = %v; want %v (hand-computed)", got, want)
	}
}

func TestBits_UnseenContextUsesDefault(t *testing.T) {
	m := New(3, 7.25)
	// "zzz" padded at n=3 is 7 symbols long, producing 5 segmentation
	// pairs, 4 of them non-terminal; an untrained model scores all 4 at
	// defaultBits.
	want := 7.25 * 4
	if got := m.Bits("zzz"); math.Abs(got-want) > 1e-9 {
		t.Errorf("Bits(zzz) = %v; want %v", got, want)
	}
}

func TestLoadContext_RejectsWrongLength(t *testing.T) {
	m := New(3, DefaultBits)
	err := m.LoadContext([]rune{'a'}, map[rune]int{'b': 1})
	if err == nil {
		t.Fatal("LoadContext with wrong context length: want error, got nil")
	}
}
