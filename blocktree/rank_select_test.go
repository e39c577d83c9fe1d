package blocktree

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func TestRankSelectRepetitiveText(t *testing.T) {
	bt := buildIndexed(t, []byte("aabbaabb"), 2, 2, 1)

	for _, tc := range []struct {
		c    byte
		i    int
		want int
	}{
		{'a', 7, 4}, {'b', 7, 4}, {'a', 3, 2},
	} {
		got, err := bt.Rank(tc.c, tc.i)
		if err != nil {
			t.Fatalf("Rank(%q, %d): %v", tc.c, tc.i, err)
		}
		if got != tc.want {
			t.Errorf("Rank(%q, %d) = %d, want %d", tc.c, tc.i, got, tc.want)
		}
	}

	// The third 'b' of "aabbaabb" sits at position 6.
	if p, err := bt.Select('b', 3); err != nil || p != 6 {
		t.Errorf("Select('b', 3) = %d, %v, want 6", p, err)
	}
	if r, err := bt.Rank('b', 6); err != nil || r != 3 {
		t.Errorf("Rank('b', 6) = %d, %v, want 3", r, err)
	}
}

func TestRankSelectMississippi(t *testing.T) {
	bt := buildIndexed(t, []byte("mississippi"), 2, 2, 1)

	if r, err := bt.Rank('s', 10); err != nil || r != 4 {
		t.Errorf("Rank('s', 10) = %d, %v, want 4", r, err)
	}
	if p, err := bt.Select('s', 2); err != nil || p != 3 {
		t.Errorf("Select('s', 2) = %d, %v, want 3", p, err)
	}
	if p, err := bt.Select('i', 4); err != nil || p != 10 {
		t.Errorf("Select('i', 4) = %d, %v, want 10", p, err)
	}
}

func TestRankBeforeSupport(t *testing.T) {
	bt, err := NewBlockTreeFromText([]byte("mississippi"), 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bt.Rank('s', 3); err == nil {
		t.Error("Rank succeeded without support")
	} else if te, ok := IsTreeError(err); !ok || te.Code != CodeRankNotBuilt {
		t.Errorf("Rank error = %v, want RankNotBuilt", err)
	}
	if _, err := bt.Select('s', 1); err == nil {
		t.Error("Select succeeded without support")
	} else if te, ok := IsTreeError(err); !ok || te.Code != CodeRankNotBuilt {
		t.Errorf("Select error = %v, want RankNotBuilt", err)
	}
}

func TestRankUnknownSymbol(t *testing.T) {
	bt := buildIndexed(t, []byte("mississippi"), 2, 2, 1)
	if _, err := bt.Rank('z', 3); err == nil {
		t.Error("Rank of absent symbol succeeded")
	} else if te, ok := IsTreeError(err); !ok || te.Code != CodeUnknownSymbol {
		t.Errorf("Rank error = %v, want UnknownSymbol", err)
	}
	if _, err := bt.Select('z', 1); err == nil {
		t.Error("Select of absent symbol succeeded")
	} else if te, ok := IsTreeError(err); !ok || te.Code != CodeUnknownSymbol {
		t.Errorf("Select error = %v, want UnknownSymbol", err)
	}
}

func TestSelectOutOfRange(t *testing.T) {
	bt := buildIndexed(t, []byte("mississippi"), 2, 2, 1)
	for _, j := range []int{0, -3, 5} { // 'm' occurs once
		if _, err := bt.Select('m', j); err == nil {
			t.Errorf("Select('m', %d) succeeded", j)
		} else if te, ok := IsTreeError(err); !ok || te.Code != CodeOutOfRange {
			t.Errorf("Select('m', %d) error = %v, want OutOfRange", j, err)
		}
	}
}

func TestRankOutOfRange(t *testing.T) {
	bt := buildIndexed(t, []byte("mississippi"), 2, 2, 1)
	for _, i := range []int{-1, 11} {
		if _, err := bt.Rank('s', i); err == nil {
			t.Errorf("Rank('s', %d) succeeded", i)
		} else if te, ok := IsTreeError(err); !ok || te.Code != CodeOutOfRange {
			t.Errorf("Rank('s', %d) error = %v, want OutOfRange", i, err)
		}
	}
}

func TestAddRankSupportIdempotent(t *testing.T) {
	bt := buildIndexed(t, []byte("abracadabra"), 2, 2, 1)
	if err := bt.AddRankSupport(4); err != nil {
		t.Fatal(err)
	}
	if r, err := bt.Rank('a', 10); err != nil || r != 5 {
		t.Errorf("Rank('a', 10) = %d, %v after repeated build", r, err)
	}
}

func TestParallelBuildMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	text := make([]byte, 4096)
	for i := range text {
		text[i] = byte(rng.Intn(8)) + 'a'
	}

	seq := buildIndexed(t, text, 2, 4, 1)
	par, err := NewBlockTreeFromText(text, 2, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := par.AddRankSupport(8); err != nil {
		t.Fatal(err)
	}

	for q := 0; q < 500; q++ {
		i := rng.Intn(len(text))
		c := text[rng.Intn(len(text))]
		rs, err1 := seq.Rank(c, i)
		rp, err2 := par.Rank(c, i)
		if err1 != nil || err2 != nil {
			t.Fatalf("Rank(%q, %d): %v / %v", c, i, err1, err2)
		}
		if rs != rp {
			t.Fatalf("Rank(%q, %d): sequential %d, parallel %d", c, i, rs, rp)
		}
	}
}

func TestPeriodicTextExhaustive(t *testing.T) {
	// A period-3 text over power-of-two block sizes forces back-pointers
	// with every possible in-block offset, including source-spanning ones.
	n := 4096
	text := make([]byte, n)
	for i := range text {
		text[i] = "abc"[i%3]
	}
	bt := buildIndexed(t, text, 2, 2, 1)
	occ := occurrences(text)

	checkAccessSweep(t, bt, text)

	for _, c := range []byte("abc") {
		cnt := 0
		for i := 0; i < n; i++ {
			if text[i] == c {
				cnt++
			}
			r, err := bt.Rank(c, i)
			if err != nil {
				t.Fatalf("Rank(%q, %d): %v", c, i, err)
			}
			if r != cnt {
				t.Fatalf("Rank(%q, %d) = %d, want %d", c, i, r, cnt)
			}
		}
		for j := 1; j <= len(occ[c]); j++ {
			p, err := bt.Select(c, j)
			if err != nil {
				t.Fatalf("Select(%q, %d): %v", c, j, err)
			}
			if p != occ[c][j-1] {
				t.Fatalf("Select(%q, %d) = %d, want %d", c, j, p, occ[c][j-1])
			}
		}
	}
}

// occurrences records every position of every byte for naive comparisons.
func occurrences(text []byte) [256][]int {
	var occ [256][]int
	for i, c := range text {
		occ[c] = append(occ[c], i)
	}
	return occ
}

func TestRandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(0xb10c))
	n := 64 << 10
	text := make([]byte, n)
	rng.Read(text)
	occ := occurrences(text)

	params := []struct {
		tau, leaf int
	}{
		{2, 4}, {4, 8}, {8, 16},
	}

	for _, p := range params {
		t.Run(fmt.Sprintf("tau%d_leaf%d", p.tau, p.leaf), func(t *testing.T) {
			bt, err := NewBlockTreeFromText(text, p.tau, p.leaf, 1)
			if err != nil {
				t.Fatal(err)
			}
			if err := bt.AddRankSupport(4); err != nil {
				t.Fatal(err)
			}

			for q := 0; q < 10000; q++ {
				i := rng.Intn(n)
				c := text[rng.Intn(n)]

				got, err := bt.Access(i)
				if err != nil {
					t.Fatalf("Access(%d): %v", i, err)
				}
				if got != text[i] {
					t.Fatalf("Access(%d) = %#x, want %#x", i, got, text[i])
				}

				wantRank := sort.SearchInts(occ[c], i+1)
				r, err := bt.Rank(c, i)
				if err != nil {
					t.Fatalf("Rank(%#x, %d): %v", c, i, err)
				}
				if r != wantRank {
					t.Fatalf("Rank(%#x, %d) = %d, want %d", c, i, r, wantRank)
				}

				j := rng.Intn(len(occ[c])) + 1
				pos, err := bt.Select(c, j)
				if err != nil {
					t.Fatalf("Select(%#x, %d): %v", c, j, err)
				}
				if pos != occ[c][j-1] {
					t.Fatalf("Select(%#x, %d) = %d, want %d", c, j, pos, occ[c][j-1])
				}

				// Select–rank duality on the rank just computed.
				if r > 0 {
					pos, err := bt.Select(c, r)
					if err != nil {
						t.Fatalf("Select(%#x, %d): %v", c, r, err)
					}
					if pos > i {
						t.Fatalf("Select(%#x, Rank(..., %d)) = %d past the query position", c, i, pos)
					}
					if text[i] == c && pos != i {
						t.Fatalf("Select(%#x, %d) = %d, want %d", c, r, pos, i)
					}
				}
			}
		})
	}
}

func TestRandomizedSmallAlphabet(t *testing.T) {
	rng := rand.New(rand.NewSource(4242))
	n := 8192
	text := make([]byte, n)
	for i := range text[:n/2] {
		text[i] = byte(rng.Intn(4)) + 'a'
	}
	// Repeating the first half makes whole top-level blocks collapse into
	// back-pointers when several top blocks are used.
	copy(text[n/2:], text[:n/2])
	occ := occurrences(text)

	// Several top-level blocks exercise the prefix-cumulative code paths.
	for _, s := range []int{1, 4} {
		bt, err := NewBlockTreeFromText(text, 2, 4, s)
		if err != nil {
			t.Fatal(err)
		}
		if err := bt.AddRankSupport(2); err != nil {
			t.Fatal(err)
		}

		for q := 0; q < 2000; q++ {
			i := rng.Intn(n)
			c := text[rng.Intn(n)]
			if got, err := bt.Access(i); err != nil || got != text[i] {
				t.Fatalf("s=%d Access(%d) = %q, %v, want %q", s, i, got, err, text[i])
			}
			wantRank := sort.SearchInts(occ[c], i+1)
			if r, err := bt.Rank(c, i); err != nil || r != wantRank {
				t.Fatalf("s=%d Rank(%q, %d) = %d, %v, want %d", s, c, i, r, err, wantRank)
			}
			j := rng.Intn(len(occ[c])) + 1
			if pos, err := bt.Select(c, j); err != nil || pos != occ[c][j-1] {
				t.Fatalf("s=%d Select(%q, %d) = %d, %v, want %d", s, c, j, pos, err, occ[c][j-1])
			}
		}
	}
}
