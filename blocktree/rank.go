package blocktree

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Rank returns the number of occurrences of c in positions [0, i] of the
// indexed string. Requires AddRankSupport.
func (bt *BlockTree) Rank(c byte, i int) (int, error) {
	if !bt.rankSupport {
		return 0, ErrRankNotBuilt
	}
	ci, ok := bt.charsIndex[c]
	if !ok {
		return 0, ErrCode(CodeUnknownSymbol, fmt.Sprintf("symbol %q not indexed", c))
	}
	if i < 0 || i >= bt.n {
		return 0, ErrCode(CodeOutOfRange,
			fmt.Sprintf("position %d outside [0, %d)", i, bt.n))
	}

	counts := bt.cRanks[ci]
	ptrCounts := bt.pointerCRanks[ci]
	top := &bt.levels[0]

	blockSize := bt.blockSizeLvl[0]
	k := i / blockSize
	off := i % blockSize
	rank := 0
	if k != 0 {
		rank = counts[0].geti(k - 1)
	}
	child := 0

	// The top level differs from the deeper ones: its count vector is a
	// plain prefix sum, so block totals come from adjacent differences.
	if top.isInternal(k) {
		blockSize /= bt.tau
		child = off / blockSize
		off %= blockSize
		k = top.rank1(k)*bt.tau + child
	} else {
		r := top.rank0(k)
		rank -= ptrCounts[0].geti(r)
		off += top.offsets.geti(r)
		k = top.pointers.geti(r)
		child = k
		if off >= blockSize {
			if child == 0 {
				rank += counts[0].geti(k)
			} else {
				rank += counts[0].geti(k) - counts[0].geti(k-1)
			}
			k++
			off -= blockSize
		}
		blockSize /= bt.tau
		child = off / blockSize
		off %= blockSize
		k = top.rank1(k)*bt.tau + child
	}

	l := 1
	for l < len(bt.levels) {
		lvl := &bt.levels[l]
		if child != 0 {
			rank += counts[l].geti(k - 1)
		}
		if lvl.isInternal(k) {
			rankBlk := lvl.rank1(k)
			blockSize /= bt.tau
			child = off / blockSize
			off %= blockSize
			k = rankBlk*bt.tau + child
			l++
		} else {
			r := lvl.rank0(k)
			rank -= ptrCounts[l].geti(r)
			off += lvl.offsets.geti(r)
			k = lvl.pointers.geti(r)
			child = k % bt.tau
			if off >= blockSize {
				if child == 0 {
					rank += counts[l].geti(k)
				} else {
					rank += counts[l].geti(k) - counts[l].geti(k-1)
				}
				k++
				child = k % bt.tau
				off -= blockSize
			}
			// The next round re-adds the sibling prefix for this block, so
			// take it out here to keep the sum balanced.
			if child != 0 {
				rank -= counts[l].geti(k - 1)
			}
		}
	}

	// Leaf scan: the full sibling leaves before the target, then the target
	// leaf up to and including off. The range is contiguous in the leaf
	// concatenation.
	prefixLeaves := k - child
	win, err := bt.leaves.window(prefixLeaves*bt.leafSize, child*bt.leafSize+off+1)
	if err != nil {
		return 0, err
	}
	for _, s := range win {
		if s == c {
			rank++
		}
	}
	return rank, nil
}

// AddRankSupport builds the per-symbol rank augmentation. One task runs per
// distinct symbol; threads bounds how many run at once and threads = 1
// forces a sequential build. Idempotent.
func (bt *BlockTree) AddRankSupport(threads int) error {
	if bt.rankSupport {
		return nil
	}
	if threads < 1 {
		threads = 1
	}

	leafSyms, err := bt.leaves.window(0, bt.leaves.size())
	if err != nil {
		return fmt.Errorf("materializing leaves for rank build: %w", err)
	}

	bt.cRanks = make([][]packedVector, len(bt.chars))
	bt.pointerCRanks = make([][]packedVector, len(bt.chars))

	var g errgroup.Group
	g.SetLimit(threads)
	for ci, c := range bt.chars {
		ci, c := ci, c
		g.Go(func() error {
			rb := newRankBuilder(bt, c, leafSyms)
			rb.run()
			bt.cRanks[ci], bt.pointerCRanks[ci] = rb.pack()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	bt.rankSupport = true
	return nil
}

// rankBuilder computes the count vectors for a single symbol. Its outputs
// are private to the symbol, so builders for different symbols may run
// concurrently over the shared read-only tree.
type rankBuilder struct {
	bt        *BlockTree
	c         byte
	leafSyms  []byte
	counts    [][]int // raw per-block counts, cumulated after the walk
	ptrCounts [][]int
}

func newRankBuilder(bt *BlockTree, c byte, leafSyms []byte) *rankBuilder {
	rb := &rankBuilder{
		bt:        bt,
		c:         c,
		leafSyms:  leafSyms,
		counts:    make([][]int, len(bt.levels)),
		ptrCounts: make([][]int, len(bt.levels)),
	}
	for l := range bt.levels {
		rb.counts[l] = make([]int, bt.levels[l].numBlocks())
		rb.ptrCounts[l] = make([]int, bt.levels[l].pointers.len())
	}
	return rb
}

func (rb *rankBuilder) run() {
	// The recursive walk fills every level because each internal block
	// recurses into its children; back-pointers only ever reference blocks
	// already visited.
	for k := 0; k < rb.bt.levels[0].numBlocks(); k++ {
		rb.rankBlock(0, k)
	}

	// Level 0 becomes a plain prefix sum; queries binary-search on it.
	c0 := rb.counts[0]
	for k := 1; k < len(c0); k++ {
		c0[k] += c0[k-1]
	}

	// Deeper levels become group-cumulative: the running sum resets at
	// every sibling-group boundary, which keeps the stored values small.
	for l := 1; l < len(rb.counts); l++ {
		counter := rb.bt.tau
		acc := 0
		for j := range rb.counts[l] {
			temp := rb.counts[l][j]
			rb.counts[l][j] += acc
			acc += temp
			counter--
			if counter == 0 {
				acc = 0
				counter = rb.bt.tau
			}
		}
	}
}

// pack bit-compresses the finished vectors.
func (rb *rankBuilder) pack() ([]packedVector, []packedVector) {
	cs := make([]packedVector, len(rb.counts))
	qs := make([]packedVector, len(rb.ptrCounts))
	for l := range rb.counts {
		cs[l] = packSlice(rb.counts[l])
		qs[l] = packSlice(rb.ptrCounts[l])
	}
	return cs, qs
}

// rankBlock computes the raw count of the symbol within block k of level l,
// recording it in counts and, for back-pointer blocks, the unused source
// prefix in ptrCounts.
func (rb *rankBuilder) rankBlock(l, k int) int {
	bt := rb.bt
	lvl := &bt.levels[l]
	if k >= lvl.numBlocks() {
		return 0
	}

	rankC := 0
	if lvl.isInternal(k) {
		rankBlk := lvl.rank1(k)
		if l != len(bt.levels)-1 {
			for i := 0; i < bt.tau; i++ {
				rankC += rb.rankBlock(l+1, rankBlk*bt.tau+i)
			}
		} else {
			for i := 0; i < bt.tau; i++ {
				rankC += rb.rankLeaf(rankBlk*bt.tau+i, bt.leafSize)
			}
		}
	} else {
		r := lvl.rank0(k)
		ptr := lvl.pointers.geti(r)
		g := lvl.offsets.geti(r)
		rankG := 0
		rankC += rb.counts[l][ptr]
		if g != 0 {
			rankG = rb.partRankBlock(l, ptr, g)
			second := rb.partRankBlock(l, ptr+1, g)
			rankC -= rankG
			rankC += second
		}
		rb.ptrCounts[l][r] = rankG
	}
	rb.counts[l][k] = rankC
	return rankC
}

// partRankBlock counts the symbol in the prefix [0, g) of block k at level l.
func (rb *rankBuilder) partRankBlock(l, k, g int) int {
	bt := rb.bt
	lvl := &bt.levels[l]
	if k >= lvl.numBlocks() {
		return 0
	}

	rankC := 0
	if lvl.isInternal(k) {
		rankBlk := lvl.rank1(k)
		if l != len(bt.levels)-1 {
			childSize := bt.blockSizeLvl[l+1]
			i, sum := 0, 0
			for ; i < bt.tau && sum+childSize <= g; i++ {
				rankC += rb.counts[l+1][rankBlk*bt.tau+i]
				sum += childSize
			}
			if sum != g {
				rankC += rb.partRankBlock(l+1, rankBlk*bt.tau+i, g-sum)
			}
		} else {
			i, sum := 0, 0
			for ; i < bt.tau && sum+bt.leafSize <= g; i++ {
				rankC += rb.rankLeaf(rankBlk*bt.tau+i, bt.leafSize)
				sum += bt.leafSize
			}
			if sum != g {
				rankC += rb.rankLeaf(rankBlk*bt.tau+i, g%bt.leafSize)
			}
		}
	} else {
		r := lvl.rank0(k)
		ptr := lvl.pointers.geti(r)
		off := lvl.offsets.geti(r)
		if g+off >= bt.blockSizeLvl[l] {
			rankC += rb.counts[l][ptr] - rb.ptrCounts[l][r] +
				rb.partRankBlock(l, ptr+1, g+off-bt.blockSizeLvl[l])
		} else {
			rankC += rb.partRankBlock(l, ptr, g+off) - rb.ptrCounts[l][r]
		}
	}
	return rankC
}

// rankLeaf counts the symbol in the first cnt positions of the given leaf.
func (rb *rankBuilder) rankLeaf(leafIndex, cnt int) int {
	start := leafIndex * rb.bt.leafSize
	if start >= len(rb.leafSyms) {
		return 0
	}
	result := 0
	for _, s := range rb.leafSyms[start : start+cnt] {
		if s == rb.c {
			result++
		}
	}
	return result
}
