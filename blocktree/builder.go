package blocktree

import (
	"bytes"
	"fmt"
)

// NewBlockTreeFromText builds an index over text with arity tau, leaf width
// maxLeafLength and at most s top-level blocks. The top-level block size is
// the smallest one for which s blocks cover the text; only the blocks that
// overlap the text are created, so there can be fewer than s.
//
// The construction is the straightforward first-occurrence variant: at every
// level each block is matched against the text before it, and a block whose
// content already occurred earlier becomes a back-pointer to the aligned
// blocks covering that occurrence, provided those blocks survive as internal.
// Source blocks of surviving back-pointers are forced internal, which keeps
// every pointer target expanded. Specialised builders (e.g. LPF-based ones)
// can populate a BuildInput themselves and call NewBlockTree directly.
func NewBlockTreeFromText(text []byte, tau, maxLeafLength, s int) (*BlockTree, error) {
	n := len(text)
	if n == 0 {
		return nil, ErrCode(CodeOutOfRange, "cannot index an empty text")
	}
	if tau < 2 || maxLeafLength < 1 || s < 1 {
		return nil, ErrCode(CodeInvariantViolated,
			fmt.Sprintf("bad parameters tau=%d maxLeafLength=%d s=%d", tau, maxLeafLength, s))
	}

	// Smallest height with s top blocks of a power-of-tau multiple of the
	// leaf width covering the whole text. The text is padded virtually
	// with zero bytes up to whole top-level blocks.
	height := 1
	b0 := maxLeafLength * tau
	for s*b0 < n {
		b0 *= tau
		height++
	}
	topBlocks := (n + b0 - 1) / b0
	padded := make([]byte, topBlocks*b0)
	copy(padded, text)

	in := &BuildInput{
		InputLength:   n,
		Arity:         tau,
		MaxLeafLength: maxLeafLength,
		TopBlocks:     s,
		LeafSize:      maxLeafLength,
		BlockSizeLvl:  make([]int, height),
		BlocksPerLvl:  make([]int, height),
		Levels:        make([]LevelInput, height),
	}

	// present holds the aligned block numbers that exist at the current
	// level, in text order; blocks are pruned as parents turn into
	// back-pointers.
	present := make([]int, topBlocks)
	for i := range present {
		present[i] = i
	}

	blockSize := b0
	for l := 0; l < height; l++ {
		in.BlockSizeLvl[l] = blockSize
		in.BlocksPerLvl[l] = len(present)

		totalAligned := len(padded) / blockSize
		localOf := make([]int, totalAligned)
		for i := range localOf {
			localOf[i] = -1
		}
		for li, m := range present {
			localOf[m] = li
		}

		// First pass: earliest non-overlapping occurrence of every block.
		// Only that earliest occurrence is considered; when it is not
		// covered by present aligned blocks, the block gets no pointer.
		ptrOf := make([]int, len(present)) // aligned source block, -1 for none
		offOf := make([]int, len(present))
		for li, m := range present {
			ptrOf[li] = -1
			start := m * blockSize
			if start == 0 {
				continue
			}
			p := bytes.Index(padded[:start], padded[start:start+blockSize])
			if p < 0 {
				continue
			}
			src := p / blockSize
			g := p % blockSize
			if localOf[src] < 0 {
				continue
			}
			if g > 0 && (src+1 >= totalAligned || localOf[src+1] < 0) {
				continue
			}
			ptrOf[li] = src
			offOf[li] = g
		}

		// Second pass: every referenced source block must stay internal.
		required := make([]bool, len(present))
		for li := range present {
			if ptrOf[li] < 0 {
				continue
			}
			required[localOf[ptrOf[li]]] = true
			if offOf[li] > 0 {
				required[localOf[ptrOf[li]+1]] = true
			}
		}

		marks := make([]bool, len(present))
		var ptrs, offs []int
		var next []int
		for li, m := range present {
			internal := ptrOf[li] < 0 || required[li]
			marks[li] = internal
			if internal {
				for c := 0; c < tau; c++ {
					next = append(next, m*tau+c)
				}
			} else {
				ptrs = append(ptrs, localOf[ptrOf[li]])
				offs = append(offs, offOf[li])
			}
		}
		in.Levels[l] = LevelInput{Marks: marks, Pointers: ptrs, Offsets: offs}

		present = next
		blockSize /= tau
	}

	// After the level loop, present enumerates the leaf blocks.
	leaves := make([]byte, 0, len(present)*maxLeafLength)
	for _, m := range present {
		leaves = append(leaves, padded[m*maxLeafLength:(m+1)*maxLeafLength]...)
	}
	in.Leaves = leaves

	// The alphabet follows first appearance in the text, so virtual
	// padding never becomes a queryable symbol.
	seen := make(map[byte]int)
	for _, c := range text {
		if _, ok := seen[c]; !ok {
			seen[c] = len(in.Chars)
			in.Chars = append(in.Chars, c)
		}
	}
	in.CharsIndex = seen

	return NewBlockTree(in)
}
