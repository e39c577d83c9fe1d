package blocktree

import (
	"fmt"
	"math/bits"

	"github.com/hillbig/rsdic"
)

// level bundles everything one block-tree level owns: the mark bitmap with
// its rank index, and the pointer and offset vectors for back-pointer blocks.
type level struct {
	marks    *rsdic.RSDic
	pointers packedVector
	offsets  packedVector
}

func (l *level) numBlocks() int { return int(l.marks.Num()) }

// isInternal reports whether block k expands into children; otherwise it is
// a back-pointer block.
func (l *level) isInternal(k int) bool { return l.marks.Bit(uint64(k)) }

// rank1 counts internal blocks before k.
func (l *level) rank1(k int) int { return int(l.marks.Rank(uint64(k), true)) }

// rank0 counts back-pointer blocks before k, which is also the index of
// block k within the pointer and offset vectors when k itself is one.
func (l *level) rank0(k int) int { return int(l.marks.Rank(uint64(k), false)) }

// LevelInput is the per-level output of an external construction algorithm.
type LevelInput struct {
	Marks    []bool // true marks an internal block
	Pointers []int  // source block index per back-pointer block
	Offsets  []int  // in-block offset per back-pointer block
}

// BuildInput is the constructor contract: the fields a block-tree builder
// must populate before the index can be assembled.
type BuildInput struct {
	InputLength   int
	Arity         int
	MaxLeafLength int
	TopBlocks     int
	LeafSize      int
	BlockSizeLvl  []int
	BlocksPerLvl  []int
	Levels        []LevelInput
	Leaves        []byte
	Chars         []byte
	CharsIndex    map[byte]int
}

// BlockTree is a compressed self-index over a byte string. It is immutable
// once constructed; all queries may run concurrently.
type BlockTree struct {
	tau           int
	maxLeafLength int
	s             int
	leafSize      int
	n             int

	blockSizeLvl []int
	blocksPerLvl []int
	levels       []level

	rawLeaves []byte // dropped by CompressLeaves
	leaves    leafStore

	chars      []byte
	charsIndex map[byte]int

	rankSupport   bool
	cRanks        [][]packedVector // [symbol][level]
	pointerCRanks [][]packedVector // [symbol][level]
}

// NewBlockTree assembles an index from a populated BuildInput, constructing
// the per-level rank indexes and compressing the leaf layer.
func NewBlockTree(in *BuildInput) (*BlockTree, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	bt := &BlockTree{
		tau:           in.Arity,
		maxLeafLength: in.MaxLeafLength,
		s:             in.TopBlocks,
		leafSize:      in.LeafSize,
		n:             in.InputLength,
		blockSizeLvl:  append([]int(nil), in.BlockSizeLvl...),
		blocksPerLvl:  append([]int(nil), in.BlocksPerLvl...),
		levels:        make([]level, len(in.Levels)),
		rawLeaves:     append([]byte(nil), in.Leaves...),
	}

	for i, li := range in.Levels {
		rs := rsdic.New()
		for _, b := range li.Marks {
			rs.PushBack(b)
		}
		bt.levels[i] = level{
			marks:    rs,
			pointers: packSlice(li.Pointers),
			offsets:  packSlice(li.Offsets),
		}
	}

	if len(in.Chars) > 0 {
		bt.chars = append([]byte(nil), in.Chars...)
		bt.charsIndex = make(map[byte]int, len(bt.chars))
		if in.CharsIndex != nil {
			for c, i := range in.CharsIndex {
				bt.charsIndex[c] = i
			}
		} else {
			for i, c := range bt.chars {
				bt.charsIndex[c] = i
			}
		}
	} else {
		bt.mapUniqueChars(in.Leaves)
	}

	bt.CompressLeaves()
	return bt, nil
}

// mapUniqueChars enumerates the distinct leaf symbols in first-appearance
// order; the resulting index addresses the rank augmentation vectors.
func (bt *BlockTree) mapUniqueChars(leaves []byte) {
	bt.charsIndex = make(map[byte]int)
	for _, c := range leaves {
		if _, ok := bt.charsIndex[c]; !ok {
			bt.charsIndex[c] = len(bt.chars)
			bt.chars = append(bt.chars, c)
		}
	}
}

func validateInput(in *BuildInput) error {
	if in.Arity < 2 {
		return ErrCode(CodeInvariantViolated, fmt.Sprintf("arity %d below 2", in.Arity))
	}
	if in.LeafSize < 1 || len(in.Levels) == 0 {
		return ErrCode(CodeInvariantViolated, "empty tree shape")
	}
	if len(in.BlockSizeLvl) != len(in.Levels) || len(in.BlocksPerLvl) != len(in.Levels) {
		return ErrCode(CodeInvariantViolated, "level metadata length mismatch")
	}
	if len(in.Leaves)%in.LeafSize != 0 {
		return ErrCode(CodeInvariantViolated, "leaf stream not a whole number of leaves")
	}
	if in.InputLength < 1 || in.InputLength > in.BlocksPerLvl[0]*in.BlockSizeLvl[0] {
		return ErrCode(CodeInvariantViolated,
			fmt.Sprintf("input length %d does not fit %d top-level blocks of %d",
				in.InputLength, in.BlocksPerLvl[0], in.BlockSizeLvl[0]))
	}

	for i, li := range in.Levels {
		if len(li.Marks) != in.BlocksPerLvl[i] {
			return ErrCode(CodeInvariantViolated,
				fmt.Sprintf("level %d has %d marks, expected %d", i, len(li.Marks), in.BlocksPerLvl[i]))
		}
		ones, zeros := 0, 0
		zeroAbs := make([]int, 0, len(li.Pointers))
		for k, b := range li.Marks {
			if b {
				ones++
			} else {
				zeros++
				zeroAbs = append(zeroAbs, k)
			}
		}
		if zeros != len(li.Pointers) || zeros != len(li.Offsets) {
			return ErrCode(CodeInvariantViolated,
				fmt.Sprintf("level %d pointer vectors do not match %d back-pointer blocks", i, zeros))
		}

		children := len(in.Leaves) / in.LeafSize
		if i+1 < len(in.Levels) {
			children = in.BlocksPerLvl[i+1]
		}
		if ones*in.Arity != children {
			return ErrCode(CodeInvariantViolated,
				fmt.Sprintf("level %d expands %d internal blocks into %d children", i, ones, children))
		}

		for r, ptr := range li.Pointers {
			g := li.Offsets[r]
			if g < 0 || g >= in.BlockSizeLvl[i] {
				return ErrCode(CodeInvariantViolated,
					fmt.Sprintf("level %d back-pointer %d offset %d outside block", i, r, g))
			}
			last := ptr
			if g > 0 {
				last = ptr + 1
			}
			if ptr < 0 || last >= len(li.Marks) || last >= zeroAbs[r] {
				return ErrCode(CodeInvariantViolated,
					fmt.Sprintf("level %d back-pointer %d references block %d at or after itself", i, r, last))
			}
		}
	}
	return nil
}

// Access returns the symbol at position i of the indexed string.
func (bt *BlockTree) Access(i int) (byte, error) {
	if i < 0 || i >= bt.n {
		return 0, ErrCode(CodeOutOfRange,
			fmt.Sprintf("position %d outside [0, %d)", i, bt.n))
	}

	blockSize := bt.blockSizeLvl[0]
	k := i / blockSize
	off := i % blockSize
	for l := range bt.levels {
		lvl := &bt.levels[l]
		if !lvl.isInternal(k) {
			r := lvl.rank0(k)
			off += lvl.offsets.geti(r)
			k = lvl.pointers.geti(r)
			if off >= blockSize {
				k++
				off -= blockSize
			}
		}
		blockSize /= bt.tau
		child := off / blockSize
		off %= blockSize
		k = lvl.rank1(k)*bt.tau + child
	}
	return bt.leaves.at(k*bt.leafSize + off)
}

// CompressLeaves replaces the raw leaf byte stream with a bit-packed array
// of dense symbol ids. The constructor calls it once; further calls are
// no-ops.
func (bt *BlockTree) CompressLeaves() {
	if bt.leaves != nil {
		return
	}

	var present [256]bool
	for _, b := range bt.rawLeaves {
		present[b] = true
	}
	var compress, decompress [256]byte
	sigma := 0
	for i := 0; i < 256; i++ {
		if present[i] {
			compress[i] = byte(sigma)
			decompress[sigma] = byte(i)
			sigma++
		}
	}

	width := bits.Len64(uint64(sigma - 1))
	if width < 1 {
		width = 1
	}
	ids := newPackedVector(len(bt.rawLeaves), width)
	for i, b := range bt.rawLeaves {
		ids.set(i, uint64(compress[b]))
	}

	bt.leaves = &denseLeaves{
		ids:        ids,
		sigma:      sigma,
		compress:   compress,
		decompress: decompress,
	}
	bt.rawLeaves = nil
}

// HuffmanCompressLeaves swaps the dense leaf array for a canonical-Huffman
// stream sampled every samplePos symbols. Requires CompressLeaves to have
// run, which the constructor guarantees.
func (bt *BlockTree) HuffmanCompressLeaves(samplePos int) error {
	dense, ok := bt.leaves.(*denseLeaves)
	if !ok {
		return nil
	}

	raw, err := dense.window(0, dense.size())
	if err != nil {
		return err
	}
	coder, err := NewHuffmanCoder(raw, samplePos)
	if err != nil {
		return fmt.Errorf("building leaf coder: %w", err)
	}
	bt.leaves = &huffmanLeaves{coder: coder, n: len(raw)}
	return nil
}

// SpaceUsage sums the sizes of all owned structures in bytes.
func (bt *BlockTree) SpaceUsage() int {
	sum := 8 * 5 // scalar fields
	sum += 8 * (len(bt.blockSizeLvl) + len(bt.blocksPerLvl))
	for i := range bt.levels {
		lvl := &bt.levels[i]
		sum += lvl.marks.AllocSize()
		sum += lvl.pointers.sizeInBytes()
		sum += lvl.offsets.sizeInBytes()
	}
	sum += len(bt.rawLeaves)
	if bt.leaves != nil {
		sum += bt.leaves.sizeInBytes()
	}
	sum += len(bt.chars)
	sum += 16 * len(bt.charsIndex)
	if bt.rankSupport {
		for ci := range bt.cRanks {
			for l := range bt.cRanks[ci] {
				sum += bt.cRanks[ci][l].sizeInBytes()
			}
			for l := range bt.pointerCRanks[ci] {
				sum += bt.pointerCRanks[ci][l].sizeInBytes()
			}
		}
	}
	return sum
}

// Length returns the number of symbols in the indexed string.
func (bt *BlockTree) Length() int { return bt.n }

// Chars returns the distinct leaf symbols in construction order.
func (bt *BlockTree) Chars() []byte { return bt.chars }
