package blocktree

import (
	"container/heap"
	"fmt"
	"slices"
)

// huffNode is a node in the code-construction tree. Nodes live in a flat
// arena and reference children by index, so the whole tree is freed at once.
type huffNode struct {
	letter      byte
	occs        int
	left, right int // arena indices, -1 for leaves
}

// huffHeap is a min-priority queue over arena indices, keyed on
// (frequency, insertion order). The insertion-order tiebreak keeps code
// construction deterministic.
type huffHeap struct {
	arena *[]huffNode
	idx   []int
}

func (h *huffHeap) Len() int { return len(h.idx) }
func (h *huffHeap) Less(i, j int) bool {
	a, b := (*h.arena)[h.idx[i]], (*h.arena)[h.idx[j]]
	if a.occs == b.occs {
		return h.idx[i] < h.idx[j]
	}
	return a.occs < b.occs
}
func (h *huffHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *huffHeap) Push(x any) {
	h.idx = append(h.idx, x.(int))
}

func (h *huffHeap) Pop() any {
	old := h.idx
	n := len(old)
	item := old[n-1]
	h.idx = old[:n-1]
	return item
}

type huffCode struct {
	word   uint64 // codeword left-aligned in the top bits
	length int
}

type huffEntry struct {
	letter byte
	length uint8
}

// HuffmanCoder packs a byte stream into a canonical-Huffman bit stream of
// 64-bit words, written most-significant-bit first. When built with a sample
// stride, the absolute bit position of every samplePos-th symbol is
// recorded, which makes windowed random access possible.
type HuffmanCoder struct {
	maxCodeLength int
	bitSize       int
	words         []uint64

	samplePos int
	samples   []int

	encode      [256]huffCode
	decodeTable []huffEntry
}

// NewHuffmanCoder builds a canonical code over text and encodes it.
// A samplePos of zero disables sampling and with it the Access operation.
func NewHuffmanCoder(text []byte, samplePos int) (*HuffmanCoder, error) {
	h := &HuffmanCoder{samplePos: samplePos}
	if len(text) == 0 {
		return h, nil
	}

	var freq [256]int
	for _, b := range text {
		freq[b]++
	}

	lengths, err := buildCodeLengths(freq)
	if err != nil {
		return nil, err
	}
	h.buildTables(lengths, freq)
	h.writeBits(text)
	return h, nil
}

// buildCodeLengths derives codeword lengths from the node-merge tree over
// the frequency table. Only the lengths matter; the tree is discarded.
func buildCodeLengths(freq [256]int) ([256]int, error) {
	arena := make([]huffNode, 0, 512)
	pq := &huffHeap{arena: &arena}
	for i := 0; i < 256; i++ {
		if freq[i] == 0 {
			continue
		}
		arena = append(arena, huffNode{letter: byte(i), occs: freq[i], left: -1, right: -1})
		pq.idx = append(pq.idx, len(arena)-1)
	}
	heap.Init(pq)

	for pq.Len() > 1 {
		n1 := heap.Pop(pq).(int)
		n2 := heap.Pop(pq).(int)
		arena = append(arena, huffNode{
			occs:  arena[n1].occs + arena[n2].occs,
			left:  n1,
			right: n2,
		})
		heap.Push(pq, len(arena)-1)
	}
	root := pq.idx[0]

	// Walk the tree once to read off the depth of every leaf.
	var lengths [256]int
	type nodeDepth struct {
		node  int
		depth int
	}
	stack := []nodeDepth{{root, 0}}
	maxLen := 0
	for len(stack) > 0 {
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := arena[nd.node]
		if n.left < 0 {
			lengths[n.letter] = nd.depth
			if nd.depth > maxLen {
				maxLen = nd.depth
			}
			continue
		}
		stack = append(stack,
			nodeDepth{n.left, nd.depth + 1},
			nodeDepth{n.right, nd.depth + 1})
	}

	if maxLen > 64 {
		return lengths, ErrCode(CodeAlphabetTooLarge,
			fmt.Sprintf("code length %d exceeds 64 bits", maxLen))
	}
	return lengths, nil
}

// buildTables assigns canonical codewords from the lengths and fills the
// encode table and the flat 2^L decode table. A unary alphabet yields a
// single zero-length codeword and an empty stream.
func (h *HuffmanCoder) buildTables(lengths [256]int, freq [256]int) {
	type symLen struct {
		sym byte
		len int
	}
	present := make([]symLen, 0, 256)
	maxLen := 0
	for i := 0; i < 256; i++ {
		if freq[i] == 0 {
			continue
		}
		present = append(present, symLen{byte(i), lengths[i]})
		if lengths[i] > maxLen {
			maxLen = lengths[i]
		}
	}
	slices.SortFunc(present, func(a, b symLen) int {
		if a.len != b.len {
			return a.len - b.len
		}
		return int(a.sym) - int(b.sym)
	})

	h.maxCodeLength = maxLen
	h.decodeTable = make([]huffEntry, 1<<maxLen)

	code := uint64(0)
	prevLen := 0
	for _, sl := range present {
		code <<= uint(sl.len - prevLen)
		prevLen = sl.len

		word := uint64(0)
		if sl.len > 0 {
			word = code << (64 - uint(sl.len))
		}
		h.encode[sl.sym] = huffCode{word: word, length: sl.len}

		span := 1 << uint(maxLen-sl.len)
		lo := int(code) * span
		for i := 0; i < span; i++ {
			h.decodeTable[lo+i] = huffEntry{letter: sl.sym, length: uint8(sl.len)}
		}
		code++
	}
}

// writeBits encodes text into the word stream, recording a sample at every
// samplePos-th symbol.
func (h *HuffmanCoder) writeBits(text []byte) {
	h.words = []uint64{0}
	bitPos := 0
	for i, b := range text {
		if h.samplePos > 0 && i%h.samplePos == 0 {
			h.samples = append(h.samples, bitPos)
		}
		e := h.encode[b]
		if e.length == 0 {
			continue
		}
		for (bitPos+e.length+63)/64 > len(h.words) {
			h.words = append(h.words, 0)
		}
		w := bitPos >> 6
		off := uint(bitPos & 63)
		h.words[w] |= e.word >> off
		if int(off)+e.length > 64 {
			h.words[w+1] |= e.word << (64 - off)
		}
		bitPos += e.length
	}
	h.bitSize = bitPos
}

// Decode reads numSymbols symbols starting at an absolute bit position.
func (h *HuffmanCoder) Decode(startBit, numSymbols int) ([]byte, error) {
	if startBit < 0 || startBit >= h.bitSize {
		return nil, ErrCode(CodeOutOfRange,
			fmt.Sprintf("decode start bit %d outside stream of %d bits", startBit, h.bitSize))
	}

	out := make([]byte, 0, numSymbols)
	blockIdx := startBit >> 6
	bitIdx := uint(startBit & 63)

	for numSymbols > 0 {
		if blockIdx*64+int(bitIdx) >= h.bitSize {
			return nil, ErrCode(CodeOutOfRange, "decoding past end of stream")
		}

		sym := h.words[blockIdx] << bitIdx
		var next uint64
		if blockIdx < len(h.words)-1 {
			next = h.words[blockIdx+1]
		}
		// Shifting by exactly the word width must not happen.
		if bitIdx != 0 {
			sym |= next >> (64 - bitIdx)
		}
		sym >>= 64 - uint(h.maxCodeLength)

		e := h.decodeTable[sym]
		out = append(out, e.letter)

		bitIdx += uint(e.length)
		if bitIdx >= 64 {
			blockIdx++
		}
		bitIdx &= 63
		numSymbols--
	}
	return out, nil
}

// Access returns numSymbols symbols starting at symbol index start. It seeks
// to the nearest earlier sample and decodes forward, so it requires sampling.
func (h *HuffmanCoder) Access(start, numSymbols int) ([]byte, error) {
	if h.samplePos <= 0 {
		return nil, ErrNotSampled
	}
	closest := start / h.samplePos
	if closest >= len(h.samples) {
		return nil, ErrCode(CodeOutOfRange,
			fmt.Sprintf("symbol index %d beyond sampled stream", start))
	}

	extended := numSymbols + start%h.samplePos
	out, err := h.Decode(h.samples[closest], extended)
	if err != nil {
		return nil, err
	}
	return out[len(out)-numSymbols:], nil
}

// SpaceUsage returns the size of all owned structures in bytes.
func (h *HuffmanCoder) SpaceUsage() int {
	sum := 8 + 8 + 8 // scalar fields
	sum += 8 * len(h.words)
	sum += 8 * len(h.samples)
	sum += 16 * len(h.encode)
	sum += 2 * len(h.decodeTable)
	return sum
}
