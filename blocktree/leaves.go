package blocktree

import "fmt"

// leafStore is the leaf layer of the tree: one contiguous array holding the
// concatenation of all leaf blocks. The dense and Huffman representations
// are mutually exclusive, so the store is a tagged variant rather than two
// optional fields.
type leafStore interface {
	// at returns the original symbol at position i of the concatenation.
	at(i int) (byte, error)
	// window returns the original symbols in [i, i+n).
	window(i, n int) ([]byte, error)
	size() int
	sizeInBytes() int
}

// denseLeaves stores leaf symbols as bit-packed dense ids together with the
// alphabet maps translating between bytes and ids.
type denseLeaves struct {
	ids        packedVector
	sigma      int
	compress   [256]byte
	decompress [256]byte
}

func (d *denseLeaves) at(i int) (byte, error) {
	if i < 0 || i >= d.ids.len() {
		return 0, ErrCode(CodeOutOfRange,
			fmt.Sprintf("leaf position %d outside [0, %d)", i, d.ids.len()))
	}
	return d.decompress[d.ids.get(i)], nil
}

func (d *denseLeaves) window(i, n int) ([]byte, error) {
	if i < 0 || n < 0 || i+n > d.ids.len() {
		return nil, ErrCode(CodeOutOfRange,
			fmt.Sprintf("leaf window [%d, %d) outside [0, %d)", i, i+n, d.ids.len()))
	}
	out := make([]byte, n)
	for j := 0; j < n; j++ {
		out[j] = d.decompress[d.ids.get(i+j)]
	}
	return out, nil
}

func (d *denseLeaves) size() int { return d.ids.len() }

func (d *denseLeaves) sizeInBytes() int {
	return d.ids.sizeInBytes() + len(d.compress) + len(d.decompress) + 8
}

// huffmanLeaves stores leaf symbols as a sampled canonical-Huffman stream.
type huffmanLeaves struct {
	coder *HuffmanCoder
	n     int
}

func (h *huffmanLeaves) at(i int) (byte, error) {
	if i < 0 || i >= h.n {
		return 0, ErrCode(CodeOutOfRange,
			fmt.Sprintf("leaf position %d outside [0, %d)", i, h.n))
	}
	syms, err := h.coder.Access(i, 1)
	if err != nil {
		return 0, err
	}
	return syms[0], nil
}

func (h *huffmanLeaves) window(i, n int) ([]byte, error) {
	if i < 0 || n < 0 || i+n > h.n {
		return nil, ErrCode(CodeOutOfRange,
			fmt.Sprintf("leaf window [%d, %d) outside [0, %d)", i, i+n, h.n))
	}
	if n == 0 {
		return nil, nil
	}
	return h.coder.Access(i, n)
}

func (h *huffmanLeaves) size() int { return h.n }

func (h *huffmanLeaves) sizeInBytes() int { return h.coder.SpaceUsage() + 8 }
