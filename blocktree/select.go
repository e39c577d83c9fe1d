package blocktree

import "fmt"

// Select returns the position of the j-th occurrence (1-indexed) of c in the
// indexed string. Requires AddRankSupport.
func (bt *BlockTree) Select(c byte, j int) (int, error) {
	if !bt.rankSupport {
		return 0, ErrRankNotBuilt
	}
	ci, ok := bt.charsIndex[c]
	if !ok {
		return 0, ErrCode(CodeUnknownSymbol, fmt.Sprintf("symbol %q not indexed", c))
	}

	counts := bt.cRanks[ci]
	ptrCounts := bt.pointerCRanks[ci]
	total := counts[0].geti(counts[0].len() - 1)
	if j < 1 || j > total {
		return 0, ErrCode(CodeOutOfRange,
			fmt.Sprintf("occurrence %d outside [1, %d]", j, total))
	}

	top := &bt.levels[0]
	blockSize := bt.blockSizeLvl[0]

	// Binary-search the prefix-cumulative top level for the first block
	// whose running count reaches j.
	current := (j - 1) / blockSize
	end := counts[0].len() - 1
	for current != end {
		m := current + (end-current)/2
		f := 0
		if m != 0 {
			f = counts[0].geti(m - 1)
		}
		if f < j {
			if end-current == 1 {
				if counts[0].geti(m) < j {
					current = m + 1
				}
				break
			}
			current = m
		} else {
			end = m - 1
		}
	}

	// s accumulates the text position; j counts occurrences still owed.
	s := current*blockSize - 1
	if current != 0 {
		j -= counts[0].geti(current - 1)
	}

	// The top level resolves back-pointers against the prefix-cumulative
	// layout, unlike the group-cumulative levels below.
	if !top.isInternal(current) {
		r := top.rank0(current)
		current = top.pointers.geti(r)
		g := top.offsets.geti(r)
		rankD := counts[0].geti(current)
		if current != 0 {
			rankD -= counts[0].geti(current - 1)
		}
		rankD -= ptrCounts[0].geti(r)
		if rankD < j {
			j -= rankD
			s += blockSize - g
			current++
		} else {
			j += ptrCounts[0].geti(r)
			s -= g
		}
	}

	for l := 1; l < len(bt.levels); l++ {
		lvl := &bt.levels[l]
		prev := &bt.levels[l-1]
		current = prev.rank1(current) * bt.tau
		blockSize /= bt.tau

		// Walk the sibling group until the next block would overshoot.
		k := current
		for counts[l].geti(current) < j {
			current++
		}
		if current != k {
			j -= counts[l].geti(current - 1)
		}
		s += (current - k) * blockSize

		if !lvl.isInternal(current) {
			r := lvl.rank0(current)
			current = lvl.pointers.geti(r)
			g := lvl.offsets.geti(r)
			rankD := counts[l].geti(current)
			if current%bt.tau != 0 {
				rankD -= counts[l].geti(current - 1)
			}
			rankD -= ptrCounts[l].geti(r)
			if rankD < j {
				// The occurrence lies in the successor source block.
				j -= rankD
				s += blockSize - g
				current++
			} else {
				// Pull the unused source prefix back in.
				j += ptrCounts[l].geti(r)
				s -= g
			}
		}
	}

	last := &bt.levels[len(bt.levels)-1]
	current = last.rank1(current) * bt.tau
	win, err := bt.leaves.window(current*bt.leafSize, bt.tau*bt.leafSize)
	if err != nil {
		return 0, err
	}
	pos := 0
	for j > 0 {
		if pos >= len(win) {
			return 0, ErrCode(CodeInvariantViolated,
				fmt.Sprintf("occurrence %d of %q not found in leaf group", j, c))
		}
		if win[pos] == c {
			j--
		}
		pos++
	}
	return s + pos, nil
}
