package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"rsc.io/getopt"

	"github.com/jkropf/block_tree_go/blocktree"
)

var (
	tau      = flag.Int("tau", 2, "arity of the block tree")
	leaf     = flag.Int("leaf", 4, "symbols per leaf block")
	top      = flag.Int("blocks", 1, "number of top-level blocks")
	randomN  = flag.Int("random", 0, "build over N pseudo-random bytes instead of a file")
	seed     = flag.Int64("seed", 1, "seed for -random")
	rank     = flag.Bool("rank", false, "build rank support and sample rank/select queries")
	threads  = flag.Int("threads", 1, "worker count for the rank build")
	huffman  = flag.Int("huffman", 0, "Huffman-pack the leaves with this sample stride (0 = off)")
	queries  = flag.Int("queries", 1000, "number of sampled queries per operation")
	quietAcc = flag.Bool("quiet", false, "skip the full access verification sweep")
)

// entropy returns the zeroth-order entropy of data in bits per symbol.
func entropy(data []byte) float64 {
	var freqs [256]int
	for _, b := range data {
		freqs[b]++
	}
	e := 0.0
	for _, f := range freqs {
		if f == 0 {
			continue
		}
		p := float64(f) / float64(len(data))
		e += p * math.Log2(p)
	}
	return -e
}

func run() int {
	var text []byte
	switch {
	case *randomN > 0:
		rng := rand.New(rand.NewSource(*seed))
		text = make([]byte, *randomN)
		rng.Read(text)
	case len(flag.Args()) == 1:
		var err error
		text, err = os.ReadFile(flag.Args()[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Args()[0], err)
			return 1
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: btstat [options] file  (or -random N)")
		return 2
	}

	start := time.Now()
	bt, err := blocktree.NewBlockTreeFromText(text, *tau, *leaf, *top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		return 1
	}
	buildTime := time.Since(start)

	fmt.Printf("input                %d bytes\n", len(text))
	fmt.Printf("tau / leaf / blocks  %d / %d / %d\n", *tau, *leaf, *top)
	fmt.Printf("build time           %v\n", buildTime)
	fmt.Printf("text entropy         %.3f bits/symbol\n", entropy(text))

	if *huffman > 0 {
		if err := bt.HuffmanCompressLeaves(*huffman); err != nil {
			fmt.Fprintf(os.Stderr, "huffman: %v\n", err)
			return 1
		}
		fmt.Printf("leaf packing         huffman, stride %d\n", *huffman)
	}

	if !*quietAcc {
		start = time.Now()
		for i := range text {
			c, err := bt.Access(i)
			if err != nil {
				fmt.Fprintf(os.Stderr, "access(%d): %v\n", i, err)
				return 1
			}
			if c != text[i] {
				fmt.Fprintf(os.Stderr, "access(%d) = %#x, text has %#x\n", i, c, text[i])
				return 1
			}
		}
		sweep := time.Since(start)
		fmt.Printf("access sweep         ok, %v (%.0f ns/op)\n",
			sweep, float64(sweep.Nanoseconds())/float64(len(text)))
	}

	if *rank {
		start = time.Now()
		if err := bt.AddRankSupport(*threads); err != nil {
			fmt.Fprintf(os.Stderr, "rank build: %v\n", err)
			return 1
		}
		fmt.Printf("rank build           %v (%d threads)\n", time.Since(start), *threads)

		rng := rand.New(rand.NewSource(*seed + 1))
		chars := bt.Chars()

		start = time.Now()
		for q := 0; q < *queries; q++ {
			c := chars[rng.Intn(len(chars))]
			if _, err := bt.Rank(c, rng.Intn(len(text))); err != nil {
				fmt.Fprintf(os.Stderr, "rank: %v\n", err)
				return 1
			}
		}
		d := time.Since(start)
		fmt.Printf("rank queries         %d, %.0f ns/op\n",
			*queries, float64(d.Nanoseconds())/float64(*queries))

		start = time.Now()
		done := 0
		for q := 0; q < *queries; q++ {
			c := chars[rng.Intn(len(chars))]
			total, err := bt.Rank(c, len(text)-1)
			if err != nil {
				fmt.Fprintf(os.Stderr, "rank: %v\n", err)
				return 1
			}
			if total == 0 {
				continue
			}
			if _, err := bt.Select(c, rng.Intn(total)+1); err != nil {
				fmt.Fprintf(os.Stderr, "select: %v\n", err)
				return 1
			}
			done++
		}
		d = time.Since(start)
		if done > 0 {
			fmt.Printf("select queries       %d, %.0f ns/op\n",
				done, float64(d.Nanoseconds())/float64(done))
		}
	}

	space := bt.SpaceUsage()
	fmt.Printf("space usage          %d bytes (%.3f bits/symbol)\n",
		space, float64(space*8)/float64(len(text)))

	return 0
}

func main() {
	getopt.Alias("t", "tau")
	getopt.Alias("l", "leaf")
	getopt.Alias("b", "blocks")
	getopt.Alias("r", "rank")
	getopt.Alias("q", "quiet")

	if err := getopt.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	os.Exit(run())
}
