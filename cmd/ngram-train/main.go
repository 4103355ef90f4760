// Command ngram-train builds a character n-gram language model from a
// newline-separated corpus of passwords and persists it for
// cmd/password-oracle to load.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/naclave/password-oracle/internal/ngram"
	"github.com/naclave/password-oracle/internal/persist"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ngram-train", flag.ContinueOnError)
	n := fs.Int("n", 3, "n-gram window length (each context is the n-1 preceding characters)")
	defaultBits := fs.Float64("default-bits", ngram.DefaultBits, "bits assigned to an unseen context")
	out := fs.String("out", "language_model.gz", "output path for the trained model")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var in io.Reader = os.Stdin
	rest := fs.Args()
	if len(rest) > 0 {
		f, err := os.Open(rest[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "ngram-train:", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	model := ngram.New(*n, *defaultBits)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		model.Train(line)
		count++
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "ngram-train: reading corpus:", err)
		return 1
	}

	if err := persist.SaveModel(model, *out); err != nil {
		fmt.Fprintln(os.Stderr, "ngram-train: saving model:", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "ngram-train: trained on %d lines, wrote %s\n", count, *out)
	return 0
}
