package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Item is one input line with its 1-based sequence number. Sequence numbers
// follow input order, blank lines included, so artifact numbering stays a
// bijection with the input file.
type Item struct {
	Seq  int
	Text string
}

// Blank reports whether the item has no content after trimming. Blank items
// keep their sequence number but are never sent to the endpoint.
func (i Item) Blank() bool { return strings.TrimSpace(i.Text) == "" }

// ReadItems assigns sequence numbers to every line of r, in order.
func ReadItems(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	seq := 0
	for scanner.Scan() {
		seq++
		items = append(items, Item{Seq: seq, Text: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return items, nil
}

// LoadItems reads the input file named by path.
func LoadItems(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()
	return ReadItems(f)
}
