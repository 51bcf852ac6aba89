package scan

import "sort"

// LineIndex maps byte offsets to 1-based line numbers.
type LineIndex struct {
	starts []int
}

// NewLineIndex records the start offset of every line in text.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts}
}

// LineAt returns the line containing offset. Offsets past the end map to
// the last line.
func (li *LineIndex) LineAt(offset int) int {
	if offset < 0 {
		return 1
	}
	// First start strictly greater than offset; the line is the one before.
	i := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset })
	if i == 0 {
		return 1
	}
	return i
}

// Lines returns the number of lines.
func (li *LineIndex) Lines() int {
	return len(li.starts)
}
