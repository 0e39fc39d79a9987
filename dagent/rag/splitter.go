// Package rag holds the retrieval primitives behind document question
// answering: recursive text splitting, a flat vector index and a cache
// for embedded documents.
package rag

import "strings"

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 50
)

// defaultSeparators orders the boundaries splitting prefers: paragraph
// breaks first, then lines, sentences, words, and finally hard cuts.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts documents into overlapping chunks sized for embedding.
// It splits on the coarsest separator that keeps chunks under the limit
// and recurses to finer ones for oversized pieces.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter. Out-of-range parameters fall back to
// the defaults; overlap is always kept below the chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap, separators: defaultSeparators}
}

// Split cuts text into chunks. Whitespace-only pieces are dropped; the
// result is nil for empty input.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := s.split(text, s.separators)
	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if trimmed := strings.TrimSpace(chunk); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	rest := []string{}
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return s.hardWindows(text)
	}

	pieces := strings.Split(text, sep)
	var chunks []string
	var fitting []string
	flush := func() {
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, sep)...)
			fitting = nil
		}
	}
	for _, piece := range pieces {
		if runeLen(piece) < s.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		flush()
		chunks = append(chunks, s.split(piece, rest)...)
	}
	flush()
	return chunks
}

// merge greedily packs pieces into chunks up to the size limit, carrying
// the configured overlap from the tail of each chunk into the next.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var chunks []string
	var window []string
	total := 0

	windowCost := func(extra int) int {
		cost := total + extra
		if len(window) > 0 {
			cost += sepLen
		}
		return cost
	}

	for _, piece := range pieces {
		pieceLen := runeLen(piece)
		if windowCost(pieceLen) > s.chunkSize && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, sep))
			for len(window) > 0 && (total > s.overlap || windowCost(pieceLen) > s.chunkSize) {
				total -= runeLen(window[0])
				if len(window) > 1 {
					total -= sepLen
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			total += sepLen
		}
		window = append(window, piece)
		total += pieceLen
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, sep))
	}
	return chunks
}

// hardWindows cuts text that has no usable separator into fixed rune
// windows stepping by size minus overlap.
func (s *Splitter) hardWindows(text string) []string {
	runes := []rune(text)
	if len(runes) <= s.chunkSize {
		return []string{text}
	}
	step := s.chunkSize - s.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}
