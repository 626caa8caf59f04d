package retrieval

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Splitter defaults.
const (
	DefaultChunkSize    = 250
	DefaultChunkOverlap = 0
)

// Splitter cuts text into chunks of at most ChunkSize runes.
//
// It tries the separators in order (paragraph, line, word, character):
// text is split on the first separator that occurs, pieces that are still
// too long are split recursively with the next one, and adjacent small
// pieces are merged back up to ChunkSize. Consecutive chunks share up to
// ChunkOverlap runes of trailing context.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter returns a Splitter with the default size, overlap and
// separators.
func NewSplitter() *Splitter {
	return &Splitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

func (s *Splitter) separators() []string {
	if len(s.Separators) > 0 {
		return s.Separators
	}
	return []string{"\n\n", "\n", " ", ""}
}

func (s *Splitter) size() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

func (s *Splitter) overlap() int {
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.size() {
		return 0
	}
	return s.ChunkOverlap
}

// SplitText splits text into chunks. Whitespace-only chunks are dropped.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators())
}

// SplitDocuments splits every document and copies its metadata onto each
// chunk, adding a "chunk" index.
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	var out []Document
	for _, doc := range docs {
		for i, chunk := range s.SplitText(doc.PageContent) {
			meta := cloneMetadata(doc.Metadata)
			if meta == nil {
				meta = make(map[string]string, 1)
			}
			meta["chunk"] = strconv.Itoa(i)
			out = append(out, Document{PageContent: chunk, Metadata: meta})
		}
	}
	return out
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, sep)
	}

	var (
		out   []string
		small []string
	)
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= s.size() {
			small = append(small, piece)
			continue
		}
		out = append(out, s.merge(small, sep)...)
		small = nil
		if len(rest) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	return append(out, s.merge(small, sep)...)
}

// merge joins pieces with sep into chunks no longer than the chunk size,
// carrying up to the overlap into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		out     []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		joined := total + n
		if len(current) > 0 {
			joined += sepLen
		}
		if joined > s.size() && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				out = append(out, chunk)
			}
			for len(current) > 0 && (total > s.overlap() || total+n+sepLen > s.size()) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
