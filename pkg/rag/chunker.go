package rag

import "strings"

// Chunk is one indexable fragment of a source document.
type Chunk struct {
	// Text is the chunk content, whitespace-normalized.
	Text string

	// Page is the 1-based source page the chunk came from. Chunks never
	// span pages.
	Page int

	// PageOrdinal is the 0-based position within the page.
	PageOrdinal int

	// Ordinal is the 0-based position within the whole document.
	Ordinal int

	// WordCount is the chunk length in words.
	WordCount int
}

// ChunkPages splits extracted pages into overlapping chunks of roughly
// chunkWords words. A chunk ends at the first sentence boundary at or past
// the target; a single sentence longer than twice the target is cut on
// whitespace. Consecutive chunks within a page share overlapWords words.
func ChunkPages(pages []Page, chunkWords, overlapWords int) []Chunk {
	var chunks []Chunk
	ordinal := 0

	for _, page := range pages {
		words := strings.Fields(page.Text)
		if len(words) == 0 {
			continue
		}

		pageOrdinal := 0
		start := 0
		for start < len(words) {
			end := chunkEnd(words, start, chunkWords)
			chunkSlice := words[start:end]
			chunks = append(chunks, Chunk{
				Text:        strings.Join(chunkSlice, " "),
				Page:        page.Number,
				PageOrdinal: pageOrdinal,
				Ordinal:     ordinal,
				WordCount:   len(chunkSlice),
			})
			ordinal++
			pageOrdinal++

			if end >= len(words) {
				break
			}
			next := end - overlapWords
			if next <= start {
				next = start + 1
			}
			start = next
		}
	}
	return chunks
}

// chunkEnd finds the exclusive end index for a chunk starting at start:
// the first sentence boundary once chunkWords words are consumed, with a
// hard cut at twice the target for runaway sentences.
func chunkEnd(words []string, start, chunkWords int) int {
	target := start + chunkWords
	if target >= len(words) {
		return len(words)
	}

	hardCap := start + 2*chunkWords
	if hardCap > len(words) {
		hardCap = len(words)
	}

	for i := target - 1; i < hardCap; i++ {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	return hardCap
}

// endsSentence reports whether a word closes a sentence, tolerating a
// trailing quote or bracket after the terminator.
func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]}`+"`")
	if word == "" {
		return false
	}
	switch word[len(word)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
