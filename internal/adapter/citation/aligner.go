package citation

import (
	"strings"

	"kb/internal/adapter/analyzer"
	"kb/internal/domain"
)

// Alignment status values.
const (
	StatusSupported            = "supported"
	StatusInsufficientEvidence = "insufficient_evidence"
)

const defaultMinOverlap = 0.35

// Source is one retrieved chunk with the document metadata needed to
// render a citation.
type Source struct {
	Chunk domain.Chunk
	Score float64
	Title string
	Path  string
}

// Result is an aligned answer: the surviving text, its citations in
// display order, and the overall support status.
type Result struct {
	Text      string
	Citations []domain.Citation
	Status    string
}

// Aligner maps answer sentences to supporting source chunks. A
// sentence is supported when the fraction of its terms found in some
// source chunk meets the overlap threshold. Unsupported sentences are
// dropped from the answer rather than left uncited.
type Aligner struct {
	tokenizer  *analyzer.Tokenizer
	minOverlap float64
}

func NewAligner(tokenizer *analyzer.Tokenizer, minOverlap float64) *Aligner {
	if minOverlap <= 0 || minOverlap > 1 {
		minOverlap = defaultMinOverlap
	}
	return &Aligner{
		tokenizer:  tokenizer,
		minOverlap: minOverlap,
	}
}

// Align splits the answer into sentences and keeps those a source
// chunk supports. Citations are deduplicated by (doc ID, path), keep
// the best score for the pair, and are numbered in first-appearance
// order. Zero supported sentences yields StatusInsufficientEvidence
// with no citations, whatever the answer text was.
func (a *Aligner) Align(answer string, sources []Source) Result {
	sentences := splitSentences(answer)
	if len(sentences) == 0 || len(sources) == 0 {
		return Result{Status: StatusInsufficientEvidence}
	}

	sourceTerms := make([]map[string]struct{}, len(sources))
	for i, src := range sources {
		terms := make(map[string]struct{})
		for _, t := range a.tokenizer.Tokenize(src.Chunk.Content) {
			terms[t] = struct{}{}
		}
		sourceTerms[i] = terms
	}

	var kept []string
	type citedKey struct {
		docID string
		path  string
	}
	citedIndex := make(map[citedKey]int)
	var citations []domain.Citation

	for _, sentence := range sentences {
		best := a.bestSource(sentence, sourceTerms)
		if best < 0 {
			continue
		}
		kept = append(kept, sentence)

		src := sources[best]
		key := citedKey{docID: src.Chunk.DocID, path: src.Path}
		if idx, seen := citedIndex[key]; seen {
			if src.Score > citations[idx].Score {
				citations[idx].Score = src.Score
				citations[idx].ChunkID = src.Chunk.ID
				citations[idx].HeadingPath = src.Chunk.HeadingPath
			}
			continue
		}

		citedIndex[key] = len(citations)
		citations = append(citations, domain.Citation{
			ID:          len(citations) + 1,
			ChunkID:     src.Chunk.ID,
			DocID:       src.Chunk.DocID,
			Title:       src.Title,
			Path:        src.Path,
			HeadingPath: src.Chunk.HeadingPath,
			Score:       src.Score,
		})
	}

	if len(kept) == 0 {
		return Result{Status: StatusInsufficientEvidence}
	}

	return Result{
		Text:      strings.Join(kept, " "),
		Citations: citations,
		Status:    StatusSupported,
	}
}

// bestSource returns the index of the source with the highest term
// overlap at or above the threshold, or -1 when no source qualifies.
func (a *Aligner) bestSource(sentence string, sourceTerms []map[string]struct{}) int {
	tokens := a.tokenizer.Tokenize(sentence)
	if len(tokens) == 0 {
		return -1
	}

	best := -1
	bestOverlap := 0.0
	for i, terms := range sourceTerms {
		matches := 0
		for _, t := range tokens {
			if _, ok := terms[t]; ok {
				matches++
			}
		}
		overlap := float64(matches) / float64(len(tokens))
		if overlap >= a.minOverlap && overlap > bestOverlap {
			best = i
			bestOverlap = overlap
		}
	}
	return best
}

// splitSentences breaks text at sentence-final punctuation and line
// breaks, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		switch r {
		case '\n':
			flush()
		case '.', '!', '?':
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush()
			}
		}
	}
	flush()

	return sentences
}
