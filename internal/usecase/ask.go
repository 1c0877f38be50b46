package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"kb/internal/adapter/citation"
	"kb/internal/domain"
	"kb/internal/port"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

// FallbackAnswer is returned when no retrieved source supports the
// generated answer.
const FallbackAnswer = "I don't have enough information in the indexed documentation to answer that."

// AskUseCase composes the question-answering pipeline: retrieve,
// prompt the model, then align the answer against its sources.
type AskUseCase struct {
	retriever port.Retriever
	llm       port.LLM
	docs      port.DocStore
	aligner   *citation.Aligner
	topK      int
	tmpl      *template.Template
}

func NewAskUseCase(
	retriever port.Retriever,
	llm port.LLM,
	docs port.DocStore,
	aligner *citation.Aligner,
	topK int,
) (*AskUseCase, error) {
	tmpl, err := template.ParseFS(promptTemplates, "templates/qa.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	if topK <= 0 {
		topK = 8
	}
	return &AskUseCase{
		retriever: retriever,
		llm:       llm,
		docs:      docs,
		aligner:   aligner,
		topK:      topK,
		tmpl:      tmpl,
	}, nil
}

type promptSource struct {
	Number  int
	Title   string
	Heading string
	Content string
}

type promptData struct {
	Query   string
	Sources []promptSource
}

// Ask answers a question from the indexed documentation. An answer no
// source supports comes back with HasSufficientKnowledge false, a
// fallback text, and no citations.
func (u *AskUseCase) Ask(query string) (domain.Answer, error) {
	started := time.Now()

	results, err := u.retriever.Search(query, u.topK)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results) == 0 {
		return domain.Answer{
			Text:      FallbackAnswer,
			Model:     u.llm.ModelName(),
			ElapsedMs: time.Since(started).Milliseconds(),
		}, nil
	}

	sources := u.buildSources(results)

	prompt, err := u.renderPrompt(query, sources)
	if err != nil {
		return domain.Answer{}, err
	}

	raw, err := u.llm.Generate(prompt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generation failed: %w", err)
	}

	aligned := u.aligner.Align(raw, sources)
	if aligned.Status != citation.StatusSupported {
		return domain.Answer{
			Text:      FallbackAnswer,
			Model:     u.llm.ModelName(),
			ElapsedMs: time.Since(started).Milliseconds(),
		}, nil
	}

	return domain.Answer{
		Text:                   aligned.Text,
		Citations:              aligned.Citations,
		HasSufficientKnowledge: true,
		Model:                  u.llm.ModelName(),
		ElapsedMs:              time.Since(started).Milliseconds(),
	}, nil
}

// buildSources resolves document metadata for the retrieved chunks.
// A chunk whose document record is missing still becomes a source,
// just without title and path.
func (u *AskUseCase) buildSources(results []domain.ScoredChunk) []citation.Source {
	sources := make([]citation.Source, 0, len(results))
	for _, r := range results {
		src := citation.Source{
			Chunk: r.Chunk,
			Score: r.Score,
		}
		if state, found, err := u.docs.GetDocument(r.Chunk.DocID); err == nil && found {
			src.Title = state.Title
			src.Path = state.Path
		}
		sources = append(sources, src)
	}
	return sources
}

func (u *AskUseCase) renderPrompt(query string, sources []citation.Source) (string, error) {
	data := promptData{Query: query, Sources: make([]promptSource, len(sources))}
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.Chunk.DocID
		}
		data.Sources[i] = promptSource{
			Number:  i + 1,
			Title:   title,
			Heading: strings.Join(src.Chunk.HeadingPath, " > "),
			Content: src.Chunk.Content,
		}
	}

	var buf bytes.Buffer
	if err := u.tmpl.ExecuteTemplate(&buf, "qa.txt", data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
