package usecase

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/port"
)

// NoAnswerText is returned when retrieval finds nothing above the score
// threshold. It is a fixed string so clients can detect the case.
const NoAnswerText = "I could not find relevant passages in the ingested documents to answer this question."

const systemPrompt = `You are a document question answering assistant.
Answer strictly from the numbered context passages below. If the context
does not contain the answer, say so plainly. Cite passages by their
bracketed number, like [1] or [2]. Do not invent information. Answer in
the same language as the question.`

// AskUseCase answers a question over the ingested corpus. The pipeline
// moves through fixed stages: retrieve, rerank, assemble context,
// generate. Failures carry the stage they happened in.
type AskUseCase struct {
	retriever port.Retriever
	reranker  port.Reranker
	llm       port.LLM

	topK           int
	topN           int
	scoreThreshold float64
	tokenBudget    int
}

func NewAsk(
	retriever port.Retriever,
	reranker port.Reranker,
	llm port.LLM,
	topK, topN int,
	scoreThreshold float64,
	tokenBudget int,
) *AskUseCase {
	if topK <= 0 {
		topK = 10
	}
	if topN <= 0 || topN > topK {
		topN = min(5, topK)
	}
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}
	return &AskUseCase{
		retriever:      retriever,
		reranker:       reranker,
		llm:            llm,
		topK:           topK,
		topN:           topN,
		scoreThreshold: scoreThreshold,
		tokenBudget:    tokenBudget,
	}
}

// Ask runs the full question answering pipeline.
func (u *AskUseCase) Ask(ctx context.Context, question, docFilter string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.FailAt(domain.StageReceived, fmt.Errorf("%w: empty question", domain.ErrMalformedInput))
	}

	logger.Debug("retrieving candidates for: %s", question)
	candidates, err := u.retriever.Retrieve(ctx, question, docFilter, u.topK)
	if err != nil {
		return nil, domain.FailAt(domain.StageRetrieving, err)
	}
	candidates = filterByThreshold(candidates, u.scoreThreshold)
	if len(candidates) == 0 {
		return &domain.Answer{Question: question, Text: NoAnswerText}, nil
	}

	ranked, reranked := u.rerank(ctx, question, candidates)
	if len(ranked) > u.topN {
		ranked = ranked[:u.topN]
	}

	selected := assembleContext(ranked, u.tokenBudget)
	if len(selected) == 0 {
		return &domain.Answer{Question: question, Text: NoAnswerText}, nil
	}

	answer, err := u.llm.GenerateWithSystem(ctx, systemPrompt, buildUserPrompt(question, selected))
	if err != nil {
		return nil, domain.FailAt(domain.StageGenerating, err)
	}

	citations := make([]domain.Citation, len(selected))
	for i, rc := range selected {
		citations[i] = domain.Citation{
			DocName:    rc.Chunk.DocName,
			Page:       rc.Chunk.Page,
			Section:    rc.Chunk.Section,
			Confidence: rc.Score,
		}
	}

	return &domain.Answer{
		Question: question,
		Text:     answer,
		Sources:  citations,
		Reranked: reranked,
	}, nil
}

func filterByThreshold(candidates []domain.RetrievalCandidate, threshold float64) []domain.RetrievalCandidate {
	if threshold <= 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Fused >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// rerank reorders the candidates with the cross-encoder. When the
// reranker fails, the fused retrieval order stands and the answer is
// flagged as not reranked.
func (u *AskUseCase) rerank(ctx context.Context, question string, candidates []domain.RetrievalCandidate) ([]domain.RankedChunk, bool) {
	fusedOrder := func() []domain.RankedChunk {
		ranked := make([]domain.RankedChunk, len(candidates))
		for i, c := range candidates {
			ranked[i] = domain.RankedChunk{Chunk: c.Chunk, Score: clamp01(c.Fused)}
		}
		return ranked
	}

	if u.reranker == nil {
		return fusedOrder(), false
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Text
	}

	results, err := u.reranker.Rerank(ctx, question, passages)
	if err != nil {
		logger.Warn("reranking failed, keeping retrieval order: %v", err)
		return fusedOrder(), false
	}

	ranked := make([]domain.RankedChunk, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) || seen[res.Index] {
			logger.Warn("reranker returned invalid index %d, keeping retrieval order", res.Index)
			return fusedOrder(), false
		}
		seen[res.Index] = true
		ranked = append(ranked, domain.RankedChunk{
			Chunk: candidates[res.Index].Chunk,
			Score: clamp01(res.Score),
		})
	}
	return ranked, true
}

// assembleContext selects chunks in rank order until the token budget is
// spent, stopping at the first chunk that would overflow it. Chunks are
// taken whole or not at all.
func assembleContext(ranked []domain.RankedChunk, budget int) []domain.RankedChunk {
	var selected []domain.RankedChunk
	remaining := budget
	for _, rc := range ranked {
		cost := rc.Chunk.TokenCount
		if cost <= 0 {
			cost = len(strings.Fields(rc.Chunk.Text))
		}
		if cost > remaining {
			break
		}
		selected = append(selected, rc)
		remaining -= cost
	}
	return selected
}

func buildUserPrompt(question string, selected []domain.RankedChunk) string {
	var b strings.Builder
	b.WriteString("Context passages:\n\n")
	for i, rc := range selected {
		b.WriteString(fmt.Sprintf("[%d] %s", i+1, rc.Chunk.DocName))
		if rc.Chunk.Section != "" {
			b.WriteString(", " + rc.Chunk.Section)
		}
		if rc.Chunk.Page > 0 {
			b.WriteString(fmt.Sprintf(" (p.%d)", rc.Chunk.Page))
		}
		b.WriteString(":\n")
		b.WriteString(rc.Chunk.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: " + question + "\n")
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
