package usecase

import (
	"context"
	"fmt"
	"time"

	"docqa/internal/domain"
	"docqa/internal/port"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// ComponentStatus is one line of a health report.
type ComponentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates per-component probes. Overall is degraded when
// any component is.
type HealthReport struct {
	Overall    string            `json:"overall"`
	Components []ComponentStatus `json:"components"`
}

// HealthUseCase probes each external dependency and the local indexes.
type HealthUseCase struct {
	catalog  port.Catalog
	lexical  port.LexicalIndex
	vectors  port.VectorStore
	embedder port.Embedder
	llm      port.LLM
}

func NewHealth(
	catalog port.Catalog,
	lexical port.LexicalIndex,
	vectors port.VectorStore,
	embedder port.Embedder,
	llm port.LLM,
) *HealthUseCase {
	return &HealthUseCase{
		catalog:  catalog,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		llm:      llm,
	}
}

// Check probes every component. It never returns an error; problems show
// up as degraded entries in the report.
func (u *HealthUseCase) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{Overall: StatusOK}

	add := func(name string, err error, okDetail string) {
		status := ComponentStatus{Name: name, Status: StatusOK, Detail: okDetail}
		if err != nil {
			status.Status = StatusDegraded
			status.Detail = err.Error()
			report.Overall = StatusDegraded
		}
		report.Components = append(report.Components, status)
	}

	docs, err := u.catalog.ListDocuments()
	add("catalog", err, fmt.Sprintf("%d documents", len(docs)))

	stats := u.lexical.Stats()
	add("lexical_index", nil, fmt.Sprintf("%d chunks", stats.TotalChunks))

	count, err := u.vectors.Count()
	add("vector_store", err, fmt.Sprintf("%d vectors", count))

	if err == nil && count != stats.TotalChunks {
		add("index_consistency",
			fmt.Errorf("%w: lexical has %d chunks, vector store has %d", domain.ErrIndexConsistency, stats.TotalChunks, count),
			"")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err = u.embedder.Embed(probeCtx, []string{"ping"})
	add("embedder", err, u.embedder.ModelName())

	_, err = u.llm.GenerateWithSystem(probeCtx, "Reply with the single word OK.", "ping")
	add("llm", err, u.llm.ModelName())

	return report
}
