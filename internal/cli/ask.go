package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/usecase"
)

var (
	askQuestion string
	askDoc      string
	askTopK     int
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question about ingested documents",
	Long: `Ask a question and get an answer grounded in the ingested documents,
with numbered citations back to the source passages.

Examples:
  docqa ask -q "what were the audit findings?"
  docqa ask -q "termination clause" --doc contract.pdf --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer (required)")
	askCmd.Flags().StringVar(&askDoc, "doc", "", "restrict the search to one document")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "retrieval candidate count (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reranker, err := newReranker(cfg, a.tok)
	if err != nil {
		return err
	}
	model, err := newLLM(cfg)
	if err != nil {
		return err
	}

	topK := cfg.Retrieval.TopK
	if askTopK > 0 {
		topK = askTopK
	}

	ask := usecase.NewAsk(
		a.newRetriever(),
		reranker,
		model,
		topK,
		cfg.Rerank.TopN,
		cfg.Retrieval.ScoreThreshold,
		cfg.LLM.ContextTokenBudget,
	)

	answer, err := ask.Ask(ctx, askQuestion, askDoc)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Printf("\nSources:\n")
		for i, src := range answer.Sources {
			loc := fmt.Sprintf("p.%d", src.Page)
			if src.Section != "" {
				loc = fmt.Sprintf("%s, %s", strings.TrimSpace(src.Section), loc)
			}
			fmt.Printf("  [%d] %s (%s) score=%.2f\n", i+1, src.DocName, loc, src.Confidence)
		}
	}
	return nil
}
