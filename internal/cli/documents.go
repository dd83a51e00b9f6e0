package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents",
	RunE:  runDocuments,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an ingested document",
	Long: `Delete a document and all of its chunks from the catalog, the
lexical index, and the vector store.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(deleteCmd)
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
}

func runDocuments(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := usecase.NewDocuments(a.catalog).List()
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentsJSON {
		output, _ := json.MarshalIndent(docs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(docs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("  %-40s %d chunks\n", d.Name, d.ChunkCount)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := buildApp(cmd.Context(), GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.newIngest().Delete(cmd.Context(), name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no such document: %s", name)
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	fmt.Printf("Deleted %s\n", name)
	return nil
}
