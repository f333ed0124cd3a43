package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/margin/internal/model"
	"github.com/rcliao/margin/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search annotations by keyword",
		Long:  "Search annotation notes and annotated passages for matching text.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("doc", "", "Restrict to one document")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	doc, _ := cmd.Flags().GetString("doc")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.store.Search(cmd.Context(), store.SearchParams{
		Query: query,
		Doc:   doc,
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "text" {
		recs := make([]model.Annotation, len(results))
		for i, r := range results {
			recs[i] = r.Annotation
		}
		writeText(cmd.OutOrStdout(), recs)
		return
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
