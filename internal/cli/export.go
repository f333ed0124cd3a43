package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [doc]",
		Short: "Export annotations as JSON",
		Long:  "Export annotations as a JSON array, for every document or for one.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	doc := ""
	if len(args) == 1 {
		doc = args[0]
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	recs, err := s.store.ExportAll(cmd.Context(), doc)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(recs, "", "  ")
	fmt.Println(string(b))
}
