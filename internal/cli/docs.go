package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List annotated documents",
		Run:   runDocs,
	}

	RootCmd.AddCommand(cmd)
}

func runDocs(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	docs, err := s.store.Documents(cmd.Context())
	if err != nil {
		exitErr("list documents", err)
	}

	if formatFlag == "text" {
		for _, d := range docs {
			fmt.Println(d)
		}
		return
	}
	b, _ := json.MarshalIndent(docs, "", "  ")
	fmt.Println(string(b))
}
