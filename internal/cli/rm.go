package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <doc> <id>",
		Short: "Delete an annotation",
		Long:  "Delete an annotation. Deleting the last annotation of a document removes its annotation file.",
		Args:  cobra.ExactArgs(2),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	doc, id := args[0], args[1]

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.coord.Delete(cmd.Context(), doc, id); err != nil {
		exitErr("rm", err)
	}
	remaining, _ := s.coord.Records(doc)

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"doc":%q,"id":%q,"remaining":%d}`+"\n", doc, id, len(remaining))
}
