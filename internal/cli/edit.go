package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <doc> <id> [note]",
		Short: "Replace the note of an annotation",
		Long:  "Replace the note of an annotation. The note can be a positional arg or piped via stdin. An empty note leaves the annotation unchanged.",
		Args:  cobra.MinimumNArgs(2),
		Run:   runEdit,
	}

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	doc, id := args[0], args[1]
	note := readNote(args[2:])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := s.coord.Edit(cmd.Context(), doc, id, note)
	if err != nil {
		exitErr("edit", err)
	}
	if rec == nil {
		fmt.Printf(`{"ok":false,"reason":"empty note","id":%q}`+"\n", id)
		return
	}

	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
