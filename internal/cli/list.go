package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rcliao/margin/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list [doc]",
		Short: "List annotations",
		Long:  "List the annotations of one document in file order, or of every annotated document.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runList,
	}

	cmd.Flags().Bool("ids-only", false, "Only output doc/id pairs")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var recs []model.Annotation
	if len(args) == 1 {
		recs, err = s.coord.Open(cmd.Context(), args[0])
	} else {
		recs, err = s.store.ExportAll(cmd.Context(), "")
	}
	if err != nil {
		exitErr("list", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case idsOnly:
		for _, r := range recs {
			fmt.Fprintf(out, "%s/%s\n", r.SourceFile, r.ID)
		}
	case formatFlag == "text":
		writeText(out, recs)
	default:
		b, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Fprintln(out, string(b))
	}
}

// writeText prints one line per annotation.
func writeText(w io.Writer, recs []model.Annotation) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%q\t%s\n", r.SourceFile, r.ID, r.Preview(40), r.Content)
	}
}
