package cli

import (
	"encoding/json"
	"fmt"

	"github.com/rcliao/margin/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <doc> <id>",
		Short: "Show one annotation",
		Args:  cobra.ExactArgs(2),
		Run:   runShow,
	}

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	doc, id := args[0], args[1]

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	recs, err := s.coord.Open(cmd.Context(), doc)
	if err != nil {
		exitErr("show", err)
	}
	i := model.IndexOf(recs, id)
	if i < 0 {
		exitErr("show", fmt.Errorf("%s/%s: %w", doc, id, model.ErrNotFound))
	}

	b, _ := json.MarshalIndent(recs[i], "", "  ")
	fmt.Println(string(b))
}
