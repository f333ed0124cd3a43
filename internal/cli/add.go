package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rcliao/margin/internal/capture"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add <doc> [note]",
		Short: "Annotate a passage of a document",
		Long: "Annotate a passage of a document. Select the passage with --text (first occurrence) " +
			"or with --from/--to byte offsets. The note can be a positional arg or piped via stdin.",
		Args: cobra.MinimumNArgs(1),
		Run:  runAdd,
	}

	cmd.Flags().StringP("text", "t", "", "Passage to annotate")
	cmd.Flags().Int("from", -1, "Start byte offset of the passage")
	cmd.Flags().Int("to", -1, "End byte offset of the passage")

	RootCmd.AddCommand(cmd)
}

// readNote takes the note from args, else from piped stdin.
func readNote(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func runAdd(cmd *cobra.Command, args []string) {
	doc := args[0]
	text, _ := cmd.Flags().GetString("text")
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")

	note := readNote(args[1:])
	if strings.TrimSpace(note) == "" {
		exitErr("add", fmt.Errorf("note is required (positional arg or stdin)"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	src, err := s.readDocument(doc)
	if err != nil {
		exitErr("read document", err)
	}

	ed := capture.NewTextEditor(string(src))
	switch {
	case text != "":
		err = ed.SelectText(text)
	case from >= 0 && to >= 0:
		err = ed.Select(from, to)
	default:
		err = fmt.Errorf("select a passage with --text or --from/--to")
	}
	if err != nil {
		exitErr("select", err)
	}

	res, err := capture.EditorCapturer{Editor: ed, Doc: doc}.Capture()
	if err != nil {
		exitErr("capture", err)
	}
	rec, err := s.coord.Create(cmd.Context(), res, note)
	if err != nil {
		exitErr("add", err)
	}

	b, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(b))
}
