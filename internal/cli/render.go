package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rcliao/margin/internal/anchor"
	"github.com/rcliao/margin/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	cmd := &cobra.Command{
		Use:   "render <doc>...",
		Short: "Render documents to HTML with their annotations highlighted",
		Long: "Render markdown documents to standalone HTML pages, highlighting every annotation whose " +
			"passage can still be found. With one document and no -o the page goes to stdout.",
		Args: cobra.MinimumNArgs(1),
		Run:  runRender,
	}

	cmd.Flags().StringP("out", "o", "", "Output directory")

	RootCmd.AddCommand(cmd)
}

// renderResult summarises one rendered document.
type renderResult struct {
	Doc   string       `json:"doc"`
	Out   string       `json:"out,omitempty"`
	Marks anchor.Stats `json:"marks"`
	page  string
}

func runRender(cmd *cobra.Command, args []string) {
	outDir, _ := cmd.Flags().GetString("out")
	docs := dedupe(args)
	if outDir == "" && len(docs) > 1 {
		exitErr("render", fmt.Errorf("-o is required with more than one document"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results := make([]renderResult, len(docs))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			page, st, err := s.renderPage(ctx, doc)
			if err != nil {
				return fmt.Errorf("%s: %w", doc, err)
			}
			res := renderResult{Doc: doc, Marks: st, page: page}
			if outDir != "" {
				res.Out = filepath.Join(outDir, outputName(doc))
				if err := writePage(res.Out, page); err != nil {
					return err
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		exitErr("render", err)
	}

	if outDir == "" {
		fmt.Print(results[0].page)
		return
	}
	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}

// renderPage renders doc, installs the tree as the document's view, marks
// its annotations and returns the standalone page.
func (w *workspace) renderPage(ctx context.Context, doc string) (string, anchor.Stats, error) {
	src, err := w.readDocument(doc)
	if err != nil {
		return "", anchor.Stats{}, err
	}
	root, err := render.Markdown(src)
	if err != nil {
		return "", anchor.Stats{}, err
	}
	if _, err := w.coord.Open(ctx, doc); err != nil {
		return "", anchor.Stats{}, err
	}
	st := w.coord.Rendered(doc, root)

	recs, _ := w.coord.Records(doc)
	notes := make([]render.Note, len(recs))
	for i, r := range recs {
		notes[i] = render.Note{
			ID:      r.ID,
			Text:    r.Preview(80),
			Content: r.Content,
			Marked:  anchor.FindMarker(root, r.ID) != nil,
		}
	}
	page, err := render.Page(doc, root, notes)
	if err != nil {
		return "", anchor.Stats{}, err
	}
	w.log.Debug("rendered", zap.String("doc", doc), zap.Int("marked", st.Marked), zap.Int("skipped", st.Skipped()))
	return page, st, nil
}

// outputName maps "notes/A.md" to "notes__A.html".
func outputName(doc string) string {
	d := strings.TrimSuffix(filepath.ToSlash(doc), path.Ext(doc))
	return strings.ReplaceAll(strings.TrimPrefix(d, "./"), "/", "__") + ".html"
}

func writePage(p, page string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(page), 0o644)
}

func dedupe(args []string) []string {
	seen := make(map[string]bool, len(args))
	out := args[:0:0]
	for _, a := range args {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
