package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rcliao/margin/internal/store"
	"github.com/rcliao/margin/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch <doc>",
		Short: "Keep a rendered page up to date",
		Long: "Render a document to HTML and render it again whenever the document or its " +
			"annotation file changes on disk. Runs until interrupted.",
		Args: cobra.ExactArgs(1),
		Run:  runWatch,
	}

	cmd.Flags().StringP("out", "o", "", "Output HTML file (required)")
	cmd.MarkFlagRequired("out")

	RootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	doc := args[0]
	out, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rerender := func(ctx context.Context) {
		page, st, err := s.renderPage(ctx, doc)
		if err != nil {
			s.log.Error("render failed", zap.String("doc", doc), zap.Error(err))
			return
		}
		if err := writePage(out, page); err != nil {
			s.log.Error("write page", zap.String("out", out), zap.Error(err))
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "rendered %s (%d marked, %d skipped)\n", out, st.Marked, st.Skipped())
	}
	rerender(ctx)

	docPath, err := s.documentPath(doc)
	if err != nil {
		exitErr("watch", err)
	}
	docPath, _ = filepath.Abs(docPath)
	dirs := []string{filepath.Dir(docPath)}

	var reload watch.Handler
	if s.dir != nil {
		root, _ := filepath.Abs(s.dir.Root())
		dirs = append(dirs, filepath.Join(root, filepath.FromSlash(s.store.Folder())))
		reload = watch.ReloadBlobs(s.coord, root, s.log)
	}

	w, err := watch.New(watch.Options{
		Dirs: dirs,
		Match: func(p string) bool {
			return p == docPath || strings.HasSuffix(p, store.BlobSuffix)
		},
		Handle: func(ctx context.Context, p string) {
			if p != docPath && reload != nil {
				reload(ctx, p)
			}
			rerender(ctx)
		},
		Logger: s.log,
	})
	if err != nil {
		exitErr("watch", err)
	}
	if err := w.Start(ctx); err != nil {
		exitErr("watch", err)
	}
	defer w.Stop()

	<-ctx.Done()
}
