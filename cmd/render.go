package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/CodeTease/custom404/pkg/storage"
)

func newRenderCmd() *cobra.Command {
	var (
		out      string
		host     string
		encoding string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one not-found page to a file",
		Example: `  # Write a page for example.com
  custom404 render --out 404.html --host example.com

  # Pre-compress for a static host
  custom404 render --out 404.html.br --encoding br`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch encoding {
			case "", "br", "gzip":
			default:
				return fmt.Errorf("unsupported encoding %q (want br or gzip)", encoding)
			}

			svc, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if wait == 0 {
				wait = svc.config.Get().ImageWait
			}
			settings := svc.config.Options().Resolve()
			s, err := svc.factory.New(settings, host)
			if err != nil {
				return err
			}
			if err := s.Build(cmd.Context(), wait); err != nil {
				return err
			}
			if _, ok := s.Current(); !ok {
				slog.Warn("No image was ready in time; writing page without image", "wait", wait)
			}

			var buf bytes.Buffer
			if err := s.Render(&buf); err != nil {
				return err
			}
			dir := filepath.Dir(out)
			if err := storage.AtomicWrite(out, &buf, encoding, dir); err != nil {
				return err
			}
			slog.Info("Page written", "path", out, "encoding", encoding)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().StringVar(&host, "host", "localhost", "Hostname shown on the page")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Compress the output with br or gzip")
	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to wait for the image (default $IMAGE_WAIT_MS)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
