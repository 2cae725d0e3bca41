package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custom404",
		Short: "Customizable not-found pages with watermarked images",
		Long: `custom404 serves a configurable "page not found" experience.

Every unknown path gets a page with a randomly selected image, watermarked on
the fly. Images come from the numbered default catalog or from your own list,
served over HTTP(S), S3 or a static directory.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRenderCmd())

	return cmd
}
