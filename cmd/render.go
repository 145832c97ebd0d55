package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/errm/queuestrap/pkg/artifact"
	"github.com/errm/queuestrap/pkg/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRenderCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render every artifact without touching the node",
		Long: `Render every artifact and print it, or write the tree below --output-dir.
Ownership is not applied to files written below --output-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.settings()
			if err != nil {
				return err
			}
			artifacts, err := artifact.Build(s)
			if err != nil {
				return err
			}
			dir := o.v.GetString("output-dir")
			if dir == "" {
				for _, a := range artifacts {
					fmt.Fprintf(cmd.OutOrStdout(), "==> %s (%s:%s %#o)\n%s\n", a.Path, a.Owner, a.Group, a.Mode, strings.TrimRight(a.Content, "\n"))
				}
				return nil
			}
			fs := file.Atomic{Log: o.log}
			for _, a := range artifacts {
				path := filepath.Join(dir, a.Path)
				changed, err := fs.Sync(strings.NewReader(a.Content), path, file.Meta{Mode: a.Mode})
				if err != nil {
					return err
				}
				if changed {
					o.log.Info("rendered", zap.String("artifact", a.Name), zap.String("path", path))
				}
			}
			return nil
		},
	}
	cmd.Flags().String("output-dir", "", "Write artifacts below this directory instead of printing them.")
	return cmd
}
