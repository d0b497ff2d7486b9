package cmd

import (
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/yoloaug/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfig: configSkip},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, commit, date := version.Info()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "yoloaug version %s\n", v)
			_, _ = fmt.Fprintf(out, "Commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "Date: %s\n", date)
			_, err := fmt.Fprintf(out, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
