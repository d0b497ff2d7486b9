package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/yoloaug/internal/imageops"
	"github.com/MeKo-Tech/yoloaug/internal/preview"
	"github.com/spf13/cobra"
)

func newPreviewCommand(a *app) *cobra.Command {
	previewCmd := &cobra.Command{
		Use:   "preview IMAGE LABEL",
		Short: "Draw the boxes of a label file over its image",
		Long: `Render every bounding box of LABEL as a rectangle over IMAGE and save the
result, so that an augmented artifact can be checked by eye.

Boxes are tagged with their class id, or with the class name when a classes
file is given (one name per line, line N naming class N).

Examples:
  yoloaug preview img.jpg img.txt -o img_boxes.png
  yoloaug preview img_flip_both.jpg img_flip_both.txt -o check.jpg --classes classes.txt`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{annotationConfig: configRaw},
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				return errors.New("output path is required (--output)")
			}
			if !imageops.IsSupportedImage(out) {
				return fmt.Errorf("unsupported output image format: %s", out)
			}

			opts := preview.DefaultOptions()
			if cmd.Flags().Changed("thickness") {
				opts.Thickness, _ = cmd.Flags().GetInt("thickness")
			}
			if opts.Thickness < 1 {
				return fmt.Errorf("invalid thickness: %d (must be positive)", opts.Thickness)
			}
			if cmd.Flags().Changed("no-labels") {
				noLabels, _ := cmd.Flags().GetBool("no-labels")
				opts.Labels = !noLabels
			}

			classes := a.cfg.ClassesTxtPath
			if cmd.Flags().Changed("classes") {
				classes, _ = cmd.Flags().GetString("classes")
			}
			if classes != "" {
				names, err := preview.LoadClassNames(a.fs, classes)
				if err != nil {
					return err
				}
				opts.ClassNames = names
			}

			renderer := preview.NewRenderer(a.fs, imageops.NewCodec(a.fs, a.cfg.Image.JPEGQuality), opts, a.logger)
			n, err := renderer.RenderFile(args[0], args[1], out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Drew %d box(es) to %s\n", n, out)
			return err
		},
	}

	previewCmd.Flags().StringP("output", "o", "", "output image path")
	previewCmd.Flags().String("classes", "", "classes.txt used to label boxes by name")
	previewCmd.Flags().Int("thickness", preview.DefaultOptions().Thickness, "rectangle line width in pixels")
	previewCmd.Flags().Bool("no-labels", false, "draw rectangles without class labels")
	return previewCmd
}
