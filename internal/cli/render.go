package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/markup"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/dunamismax/pixelpack/internal/pipeline"
)

// sourceFile is the YAML document read by the picture command. sources
// takes any form picture.DecodeSources accepts.
type sourceFile struct {
	Sources  any               `yaml:"sources"`
	Params   picture.Params    `yaml:"params"`
	Settings *config.Overrides `yaml:"settings"`
}

func readSourceFile(path string) (sourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sourceFile{}, fmt.Errorf("read source file: %w", err)
	}
	var f sourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return sourceFile{}, fmt.Errorf("decode source file %s: %w", path, err)
	}
	return f, nil
}

// transformFlags collects one transform per --width, sharing the other flags.
type transformFlags struct {
	widths  []int
	height  int
	ratio   float64
	mode    string
	format  string
	quality int
}

func (f *transformFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntSliceVarP(&f.widths, "width", "w", nil, "variant width (repeatable)")
	cmd.Flags().IntVar(&f.height, "height", 0, "variant height")
	cmd.Flags().Float64Var(&f.ratio, "ratio", 0, "width/height ratio")
	cmd.Flags().StringVar(&f.mode, "mode", "", "resize mode: crop (default), fit, stretch")
	cmd.Flags().StringVar(&f.format, "format", "", "output format: jpeg, png, gif, webp, avif")
	cmd.Flags().IntVar(&f.quality, "quality", 0, "encoder quality 1-100")
}

func (f *transformFlags) transforms() []domain.Transform {
	base := domain.Transform{Height: f.height, Ratio: f.ratio, Mode: f.mode, Format: f.format, Quality: f.quality}
	if len(f.widths) == 0 {
		if base.IsZero() {
			return nil
		}
		return []domain.Transform{base}
	}
	out := make([]domain.Transform, 0, len(f.widths))
	for _, w := range f.widths {
		t := base
		t.Width = w
		out = append(out, t)
	}
	return out
}

func (c *CLI) pictureCommand() *cobra.Command {
	var withScripts bool
	cmd := &cobra.Command{
		Use:   "picture [sources.yaml]",
		Short: "Render a <picture> element from a YAML source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readSourceFile(args[0])
			if err != nil {
				return err
			}
			return c.render(cmd, withScripts, func(ctx context.Context, s *session) (string, error) {
				sources, err := picture.DecodeSources(ctx, f.Sources, s.resolve)
				if err != nil {
					return "", err
				}
				return s.builder.Picture(ctx, sources, f.Params, f.Settings)
			})
		},
	}
	cmd.Flags().BoolVar(&withScripts, "scripts", false, "append <script> tags the markup needs")
	return cmd
}

func (c *CLI) imgCommand() *cobra.Command {
	var (
		tf          transformFlags
		sizes       string
		alt         string
		withScripts bool
	)
	cmd := &cobra.Command{
		Use:   "img [image]",
		Short: "Render a single <img> element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := picture.Params{Sizes: sizes}
			if cmd.Flags().Changed("alt") {
				params.Attrs = map[string]any{"alt": alt}
			}
			return c.render(cmd, withScripts, func(ctx context.Context, s *session) (string, error) {
				return s.builder.Img(ctx, domain.PathRef(args[0]), tf.transforms(), params, nil)
			})
		},
	}
	tf.register(cmd)
	cmd.Flags().StringVar(&sizes, "sizes", "", "sizes attribute (default 100vw)")
	cmd.Flags().StringVar(&alt, "alt", "", "alt text")
	cmd.Flags().BoolVar(&withScripts, "scripts", false, "append <script> tags the markup needs")
	return cmd
}

func (c *CLI) placeholderCommand() *cobra.Command {
	var kind, output string
	cmd := &cobra.Command{
		Use:   "placeholder [image]",
		Short: "Render placeholder CSS for an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.render(cmd, false, func(ctx context.Context, s *session) (string, error) {
				return s.builder.Placeholder(ctx, domain.PathRef(args[0]), output, kind, nil)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", config.PlaceholderDominantColor, "placeholder kind: dominantColor, blurUp, blurHash")
	cmd.Flags().StringVar(&output, "output", picture.OutputAttr, "output form: attr or css")
	return cmd
}

func (c *CLI) transformCommand() *cobra.Command {
	var tf transformFlags
	cmd := &cobra.Command{
		Use:   "transform [image]",
		Short: "Render variants and print their descriptors as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			descriptors, err := s.builder.Transform(cmd.Context(), domain.PathRef(args[0]), tf.transforms(), domain.Transform{}, domain.TransformOptions{}, nil)
			if err != nil {
				return err
			}
			return writeDescriptors(cmd.OutOrStdout(), descriptors)
		},
	}
	tf.register(cmd)
	return cmd
}

func (c *CLI) render(cmd *cobra.Command, withScripts bool, fn func(context.Context, *session) (string, error)) error {
	s, err := c.newSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	bag := markup.NewScriptBag()
	out, err := fn(markup.WithScripts(cmd.Context(), bag), s)
	if err != nil {
		return err
	}
	if withScripts {
		out += bag.HTML()
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func writeDescriptors(w io.Writer, descriptors []domain.Descriptor) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Descriptors []domain.Descriptor `json:"descriptors"`
		Srcset      string              `json:"srcset"`
	}{descriptors, pipeline.Srcset(descriptors)})
}
