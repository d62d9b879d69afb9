package pipeline

import (
	"context"

	"github.com/hicann/ge-sub098/pkg/errors"
	"github.com/hicann/ge-sub098/pkg/graph"
	"github.com/hicann/ge-sub098/pkg/render/dot"
)

// Render produces the requested artifacts for a compiled graph. doc is the
// exported JSON of g and is returned as is for the json format.
func Render(ctx context.Context, g *graph.Graph, doc []byte, opts Options) (map[string][]byte, error) {
	if err := ValidateFormats(opts.Formats); err != nil {
		return nil, err
	}

	dotOpts := dot.Options{Detailed: opts.Detailed, Flat: opts.Flat}
	var src string
	source := func() string {
		if src == "" {
			src = dot.ToDOT(g, dotOpts)
		}
		return src
	}

	out := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		switch format {
		case FormatJSON:
			out[format] = doc
		case FormatDOT:
			out[format] = []byte(source())
		case FormatSVG:
			svg, err := dot.RenderSVG(ctx, source())
			if err != nil {
				return nil, err
			}
			out[format] = svg
		case FormatPNG:
			png, err := dot.Render(ctx, source(), dot.PNG)
			if err != nil {
				return nil, err
			}
			out[format] = png
		default:
			return nil, errors.New(errors.ErrCodeInvalidInput, "unsupported format %q", format)
		}
	}
	return out, nil
}
