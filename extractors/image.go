package extractors

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// ImageDecoder handles raster images. Images carry no machine-readable
// text, so the outcome is empty content plus dimension metadata; the
// empty text then triggers the OCR fallback when a backend is configured.
type ImageDecoder struct{}

func (d *ImageDecoder) Name() string { return "image" }

func (d *ImageDecoder) Formats() []format.Format {
	return []format.Format{format.PNG, format.JPEG, format.GIF, format.TIFF, format.BMP, format.WebP}
}

func (d *ImageDecoder) Extract(ctx context.Context, src *textract.Source, f format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta := textract.Metadata{"image_format": string(f)}
	if cfg, kind, err := image.DecodeConfig(bytes.NewReader(src.Data)); err == nil {
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
		meta["codec"] = kind
	}

	return &textract.RawOutcome{Metadata: meta}, nil
}
