package pdf

import (
	"context"
	"fmt"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

type wkRenderer struct{}

// NewRenderer builds an A4 portrait renderer backed by wkhtmltopdf. binPath,
// when set, points at the wkhtmltopdf binary; an empty path uses the
// library's default lookup.
func NewRenderer(binPath string) Renderer {
	if binPath != "" {
		wkhtmltopdf.SetPath(binPath)
	}
	return &wkRenderer{}
}

func (r *wkRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf generator: %w", err)
	}

	gen.PageSize.Set(wkhtmltopdf.PageSizeA4)
	gen.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	gen.MarginTop.Set(15)
	gen.MarginBottom.Set(15)
	gen.MarginLeft.Set(15)
	gen.MarginRight.Set(15)

	page := wkhtmltopdf.NewPageReader(strings.NewReader(html))
	page.DisableExternalLinks.Set(true)
	page.DisableJavascript.Set(true)
	gen.AddPage(page)

	if err := gen.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return gen.Bytes(), nil
}
