package extractors

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	mdtable "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// HTMLDecoder converts HTML to markdown text. Input is sanitized with
// bluemonday first (scripts, styles and event handlers stripped), the
// title is read from the DOM, and <table> elements are additionally
// extracted into structured Table values via goquery.
type HTMLDecoder struct {
	once      sync.Once
	converter *converter.Converter
	policy    *bluemonday.Policy
}

func (d *HTMLDecoder) Name() string { return "html" }

func (d *HTMLDecoder) Formats() []format.Format {
	return []format.Format{format.HTML}
}

func (d *HTMLDecoder) init() {
	d.once.Do(func() {
		d.converter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				mdtable.NewTablePlugin(),
			),
		)
		d.policy = bluemonday.UGCPolicy()
		d.policy.AllowTables()
	})
}

func (d *HTMLDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, cfg *textract.Config) (*textract.RawOutcome, error) {
	d.init()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := src.Data
	if cfg == nil || !cfg.HTML.SkipSanitize {
		raw = d.policy.SanitizeBytes(raw)
	}

	meta := textract.Metadata{}
	if doc, err := html.Parse(bytes.NewReader(src.Data)); err == nil {
		if title := findTitle(doc); title != "" {
			meta["title"] = title
		}
	}

	markdown, err := d.converter.ConvertString(string(raw))
	if err != nil {
		return nil, err
	}

	outcome := &textract.RawOutcome{
		Content:  strings.TrimSpace(markdown),
		Metadata: meta,
	}

	if cfg == nil || !cfg.HTML.SkipTables {
		tables, err := extractTables(raw)
		if err == nil {
			outcome.Tables = tables
		}
	}
	return outcome, nil
}

// findTitle returns the text of the first <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// extractTables pulls every <table> into a cell grid.
func extractTables(raw []byte) ([]textract.Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var tables []textract.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		var cells [][]string
		sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cols []string
			row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cols = append(cols, strings.TrimSpace(cell.Text()))
			})
			if len(cols) > 0 {
				cells = append(cells, cols)
			}
		})
		if len(cells) == 0 {
			return
		}
		caption := strings.TrimSpace(sel.Find("caption").First().Text())
		tables = append(tables, textract.Table{Cells: cells, Caption: caption})
	})
	return tables, nil
}
