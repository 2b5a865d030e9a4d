package extractors

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// XLSXDecoder extracts worksheet cells from the xlsx ZIP container: shared
// strings are resolved, each sheet becomes one Table, and Content is a
// tab-joined rendering of all sheets.
type XLSXDecoder struct{}

func (d *XLSXDecoder) Name() string { return "xlsx" }

func (d *XLSXDecoder) Formats() []format.Format {
	return []format.Format{format.XLSX}
}

// sharedStrings XML structure (xl/sharedStrings.xml).
type xlsxSST struct {
	Items []xlsxSI `xml:"si"`
}

type xlsxSI struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

// worksheet XML structure (xl/worksheets/sheetN.xml).
type xlsxWorksheet struct {
	SheetData struct {
		Rows []xlsxRow `xml:"row"`
	} `xml:"sheetData"`
}

type xlsxRow struct {
	Cells []xlsxCell `xml:"c"`
}

type xlsxCell struct {
	Ref   string `xml:"r,attr"` // A1, B2, ...
	Type  string `xml:"t,attr"` // s=shared string, n=number, b=bool
	Value string `xml:"v"`
	IS    struct {
		T string `xml:"t"`
	} `xml:"is"` // inline string
}

func (d *XLSXDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.Data), int64(len(src.Data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}

	shared := loadSharedStrings(zr)

	var tables []textract.Table
	var content strings.Builder

	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "xl/worksheets/sheet") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := readSheet(f, shared)
		if err != nil || len(cells) == 0 {
			continue
		}
		caption := strings.TrimSuffix(strings.TrimPrefix(f.Name, "xl/worksheets/"), ".xml")
		tables = append(tables, textract.Table{Cells: cells, Caption: caption})
		if content.Len() > 0 {
			content.WriteString("\n\n")
		}
		content.WriteString(renderRows(cells))
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("no worksheet data found")
	}

	return &textract.RawOutcome{
		Content:  content.String(),
		Tables:   tables,
		Metadata: textract.Metadata{"sheets": len(tables)},
	}, nil
}

func loadSharedStrings(zr *zip.Reader) []string {
	var ssFile *zip.File
	for _, f := range zr.File {
		if f.Name == "xl/sharedStrings.xml" {
			ssFile = f
			break
		}
	}
	if ssFile == nil {
		return nil
	}
	rc, err := ssFile.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}

	var sst xlsxSST
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil
	}
	out := make([]string, 0, len(sst.Items))
	for _, si := range sst.Items {
		if si.T != "" {
			out = append(out, si.T)
			continue
		}
		var sb strings.Builder
		for _, run := range si.Runs {
			sb.WriteString(run.T)
		}
		out = append(out, sb.String())
	}
	return out
}

func readSheet(f *zip.File, shared []string) ([][]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var ws xlsxWorksheet
	if err := xml.Unmarshal(data, &ws); err != nil {
		return nil, err
	}

	var rows [][]string
	for _, row := range ws.SheetData.Rows {
		var cols []string
		for _, c := range row.Cells {
			cols = append(cols, cellValue(c, shared))
		}
		if len(cols) > 0 {
			rows = append(rows, cols)
		}
	}
	return rows, nil
}

func cellValue(c xlsxCell, shared []string) string {
	switch c.Type {
	case "s":
		idx, err := strconv.Atoi(c.Value)
		if err == nil && idx >= 0 && idx < len(shared) {
			return shared[idx]
		}
		return ""
	case "inlineStr":
		return c.IS.T
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return c.Value
	}
}
