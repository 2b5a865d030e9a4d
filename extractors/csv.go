package extractors

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// CSVDecoder parses comma-separated values into one Table plus a
// tab-joined text rendering. It parses incrementally: a malformed row mid
// stream yields the rows read so far together with a StreamError carrying
// the fault offset, so the orchestrator can salvage the partial result.
type CSVDecoder struct{}

func (d *CSVDecoder) Name() string { return "csv" }

func (d *CSVDecoder) Formats() []format.Format {
	return []format.Format{format.CSV}
}

func (d *CSVDecoder) Extract(ctx context.Context, src *textract.Source, _ format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	reader := csv.NewReader(bytes.NewReader(src.Data))
	reader.FieldsPerRecord = -1

	var rows [][]string
	var faultErr error
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			faultErr = err
			break
		}
		rows = append(rows, record)
	}

	outcome := &textract.RawOutcome{
		Content:  renderRows(rows),
		Metadata: textract.Metadata{"rows": len(rows)},
	}
	if len(rows) > 0 {
		outcome.Tables = []textract.Table{{Cells: rows}}
	}
	if faultErr != nil {
		offset := reader.InputOffset()
		return outcome, &textract.StreamError{Offset: offset, Err: faultErr}
	}
	return outcome, nil
}

func renderRows(rows [][]string) string {
	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(row, "\t"))
	}
	return sb.String()
}
