package extractors

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// maxEntrySize caps a single decompressed archive entry. Untrusted
// archives must not balloon memory (zip bombs).
const maxEntrySize = 256 * 1024 * 1024

// ArchiveDecoder lists the entries of zip, tar and gzip containers as
// nested sources. It never recurses itself; the fallback orchestrator
// descends into entries with an explicit depth counter.
type ArchiveDecoder struct{}

func (d *ArchiveDecoder) Name() string { return "archive" }

func (d *ArchiveDecoder) Formats() []format.Format {
	return []format.Format{format.Zip, format.Tar, format.Gzip}
}

func (d *ArchiveDecoder) Extract(ctx context.Context, src *textract.Source, f format.Format, _ *textract.Config) (*textract.RawOutcome, error) {
	switch f {
	case format.Zip:
		return extractZipEntries(ctx, src.Data)
	case format.Tar:
		return extractTarEntries(ctx, bytes.NewReader(src.Data))
	case format.Gzip:
		return extractGzipEntry(ctx, src)
	default:
		return nil, fmt.Errorf("archive decoder cannot handle %s", f)
	}
}

func extractZipEntries(ctx context.Context, data []byte) (*textract.RawOutcome, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	outcome := &textract.RawOutcome{Metadata: textract.Metadata{}}
	var names []string
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || f.UncompressedSize64 > maxEntrySize {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		entryData, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		rc.Close()
		if err != nil {
			continue
		}
		outcome.Entries = append(outcome.Entries, &textract.Source{
			Data:     entryData,
			Filename: f.Name,
		})
		names = append(names, f.Name)
	}
	outcome.Metadata["entries"] = names
	return outcome, nil
}

func extractTarEntries(ctx context.Context, r io.Reader) (*textract.RawOutcome, error) {
	tr := tar.NewReader(r)
	outcome := &textract.RawOutcome{Metadata: textract.Metadata{}}
	var names []string
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep the entries read before the fault.
			outcome.Metadata["entries"] = names
			return outcome, &textract.StreamError{Offset: offset, Err: err}
		}
		offset += hdr.Size
		if hdr.Typeflag != tar.TypeReg || hdr.Size > maxEntrySize {
			continue
		}
		entryData, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			outcome.Metadata["entries"] = names
			return outcome, &textract.StreamError{Offset: offset, Err: err}
		}
		outcome.Entries = append(outcome.Entries, &textract.Source{
			Data:     entryData,
			Filename: hdr.Name,
		})
		names = append(names, hdr.Name)
	}
	outcome.Metadata["entries"] = names
	return outcome, nil
}

func extractGzipEntry(ctx context.Context, src *textract.Source) (*textract.RawOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	inner, err := io.ReadAll(io.LimitReader(gz, maxEntrySize))
	if err != nil && len(inner) == 0 {
		return nil, fmt.Errorf("decompress gzip: %w", err)
	}

	name := gz.Name
	if name == "" {
		name = strings.TrimSuffix(src.Filename, ".gz")
	}

	outcome := &textract.RawOutcome{
		Metadata: textract.Metadata{"entries": []string{name}},
		Entries:  []*textract.Source{{Data: inner, Filename: name}},
	}
	if err != nil {
		// Truncated member: salvage the bytes decompressed so far.
		return outcome, &textract.StreamError{Offset: int64(len(inner)), Err: err}
	}
	return outcome, nil
}
