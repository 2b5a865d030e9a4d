// Package ocr provides OcrBackend implementations. The production backend
// shells out to the tesseract binary; tests and callers without an engine
// use inline fakes or simply leave Config.OCR.Backend empty.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hazyhaar/textract"
)

// Tesseract recognizes text by invoking the tesseract CLI with the image
// on stdin. The binary must be on PATH (or set Bin explicitly).
type Tesseract struct {
	// Bin is the tesseract executable (default "tesseract").
	Bin string
}

// Name implements textract.OcrBackend.
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs tesseract over the image bytes. Confidence is a crude
// word-density proxy since the plain-text output carries no per-word
// confidences.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, language string) (*textract.OcrResult, error) {
	bin := t.Bin
	if bin == "" {
		bin = "tesseract"
	}
	if language == "" {
		language = "eng"
	}

	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", language)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	confidence := 0.0
	if len(strings.Fields(text)) > 0 {
		confidence = 0.5
		if len(text) > 64 {
			confidence = 0.8
		}
	}

	return &textract.OcrResult{Text: text, Confidence: confidence}, nil
}
