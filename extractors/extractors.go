// Package extractors provides the built-in format decoders.
//
// Each decoder implements textract.Decoder for one format family and is
// registered into a plugin.Registry by RegisterAll. Decoders are external
// collaborators of the pipeline: they parse bytes into a RawOutcome and
// never orchestrate fallbacks or recursion themselves.
package extractors

import (
	"github.com/hazyhaar/textract/plugin"
)

// Built-in priority. User overrides must register strictly higher to take
// precedence.
const (
	PriorityDefault   = 0
	PriorityPreferred = 10
)

// RegisterAll installs every built-in decoder into reg.
func RegisterAll(reg *plugin.Registry) {
	reg.RegisterDecoder(&TextDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&CSVDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&HTMLDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&PDFDecoder{}, PriorityPreferred)
	reg.RegisterDecoder(&PDFTextDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&DocxDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&ODTDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&XLSXDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&StructuredDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&ArchiveDecoder{}, PriorityDefault)
	reg.RegisterDecoder(&ImageDecoder{}, PriorityDefault)
}
