// Package plugin holds the registration tables for decoders, validators,
// post-processors and OCR backends.
//
// A Registry is populated at startup and treated as read-only during
// request processing. Tests construct independent registries so they can
// run in parallel; there is no process-wide singleton.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hazyhaar/textract"
	"github.com/hazyhaar/textract/format"
)

// Stage orders post-processors independently of registration time.
type Stage int

const (
	StageEarly Stage = iota
	StageMiddle
	StageLate
)

func (s Stage) String() string {
	switch s {
	case StageEarly:
		return "early"
	case StageMiddle:
		return "middle"
	case StageLate:
		return "late"
	default:
		return "unknown"
	}
}

type decoderEntry struct {
	dec      textract.Decoder
	priority int
	seq      int
}

// ValidatorEntry is a registered validator with its ordering keys.
type ValidatorEntry struct {
	Name     string
	Priority int
	Fn       textract.ValidateFunc
	seq      int
}

// ProcessorEntry is a registered post-processor with its ordering keys.
type ProcessorEntry struct {
	Name  string
	Stage Stage
	Fn    textract.ProcessFunc
	seq   int
}

// Registry is the pluggable binding table of the pipeline. Registration
// after request processing has begun is undefined behavior; the mutex only
// protects the startup phase and tests.
type Registry struct {
	mu         sync.RWMutex
	decoders   map[format.Format][]decoderEntry
	validators []ValidatorEntry
	processors []ProcessorEntry
	ocr        map[string]textract.OcrBackend
	seq        int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[format.Format][]decoderEntry),
		ocr:      make(map[string]textract.OcrBackend),
	}
}

// RegisterDecoder binds dec to every format it claims. Higher priority
// wins at resolve time; ties break by registration order, earliest first,
// so a user override must carry a strictly higher priority than a built-in
// to take precedence.
func (r *Registry) RegisterDecoder(dec textract.Decoder, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry := decoderEntry{dec: dec, priority: priority, seq: r.seq}
	for _, f := range dec.Formats() {
		r.decoders[f] = append(r.decoders[f], entry)
	}
}

// ResolveDecoder returns the highest-priority decoder registered for f.
func (r *Registry) ResolveDecoder(f format.Format) (textract.Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.decoders[f]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", textract.ErrUnsupportedFormat, f)
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.priority > best.priority {
			best = e
		}
	}
	return best.dec, nil
}

// DecoderNames returns the names of all registered decoders, sorted.
func (r *Registry) DecoderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var names []string
	for _, entries := range r.decoders {
		for _, e := range entries {
			if !seen[e.dec.Name()] {
				seen[e.dec.Name()] = true
				names = append(names, e.dec.Name())
			}
		}
	}
	sort.Strings(names)
	return names
}

// SupportedFormats returns every format with at least one decoder, sorted.
func (r *Registry) SupportedFormats() []format.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]format.Format, 0, len(r.decoders))
	for f := range r.decoders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterValidator adds a named validator. Validators run highest
// priority first; same-priority ties keep registration order.
func (r *Registry) RegisterValidator(name string, priority int, fn textract.ValidateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.validators = append(r.validators, ValidatorEntry{Name: name, Priority: priority, Fn: fn, seq: r.seq})
}

// UnregisterValidator removes a validator by name.
func (r *Registry) UnregisterValidator(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = removeByName(r.validators, name, func(e ValidatorEntry) string { return e.Name })
}

// Validators returns validators in execution order.
func (r *Registry) Validators() []ValidatorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]ValidatorEntry(nil), r.validators...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// RegisterProcessor adds a named post-processor to a stage. Execution
// order is Early < Middle < Late, then registration order within a stage.
func (r *Registry) RegisterProcessor(name string, stage Stage, fn textract.ProcessFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.processors = append(r.processors, ProcessorEntry{Name: name, Stage: stage, Fn: fn, seq: r.seq})
}

// UnregisterProcessor removes a post-processor by name.
func (r *Registry) UnregisterProcessor(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = removeByName(r.processors, name, func(e ProcessorEntry) string { return e.Name })
}

// Processors returns post-processors in execution order.
func (r *Registry) Processors() []ProcessorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]ProcessorEntry(nil), r.processors...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// RegisterOCR binds an OCR backend under its name. First registration
// wins on conflict.
func (r *Registry) RegisterOCR(backend textract.OcrBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ocr[backend.Name()]; exists {
		return
	}
	r.ocr[backend.Name()] = backend
}

// UnregisterOCR removes an OCR backend by name.
func (r *Registry) UnregisterOCR(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ocr, name)
}

// OCR returns the backend registered under name.
func (r *Registry) OCR(name string) (textract.OcrBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.ocr[name]
	return b, ok
}

// OCRNames returns registered OCR backend names, sorted.
func (r *Registry) OCRNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ocr))
	for n := range r.ocr {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func removeByName[E any](entries []E, name string, key func(E) string) []E {
	out := entries[:0]
	for _, e := range entries {
		if key(e) != name {
			out = append(out, e)
		}
	}
	return out
}
