package domain

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/storefront/internal/doc"
)

//go:embed schema.cue
var schemaCUE string

// Kind names a document schema in schema.cue.
type Kind string

const (
	KindCheckoutRecord Kind = "#CheckoutRecord"
	KindAddress        Kind = "#Address"
	KindCartItem       Kind = "#CartItem"
	KindOrder          Kind = "#Order"
)

// schemas holds the compiled CUE definitions.
// cue.Context is not safe for concurrent use, so all access goes through mu.
type schemas struct {
	mu   sync.Mutex
	ctx  *cue.Context
	root cue.Value
	err  error
}

var (
	schemaOnce sync.Once
	compiled   *schemas
)

func loadSchemas() *schemas {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		root := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		compiled = &schemas{ctx: ctx, root: root, err: root.Err()}
	})
	return compiled
}

// ValidateDocument checks a raw document against the CUE definition for kind.
// Failures wrap ErrValidation.
func ValidateDocument(kind Kind, fields doc.Fields) error {
	s := loadSchemas()
	if s.err != nil {
		return fmt.Errorf("compile document schemas: %w", s.err)
	}

	data, err := doc.MarshalCanonical(fields)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.root.LookupPath(cue.ParsePath(string(kind)))
	if !def.Exists() {
		return fmt.Errorf("unknown document kind %s", kind)
	}

	val := s.ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, kind, err)
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, kind, err)
	}
	return nil
}

// DecodeDocument validates fields against kind and decodes them into v.
func DecodeDocument(kind Kind, fields doc.Fields, v any) error {
	if err := ValidateDocument(kind, fields); err != nil {
		return err
	}
	return doc.Decode(fields, v)
}
