// Package oracle implements the facade that glues the deprecating sketch
// and the language model behind four operations: available, entropy,
// all, and add.
package oracle

import (
	"log/slog"

	"github.com/naclave/password-oracle/internal/ngram"
	"github.com/naclave/password-oracle/internal/sketch"
)

// Oracle owns one mutable Sketch and one immutable-after-load Model. A nil
// Model is valid: it represents "no language model loaded" and makes
// Entropy report absence rather than a score.
type Oracle struct {
	logger *slog.Logger
	sk     *sketch.Sketch
	model  *ngram.Model
}

// New constructs an oracle around an already-constructed sketch and an
// optional (possibly nil) model.
func New(logger *slog.Logger, sk *sketch.Sketch, model *ngram.Model) *Oracle {
	return &Oracle{logger: logger, sk: sk, model: model}
}

// Result is the combined response for the "all" query.
type Result struct {
	Entropy   *float64
	Available bool
}

// Available reports ¬sketch.Contains(password).
func (o *Oracle) Available(password string) (bool, error) {
	found, err := o.sk.Contains(password)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// Entropy returns model.Bits(password), or nil if no model is loaded.
func (o *Oracle) Entropy(password string) *float64 {
	if o.model == nil {
		return nil
	}
	bits := o.model.Bits(password)
	return &bits
}

// All composes Available and Entropy into a single response. The two
// reads are independent and need no additional coordination beyond what
// each already provides.
func (o *Oracle) All(password string) (Result, error) {
	available, err := o.Available(password)
	if err != nil {
		return Result{}, err
	}
	return Result{Entropy: o.Entropy(password), Available: available}, nil
}

// Add records password as having been chosen. A caller's prior Available
// call is not required and is never atomic with this call: two clients
// racing on the same password may each see it as available and each call
// Add; this is tolerated.
func (o *Oracle) Add(password string) error {
	return o.sk.Add(password)
}

// HasModel reports whether a language model was loaded, for callers that
// need to distinguish "entropy unavailable" from "entropy is exactly
// zero" without inspecting the Entropy pointer.
func (o *Oracle) HasModel() bool { return o.model != nil }

// Sketch exposes the underlying sketch, for the shutdown path that needs
// to serialize it one final time before exiting.
func (o *Oracle) Sketch() *sketch.Sketch { return o.sk }
