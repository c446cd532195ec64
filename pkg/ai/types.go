package ai

import (
	"context"
	"errors"
)

// Verdict is the outcome of a content classification.
type Verdict string

// Classification outcomes. Anything that is not exactly VerdictSafe must be handled as unsafe.
const (
	VerdictSafe   Verdict = "safe"
	VerdictUnsafe Verdict = "unsafe"
)

// ErrClassifierUnavailable indicates the oracle could not produce a trustworthy verdict.
var ErrClassifierUnavailable = errors.New("content classifier unavailable")

// Classifier judges whether free text may be published.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}
