package port

import (
	"context"

	"github.com/bnema/mediaconv/internal/domain"
)

// Transformer turns the input file of a request into its output file.
type Transformer interface {
	Transform(ctx context.Context, req domain.TransformRequest) error
}

type Prober interface {
	Probe(ctx context.Context, path string) (*domain.ProbeResult, error)
}
