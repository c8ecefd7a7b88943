//go:build !vision

package ocr

import "context"

// NewVision reports ErrEngineUnavailable; build with -tags=vision to link
// the Cloud Vision client.
func NewVision(context.Context, Config) (Engine, error) {
	return nil, WrapError("new engine", ErrEngineUnavailable, "vision (build with -tags=vision)")
}
