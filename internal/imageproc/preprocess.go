package imageproc

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// Options control Preprocess. A zero MaxWidth or MaxHeight disables
// resizing; zero filter strengths skip the filter.
type Options struct {
	MaxWidth     int     `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	MaxHeight    int     `mapstructure:"max_height" yaml:"max_height" json:"max_height"`
	Grayscale    bool    `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
	DenoiseSigma float64 `mapstructure:"denoise_sigma" yaml:"denoise_sigma" json:"denoise_sigma"`
	Contrast     float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	SharpenSigma float64 `mapstructure:"sharpen_sigma" yaml:"sharpen_sigma" json:"sharpen_sigma"`
}

// DefaultOptions fit images into 2000x2000 and apply the full filter chain.
func DefaultOptions() Options {
	return Options{
		MaxWidth:     2000,
		MaxHeight:    2000,
		Grayscale:    true,
		DenoiseSigma: 0.6,
		Contrast:     20,
		SharpenSigma: 0.5,
	}
}

// Preprocess downsizes img to fit the configured bounds (never upscaling)
// and runs grayscale, blur, contrast and sharpen in that order. The returned
// scale maps output coordinates back to the input: original = output / scale.
func Preprocess(img image.Image, opts Options) (image.Image, float64, error) {
	if img == nil {
		return nil, 0, &Error{Op: "preprocess", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, 0, &Error{Op: "preprocess", Err: errors.New("empty image")}
	}

	out := img
	scale := 1.0
	if opts.MaxWidth > 0 && opts.MaxHeight > 0 && (b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight) {
		out = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
		scale = float64(out.Bounds().Dx()) / float64(b.Dx())
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.DenoiseSigma > 0 {
		out = imaging.Blur(out, opts.DenoiseSigma)
	}
	if opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, opts.Contrast)
	}
	if opts.SharpenSigma > 0 {
		out = imaging.Sharpen(out, opts.SharpenSigma)
	}
	return out, scale, nil
}
