package cluster

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/pricing"
	"github.com/MeKo-Tech/leafscan/internal/validate"
)

// Defaults for Options.
const (
	DefaultAnchorRadius    = 200.0
	DefaultMaxNeighbors    = 10
	DefaultFallbackRadius  = 150.0
	DefaultMinFallbackSize = 2
)

// Options tune the clusterer. Zero fields take their defaults.
type Options struct {
	AnchorRadius    float64 `mapstructure:"anchor_radius" yaml:"anchor_radius" json:"anchor_radius"`
	MaxNeighbors    int     `mapstructure:"max_neighbors" yaml:"max_neighbors" json:"max_neighbors"`
	FallbackRadius  float64 `mapstructure:"fallback_radius" yaml:"fallback_radius" json:"fallback_radius"`
	MinFallbackSize int     `mapstructure:"min_fallback_size" yaml:"min_fallback_size" json:"min_fallback_size"`
}

// DefaultOptions returns the leaflet-scale defaults.
func DefaultOptions() Options {
	return Options{
		AnchorRadius:    DefaultAnchorRadius,
		MaxNeighbors:    DefaultMaxNeighbors,
		FallbackRadius:  DefaultFallbackRadius,
		MinFallbackSize: DefaultMinFallbackSize,
	}
}

func (o Options) withDefaults() Options {
	if o.AnchorRadius <= 0 {
		o.AnchorRadius = DefaultAnchorRadius
	}
	if o.MaxNeighbors <= 0 {
		o.MaxNeighbors = DefaultMaxNeighbors
	}
	if o.FallbackRadius <= 0 {
		o.FallbackRadius = DefaultFallbackRadius
	}
	if o.MinFallbackSize <= 0 {
		o.MinFallbackSize = DefaultMinFallbackSize
	}
	return o
}

// Clusterer groups detections into regions. It holds no per-call state and
// is safe for concurrent use.
type Clusterer struct {
	opts Options
	log  zerolog.Logger
}

// New returns a Clusterer logging to log.
func New(opts Options, log zerolog.Logger) *Clusterer {
	return &Clusterer{opts: opts.withDefaults(), log: log}
}

// Options returns the effective options.
func (c *Clusterer) Options() Options { return c.opts }

// Cluster groups dets around price anchors, or by plain proximity when no
// detection carries a valid price. No detection appears in two regions.
// Pairwise distances make this quadratic in len(dets).
func (c *Clusterer) Cluster(dets []ocr.Detection) []Region {
	if len(dets) == 0 {
		return nil
	}
	anchors := c.anchors(dets)
	if len(anchors) == 0 {
		c.log.Debug().Int("detections", len(dets)).Msg("no price anchors, using proximity clustering")
		return c.proximity(dets)
	}
	regions := c.anchored(dets, anchors)
	c.log.Debug().
		Int("detections", len(dets)).
		Int("anchors", len(anchors)).
		Int("regions", len(regions)).
		Msg("price-anchored clustering")
	return regions
}

// IsAnchor reports whether text carries a plausible price: a currency-marked
// price first, else a bare number token.
func IsAnchor(text string) (float64, bool) {
	price, ok := pricing.ExtractPrice(text, true)
	if !ok {
		price, ok = pricing.LenientPrice(text)
	}
	if !ok || !validate.IsValidPrice(price) {
		return 0, false
	}
	return price, true
}

func (c *Clusterer) anchors(dets []ocr.Detection) []int {
	var idx []int
	for i, d := range dets {
		if _, ok := IsAnchor(d.Text); ok {
			idx = append(idx, i)
		}
	}
	return idx
}

type neighbor struct {
	index int
	dist  float64
}

func (c *Clusterer) anchored(dets []ocr.Detection, anchors []int) []Region {
	centers := centersOf(dets)
	claimed := make([]bool, len(dets))
	var regions []Region

	for _, a := range anchors {
		if claimed[a] {
			continue
		}
		claimed[a] = true

		var near []neighbor
		for j := range dets {
			if claimed[j] {
				continue
			}
			if d := geometry.Distance(centers[a], centers[j]); d <= c.opts.AnchorRadius {
				near = append(near, neighbor{index: j, dist: d})
			}
		}
		sort.SliceStable(near, func(i, j int) bool { return near[i].dist < near[j].dist })
		if len(near) > c.opts.MaxNeighbors {
			near = near[:c.opts.MaxNeighbors]
		}

		members := make([]ocr.Detection, 0, len(near)+1)
		members = append(members, dets[a])
		for _, n := range near {
			claimed[n.index] = true
			members = append(members, dets[n.index])
		}
		regions = append(regions, Region{Detections: members})
	}
	return regions
}

func (c *Clusterer) proximity(dets []ocr.Detection) []Region {
	centers := centersOf(dets)
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := centers[order[i]], centers[order[j]]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	claimed := make([]bool, len(dets))
	var regions []Region
	for _, seed := range order {
		if claimed[seed] {
			continue
		}
		claimed[seed] = true
		members := []ocr.Detection{dets[seed]}
		for _, j := range order {
			if claimed[j] {
				continue
			}
			if geometry.Distance(centers[seed], centers[j]) <= c.opts.FallbackRadius {
				claimed[j] = true
				members = append(members, dets[j])
			}
		}
		if len(members) >= c.opts.MinFallbackSize {
			regions = append(regions, Region{Detections: members})
		}
	}
	return regions
}

func centersOf(dets []ocr.Detection) []geometry.Point {
	centers := make([]geometry.Point, len(dets))
	for i, d := range dets {
		centers[i] = d.Box.Center()
	}
	return centers
}
