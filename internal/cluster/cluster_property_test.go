package cluster

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/ocr"
)

var sampleTexts = []string{"Apples", "$2.99", "Milk", "1.50", "Bread", "250g", "Save $1", "Tasty Cheese"}

// randomDetections builds n detections whose confidences encode their index,
// so members can be traced back after clustering.
func randomDetections(seed int64, n int, words []string) []ocr.Detection {
	rng := rand.New(rand.NewSource(seed))
	dets := make([]ocr.Detection, n)
	for i := range dets {
		dets[i] = det(words[rng.Intn(len(words))], rng.Intn(1200), rng.Intn(1200), float64(i+1)/1000)
	}
	return dets
}

func TestCluster_Properties(t *testing.T) {
	c := New(Options{}, zerolog.Nop())
	properties := gopter.NewProperties(nil)

	properties.Property("no detection is in two regions", prop.ForAll(
		func(seed int64, n int) bool {
			dets := randomDetections(seed, n, sampleTexts)
			seen := map[float64]bool{}
			total := 0
			for _, r := range c.Cluster(dets) {
				for _, d := range r.Detections {
					if seen[d.Confidence] {
						return false
					}
					seen[d.Confidence] = true
					total++
				}
			}
			return total <= n
		},
		gen.Int64(), gen.IntRange(0, 80),
	))

	properties.Property("proximity regions have at least two members", prop.ForAll(
		func(seed int64, n int) bool {
			dets := randomDetections(seed, n, []string{"Apples", "Milk", "Bread", "Tasty Cheese"})
			for _, r := range c.Cluster(dets) {
				if r.Len() < DefaultMinFallbackSize {
					return false
				}
			}
			return true
		},
		gen.Int64(), gen.IntRange(0, 80),
	))

	properties.Property("one anchor gathers every nearby detection", prop.ForAll(
		func(seed int64, n int) bool {
			rng := rand.New(rand.NewSource(seed))
			dets := []ocr.Detection{det("$3.49", 500, 500, 0.9)}
			for i := 0; i < n; i++ {
				// Offsets stay inside a 140px square, well within the anchor radius.
				dets = append(dets, det("Apples", 430+rng.Intn(140), 430+rng.Intn(140), 0.9))
			}
			regions := c.Cluster(dets)
			return len(regions) == 1 && regions[0].Len() == n+1
		},
		gen.Int64(), gen.IntRange(0, DefaultMaxNeighbors),
	))

	properties.TestingRun(t)
}
