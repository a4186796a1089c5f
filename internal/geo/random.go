// Package geo generates synthetic geographic features for benchmarking.
package geo

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Coordinate bounds for generated points, both axes: [MinCoord, MaxCoord).
const (
	MinCoord = -45.0
	MaxCoord = 45.0
)

// Description word count and value range.
const (
	MinWords = 10
	MaxWords = 100
	MaxValue = 10000.0
)

// Names is the vocabulary of the "name" property.
var Names = []string{
	"Name A",
	"Name B",
	"Name C",
	"Another Name",
	"Yet another one",
	"Look this has special characters!",
}

// Generator produces random point features.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a generator seeded with the given values.
func NewGenerator(seed1, seed2 uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// Feature returns one random point feature with name and description properties.
func (g *Generator) Feature() *geojson.Feature {
	f := geojson.NewFeature(orb.Point{g.coord(), g.coord()})
	f.Properties["name"] = Names[g.rnd.IntN(len(Names))]
	f.Properties["description"] = g.description()

	return f
}

// Collection builds n features. progress, when not nil, is called every
// ProgressStep(n) features with the index about to be generated.
func (g *Generator) Collection(n int, progress func(i int)) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, n)

	step := ProgressStep(n)
	for i := 0; i < n; i++ {
		if progress != nil && i%step == 0 {
			progress(i)
		}
		fc.Append(g.Feature())
	}

	return fc
}

// ProgressStep is the feature count per 1% of n, at least 1.
func ProgressStep(n int) int {
	if step := n / 100; step > 0 {
		return step
	}

	return 1
}

func (g *Generator) coord() float64 {
	return MinCoord + g.rnd.Float64()*(MaxCoord-MinCoord)
}

func (g *Generator) description() string {
	words := MinWords + g.rnd.IntN(MaxWords-MinWords+1)

	var sb strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(g.rnd.Float64()*MaxValue, 'f', -1, 64))
	}

	return sb.String()
}
