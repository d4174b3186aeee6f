package game

import (
	"log"
	"math/rand"
)

// offset is a (row, col) displacement from the shot origin
type offset struct {
	dr, dc int
}

// Multi-shot sampling parameters
const (
	multiExtraCells     = 2
	multiSpread         = 2
	multiSampleAttempts = 10
	nuclearRadius       = 3
)

var (
	simpleOffsets  = []offset{{0, 0}}
	crossOffsets   = []offset{{0, 0}, {0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	areaOffsets    = []offset{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	nuclearOffsets = diamondOffsets(nuclearRadius)
)

// diamondOffsets returns every offset with |dr|+|dc| <= radius, origin first
func diamondOffsets(radius int) []offset {
	offsets := []offset{{0, 0}}
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if abs(dr)+abs(dc) <= radius {
				offsets = append(offsets, offset{dr, dc})
			}
		}
	}
	return offsets
}

// ExpandPattern returns the cells struck by a shot of the given type aimed
// at origin. Cells are deduplicated and bounds-filtered; the origin comes
// first whenever it is on the board. Unknown types fall back to simple.
func ExpandPattern(shotType ShotType, origin Coordinate, size int, rng *rand.Rand) []Coordinate {
	var offsets []offset
	switch shotType {
	case ShotSimple, ShotScan:
		offsets = simpleOffsets
	case ShotCross:
		offsets = crossOffsets
	case ShotArea:
		offsets = areaOffsets
	case ShotNuclear:
		offsets = nuclearOffsets
	case ShotMulti:
		offsets = multiOffsets(rng)
	default:
		log.Printf("[PATTERN] unknown shot type %q, treating as %s", shotType, ShotSimple)
		offsets = simpleOffsets
	}

	cells := make([]Coordinate, 0, len(offsets))
	seen := make(map[Coordinate]bool, len(offsets))
	for _, o := range offsets {
		c := origin.Offset(o.dr, o.dc)
		if !c.In(size) || seen[c] {
			continue
		}
		seen[c] = true
		cells = append(cells, c)
	}
	return cells
}

// multiOffsets samples up to multiExtraCells distinct non-zero offsets in
// [-multiSpread, multiSpread]². Fewer are returned if sampling runs out.
func multiOffsets(rng *rand.Rand) []offset {
	offsets := []offset{{0, 0}}
	span := 2*multiSpread + 1
	for attempt := 0; attempt < multiSampleAttempts && len(offsets) < multiExtraCells+1; attempt++ {
		o := offset{rng.Intn(span) - multiSpread, rng.Intn(span) - multiSpread}
		if o.dr == 0 && o.dc == 0 {
			continue
		}
		duplicate := false
		for _, existing := range offsets {
			if existing == o {
				duplicate = true
				break
			}
		}
		if !duplicate {
			offsets = append(offsets, o)
		}
	}
	return offsets
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
