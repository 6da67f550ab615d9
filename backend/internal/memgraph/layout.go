package memgraph

import (
	"fmt"
	"math"

	"github.com/nulab/autog"
	"github.com/nulab/autog/graph"
	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/pkg/logger"
)

// Point is a canvas position
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayoutEdge is a directed edge handed to a Layouter
type LayoutEdge struct {
	Source string
	Target string
}

// Layouter positions nodes. Implementations may return positions for a
// subset of the ids; missing nodes fall back to the grid.
type Layouter interface {
	Layout(nodeIDs []string, edges []LayoutEdge) (map[string]Point, error)
}

// AutogLayouter runs the autog layered pipeline and turns it sideways so
// ranks flow left to right.
type AutogLayouter struct{}

// Layout implements Layouter. autog panics on some degenerate inputs, so
// panics come back as errors.
func (AutogLayouter) Layout(nodeIDs []string, edges []LayoutEdge) (out map[string]Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("autog layout panicked: %v", r)
		}
	}()

	known := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		known[id] = struct{}{}
	}
	adj := make([][]string, 0, len(edges))
	seen := make(map[[2]string]struct{}, len(edges))
	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := known[e.Source]; !ok {
			continue
		}
		if _, ok := known[e.Target]; !ok {
			continue
		}
		pair := [2]string{e.Source, e.Target}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		adj = append(adj, []string{e.Source, e.Target})
	}
	if len(adj) == 0 {
		return map[string]Point{}, nil
	}

	layout := autog.Layout(graph.EdgeSlice(adj))
	out = make(map[string]Point, len(layout.Nodes))
	for _, n := range layout.Nodes {
		out[n.ID] = Point{X: n.Y, Y: n.X}
	}
	return out, nil
}

// GridPosition is the deterministic fallback slot of the i-th visible node.
func GridPosition(i int) Point {
	return Point{
		X: float64(i%constants.GridColumns) * constants.GridSpacingX,
		Y: float64(i/constants.GridColumns) * constants.GridSpacingY,
	}
}

// CirclePositions spreads n nodes evenly on a circle around the origin.
func CirclePositions(n int) []Point {
	out := make([]Point, n)
	if n == 0 {
		return out
	}
	radius := math.Max(constants.GridSpacingX, float64(n)*36)
	for i := range out {
		angle := 2 * math.Pi * float64(i) / float64(n)
		out[i] = Point{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
	}
	return out
}

// ReasonablePosition returns the saved position when both coordinates are
// present and inside the trusted bound.
func ReasonablePosition(x, y *float64) (Point, bool) {
	if x == nil || y == nil {
		return Point{}, false
	}
	bound := constants.ReasonablePositionBound
	for _, v := range []float64{*x, *y} {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > bound {
			return Point{}, false
		}
	}
	return Point{X: *x, Y: *y}, true
}

// computeLayout calls the layouter and swallows every failure; callers fall
// back to the grid.
func computeLayout(l Layouter, nodeIDs []string, edges []LayoutEdge) (positions map[string]Point) {
	if l == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Warn("Layout panicked, using grid", zap.Any("panic", r))
			positions = nil
		}
	}()
	positions, err := l.Layout(nodeIDs, edges)
	if err != nil {
		logger.Get().Debug("Layout failed, using grid", zap.Error(err))
		return nil
	}
	return positions
}
