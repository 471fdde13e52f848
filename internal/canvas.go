package internal

// Canvas is the normalised drawing surface. Clients scale their strokes into
// these bounds before scoring.
const (
	CanvasWidth  = 1000
	CanvasHeight = 1000
)

// NormalizeStrokes clamps every point into the canvas and drops empty strokes.
// It fails when the total point count exceeds MaxStrokePoints.
func NormalizeStrokes(strokes []Stroke) ([]Stroke, error) {
	total := 0
	for _, s := range strokes {
		total += len(s.Points)
	}
	if total > MaxStrokePoints {
		return nil, ErrTooManyPoints
	}

	out := make([]Stroke, 0, len(strokes))
	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		points := make([]Point, len(s.Points))
		for i, p := range s.Points {
			points[i] = Point{X: clamp(p.X, CanvasWidth), Y: clamp(p.Y, CanvasHeight)}
		}
		out = append(out, Stroke{Points: points, Color: s.Color, Width: s.Width})
	}
	return out, nil
}

func clamp(v float64, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
