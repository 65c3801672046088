package geo

// Simplify runs Douglas-Peucker over points. The projection onto each segment
// is planar in raw degrees; the deviation is measured with haversine, in meters.
// Inputs of two points or fewer are returned as-is.
func Simplify(points []Coord, toleranceM float64) []Coord {
	if len(points) <= 2 {
		return append([]Coord(nil), points...)
	}

	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true

	type span struct{ first, last int }
	stack := []span{{0, len(points) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.last <= s.first+1 {
			continue
		}

		maxDist, index := 0.0, 0
		for i := s.first + 1; i < s.last; i++ {
			d := segmentDeviation(points[i], points[s.first], points[s.last])
			if d > maxDist {
				maxDist, index = d, i
			}
		}
		if maxDist > toleranceM {
			keep[index] = true
			stack = append(stack, span{index, s.last}, span{s.first, index})
		}
	}

	out := make([]Coord, 0, len(points))
	for i, p := range points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func segmentDeviation(p, a, b Coord) float64 {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	if dx == 0 && dy == 0 {
		return Distance(p, a)
	}

	u := ((p.Lng-a.Lng)*dx + (p.Lat-a.Lat)*dy) / (dx*dx + dy*dy)
	if u < 0 {
		u = 0
	} else if u > 1 {
		u = 1
	}

	closest := Coord{Lat: a.Lat + u*dy, Lng: a.Lng + u*dx}
	return Distance(p, closest)
}
