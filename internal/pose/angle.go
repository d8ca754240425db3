package pose

import "math"

// Angle returns the angle at vertex b formed by the segments b→a and b→c,
// in degrees [0, 180]. Degenerate inputs (coincident points) return 0.
func Angle(a, b, c Keypoint) float64 {
	v1x, v1y := a.X-b.X, a.Y-b.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y

	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}

	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// JointAngle returns the angle at joint b formed by joints a-b-c on a frame.
// The second return is false if any of the three joints is missing.
func (f *Frame) JointAngle(a, b, c Joint) (float64, bool) {
	ka, oka := f.Joints[a]
	kb, okb := f.Joints[b]
	kc, okc := f.Joints[c]
	if !oka || !okb || !okc {
		return 0, false
	}
	return Angle(ka, kb, kc), true
}
