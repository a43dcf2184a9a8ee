package embedding

// Project truncates or zero-pads values to dim. A non-positive dim returns
// a copy of the input.
func Project(values []float64, dim int) []float64 {
	if dim <= 0 {
		dim = len(values)
	}
	out := make([]float64, dim)
	copy(out, values)
	return out
}
