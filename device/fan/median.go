package fan

// Median returns the middle value of samples, or 0 when there are none. For
// an even count it returns the lower of the two middle values. samples is not
// modified.
func Median(samples []RPM) RPM {
	n := len(samples)
	if n == 0 {
		return 0
	}

	scratch := make([]RPM, n)
	copy(scratch, samples)

	// insertion sort, the history is a handful of samples
	for i := 1; i < n; i++ {
		v := scratch[i]
		j := i - 1
		for j >= 0 && scratch[j] > v {
			scratch[j+1] = scratch[j]
			j--
		}
		scratch[j+1] = v
	}

	return scratch[(n-1)/2]
}
