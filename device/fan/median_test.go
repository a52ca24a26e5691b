package fan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name    string
		samples []RPM
		want    RPM
	}{
		{"none", nil, 0},
		{"one", []RPM{1200}, 1200},
		{"ascending", []RPM{10, 20, 30, 40, 50}, 30},
		{"single spike", []RPM{0, 0, 0, 100, 0}, 0},
		{"single dropout", []RPM{1800, 1790, 0, 1810, 1800}, 1800},
		{"unsorted", []RPM{50, 10, 40, 20, 30}, 30},
		{"even picks lower", []RPM{40, 10, 30, 20}, 20},
		{"two", []RPM{900, 100}, 100},
		{"duplicates", []RPM{7, 7, 3, 7, 3}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Median(tt.samples))
		})
	}
}

func TestMedianLeavesInputAlone(t *testing.T) {
	in := []RPM{50, 10, 40, 20, 30}
	Median(in)

	assert.Equal(t, []RPM{50, 10, 40, 20, 30}, in)
}
