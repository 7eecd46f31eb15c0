package naturalsort

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSort_NumericRuns(t *testing.T) {
	files := []string{"img2.png", "img10.png", "img1.png"}
	Sort(files)
	assert.Equal(t, []string{"img1.png", "img2.png", "img10.png"}, files)
}

func TestSort_MixedShapes(t *testing.T) {
	// "10" is a digit run where "abc" is text; ordering must stay total.
	files := []string{"abc.png", "10.png", "2.png", "zz1.png"}
	Sort(files)
	assert.Equal(t, []string{"2.png", "10.png", "abc.png", "zz1.png"}, files)
}

func TestSort_CaseInsensitiveText(t *testing.T) {
	files := []string{"Beta2.wav", "alpha10.wav", "ALPHA2.wav"}
	Sort(files)
	assert.Equal(t, []string{"ALPHA2.wav", "alpha10.wav", "Beta2.wav"}, files)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "a1.png", "a1.png", 0},
		{"numeric before lexical", "a2", "a10", -1},
		{"plain lexical", "a", "b", -1},
		{"prefix orders first", "a1", "a1b", -1},
		{"zero padding ties break on raw", "a01", "a1", -1},
		{"multiple runs", "s1e2", "s1e10", -1},
		{"digit run before text run", "5x", "ax", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestLess_Transitive(t *testing.T) {
	// Spot-check transitivity across mixed token shapes.
	ss := []string{"1a", "a1", "10", "2", "a", "1"}
	Sort(ss)
	for i := 0; i+1 < len(ss); i++ {
		assert.False(t, Less(ss[i+1], ss[i]), "order violated between %q and %q", ss[i], ss[i+1])
	}
}

func TestSort_Stable(t *testing.T) {
	// "A1" and "a1" share a natural key prefix; raw compare keeps them apart
	// deterministically.
	files := []string{"a1", "A1"}
	Sort(files)
	assert.Equal(t, []string{"A1", "a1"}, files)
}
