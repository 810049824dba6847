package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSide(t *testing.T) {
	testCases := []struct {
		in     string
		want   Side
		wantOK bool
	}{
		{in: "buy", want: SideBuy, wantOK: true},
		{in: " SELL ", want: SideSell, wantOK: true},
		{in: "short", wantOK: false},
		{in: "", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseSide(tc.in)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}
