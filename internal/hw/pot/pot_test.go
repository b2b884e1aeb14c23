package pot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- Decode ----------

func TestDecode_Valid(t *testing.T) {
	cases := []struct {
		line string
		raw  int
		norm float64
	}{
		{"POT:0", 0, 0},
		{"POT:1023", 1023, 1},
		{"POT:512", 512, 512.0 / 1023.0},
		{"POT:2000", 2000, 2000.0 / 1023.0}, // not clamped
		{"POT:-3", -3, -3.0 / 1023.0},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			r, ok := Decode(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.raw, r.Raw)
			assert.InDelta(t, tc.norm, r.Normalized, 1e-12)
		})
	}
}

func TestDecode_Rejected(t *testing.T) {
	cases := []string{
		"",
		"POT:",
		"POT:abc",
		"POT:12a",
		"POT:1.5",
		"pot:5",
		"Pot:5",
		" POT:5",
		"POT: 5",
		"POT:5 ",
		"TEMP:22",
		"POT",
	}
	for _, line := range cases {
		t.Run(line, func(t *testing.T) {
			_, ok := Decode(line)
			assert.False(t, ok, "line %q should not decode", line)
		})
	}
}

// ---------- Cell ----------

func TestCell_EmptyUntilStored(t *testing.T) {
	var c Cell
	_, ok := c.Load()
	assert.False(t, ok)

	c.Store(Reading{Raw: 7, Normalized: 7 / FullScale})
	r, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, 7, r.Raw)
}

func TestCell_StaleValuePersists(t *testing.T) {
	var c Cell
	c.Store(Reading{Raw: 100})
	// a failed decode does not touch the cell
	if r, ok := Decode("garbage"); ok {
		c.Store(r)
	}
	r, _ := c.Load()
	assert.Equal(t, 100, r.Raw)
}

func TestCell_ConcurrentReaders(t *testing.T) {
	var c Cell
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if r, ok := c.Load(); ok {
					assert.GreaterOrEqual(t, r.Raw, 0)
				}
			}
		}()
	}
	for i := 0; i < 1000; i++ {
		c.Store(Reading{Raw: i, Normalized: float64(i) / FullScale})
	}
	wg.Wait()
}
