package placement

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceHash recomputes the placement hash with 64-bit arithmetic so the
// 32-bit wraparound in Hash is checked against an independent formulation.
func referenceHash(units []uint16) uint32 {
	var h int64
	for _, c := range units {
		h = (h*131 + int64(c)) % (1 << 31)
	}
	return uint32(h)
}

func TestNewInterval(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		end      int
		wantErr  bool
		distance int
	}{
		{name: "width 99 cannot fill 100 buckets", start: 0, end: 99, wantErr: true},
		{name: "width 100 gives distance 1", start: 0, end: 100, distance: 1},
		{name: "0..32700", start: 0, end: 32700, distance: 327},
		{name: "full space", start: 0, end: 32767, distance: 327},
		{name: "reversed bounds", start: 500, end: 100, wantErr: true},
		{name: "end past silo space", start: 0, end: 40000, wantErr: true},
		{name: "negative start", start: -1, end: 32000, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := NewInterval(tt.start, tt.end, 0)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInterval))
				var ie *IntervalError
				require.True(t, errors.As(err, &ie))
				assert.Equal(t, tt.start, ie.Start)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.distance, iv.Distance())
			assert.Equal(t, tt.start, iv.Start())
			assert.Equal(t, tt.end, iv.End())
		})
	}
}

func TestHashKnownValues(t *testing.T) {
	assert.Equal(t, uint32(0), Hash(""))
	assert.Equal(t, uint32(97), Hash("a"))
	assert.Equal(t, uint32(12805), Hash("ab"))
	assert.Equal(t, uint32(233), Hash("é"))
	// Characters outside the BMP hash as their two UTF-16 surrogates.
	assert.Equal(t, uint32(7308599), Hash("😀"))
}

func TestHashMatchesReference(t *testing.T) {
	ids := []string{
		"0100017f0000010a",
		strings.Repeat("objectid", 64),
		"key with spaces",
		"ключ",
		"多セル",
	}
	for _, id := range ids {
		units := make([]uint16, 0, len(id))
		for _, r := range id {
			if r >= 0x10000 {
				r -= 0x10000
				units = append(units, uint16(0xd800+(r>>10)), uint16(0xdc00+(r&0x3ff)))
				continue
			}
			units = append(units, uint16(r))
		}
		assert.Equal(t, referenceHash(units), Hash(id), "id %q", id)
		assert.LessOrEqual(t, Hash(id), uint32(0x7fffffff))
	}
}

func TestNextSiloLocation(t *testing.T) {
	iv := MustInterval(0, 32700, 0)

	assert.Equal(t, 32700, iv.NextSiloLocation(""))
	assert.Equal(t, 981, iv.NextSiloLocation("a"))
	assert.Equal(t, 31065, iv.NextSiloLocation("ab"))

	t.Run("deterministic", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			id := strings.Repeat("x", i%17) + string(rune('a'+i%26))
			first := iv.NextSiloLocation(id)
			assert.Equal(t, first, iv.NextSiloLocation(id))
		}
	})

	t.Run("always a bucket boundary inside the interval", func(t *testing.T) {
		iv := MustInterval(1000, 21000, 0)
		for i := 0; i < 500; i++ {
			silo := iv.NextSiloLocation(strings.Repeat("k", i))
			assert.True(t, iv.Contains(silo), "silo %d", silo)
			assert.Equal(t, 0, (iv.End()-silo)%iv.Distance())
		}
	})
}

func TestIntervalContainsBoundaries(t *testing.T) {
	iv := MustInterval(0, 32767, 0)

	assert.False(t, iv.Contains(0), "low bound is exclusive")
	assert.True(t, iv.Contains(1))
	assert.True(t, iv.Contains(32767), "high bound is inclusive")
	assert.False(t, iv.Contains(32768))
}

func TestMustIntervalPanics(t *testing.T) {
	assert.Panics(t, func() { MustInterval(0, 99, 0) })
}
