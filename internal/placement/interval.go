package placement

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// Silo locations live in a fixed space that every cell agrees on.
const (
	SpaceMin = 0
	SpaceMax = 32767

	// Buckets is the number of sub-buckets an interval is divided into.
	Buckets = 100

	// HashSeed is the multiplier of the identifier hash.
	HashSeed = 131

	hashMask = 0x7fffffff
)

// ErrInvalidInterval is returned when an interval cannot be divided into
// Buckets sub-buckets of at least one silo location each.
var ErrInvalidInterval = errors.New("invalid interval")

// IntervalError describes why an interval was rejected.
type IntervalError struct {
	Start  int
	End    int
	Reason string
}

func (e *IntervalError) Error() string {
	return fmt.Sprintf("interval [%d, %d]: %s", e.Start, e.End, e.Reason)
}

func (e *IntervalError) Unwrap() error { return ErrInvalidInterval }

// Interval is a contiguous range of silo locations owned through a Rule.
// The zero value is not usable; construct intervals with NewInterval.
type Interval struct {
	start    int
	end      int
	capacity int
	distance int
}

// NewInterval validates and returns an interval over (start, end].
//
// The width end-start must allow Buckets sub-buckets of at least one silo
// location each, so Interval(0, 99, 0) is rejected while
// Interval(0, 32700, 0) yields a distance of 327.
func NewInterval(start, end, initialCapacity int) (Interval, error) {
	if start < SpaceMin || end > SpaceMax {
		return Interval{}, &IntervalError{
			Start:  start,
			End:    end,
			Reason: fmt.Sprintf("outside silo space [%d, %d]", SpaceMin, SpaceMax),
		}
	}
	distance := (end - start) / Buckets
	if distance <= 0 {
		return Interval{}, &IntervalError{
			Start:  start,
			End:    end,
			Reason: fmt.Sprintf("width %d not divisible into %d buckets", end-start, Buckets),
		}
	}
	return Interval{
		start:    start,
		end:      end,
		capacity: initialCapacity,
		distance: distance,
	}, nil
}

// MustInterval is NewInterval for literals known to be valid.
func MustInterval(start, end, initialCapacity int) Interval {
	iv, err := NewInterval(start, end, initialCapacity)
	if err != nil {
		panic(err)
	}
	return iv
}

func (iv Interval) Start() int           { return iv.start }
func (iv Interval) End() int             { return iv.end }
func (iv Interval) InitialCapacity() int { return iv.capacity }
func (iv Interval) Distance() int        { return iv.distance }

// Contains reports whether silo falls in the interval. The low bound is
// exclusive and the high bound inclusive; already placed data depends on it.
func (iv Interval) Contains(silo int) bool {
	return iv.start < silo && silo <= iv.end
}

// NextSiloLocation maps an object identifier onto one of the interval's
// bucket boundaries, counting down from End.
func (iv Interval) NextSiloLocation(id string) int {
	index := int(Hash(id) % Buckets)
	return iv.end - index*iv.distance
}

// Hash is the 31-bit multiplicative hash used for object placement:
// h = h*131 + c over the UTF-16 code units of id, masked to 31 bits.
//
// Stored objects are expected at the locations this function yields.
// Any change to it relocates every existing object.
func Hash(id string) uint32 {
	var h uint32
	for _, c := range utf16.Encode([]rune(id)) {
		h = (h*HashSeed + uint32(c)) & hashMask
	}
	return h
}

// Equal reports whether two intervals describe the same range and capacity.
func (iv Interval) Equal(other Interval) bool {
	return iv == other
}
