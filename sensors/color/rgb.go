package color

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Tolerance bounds for color matching, in normalized RGB units
const (
	MinTolerance     = 10
	MaxTolerance     = 200
	DefaultTolerance = 120
)

// ErrInvalidTarget is returned by ParseTarget for malformed input
var ErrInvalidTarget = errors.New("color: invalid target, want #RRGGBB")

// RGB is one raw sample of the 16-bit color channel registers
type RGB struct {
	R, G, B uint16
}

// Color is an 8-bit RGB triple
type Color struct {
	R, G, B uint8
}

// Normalize scales the sample so its brightest color channel maps to 255.
// An all-black sample stays black.
func (s RGB) Normalize() Color {
	peak := uint32(s.R)
	if uint32(s.G) > peak {
		peak = uint32(s.G)
	}
	if uint32(s.B) > peak {
		peak = uint32(s.B)
	}
	if peak == 0 {
		peak = 1
	}
	return Color{
		R: uint8(uint32(s.R) * 255 / peak),
		G: uint8(uint32(s.G) * 255 / peak),
		B: uint8(uint32(s.B) * 255 / peak),
	}
}

// distanceSquared is the squared Euclidean distance between two colors
func (c Color) distanceSquared(o Color) int {
	dr := int(c.R) - int(o.R)
	dg := int(c.G) - int(o.G)
	db := int(c.B) - int(o.B)
	return dr*dr + dg*dg + db*db
}

// Distance is the Euclidean distance between c and o in RGB space
func (c Color) Distance(o Color) float64 {
	return math.Sqrt(float64(c.distanceSquared(o)))
}

// Hex formats c as #RRGGBB
func (c Color) Hex() string {
	return Target(uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)).String()
}

// Target is a packed 24-bit 0xRRGGBB color
type Target uint32

// Color unpacks the target's channels
func (t Target) Color() Color {
	return Color{
		R: uint8(t >> 16 & 0xFF),
		G: uint8(t >> 8 & 0xFF),
		B: uint8(t & 0xFF),
	}
}

func (t Target) String() string {
	s := strconv.FormatUint(uint64(t&0xFFFFFF), 16)
	return "#" + strings.Repeat("0", 6-len(s)) + strings.ToUpper(s)
}

// ParseTarget accepts #RRGGBB, 0xRRGGBB or bare RRGGBB
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		s = s[1:]
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s = s[2:]
	}
	if len(s) != 6 {
		return 0, ErrInvalidTarget
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, ErrInvalidTarget
	}
	return Target(v), nil
}

// ClampTolerance limits tolerance to [MinTolerance, MaxTolerance]
func ClampTolerance(tolerance int) int {
	if tolerance < MinTolerance {
		return MinTolerance
	}
	if tolerance > MaxTolerance {
		return MaxTolerance
	}
	return tolerance
}

// Match reports whether sample lies strictly within the clamped tolerance
// of target.
func Match(sample Color, target Target, tolerance int) bool {
	tol := ClampTolerance(tolerance)
	return sample.distanceSquared(target.Color()) < tol*tol
}
