package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a kernel's display color as a CSS hex string ("#DCDCDA" or
// "#fd0"). The empty Color means no decoration.
type Color string

// RGB is a decoded color.
type RGB struct {
	R, G, B uint8
}

// RGB decodes the color. The empty Color decodes to black.
func (c Color) RGB() (RGB, error) {
	if c == "" {
		return RGB{}, nil
	}
	hex, ok := strings.CutPrefix(string(c), "#")
	if !ok {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, c)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, c)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, c)
	}
	return RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}

// Hex returns the canonical "#RRGGBB" form.
func (rgb RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", rgb.R, rgb.G, rgb.B)
}
