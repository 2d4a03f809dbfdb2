package viewer

// Color is an RGBA colour with components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// White is the colour of points that belong to no body.
var White = Color{1, 1, 1, 1}

// WithAlpha returns c with its alpha replaced.
func (c Color) WithAlpha(a float32) Color {
	c.A = a
	return c
}

// RGBA8 returns the colour as 8-bit components.
func (c Color) RGBA8() [4]uint8 {
	return [4]uint8{to8(c.R), to8(c.G), to8(c.B), to8(c.A)}
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// BodyColors is the palette used to tell bodies apart.
var BodyColors = []Color{
	{0.894, 0.102, 0.110, 1},
	{0.216, 0.494, 0.722, 1},
	{0.302, 0.686, 0.290, 1},
	{0.596, 0.306, 0.639, 1},
	{1.000, 0.498, 0.000, 1},
	{1.000, 1.000, 0.200, 1},
	{0.651, 0.337, 0.157, 1},
	{0.969, 0.506, 0.749, 1},
}

// BodyColor returns the palette colour for a body ID.
func BodyColor(id uint32) Color {
	return BodyColors[id%uint32(len(BodyColors))]
}
