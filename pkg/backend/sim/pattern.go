package sim

// Frame rendering for videotestsrc. Pixels are 8-bit RGBA in row-major
// order, alpha always 255.

type rgb struct{ r, g, b byte }

var (
	colBlack   = rgb{0x00, 0x00, 0x00}
	colWhite   = rgb{0xFF, 0xFF, 0xFF}
	colRed     = rgb{0xFF, 0x00, 0x00}
	colGreen   = rgb{0x00, 0xFF, 0x00}
	colBlue    = rgb{0x00, 0x00, 0xFF}
	colYellow  = rgb{0xFF, 0xFF, 0x00}
	colCyan    = rgb{0x00, 0xFF, 0xFF}
	colMagenta = rgb{0xFF, 0x00, 0xFF}
)

// smpteBars are the seven full-intensity bars, left to right.
var smpteBars = []rgb{colWhite, colYellow, colCyan, colGreen, colMagenta, colRed, colBlue}

// renderPattern draws one frame of the named pattern. seq drives animated
// patterns (snow) deterministically.
func renderPattern(pattern string, w, h int, seq int64) []byte {
	pix := make([]byte, 4*w*h)
	switch pattern {
	case "black":
		fill(pix, colBlack)
	case "white":
		fill(pix, colWhite)
	case "red":
		fill(pix, colRed)
	case "green":
		fill(pix, colGreen)
	case "blue":
		fill(pix, colBlue)
	case "checkers":
		renderCheckers(pix, w, h)
	case "snow":
		renderSnow(pix, seq)
	default: // smpte
		renderBars(pix, w, h)
	}
	return pix
}

func fill(pix []byte, c rgb) {
	for i := 0; i < len(pix); i += 4 {
		pix[i] = c.r
		pix[i+1] = c.g
		pix[i+2] = c.b
		pix[i+3] = 0xFF
	}
}

func renderBars(pix []byte, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := smpteBars[x*len(smpteBars)/w]
			o := 4 * (y*w + x)
			pix[o] = c.r
			pix[o+1] = c.g
			pix[o+2] = c.b
			pix[o+3] = 0xFF
		}
	}
}

func renderCheckers(pix []byte, w, h int) {
	const cell = 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := colBlack
			if (x/cell+y/cell)%2 == 1 {
				c = colWhite
			}
			o := 4 * (y*w + x)
			pix[o] = c.r
			pix[o+1] = c.g
			pix[o+2] = c.b
			pix[o+3] = 0xFF
		}
	}
}

// renderSnow fills the frame with pseudo-random noise seeded by seq, so a
// given frame number always renders identically.
func renderSnow(pix []byte, seq int64) {
	state := uint64(seq)*6364136223846793005 + 1442695040888963407
	for i := 0; i < len(pix); i += 4 {
		state = state*6364136223846793005 + 1442695040888963407
		v := byte(state >> 33)
		pix[i] = v
		pix[i+1] = v
		pix[i+2] = v
		pix[i+3] = 0xFF
	}
}
