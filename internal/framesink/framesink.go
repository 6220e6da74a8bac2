// Package framesink adapts the PPU's indexed-palette frame into the RGBA8
// surface a host window consumes (spec §6 "Frame output"), using the
// index-swap triple buffer DESIGN NOTES §9 calls for instead of copying:
// the core writes a back buffer, the host reads a front buffer, and a
// third hand-off slot lets Present() publish a completed frame without
// the two ever aliasing. Grounded on the teacher's UI draw path
// (internal/ui/ebitenapp.go blits a resolved RGBA image every Draw call)
// and on spec §5's ordering guarantee: the host only ever sees the state
// at the most recent V-Blank entry, never a partial frame.
package framesink

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"

const (
	Width  = 160
	Height = 144
)

// Ramps holds a small set of four-shade tint ramps a host can pick
// between per cartridge (no CGB boot palette exists on DMG hardware, but
// a tinted monochrome ramp is a common, hardware-faithful substitute).
// Index 0 is the plain grayscale ramp; the rest are named tints a caller
// can select with SetPalette.
var Ramps = [][4][4]byte{
	{ // Grayscale
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0xAA, 0xAA, 0xAA, 0xFF},
		{0x55, 0x55, 0x55, 0xFF},
		{0x00, 0x00, 0x00, 0xFF},
	},
	{ // Green (classic DMG LCD tint)
		{0xE0, 0xF8, 0xD0, 0xFF},
		{0x88, 0xC0, 0x70, 0xFF},
		{0x34, 0x68, 0x56, 0xFF},
		{0x08, 0x18, 0x20, 0xFF},
	},
	{ // Sepia
		{0xF4, 0xE4, 0xC1, 0xFF},
		{0xC8, 0xA0, 0x6E, 0xFF},
		{0x7A, 0x56, 0x38, 0xFF},
		{0x2B, 0x1B, 0x10, 0xFF},
	},
	{ // Blue
		{0xE8, 0xF0, 0xFF, 0xFF},
		{0x90, 0xB0, 0xE0, 0xFF},
		{0x40, 0x60, 0xA0, 0xFF},
		{0x10, 0x18, 0x30, 0xFF},
	},
	{ // Red
		{0xFC, 0xE4, 0xE0, 0xFF},
		{0xE0, 0x90, 0x80, 0xFF},
		{0xA0, 0x40, 0x38, 0xFF},
		{0x30, 0x10, 0x10, 0xFF},
	},
	{ // Pastel
		{0xFC, 0xF0, 0xF8, 0xFF},
		{0xE0, 0xC8, 0xE0, 0xFF},
		{0xB0, 0x90, 0xC0, 0xFF},
		{0x50, 0x40, 0x60, 0xFF},
	},
}

// Sink triple-buffers the RGBA8 frame: one slot is always being written
// by the core (write), one is the most recently completed, unclaimed
// frame (handoff), and one is what the host last read (front).
type Sink struct {
	buf     [3][Width * Height * 4]byte
	write   int
	handoff int
	front   int
	shade   [4][4]byte
}

func New() *Sink {
	return &Sink{write: 0, handoff: 1, front: 2, shade: Ramps[0]}
}

// SetPalette selects one of the Ramps tint sets by index, clamping out
// of range ids to the plain grayscale ramp.
func (s *Sink) SetPalette(id int) {
	if id < 0 || id >= len(Ramps) {
		id = 0
	}
	s.shade = Ramps[id]
}

// WriteFrame resolves every pixel of frame through the BGP/OBP0/OBP1
// register value selected by its Palette field (spec §8's BGP round-trip:
// BGP=0xE4 maps color ids {0,1,2,3} to {White,LightGray,DarkGray,Black})
// into the back buffer. It does not publish the frame; call Present for
// that.
func (s *Sink) WriteFrame(frame *[Height][Width]ppu.Pixel, bgp, obp0, obp1 byte) {
	back := &s.buf[s.write]
	for y := 0; y < Height; y++ {
		row := &frame[y]
		for x := 0; x < Width; x++ {
			px := row[x]
			var paletteByte byte
			switch px.Palette {
			case 1:
				paletteByte = obp0
			case 2:
				paletteByte = obp1
			default:
				paletteByte = bgp
			}
			shadeIdx := (paletteByte >> (px.ColorID * 2)) & 0x03
			rgba := s.shade[shadeIdx]
			i := (y*Width + x) * 4
			copy(back[i:i+4], rgba[:])
		}
	}
}

// Present publishes the just-written back buffer as the new hand-off
// slot. Spec §5: this must be called exactly once per frame, at mode 1
// (V-Blank) entry, so the frame the host next reads is always exactly
// the state at the most recent V-Blank.
func (s *Sink) Present() {
	s.write, s.handoff = s.handoff, s.write
}

// FrontBuffer returns the RGBA8 bytes of the most recently presented
// frame, claiming a pending hand-off slot if one exists. Safe to call
// every host frame even if no new emulator frame has completed yet.
func (s *Sink) FrontBuffer() []byte {
	if s.handoff != s.front {
		s.front, s.handoff = s.handoff, s.front
	}
	return s.buf[s.front][:]
}
