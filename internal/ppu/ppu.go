// Package ppu implements the DMG picture processing unit: OAM scan,
// the BG/window/sprite pixel pipeline, and STAT/LY timing (spec §4.3).
// Grounded on the teacher's ppu.go mode-timing skeleton, generalized
// with a real per-scanline pixel pipeline built from the teacher's own
// orphaned test files (fetcher_test.go, scanline_test.go,
// sprite_compose_test.go, ppu_window_test.go) which describe behavior
// the shipped teacher PPU never actually implemented.
package ppu

// InterruptRequester is a callback signature to request IF bits
// (0:VBlank, 1:STAT, etc. — the irq package's bit index, not a mask).
type InterruptRequester func(bit int)

// LineRegs captures the window-armed counter for one scanline, exposed
// for tests.
type LineRegs struct {
	WinLine byte
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, and the pixel pipeline.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot       int // dots within current line [0..455]
	mode3Dots int // dots actually consumed by DRAW on the line just finished
	winLine   byte
	lineRegs  [144]LineRegs

	frame      [144][160]Pixel
	frameReady bool

	// Per-dot DRAW pipeline state (spec §4.3): two FIFOs fed by a shared
	// fetch bus, stepped one dot at a time from Tick instead of being
	// batch-rendered the instant mode 3 begins.
	bgFIFO, sprFIFO fifo
	fetchPhase      int  // 0..7: position within the current 8-dot tile fetch
	fetchTileCol    uint16
	fetchingWindow  bool
	curTileNum      byte
	curLo, curHi    byte
	pxOut           int // pixels already shifted out this line [0..160]
	scxDiscard      int // SCX%8 fine-scroll pixels still to drop from bgFIFO
	startLatency    int // dots before the first shift (fetch pipeline fill)
	sprites         []Sprite
	stallDots       int
	stallSprite     *Sprite
	windowArmed     bool // LCDC.5 && LY>=WY, latched at the start of the line
	windowTriggered bool // window fetch already swapped in this line
	mode3Done       bool

	// OnVBlank, if set, is called once per frame at the moment mode 1
	// begins, with a pointer to the just-finished frame. The pointer is
	// only valid until the next call.
	OnVBlank func(frame *[144][160]Pixel)

	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// Mode returns the current STAT mode bits (0-3). The bus (the memory
// router, spec §4.1) is the one that owns the VRAM/OAM CPU-lockout
// decision now; it consults this rather than duplicating mode state.
func (p *PPU) Mode() byte { return p.stat & 0x03 }

// VRAMByte/SetVRAMByte and OAMByte/SetOAMByte are raw, unlocked
// accessors: the bus applies the source-tagged lockout policy (spec
// §4.1) before ever reaching these, and the PPU's own fetch pipeline
// (a PPU-origin access, which spec §4.1 says always bypasses lockout)
// goes through them too.
func (p *PPU) VRAMByte(addr uint16) byte     { return p.vram[addr-0x8000] }
func (p *PPU) SetVRAMByte(addr uint16, v byte) { p.vram[addr-0x8000] = v }
func (p *PPU) OAMByte(addr uint16) byte       { return p.oam[addr-0xFE00] }
func (p *PPU) SetOAMByte(addr uint16, v byte) { p.oam[addr-0xFE00] = v }

// CPURead returns bytes for PPU IO registers. VRAM/OAM no longer pass
// through here: the bus decodes those address ranges itself and calls
// VRAMByte/OAMByte directly after applying the lockout for the access's
// source (spec §4.1).
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to PPU IO registers only; see CPURead.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.winLine = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances PPU state by the given number of dots (T-cycles). Mode 3's
// length is never precomputed: each dot of DRAW runs one step of the
// fetcher/FIFO pipeline (pixelpipeline.go) and mode 0 begins only once that
// pipeline reports all 160 pixels shifted out, so sprite and window fetch
// stalls are what actually extend the line, not a formula applied up front.
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 {
			continue
		}
		p.dot++

		var mode byte
		switch {
		case p.ly >= 144:
			mode = 1
		case p.dot < 80:
			mode = 2
		case p.mode3Done:
			mode = 0
		default:
			mode = 3
		}
		prevMode := p.stat & 0x03
		if mode == 3 && prevMode != 3 {
			p.beginScanline()
		}
		if mode == 3 {
			p.stepPixelDot()
			if p.pxOut >= 160 {
				p.mode3Done = true
				p.mode3Dots = p.dot - 80 + 1
			}
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.mode3Done = false
			p.ly++
			if p.ly == 144 {
				if p.req != nil {
					p.req(0)
				}
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				}
				if p.OnVBlank != nil {
					p.OnVBlank(&p.frame)
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.winLine = 0
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

// resolve keeps ColorID as the raw (pre-palette) index; the frame sink
// applies BGP/OBP0/OBP1 only at hand-off (spec §9's framebuffer design),
// so this is intentionally an identity step that exists to document
// where that seam is.
func (p *PPU) resolve(px Pixel) byte { return px.ColorID }

// Read implements VRAMReader for the PPU's own fetch pipeline.
func (p *PPU) Read(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0:
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2:
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// LineRegs returns the window-counter snapshot captured when line ly
// was rendered (0 if the line has not been rendered yet this frame).
func (p *PPU) LineRegs(ly int) LineRegs {
	if ly < 0 || ly >= 144 {
		return LineRegs{}
	}
	return p.lineRegs[ly]
}

// Frame returns the most recently completed 160x144 color-id + palette
// row buffer (also delivered via OnVBlank).
func (p *PPU) Frame() *[144][160]Pixel { return &p.frame }

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
