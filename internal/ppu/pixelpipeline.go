package ppu

// pixelpipeline.go is the per-dot DRAW engine spec §4.3 describes: a
// shared fetch bus feeding bgFIFO/sprFIFO, stepped one dot at a time from
// Tick instead of being resolved for an entire line the instant mode 3
// starts. beginScanline arms it at the mode2->mode3 boundary; stepPixelDot
// is called once per dot while mode 3 is live.

// beginScanline resets the fetch/FIFO state for p.ly, grounded on the
// OAM-scan and fetcher-reset steps of spec §4.3 step 1/2.
func (p *PPU) beginScanline() {
	p.bgFIFO.Clear()
	p.sprFIFO.Clear()
	p.fetchPhase = 0
	p.fetchTileCol = uint16(p.scx/8) & 31
	p.fetchingWindow = false
	p.pxOut = 0
	p.scxDiscard = int(p.scx & 7)
	// The shifter starts after startLatency dots, by which time the
	// fetcher has pushed its first tile (on the 8th dot). 12 dots of
	// latency plus 160 shifted pixels give the 172-dot minimum DRAW
	// length; scxDiscard, a window start and sprite fetches add to it.
	p.startLatency = 12
	p.stallDots = 0
	p.stallSprite = nil
	p.windowTriggered = false
	p.windowArmed = p.lcdc&0x20 != 0 && p.ly >= p.wy
	p.mode3Done = false

	p.sprites = nil
	if p.lcdc&0x02 != 0 {
		tall := p.lcdc&0x04 != 0
		for _, s := range scanOAM(p.oam, p.ly, tall) {
			if s.X < 0 || s.X >= 160 {
				continue // pxOut never equals X here, so such a sprite is not drawn (X < 0 includes sprites partly off the left edge)
			}
			p.sprites = append(p.sprites, s)
		}
	}
}

// stepPixelDot runs one dot of DRAW: a pending sprite/window stall is
// charged first, then a sprite or window trigger check (spec §4.3 step 2),
// then one dot of fetch progress and (once the pipeline has filled) one
// shifted-out pixel.
func (p *PPU) stepPixelDot() {
	if p.stallDots > 0 {
		p.stallDots--
		if p.stallDots == 0 && p.stallSprite != nil {
			p.mergeSpriteFetch(*p.stallSprite)
			p.stallSprite = nil
		}
		return
	}

	if s := p.triggeredSprite(); s != nil {
		p.sprites = p.sprites[1:]
		p.stallSprite = s
		p.stallDots = 5 // this dot plus 5 more: three 2-dot sprite-fetch steps, spec §4.3 step 2
		return
	}

	if p.windowShouldTrigger() {
		p.bgFIFO.Clear()
		p.fetchingWindow = true
		p.windowTriggered = true
		p.fetchPhase = 0
		p.fetchTileCol = 0
		p.stallSprite = nil
		p.stallDots = 5 // this dot plus 5 more: flush + BG-fetcher-to-WIN-path restart penalty
		return
	}

	p.advanceFetch()
	if p.startLatency > 0 {
		p.startLatency--
		return
	}
	p.shiftOut()
}

// triggeredSprite reports the next pending sprite if its OAM X coordinate
// matches the pixel about to be shifted, per spec §4.3's
// `fetch_x == sprite.X - 8` condition (Sprite.X is already X-8, see
// sprite.go).
func (p *PPU) triggeredSprite() *Sprite {
	if p.lcdc&0x02 == 0 || len(p.sprites) == 0 {
		return nil
	}
	if p.sprites[0].X == p.pxOut {
		s := p.sprites[0]
		return &s
	}
	return nil
}

func (p *PPU) windowShouldTrigger() bool {
	if p.windowTriggered || !p.windowArmed || p.lcdc&0x20 == 0 {
		return false
	}
	wxStart := int(p.wx) - 7
	return wxStart >= 0 && wxStart == p.pxOut
}

// advanceFetch runs one dot of the BG/window fetcher's 8-dot tile cycle
// (spec §4.3 step 2, four steps of 2 dots each collapsed to the 3 byte
// reads plus a push dot): tile index at phase 0, tile data low at phase 2,
// tile data high at phase 4, push the decoded row to bgFIFO at phase 7.
func (p *PPU) advanceFetch() {
	switch p.fetchPhase {
	case 0:
		p.curTileNum = p.fetchTileIndex()
	case 2:
		p.curLo = p.fetchTileByte(p.curTileNum, false)
	case 4:
		p.curHi = p.fetchTileByte(p.curTileNum, true)
	case 7:
		p.pushFetchedTile()
	}
	p.fetchPhase++
	if p.fetchPhase >= 8 {
		p.fetchPhase = 0
		p.fetchTileCol++
	}
}

func (p *PPU) fetchTileIndex() byte {
	var mapBase uint16
	var tileX, mapY uint16
	if p.fetchingWindow {
		if p.lcdc&0x40 != 0 {
			mapBase = 0x9C00
		} else {
			mapBase = 0x9800
		}
		tileX = p.fetchTileCol & 31
		mapY = (uint16(p.winLine) >> 3) & 31
	} else {
		if p.lcdc&0x08 != 0 {
			mapBase = 0x9C00
		} else {
			mapBase = 0x9800
		}
		tileX = p.fetchTileCol & 31
		mapY = ((uint16(p.ly) + uint16(p.scy)) >> 3) & 31
	}
	return p.VRAMByte(mapBase + mapY*32 + tileX)
}

func (p *PPU) fetchTileByte(tileNum byte, high bool) byte {
	var fineY uint16
	if p.fetchingWindow {
		fineY = uint16(p.winLine) & 7
	} else {
		fineY = (uint16(p.ly) + uint16(p.scy)) & 7
	}
	var base uint16
	if p.lcdc&0x10 != 0 {
		base = 0x8000 + uint16(tileNum)*16 + fineY*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + fineY*2
	}
	if high {
		base++
	}
	return p.VRAMByte(base)
}

func (p *PPU) pushFetchedTile() {
	var cis [8]byte
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		cis[px] = ((p.curHi>>bit)&1)<<1 | ((p.curLo >> bit) & 1)
	}
	p.bgFIFO.PushColorIDs(cis)
}

// mergeSpriteFetch decodes the sprite's tile row and merges it into the
// sprite FIFO via fifo.MergeSprite (spec §4.3 step 2's merge rule).
func (p *PPU) mergeSpriteFetch(s Sprite) {
	tall := p.lcdc&0x04 != 0
	row := spriteTileRow(p, s, p.ly, tall)
	p.sprFIFO.MergeSprite(row)
}

// shiftOut pops one pixel from each FIFO and writes the mixed result into
// the frame buffer, per spec §4.3 step 2's pixel shifter / priority rule:
// a sprite pixel wins unless it is transparent or itself BG-priority
// against a non-zero BG color.
func (p *PPU) shiftOut() {
	if p.bgFIFO.Len() == 0 {
		return
	}
	bgPx, _ := p.bgFIFO.Pop()
	sprPx, haveSpr := p.sprFIFO.Pop()

	if p.scxDiscard > 0 {
		p.scxDiscard--
		return
	}

	out := bgPx
	if p.lcdc&0x01 == 0 {
		out = Pixel{Palette: paletteBG}
	}
	if haveSpr && sprPx.ColorID != 0 && p.lcdc&0x02 != 0 {
		if !(sprPx.BGPriority && out.ColorID != 0) {
			out = sprPx
		}
	}
	out.ColorID = p.resolve(out)
	p.frame[p.ly][p.pxOut] = out
	p.pxOut++

	if p.pxOut >= 160 {
		p.lineRegs[p.ly] = LineRegs{WinLine: p.winLine}
		if p.windowTriggered {
			p.winLine++
		}
	}
}
