package ppu

// ComposeSpriteLine resolves the 10 OAM-scanned sprites for scanline ly
// into a row of color ids, honoring X-ordered/OAM-index priority and
// the bg_priority attribute against the already-rendered BG color-id
// row bgci. A returned 0 means "no sprite pixel here" (transparent or
// hidden behind a non-zero BG pixel under bg_priority), grounded on
// sprite_compose_test.go.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	var out [160]byte
	var claimed [160]bool
	for _, s := range sprites {
		row := spriteTileRow(mem, s, ly, tall)
		for px := 0; px < 8; px++ {
			col := s.X + px
			if col < 0 || col >= 160 || claimed[col] {
				continue
			}
			p := row[px]
			if p.ColorID == 0 {
				continue
			}
			if p.BGPriority && bgci[col] != 0 {
				claimed[col] = true // a higher-priority sprite already decided this column is hidden
				continue
			}
			out[col] = p.ColorID
			claimed[col] = true
		}
	}
	return out
}
