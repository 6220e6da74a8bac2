// Package timer implements the DMG's DIV/TIMA/TMA/TAC timer block
// (spec §4.4), extracted from the teacher's bus-embedded timer fields
// into its own unit so the bus composes it instead of owning its state
// directly.
package timer

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/regs"

// Timer advances an internal 16-bit divider every T-cycle; DIV exposes
// its upper 8 bits. TIMA increments on the falling edge of the divider
// bit TAC selects, gated by TAC's enable bit, and reloads from TMA four
// cycles after an overflow.
type Timer struct {
	divInternal uint16
	tima        byte
	tma         byte
	tac         byte

	reloadDelay int // cycles remaining until TIMA reload from TMA; 0 = none pending

	// RequestInterrupt, if set, is called with regs.IntTimer when TIMA
	// reloads after overflow.
	RequestInterrupt func(bit byte)
}

func New() *Timer { return &Timer{} }

func (t *Timer) DIV() byte  { return byte(t.divInternal >> 8) }
func (t *Timer) TIMA() byte { return t.tima }
func (t *Timer) TMA() byte  { return t.tma }
func (t *Timer) TAC() byte  { return 0xF8 | (t.tac & 0x07) }

// WriteDIV resets the whole internal divider. Per real hardware, this
// can itself cause a falling edge on the selected timer bit and thus an
// immediate TIMA increment.
func (t *Timer) WriteDIV() {
	old := t.input()
	t.divInternal = 0
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// WriteTIMA sets TIMA directly; if a reload from TMA is pending this
// cancels it, per spec §4.4.
func (t *Timer) WriteTIMA(v byte) {
	t.tima = v
	t.reloadDelay = 0
}

func (t *Timer) WriteTMA(v byte) { t.tma = v }

// WriteTAC changes TAC; like DIV resets, this can cause a falling edge
// on the (possibly newly selected) timer bit.
func (t *Timer) WriteTAC(v byte) {
	old := t.input()
	t.tac = v & 0x07
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// Tick advances the timer by the given number of T-cycles.
func (t *Timer) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		t.tickOne()
	}
}

func (t *Timer) tickOne() {
	old := t.input()
	t.divInternal++
	falling := old && !t.input()

	if t.reloadDelay > 0 {
		t.reloadDelay--
		if t.reloadDelay == 0 {
			t.tima = t.tma
			if t.RequestInterrupt != nil {
				t.RequestInterrupt(regs.IntTimer)
			}
		}
	}

	if falling {
		t.incrementTIMA()
	}
}

func (t *Timer) input() bool {
	if t.tac&regs.TACEnable == 0 {
		return false
	}
	bit := regs.DivBitForTAC(t.tac)
	return (t.divInternal>>bit)&1 != 0
}

func (t *Timer) incrementTIMA() {
	if t.reloadDelay > 0 {
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.reloadDelay = 4
		return
	}
	t.tima++
}
