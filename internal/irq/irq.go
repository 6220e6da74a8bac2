// Package irq implements the DMG interrupt controller: IF/IE masking and
// dispatch-vector selection. It owns no state of its own — the flag
// bytes live on the bus — it only knows how to read them and pick a
// vector.
package irq

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/regs"

// Vector addresses in priority order, highest first: VBlank, STAT,
// Timer, Serial, Joypad.
var Vectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

var bits = [5]byte{regs.IntVBlank, regs.IntSTAT, regs.IntTimer, regs.IntSerial, regs.IntJoypad}

// Pending returns the bit index (0..4) of the highest-priority
// interrupt whose IE and IF bits are both set, and true if one exists.
func Pending(ie, iflag byte) (bit int, ok bool) {
	masked := ie & iflag & 0x1F
	if masked == 0 {
		return 0, false
	}
	for i, b := range bits {
		if masked&b != 0 {
			return i, true
		}
	}
	return 0, false
}

// Vector returns the service-routine address for interrupt index bit.
func Vector(bit int) uint16 { return Vectors[bit] }

// Bit returns the IF/IE bitmask for interrupt index bit.
func Bit(bit int) byte { return bits[bit] }

// ServiceCycles is the fixed T-cycle cost of dispatching any interrupt,
// per spec §4.6 (2+2+4+4+4+4 T split across wait/push/vector-fetch).
const ServiceCycles = 20
