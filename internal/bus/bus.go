// Package bus wires the CPU-visible address space to the cartridge,
// WRAM, HRAM, PPU, and the timer/joypad/interrupt units, and drives
// the OAM-DMA transfer. Grounded on the teacher's bus.go, split so the
// timer and joypad own their own state (internal/timer,
// internal/joypad) instead of living as bus fields.
package bus

import (
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/regs"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/timer"
)

// sampleRate is the host audio sample rate the APU mixes stereo frames
// at (spec §3's NR10-NR52 register bank, driven off the same Tick
// contract as the timer and PPU).
const sampleRate = 48000

// Bus composes the whole DMG memory map.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // 0xC000-0xDFFF, echoed at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ppu *ppu.PPU
	tmr *timer.Timer
	jp  *joypad.Joypad
	apu *apu.APU

	ie    byte
	ifReg byte

	sb byte
	sc byte
	sw io.Writer

	dma       byte
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs a Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus { return NewWithCartridge(cart.NewCartridge(rom)) }

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= irq.Bit(bit) })
	b.tmr = timer.New()
	b.tmr.RequestInterrupt = func(bit byte) { b.ifReg |= bit }
	b.jp = joypad.New()
	b.jp.RequestInterrupt = func(bit byte) { b.ifReg |= bit }
	b.apu = apu.New(sampleRate)
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

// PPU returns the internal PPU for rendering/debug helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU so a host can pull mixed stereo samples.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for optional battery operations.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// SetJoypadState sets which buttons are currently pressed (see the
// joypad package's button bitmasks). It also runs the joypad's edge
// detection, which can raise the joypad interrupt, on the calling goroutine.
func (b *Bus) SetJoypadState(mask byte) { b.jp.SetState(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM mapped at 0x0000-0x00FF until disabled
// via an FF50 write.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// duringDMA reports whether the CPU's access to addr should be blocked
// by an in-flight OAM DMA transfer: only HRAM remains reachable (spec
// §4.1), correcting the teacher's OAM-only restriction.
func duringDMA(addr uint16) bool {
	return !(addr >= 0xFF80 && addr <= 0xFFFE)
}

// Source tags the origin of a bus access, per spec §4.1: the lockout
// matrix (CPU reads of VRAM during mode 3 / OAM during modes 2+3 return
// 0xFF and drop writes) applies only to SourceCPU. SourcePPU and
// SourceDMA always bypass it.
type Source int

const (
	SourceCPU Source = iota
	SourcePPU
	SourceDMA
)

// locked reports whether a CPU-origin access to addr is blocked by the
// VRAM/OAM lockout for the PPU's current mode (spec §4.1). DMA already
// restricts the CPU to HRAM-only via duringDMA before this is even
// consulted, so there is no separate "no DMA active" clause to encode
// here.
func (b *Bus) locked(addr uint16, source Source) bool {
	if source != SourceCPU {
		return false
	}
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.Mode() == 3
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := b.ppu.Mode()
		return m == 2 || m == 3
	}
	return false
}

// Read is the CPU-origin convenience entry point for ReadSource; CPU is
// by far the most common caller (spec §4.1: "read(addr, source)").
func (b *Bus) Read(addr uint16) byte { return b.ReadSource(addr, SourceCPU) }

// Write is the CPU-origin convenience entry point for WriteSource.
func (b *Bus) Write(addr uint16, value byte) { b.WriteSource(addr, value, SourceCPU) }

// ReadPPU is the PPU-origin entry point the pixel pipeline's own fetch
// bus uses: it always bypasses the CPU lockout (spec §4.1).
func (b *Bus) ReadPPU(addr uint16) byte { return b.ReadSource(addr, SourcePPU) }

// WritePPU is the PPU-origin write entry point; unused today (the PPU
// never writes its own VRAM/OAM through the bus) but kept symmetric
// with ReadPPU for the same reason spec §4.1 names all three sources.
func (b *Bus) WritePPU(addr uint16, value byte) { b.WriteSource(addr, value, SourcePPU) }

// ReadSource implements the router's read(addr, source) contract
// (spec §4.1): addr decode is identical across sources, but VRAM/OAM
// lockout and the DMA HRAM-only restriction apply only to SourceCPU.
func (b *Bus) ReadSource(addr uint16, source Source) byte {
	if source == SourceCPU && b.dmaActive && duringDMA(addr) {
		return 0xFF
	}
	if b.locked(addr, source) {
		return 0xFF
	}
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.VRAMByte(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		return b.wram[mirror-0xC000]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.OAMByte(addr)
	case addr == regs.AddrJOYP:
		return b.jp.Read()
	case addr == regs.AddrDIV:
		return b.tmr.DIV()
	case addr == regs.AddrTIMA:
		return b.tmr.TIMA()
	case addr == regs.AddrTMA:
		return b.tmr.TMA()
	case addr == regs.AddrTAC:
		return b.tmr.TAC()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr >= 0xFF10 && addr <= 0xFF26:
		return b.apu.CPURead(addr)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == regs.AddrLCDC, addr == regs.AddrSTAT, addr == regs.AddrSCY, addr == regs.AddrSCX,
		addr == regs.AddrLY, addr == regs.AddrLYC,
		addr == regs.AddrBGP, addr == regs.AddrOBP0, addr == regs.AddrOBP1,
		addr == regs.AddrWY, addr == regs.AddrWX:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF50:
		return 0xFF
	case addr == regs.AddrIF:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr == regs.AddrIE:
		return b.ie
	}
	return 0xFF
}

// WriteSource implements the router's write(addr, byte, source)
// contract (spec §4.1), mirroring ReadSource.
func (b *Bus) WriteSource(addr uint16, value byte, source Source) {
	if source == SourceCPU && b.dmaActive && duringDMA(addr) {
		return
	}
	if b.locked(addr, source) {
		return
	}
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.SetVRAMByte(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror >= 0xC000 && mirror <= 0xDDFF {
			b.wram[mirror-0xC000] = value
		}
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.SetOAMByte(addr, value)
	case addr == regs.AddrJOYP:
		b.jp.WriteSelect(value)
	case addr == regs.AddrDIV:
		b.tmr.WriteDIV()
	case addr == regs.AddrTIMA:
		b.tmr.WriteTIMA(value)
	case addr == regs.AddrTMA:
		b.tmr.WriteTMA(value)
	case addr == regs.AddrTAC:
		b.tmr.WriteTAC(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ifReg |= regs.IntSerial
			b.sc &^= 0x80
		}
	case addr >= 0xFF10 && addr <= 0xFF26:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == regs.AddrLCDC, addr == regs.AddrSTAT, addr == regs.AddrSCY, addr == regs.AddrSCX,
		addr == regs.AddrLY, addr == regs.AddrLYC,
		addr == regs.AddrBGP, addr == regs.AddrOBP0, addr == regs.AddrOBP1,
		addr == regs.AddrWY, addr == regs.AddrWX:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.dmaActive = true
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == regs.AddrIF:
		b.ifReg = value & 0x1F
	case addr == regs.AddrIE:
		b.ie = value
	}
}

// Tick advances the timer, PPU, and OAM DMA by the given T-cycle count.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	b.tmr.Tick(cycles)
	if b.ppu != nil {
		b.ppu.Tick(cycles)
	}
	if b.apu != nil {
		b.apu.Tick(cycles)
	}
	for i := 0; i < cycles; i++ {
		if !b.dmaActive {
			break
		}
		if b.dmaIndex < 0xA0 {
			v := b.ReadSource(b.dmaSrc+uint16(b.dmaIndex), SourceDMA)
			b.WriteSource(0xFE00+uint16(b.dmaIndex), v, SourceDMA)
			b.dmaIndex++
		}
		if b.dmaIndex >= 0xA0 {
			b.dmaActive = false
		}
	}
}

// RequestInterrupt lets other units (APU, serial, cartridge RTC) raise
// an IF bit directly.
func (b *Bus) RequestInterrupt(bit byte) { b.ifReg |= bit }
