// Package emu assembles the cartridge, bus, CPU, clock, and frame sink
// into the single Machine a host (the ebiten UI, the headless CLI
// runner, or a test) drives one frame at a time. Grounded on the
// teacher's original emu.Machine shape (New/LoadCartridge/StepFrame/
// Framebuffer/SetButtons) with the internals replaced: StepFrame now
// runs a real clock.Clock over a real cpu.CPU/bus.Bus pair instead of
// painting a gradient test pattern.
package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/clock"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/framesink"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
)

// Buttons is a snapshot of which physical buttons are currently held.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.A {
		m |= joypad.A
	}
	if b.B {
		m |= joypad.B
	}
	if b.Start {
		m |= joypad.Start
	}
	if b.Select {
		m |= joypad.Select
	}
	if b.Up {
		m |= joypad.Up
	}
	if b.Down {
		m |= joypad.Down
	}
	if b.Left {
		m |= joypad.Left
	}
	if b.Right {
		m |= joypad.Right
	}
	return m
}

// Machine owns one running emulation session: cartridge, bus, CPU, the
// frame orchestrator clock, and the RGBA8 frame sink the host reads from.
type Machine struct {
	cfg Config

	bus  *bus.Bus
	cpu  *cpu.CPU
	clk  *clock.Clock
	sink *framesink.Sink

	boot    []byte
	romPath string
	header  *cart.Header
}

// New constructs an empty Machine; call LoadCartridge or LoadROMFromFile
// before stepping it.
func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg, sink: framesink.New()}
	m.reset(cart.NewCartridge(nil))
	return m
}

// reset rebuilds the bus/CPU/clock around c, preserving any boot ROM and
// frame sink already installed on m.
func (m *Machine) reset(c cart.Cartridge) {
	b := bus.NewWithCartridge(c)
	if len(m.boot) >= 0x100 {
		b.SetBootROM(m.boot)
	}
	cp := cpu.New(b)
	cp.ResetNoBoot()
	if len(m.boot) >= 0x100 {
		cp.SetPC(0x0000)
	} else {
		cp.SetPC(0x0100)
	}
	b.PPU().OnVBlank = func(frame *[144][160]ppu.Pixel) {
		p := b.PPU()
		m.sink.WriteFrame(frame, p.BGP(), p.OBP0(), p.OBP1())
		m.sink.Present()
	}
	m.bus = b
	m.cpu = cp
	m.clk = clock.New(cp)
	m.clk.SetLimitFPS(m.cfg.LimitFPS)
}

// LoadCartridge replaces the running cartridge with one built from rom's
// header and resets the machine to boot from address 0x0100 (or 0x0000 if
// a boot ROM has been installed via SetBootROM).
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	if len(rom) < 0x150 {
		return fmt.Errorf("emu: ROM too small (%d bytes)", len(rom))
	}
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("emu: parse header: %w", err)
	}
	if len(boot) >= 0x100 {
		m.boot = boot
	}
	m.header = h
	m.reset(cart.NewCartridge(rom))
	if id, ok := autoCompatPaletteFromHeader(h); ok {
		m.sink.SetPalette(id)
	}
	return nil
}

// LoadROMFromFile reads rom from disk and loads it, also recording the
// path so a caller can derive a battery-save sibling file from it.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("emu: read ROM: %w", err)
	}
	if err := m.LoadCartridge(data, m.boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile was last called with, or "".
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title of the loaded ROM, or "".
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// SetBootROM installs a DMG boot ROM to run before cartridge code. It
// takes effect on the next LoadCartridge/LoadROMFromFile call.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.boot = data
	}
}

// SetSerialWriter routes bytes written to the serial port (used by
// hardware test ROMs to report pass/fail) to w.
func (m *Machine) SetSerialWriter(w io.Writer) { m.bus.SetSerialWriter(w) }

// SetButtons updates which buttons are held for the next frame(s).
func (m *Machine) SetButtons(b Buttons) { m.bus.SetJoypadState(b.mask()) }

// SetUseFetcherBG records whether the host wants the fetcher/FIFO
// background scanline path; the PPU always renders through the fetcher,
// so this is kept for UI round-tripping rather than changing behavior.
func (m *Machine) SetUseFetcherBG(v bool) { m.cfg.UseFetcherBG = v }

// ResetPostBoot restarts the currently loaded cartridge from 0x0100 with
// typical post-boot register state, bypassing any installed boot ROM.
func (m *Machine) ResetPostBoot() {
	savedBoot := m.boot
	m.boot = nil
	m.reset(m.bus.Cart())
	m.boot = savedBoot
}

// ResetWithBoot restarts the currently loaded cartridge through the
// installed boot ROM, if any, falling back to ResetPostBoot otherwise.
func (m *Machine) ResetWithBoot() { m.reset(m.bus.Cart()) }

// StepFrame runs the clock for one frame; the PPU's OnVBlank hook
// publishes the result into the frame sink as it completes.
func (m *Machine) StepFrame() { m.clk.RunFrame() }

// StepFrameNoRender runs the clock for one frame. It behaves identically
// to StepFrame; the name exists for callers (hardware test-ROM harnesses)
// that only care about serial output and never read the frame sink.
func (m *Machine) StepFrameNoRender() { m.clk.RunFrame() }

// Framebuffer returns the most recently presented frame as packed RGBA8
// bytes (160x144*4), suitable for blitting directly into a host texture.
func (m *Machine) Framebuffer() []byte { return m.sink.FrontBuffer() }

// LoadBattery restores cartridge-backed RAM from a previously saved
// image. Returns false if the cartridge has no battery-backed RAM.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns a copy of the cartridge's battery-backed RAM.
// Returns false if the cartridge has none.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// RumbleActive reports whether the loaded cartridge's motor line is
// currently driven (MBC5+RUMBLE carts only; false for every other cart).
func (m *Machine) RumbleActive() bool {
	r, ok := m.bus.Cart().(interface{ RumbleActive() bool })
	return ok && r.RumbleActive()
}

// APUBufferedStereo reports how many stereo sample frames are currently
// buffered and ready to pull.
func (m *Machine) APUBufferedStereo() int { return m.bus.APU().StereoAvailable() }

// APUPullStereo drains up to max buffered stereo frames (interleaved
// L,R int16 samples) for playback.
func (m *Machine) APUPullStereo(max int) []int16 { return m.bus.APU().PullStereo(max) }
