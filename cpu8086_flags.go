// cpu8086_flags.go - 8086 flag computation protocol (spec §4.1.1).
//
// Grounded on original_source/blink16/8086.c's setPF/setZF/setSF/
// setPZS/doAF/doCF/setOFAdd/setOFSub/setOFRotate and its precomputed
// 256-entry parity table.

package blink16

// parityTable[b] is true iff b has an even number of set bits, matching
// the precomputed table in original_source/blink16/8086.c.
var parityTable [256]bool

func init() {
	for b := 0; b < 256; b++ {
		bits := 0
		for v := b; v != 0; v >>= 1 {
			bits += v & 1
		}
		parityTable[b] = bits%2 == 0
	}
}

func (c *CPU8086) setPF(result uint16) {
	c.m.setFlagBit(flagPF, parityTable[byte(result)])
}

func (c *CPU8086) setZF(result uint32, wordSize bool) {
	if wordSize {
		c.m.setFlagBit(flagZF, uint16(result) == 0)
	} else {
		c.m.setFlagBit(flagZF, byte(result) == 0)
	}
}

func (c *CPU8086) setSF(result uint32, wordSize bool) {
	if wordSize {
		c.m.setFlagBit(flagSF, result&0x8000 != 0)
	} else {
		c.m.setFlagBit(flagSF, result&0x80 != 0)
	}
}

// setPZS sets PF, ZF, SF together from a result, the common tail of
// logical ops per §4.1.1 ("set SF/ZF/PF from the result").
func (c *CPU8086) setPZS(result uint32, wordSize bool) {
	c.setPF(uint16(result))
	c.setZF(result, wordSize)
	c.setSF(result, wordSize)
}

// doAF sets AF from bit 4 of (result XOR src XOR dst), per §4.1.1.
func (c *CPU8086) doAF(result, src, dst uint32) {
	c.m.setFlagBit(flagAF, (result^src^dst)&0x10 != 0)
}

// doCFAdd sets CF from bit 8/16 of the unsigned addition result.
func (c *CPU8086) doCFAdd(result uint32, wordSize bool) {
	if wordSize {
		c.m.setCF(result&0x10000 != 0)
	} else {
		c.m.setCF(result&0x100 != 0)
	}
}

// doCFSub sets CF when the unsigned subtraction borrowed.
func (c *CPU8086) doCFSub(dst, src uint32) {
	c.m.setCF(src > dst)
}

// setOFAdd sets OF as "(result XOR dst) AND (result XOR src), signed
// bit", the ADD-family formula of §4.1.1.
func (c *CPU8086) setOFAdd(result, src, dst uint32, wordSize bool) {
	var signBit uint32 = 0x80
	if wordSize {
		signBit = 0x8000
	}
	c.m.setFlagBit(flagOF, (result^dst)&(result^src)&signBit != 0)
}

// setOFSub sets OF for SUB/CMP: overflow iff src and dst have
// different signs and the result's sign differs from dst's.
func (c *CPU8086) setOFSub(result, src, dst uint32, wordSize bool) {
	var signBit uint32 = 0x80
	if wordSize {
		signBit = 0x8000
	}
	c.m.setFlagBit(flagOF, (dst^src)&(dst^result)&signBit != 0)
}

func truncate(v uint32, wordSize bool) uint32 {
	if wordSize {
		return v & 0xFFFF
	}
	return v & 0xFF
}

// add performs dst+src with full ADD-family flag computation (§4.1.1).
func (c *CPU8086) add(dst, src uint32, wordSize bool) uint32 {
	result := dst + src
	c.doCFAdd(result, wordSize)
	c.doAF(result, src, dst)
	c.setOFAdd(result, src, dst, wordSize)
	result = truncate(result, wordSize)
	c.setPZS(result, wordSize)
	return result
}

// adc is add with the incoming carry folded in before flag computation.
func (c *CPU8086) adc(dst, src uint32, wordSize bool) uint32 {
	carry := uint32(0)
	if c.m.flagSet(flagCF) {
		carry = 1
	}
	result := dst + src + carry
	c.doCFAdd(result, wordSize)
	c.doAF(result, src, dst)
	c.setOFAdd(result, src+carry, dst, wordSize)
	result = truncate(result, wordSize)
	c.setPZS(result, wordSize)
	return result
}

// sub performs dst-src with full SUB-family flag computation.
func (c *CPU8086) sub(dst, src uint32, wordSize bool) uint32 {
	result := dst - src
	c.doCFSub(dst, src)
	c.doAF(result, src, dst)
	c.setOFSub(truncate(result, wordSize), src, dst, wordSize)
	result = truncate(result, wordSize)
	c.setPZS(result, wordSize)
	return result
}

func (c *CPU8086) sbb(dst, src uint32, wordSize bool) uint32 {
	carry := uint32(0)
	if c.m.flagSet(flagCF) {
		carry = 1
	}
	full := src + carry
	result := dst - full
	c.doCFSub(dst, full)
	c.doAF(result, full, dst)
	c.setOFSub(truncate(result, wordSize), full, dst, wordSize)
	result = truncate(result, wordSize)
	c.setPZS(result, wordSize)
	return result
}

// logical applies a bitwise op with the logical-group flag protocol:
// "clear CF, AF, OF; set SF/ZF/PF from the result" (§4.1.1).
func (c *CPU8086) logical(result uint32, wordSize bool) uint32 {
	result = truncate(result, wordSize)
	c.m.setCF(false)
	c.m.setFlagBit(flagAF, false)
	c.m.setFlagBit(flagOF, false)
	c.setPZS(result, wordSize)
	return result
}
