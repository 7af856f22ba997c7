// cpu8086_ops.go - the 8086 opcode dispatch (spec §4.1).
//
// Grounded on original_source/blink16/8086.c's executeInstruction()
// giant switch, reshaped into the teacher's per-opcode dispatch-table
// idiom (cpu_x86.go's baseOps [256]func(*CPU_X86)) generalized here to
// a plain switch, since the 8086's opcode space does not need the
// teacher's two-table base/extended split (8086 has no 0x0F escape).

package blink16

// aluOp names the eight ALU-group operations sharing one encoding
// family (ADD/OR/ADC/SBB/AND/SUB/XOR/CMP), per the "reg" field of
// group-1/group-3 opcodes and the 0x00-0x3D block.
type aluOp int

const (
	aluADD aluOp = iota
	aluOR
	aluADC
	aluSBB
	aluAND
	aluSUB
	aluXOR
	aluCMP
)

func (c *CPU8086) aluCompute(op aluOp, dst, src uint32, wordSize bool) uint32 {
	switch op {
	case aluADD:
		return c.add(dst, src, wordSize)
	case aluADC:
		return c.adc(dst, src, wordSize)
	case aluSUB, aluCMP:
		return c.sub(dst, src, wordSize)
	case aluSBB:
		return c.sbb(dst, src, wordSize)
	case aluOR:
		return c.logical(dst|src, wordSize)
	case aluAND:
		return c.logical(dst&src, wordSize)
	case aluXOR:
		return c.logical(dst^src, wordSize)
	default:
		return 0
	}
}

// execute decodes and runs one opcode byte already fetched (prefixes
// already consumed by stepOnce).
func (c *CPU8086) execute(op byte) {
	if op <= 0x3D && op&7 <= 5 {
		// 0x00-0x3D ALU family: (op>>3)&7 selects the operation, low 3
		// bits select the Eb/Gb, Ev/Gv, Gb/Eb, Gv/Ev, AL/ib, AX/iv forms.
		// Forms 6/7 of each 8-byte block are the segment push/pop/prefix
		// opcodes handled below instead.
		c.execALU(aluOp((op>>3)&7), op&7)
		return
	}

	switch op {
	case 0x06:
		c.push(c.m.es())
	case 0x07:
		c.m.setES(c.pop())
	case 0x0E:
		c.push(c.m.cs())
	case 0x16:
		c.push(c.m.ss())
	case 0x17:
		c.m.setSS(c.pop())
	case 0x1E:
		c.push(c.m.ds())
	case 0x1F:
		c.m.setDS(c.pop())

	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47:
		r := int(op - 0x40)
		// INC/DEC leave CF untouched (spec §4.1.1 exception list).
		savedCF := c.m.flagSet(flagCF)
		v := c.add(uint32(c.readReg16(r)), 1, true)
		c.m.setCF(savedCF)
		c.writeReg16(r, uint16(v))
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		r := int(op - 0x48)
		savedCF := c.m.flagSet(flagCF)
		v := c.sub(uint32(c.readReg16(r)), 1, true)
		c.m.setCF(savedCF)
		c.writeReg16(r, uint16(v))

	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57:
		c.push(c.readReg16(int(op - 0x50)))
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		c.writeReg16(int(op-0x58), c.pop())

	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		rel := int16(int8(c.fetch8()))
		if c.condition(op & 0x0F) {
			c.m.ip = uint16(int32(c.m.ip) + int32(rel))
		}

	case 0x80, 0x81, 0x83:
		c.execGroup1(op)

	case 0x84:
		modrm := c.fetch8()
		dstOp := operand{reg: int((modrm >> 3) & 7), isReg: true}
		src := c.ea(modrm)
		c.logical(uint32(c.readOp8(src))&uint32(c.readReg8(dstOp.reg)), false)
	case 0x85:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		src := c.ea(modrm)
		c.logical(uint32(c.readOp16(src))&uint32(c.readReg16(reg)), true)

	case 0x86:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		a, b := c.readReg8(reg), c.readOp8(rm)
		c.writeReg8(reg, b)
		c.writeOp8(rm, a)
	case 0x87:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		a, b := c.readReg16(reg), c.readOp16(rm)
		c.writeReg16(reg, b)
		c.writeOp16(rm, a)

	case 0x88:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		c.writeOp8(rm, c.readReg8(reg))
	case 0x89:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		c.writeOp16(rm, c.readReg16(reg))
	case 0x8A:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		c.writeReg8(reg, c.readOp8(rm))
	case 0x8B:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		c.writeReg16(reg, c.readOp16(rm))
	case 0x8C:
		modrm := c.fetch8()
		sreg := segRegOrder[(modrm>>3)&3]
		rm := c.ea(modrm)
		c.writeOp16(rm, c.readReg16(sreg))
	case 0x8E:
		modrm := c.fetch8()
		sreg := segRegOrder[(modrm>>3)&3]
		rm := c.ea(modrm)
		c.writeReg16(sreg, c.readOp16(rm))
	case 0x8D:
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		c.writeReg16(reg, rm.off)
	case 0x8F:
		modrm := c.fetch8()
		rm := c.ea(modrm)
		c.writeOp16(rm, c.pop())

	case 0x90:
		// NOP
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97:
		r := int(op - 0x90)
		a := c.m.ax()
		c.m.setAX(c.readReg16(r))
		c.writeReg16(r, a)

	case 0x98: // CBW
		if c.m.al()&0x80 != 0 {
			c.m.setAH(0xFF)
		} else {
			c.m.setAH(0)
		}
	case 0x99: // CWD
		if c.m.ax()&0x8000 != 0 {
			c.m.setDX(0xFFFF)
		} else {
			c.m.setDX(0)
		}

	case 0x9A: // CALL far ptr16:16
		newIP := c.fetch16()
		newCS := c.fetch16()
		c.push(c.m.cs())
		c.push(c.m.ip)
		c.m.setCS(newCS)
		c.m.ip = newIP

	case 0x9C:
		c.push(c.m.flags)
	case 0x9D:
		c.m.setFlags(c.pop())
	case 0x9E: // SAHF
		c.m.flags = c.m.flags&0xFF00 | uint16(c.m.ah())
	case 0x9F: // LAHF
		c.m.setAH(byte(c.m.flags))

	case 0xA0:
		off := c.fetch16()
		c.m.setAL(mustOK(c.sys.readByte(c.m, off, c.segFor(segDS))))
	case 0xA1:
		off := c.fetch16()
		c.m.setAX(mustOK(c.sys.readWord(c.m, off, c.segFor(segDS))))
	case 0xA2:
		off := c.fetch16()
		mustOKErr(c.sys.writeByte(c.m, c.m.al(), off, c.segFor(segDS)))
	case 0xA3:
		off := c.fetch16()
		mustOKErr(c.sys.writeWord(c.m, c.m.ax(), off, c.segFor(segDS)))

	case 0xA4:
		c.stringOp(op, c.movsb, false)
	case 0xA5:
		c.stringOp(op, c.movsw, false)
	case 0xA6:
		c.stringOp(op, c.cmpsb, true)
	case 0xA7:
		c.stringOp(op, c.cmpsw, true)

	case 0xA8:
		c.logical(uint32(c.m.al())&uint32(c.fetch8()), false)
	case 0xA9:
		c.logical(uint32(c.m.ax())&uint32(c.fetch16()), true)

	case 0xAA:
		c.stringOp(op, c.stosb, false)
	case 0xAB:
		c.stringOp(op, c.stosw, false)
	case 0xAC:
		c.stringOp(op, c.lodsb, false)
	case 0xAD:
		c.stringOp(op, c.lodsw, false)
	case 0xAE:
		c.stringOp(op, c.scasb, true)
	case 0xAF:
		c.stringOp(op, c.scasw, true)

	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		c.writeReg8(int(op-0xB0), c.fetch8())
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		c.writeReg16(int(op-0xB8), c.fetch16())

	case 0xC2:
		n := c.fetch16()
		c.m.ip = c.pop()
		c.m.setSP(c.m.sp() + n)
	case 0xC3:
		c.m.ip = c.pop()
	case 0xCA:
		n := c.fetch16()
		c.m.ip = c.pop()
		c.m.setCS(c.pop())
		c.m.setSP(c.m.sp() + n)
	case 0xCB:
		c.m.ip = c.pop()
		c.m.setCS(c.pop())

	case 0xC6:
		modrm := c.fetch8()
		rm := c.ea(modrm)
		imm := c.fetch8()
		c.writeOp8(rm, imm)
	case 0xC7:
		modrm := c.fetch8()
		rm := c.ea(modrm)
		imm := c.fetch16()
		c.writeOp16(rm, imm)

	case 0xCC:
		c.Interrupt(3)
	case 0xCD:
		c.Interrupt(int(c.fetch8()))
	case 0xCE:
		if c.m.flagSet(flagOF) {
			c.Interrupt(4)
		}
	case 0xCF:
		c.iret()

	case 0xD0, 0xD1, 0xD2, 0xD3:
		c.execShiftGroup(op)

	case 0xD4: // AAM
		base := c.fetch8()
		if base == 0 {
			panic(haltSignal{fault: &RuntimeFault{CS: c.m.cs(), IP: c.m.ip, Reason: "AAM by zero"}})
		}
		al := c.m.al()
		c.m.setAH(al / base)
		c.m.setAL(al % base)
		c.setPZS(uint32(c.m.al()), false)
	case 0xD5: // AAD
		base := c.fetch8()
		al := uint16(c.m.ah())*uint16(base) + uint16(c.m.al())
		c.m.setAL(byte(al))
		c.m.setAH(0)
		c.setPZS(uint32(c.m.al()), false)
	case 0xD7: // XLAT
		off := c.m.bx() + uint16(c.m.al())
		c.m.setAL(mustOK(c.sys.readByte(c.m, off, c.segFor(segDS))))

	case 0xE0, 0xE1, 0xE2, 0xE3:
		rel := int16(int8(c.fetch8()))
		c.execLoop(op, rel)

	case 0xE8:
		disp := int16(uint16(c.fetch16()))
		c.push(c.m.ip)
		c.m.ip = uint16(int32(c.m.ip) + int32(disp))
	case 0xE9:
		disp := int16(uint16(c.fetch16()))
		c.m.ip = uint16(int32(c.m.ip) + int32(disp))
	case 0xEA:
		newIP := c.fetch16()
		newCS := c.fetch16()
		c.m.setCS(newCS)
		c.m.ip = newIP
	case 0xEB:
		disp := int16(int8(c.fetch8()))
		c.m.ip = uint16(int32(c.m.ip) + int32(disp))

	case 0xF4:
		panic(haltSignal{exitCode: 0})

	case 0xF5:
		c.m.setCF(!c.m.flagSet(flagCF))

	case 0xF6, 0xF7:
		c.execGroup3(op)

	case 0xF8:
		c.m.setCF(false)
	case 0xF9:
		c.m.setCF(true)
	case 0xFA:
		c.m.setFlagBit(flagIF, false)
	case 0xFB:
		c.m.setFlagBit(flagIF, true)
	case 0xFC:
		c.m.setFlagBit(flagDF, false)
	case 0xFD:
		c.m.setFlagBit(flagDF, true)

	case 0xFE:
		c.execIncDecByte()
	case 0xFF:
		c.execGroupFF()

	default:
		panic(haltSignal{fault: &RuntimeFault{CS: c.m.cs(), IP: c.m.ip, Reason: "undefined opcode"}})
	}
}

func mustOKErr(err error) {
	if err != nil {
		panic(haltSignal{fault: err})
	}
}

// execALU handles the uniform 0x00-0x3D ALU block: low 3 bits of op
// select Eb/Gb, Ev/Gv, Gb/Eb, Gv/Ev, AL/ib, AX/iv.
func (c *CPU8086) execALU(alu aluOp, form byte) {
	switch form {
	case 0: // Eb,Gb
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		res := c.aluCompute(alu, uint32(c.readOp8(rm)), uint32(c.readReg8(reg)), false)
		if alu != aluCMP {
			c.writeOp8(rm, byte(res))
		}
	case 1: // Ev,Gv
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		res := c.aluCompute(alu, uint32(c.readOp16(rm)), uint32(c.readReg16(reg)), true)
		if alu != aluCMP {
			c.writeOp16(rm, uint16(res))
		}
	case 2: // Gb,Eb
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		res := c.aluCompute(alu, uint32(c.readReg8(reg)), uint32(c.readOp8(rm)), false)
		if alu != aluCMP {
			c.writeReg8(reg, byte(res))
		}
	case 3: // Gv,Ev
		modrm := c.fetch8()
		reg := int((modrm >> 3) & 7)
		rm := c.ea(modrm)
		res := c.aluCompute(alu, uint32(c.readReg16(reg)), uint32(c.readOp16(rm)), true)
		if alu != aluCMP {
			c.writeReg16(reg, uint16(res))
		}
	case 4: // AL,ib
		imm := c.fetch8()
		res := c.aluCompute(alu, uint32(c.m.al()), uint32(imm), false)
		if alu != aluCMP {
			c.m.setAL(byte(res))
		}
	case 5: // AX,iv
		imm := c.fetch16()
		res := c.aluCompute(alu, uint32(c.m.ax()), uint32(imm), true)
		if alu != aluCMP {
			c.m.setAX(uint16(res))
		}
	}
}

// execGroup1 handles 0x80/0x81/0x83: ALU-immediate-to-Eb/Ev, operation
// selected by the modrm reg field; 0x83 sign-extends an imm8 to 16-bit.
func (c *CPU8086) execGroup1(op byte) {
	modrm := c.fetch8()
	alu := aluOp((modrm >> 3) & 7)
	rm := c.ea(modrm)
	if op == 0x80 {
		imm := c.fetch8()
		res := c.aluCompute(alu, uint32(c.readOp8(rm)), uint32(imm), false)
		if alu != aluCMP {
			c.writeOp8(rm, byte(res))
		}
		return
	}
	var imm uint16
	if op == 0x83 {
		imm = uint16(int16(int8(c.fetch8())))
	} else {
		imm = c.fetch16()
	}
	res := c.aluCompute(alu, uint32(c.readOp16(rm)), uint32(imm), true)
	if alu != aluCMP {
		c.writeOp16(rm, uint16(res))
	}
}

// execGroup3 handles 0xF6/0xF7: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV, selected
// by the modrm reg field.
func (c *CPU8086) execGroup3(op byte) {
	modrm := c.fetch8()
	which := (modrm >> 3) & 7
	rm := c.ea(modrm)
	wordSize := op == 0xF7

	if wordSize {
		v := c.readOp16(rm)
		switch which {
		case 0, 1: // TEST
			imm := c.fetch16()
			c.logical(uint32(v)&uint32(imm), true)
		case 2: // NOT
			c.writeOp16(rm, ^v)
		case 3: // NEG
			res := c.sub(0, uint32(v), true)
			c.m.setCF(v != 0)
			c.writeOp16(rm, uint16(res))
		case 4: // MUL
			res := uint32(c.m.ax()) * uint32(v)
			c.m.setAX(uint16(res))
			c.m.setDX(uint16(res >> 16))
			of := uint16(res>>16) != 0
			c.m.setCF(of)
			c.m.setFlagBit(flagOF, of)
		case 5: // IMUL
			res := int32(int16(c.m.ax())) * int32(int16(v))
			c.m.setAX(uint16(res))
			c.m.setDX(uint16(res >> 16))
			of := int32(int16(uint16(res))) != res
			c.m.setCF(of)
			c.m.setFlagBit(flagOF, of)
		case 6: // DIV
			if v == 0 {
				c.Interrupt(0)
				return
			}
			dividend := uint32(c.m.dx())<<16 | uint32(c.m.ax())
			q, r := dividend/uint32(v), dividend%uint32(v)
			if q > 0xFFFF {
				c.Interrupt(0)
				return
			}
			c.m.setAX(uint16(q))
			c.m.setDX(uint16(r))
		case 7: // IDIV
			if v == 0 {
				c.Interrupt(0)
				return
			}
			dividend := int32(c.m.dx())<<16 | int32(c.m.ax())
			divisor := int32(int16(v))
			q, r := dividend/divisor, dividend%divisor
			if q > 0x7FFF || q < -0x8000 {
				c.Interrupt(0)
				return
			}
			c.m.setAX(uint16(q))
			c.m.setDX(uint16(r))
		}
		return
	}

	v := c.readOp8(rm)
	switch which {
	case 0, 1:
		imm := c.fetch8()
		c.logical(uint32(v)&uint32(imm), false)
	case 2:
		c.writeOp8(rm, ^v)
	case 3:
		res := c.sub(0, uint32(v), false)
		c.m.setCF(v != 0)
		c.writeOp8(rm, byte(res))
	case 4:
		res := uint16(c.m.al()) * uint16(v)
		c.m.setAX(res)
		of := byte(res>>8) != 0
		c.m.setCF(of)
		c.m.setFlagBit(flagOF, of)
	case 5:
		res := int16(int8(c.m.al())) * int16(int8(v))
		c.m.setAX(uint16(res))
		of := int16(int8(byte(res))) != res
		c.m.setCF(of)
		c.m.setFlagBit(flagOF, of)
	case 6:
		if v == 0 {
			c.Interrupt(0)
			return
		}
		q, r := c.m.ax()/uint16(v), c.m.ax()%uint16(v)
		if q > 0xFF {
			c.Interrupt(0)
			return
		}
		c.m.setAL(byte(q))
		c.m.setAH(byte(r))
	case 7:
		if v == 0 {
			c.Interrupt(0)
			return
		}
		dividend := int16(c.m.ax())
		divisor := int16(int8(v))
		q, r := dividend/divisor, dividend%divisor
		if q > 0x7F || q < -0x80 {
			c.Interrupt(0)
			return
		}
		c.m.setAL(byte(q))
		c.m.setAH(byte(r))
	}
}

// execIncDecByte handles 0xFE: INC/DEC Eb (reg field 0/1 only).
func (c *CPU8086) execIncDecByte() {
	modrm := c.fetch8()
	which := (modrm >> 3) & 7
	rm := c.ea(modrm)
	savedCF := c.m.flagSet(flagCF)
	v := c.readOp8(rm)
	if which == 0 {
		c.writeOp8(rm, byte(c.add(uint32(v), 1, false)))
	} else {
		c.writeOp8(rm, byte(c.sub(uint32(v), 1, false)))
	}
	c.m.setCF(savedCF)
}

// execGroupFF handles 0xFF: INC/DEC/CALL/CALLF/JMP/JMPF/PUSH Ev.
func (c *CPU8086) execGroupFF() {
	modrm := c.fetch8()
	which := (modrm >> 3) & 7
	rm := c.ea(modrm)
	switch which {
	case 0:
		savedCF := c.m.flagSet(flagCF)
		c.writeOp16(rm, uint16(c.add(uint32(c.readOp16(rm)), 1, true)))
		c.m.setCF(savedCF)
	case 1:
		savedCF := c.m.flagSet(flagCF)
		c.writeOp16(rm, uint16(c.sub(uint32(c.readOp16(rm)), 1, true)))
		c.m.setCF(savedCF)
	case 2: // CALL near indirect
		target := c.readOp16(rm)
		c.push(c.m.ip)
		c.m.ip = target
	case 3: // CALL far indirect (memory only)
		off := c.readOp16(rm)
		seg := mustOK(c.sys.readWord(c.m, rm.off+2, rm.seg))
		c.push(c.m.cs())
		c.push(c.m.ip)
		c.m.setCS(seg)
		c.m.ip = off
	case 4: // JMP near indirect
		c.m.ip = c.readOp16(rm)
	case 5: // JMP far indirect
		off := c.readOp16(rm)
		seg := mustOK(c.sys.readWord(c.m, rm.off+2, rm.seg))
		c.m.setCS(seg)
		c.m.ip = off
	case 6: // PUSH Ev
		c.push(c.readOp16(rm))
	}
}

// execShiftGroup handles 0xD0-0xD3: ROL/ROR/RCL/RCR/SHL/SHR/SAL/SAR by
// 1 or by CL, selected by the modrm reg field.
func (c *CPU8086) execShiftGroup(op byte) {
	modrm := c.fetch8()
	which := (modrm >> 3) & 7
	rm := c.ea(modrm)
	wordSize := op == 0xD1 || op == 0xD3

	var count uint16 = 1
	if op == 0xD2 || op == 0xD3 {
		count = uint16(c.m.cl())
	}

	if wordSize {
		v := c.readOp16(rm)
		c.writeOp16(rm, c.shift16(which, v, count))
	} else {
		v := c.readOp8(rm)
		c.writeOp8(rm, c.shift8(which, v, count))
	}
}

func (c *CPU8086) shift16(which byte, v uint16, count uint16) uint16 {
	for i := uint16(0); i < count; i++ {
		cf := c.m.flagSet(flagCF)
		switch which {
		case 0: // ROL
			top := v&0x8000 != 0
			v = v<<1 | boolBit16(top)
			c.m.setCF(top)
		case 1: // ROR
			bot := v&1 != 0
			v = v>>1 | boolBit16(bot)<<15
			c.m.setCF(bot)
		case 2: // RCL
			top := v&0x8000 != 0
			v = v<<1 | boolBit16(cf)
			c.m.setCF(top)
		case 3: // RCR
			bot := v&1 != 0
			v = v>>1 | boolBit16(cf)<<15
			c.m.setCF(bot)
		case 4, 6: // SHL/SAL
			top := v&0x8000 != 0
			v = v << 1
			c.m.setCF(top)
			c.setPZS(uint32(v), true)
		case 5: // SHR
			bot := v&1 != 0
			v = v >> 1
			c.m.setCF(bot)
			c.setPZS(uint32(v), true)
		case 7: // SAR
			bot := v&1 != 0
			v = uint16(int16(v) >> 1)
			c.m.setCF(bot)
			c.setPZS(uint32(v), true)
		}
	}
	return v
}

func (c *CPU8086) shift8(which byte, v byte, count uint16) byte {
	for i := uint16(0); i < count; i++ {
		cf := c.m.flagSet(flagCF)
		switch which {
		case 0:
			top := v&0x80 != 0
			v = v<<1 | boolBit8(top)
			c.m.setCF(top)
		case 1:
			bot := v&1 != 0
			v = v>>1 | boolBit8(bot)<<7
			c.m.setCF(bot)
		case 2:
			top := v&0x80 != 0
			v = v<<1 | boolBit8(cf)
			c.m.setCF(top)
		case 3:
			bot := v&1 != 0
			v = v>>1 | boolBit8(cf)<<7
			c.m.setCF(bot)
		case 4, 6:
			top := v&0x80 != 0
			v = v << 1
			c.m.setCF(top)
			c.setPZS(uint32(v), false)
		case 5:
			bot := v&1 != 0
			v = v >> 1
			c.m.setCF(bot)
			c.setPZS(uint32(v), false)
		case 7:
			bot := v&1 != 0
			v = byte(int8(v) >> 1)
			c.m.setCF(bot)
			c.setPZS(uint32(v), false)
		}
	}
	return v
}

func boolBit16(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}

func boolBit8(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// condition evaluates the Jcc test named by the low nibble of a 0x70-
// 0x7F opcode against the current flags.
func (c *CPU8086) condition(n byte) bool {
	f := c.m.flags
	switch n {
	case 0x0: // JO
		return f&flagOF != 0
	case 0x1: // JNO
		return f&flagOF == 0
	case 0x2: // JB/JC
		return f&flagCF != 0
	case 0x3: // JAE/JNC
		return f&flagCF == 0
	case 0x4: // JE/JZ
		return f&flagZF != 0
	case 0x5: // JNE/JNZ
		return f&flagZF == 0
	case 0x6: // JBE
		return f&flagCF != 0 || f&flagZF != 0
	case 0x7: // JA
		return f&flagCF == 0 && f&flagZF == 0
	case 0x8: // JS
		return f&flagSF != 0
	case 0x9: // JNS
		return f&flagSF == 0
	case 0xA: // JP/JPE
		return f&flagPF != 0
	case 0xB: // JNP/JPO
		return f&flagPF == 0
	case 0xC: // JL
		return (f&flagSF != 0) != (f&flagOF != 0)
	case 0xD: // JGE
		return (f&flagSF != 0) == (f&flagOF != 0)
	case 0xE: // JLE
		return f&flagZF != 0 || (f&flagSF != 0) != (f&flagOF != 0)
	default: // JG
		return f&flagZF == 0 && (f&flagSF != 0) == (f&flagOF != 0)
	}
}

// execLoop handles LOOPNZ/LOOPZ/LOOP/JCXZ (0xE0-0xE3).
func (c *CPU8086) execLoop(op byte, rel int16) {
	if op != 0xE3 {
		c.m.setCX(c.m.cx() - 1)
	}
	take := false
	switch op {
	case 0xE0: // LOOPNZ/LOOPNE
		take = c.m.cx() != 0 && !c.m.flagSet(flagZF)
	case 0xE1: // LOOPZ/LOOPE
		take = c.m.cx() != 0 && c.m.flagSet(flagZF)
	case 0xE2: // LOOP
		take = c.m.cx() != 0
	case 0xE3: // JCXZ
		take = c.m.cx() == 0
	}
	if take {
		c.m.ip = uint16(int32(c.m.ip) + int32(rel))
	}
}

// stringOp runs exactly one body iteration of a MOVS/STOS/LODS/CMPS/SCAS
// instruction, honoring the sticky REP prefix's {idle, repeating,
// halted} state machine (spec §4.1): with no REP prefix it runs once
// and returns idle; under REP it runs one element per call, parking
// the CPU in the repeating state (Step re-enters via continueRepeat,
// without fetching or decoding anything new) until CX — and, for
// CMPS/SCAS, the ZF-sense — say to stop. Grounded on doRep/
// executeInstruction's per-element re-entry in
// original_source/blink16/8086.c:312,521, which only re-fetches the
// opcode when not already repeating.
func (c *CPU8086) stringOp(op byte, body func(), isCmp bool) {
	c.m.repeating = false
	if c.m.rep == repNone {
		body()
		return
	}
	if c.m.cx() == 0 {
		return // REP with CX==0 at entry does nothing
	}
	body()
	c.m.setCX(c.m.cx() - 1)
	if c.m.cx() == 0 {
		return
	}
	if isCmp && c.m.flagSet(flagZF) != (c.m.rep == repZ) {
		return
	}
	c.m.repeating = true
	c.m.repOp = op
}

// continueRepeat resumes a parked REP string op for one more body
// iteration, re-dispatching on the opcode stashed by stringOp rather
// than fetching and decoding from CS:IP again.
func (c *CPU8086) continueRepeat() {
	switch c.m.repOp {
	case 0xA4:
		c.stringOp(0xA4, c.movsb, false)
	case 0xA5:
		c.stringOp(0xA5, c.movsw, false)
	case 0xA6:
		c.stringOp(0xA6, c.cmpsb, true)
	case 0xA7:
		c.stringOp(0xA7, c.cmpsw, true)
	case 0xAA:
		c.stringOp(0xAA, c.stosb, false)
	case 0xAB:
		c.stringOp(0xAB, c.stosw, false)
	case 0xAC:
		c.stringOp(0xAC, c.lodsb, false)
	case 0xAD:
		c.stringOp(0xAD, c.lodsw, false)
	case 0xAE:
		c.stringOp(0xAE, c.scasb, true)
	case 0xAF:
		c.stringOp(0xAF, c.scasw, true)
	}
}

func (c *CPU8086) stringStepDelta8() uint16 {
	if c.m.flagSet(flagDF) {
		return ^uint16(0) // -1
	}
	return 1
}

func (c *CPU8086) stringStepDelta16() uint16 {
	if c.m.flagSet(flagDF) {
		return ^uint16(1) // -2
	}
	return 2
}

func (c *CPU8086) movsb() {
	v := mustOK(c.sys.readByte(c.m, c.m.si(), c.segFor(segDS)))
	mustOKErr(c.sys.writeByte(c.m, v, c.m.di(), c.m.es()))
	d := c.stringStepDelta8()
	c.m.setSI(c.m.si() + d)
	c.m.setDI(c.m.di() + d)
}

func (c *CPU8086) movsw() {
	v := mustOK(c.sys.readWord(c.m, c.m.si(), c.segFor(segDS)))
	mustOKErr(c.sys.writeWord(c.m, v, c.m.di(), c.m.es()))
	d := c.stringStepDelta16()
	c.m.setSI(c.m.si() + d)
	c.m.setDI(c.m.di() + d)
}

func (c *CPU8086) cmpsb() {
	a := mustOK(c.sys.readByte(c.m, c.m.si(), c.segFor(segDS)))
	b := mustOK(c.sys.readByte(c.m, c.m.di(), c.m.es()))
	c.sub(uint32(a), uint32(b), false)
	d := c.stringStepDelta8()
	c.m.setSI(c.m.si() + d)
	c.m.setDI(c.m.di() + d)
}

func (c *CPU8086) cmpsw() {
	a := mustOK(c.sys.readWord(c.m, c.m.si(), c.segFor(segDS)))
	b := mustOK(c.sys.readWord(c.m, c.m.di(), c.m.es()))
	c.sub(uint32(a), uint32(b), true)
	d := c.stringStepDelta16()
	c.m.setSI(c.m.si() + d)
	c.m.setDI(c.m.di() + d)
}

func (c *CPU8086) stosb() {
	mustOKErr(c.sys.writeByte(c.m, c.m.al(), c.m.di(), c.m.es()))
	c.m.setDI(c.m.di() + c.stringStepDelta8())
}

func (c *CPU8086) stosw() {
	mustOKErr(c.sys.writeWord(c.m, c.m.ax(), c.m.di(), c.m.es()))
	c.m.setDI(c.m.di() + c.stringStepDelta16())
}

func (c *CPU8086) lodsb() {
	c.m.setAL(mustOK(c.sys.readByte(c.m, c.m.si(), c.segFor(segDS))))
	c.m.setSI(c.m.si() + c.stringStepDelta8())
}

func (c *CPU8086) lodsw() {
	c.m.setAX(mustOK(c.sys.readWord(c.m, c.m.si(), c.segFor(segDS))))
	c.m.setSI(c.m.si() + c.stringStepDelta16())
}

func (c *CPU8086) scasb() {
	v := mustOK(c.sys.readByte(c.m, c.m.di(), c.m.es()))
	c.sub(uint32(c.m.al()), uint32(v), false)
	c.m.setDI(c.m.di() + c.stringStepDelta8())
}

func (c *CPU8086) scasw() {
	v := mustOK(c.sys.readWord(c.m, c.m.di(), c.m.es()))
	c.sub(uint32(c.m.ax()), uint32(v), true)
	c.m.setDI(c.m.di() + c.stringStepDelta16())
}
