// Package checkpoint holds the register-file snapshot a transaction takes when
// it starts and restores verbatim when it rolls back.
package checkpoint

import (
	"fmt"
	"math/bits"
	"strings"
)

// Reg names a general purpose register of the x86-64 register file.
type Reg uint8

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NumGeneral // Number of general purpose registers
)

// NumVector is the number of 128-bit vector registers that are saved.
const NumVector = 16

var regNames = [NumGeneral]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string {
	if r < NumGeneral {
		return regNames[r]
	}
	return fmt.Sprintf("reg(%d)", uint8(r))
}

// ParseReg maps a register name such as "rcx" to its Reg.
func ParseReg(name string) (Reg, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range regNames {
		if n == name {
			return Reg(i), nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", name)
}

// RegisterFile is a plain value snapshot of the machine state a loop body can
// observe. Copying it copies every register.
type RegisterFile struct {
	General [NumGeneral]uint64
	Vector  [NumVector][2]uint64
	Flags   uint64
}

func (rf *RegisterFile) Get(r Reg) uint64    { return rf.General[r] }
func (rf *RegisterFile) Set(r Reg, v uint64) { rf.General[r] = v }

// Mask is a set of general purpose registers, one bit per Reg.
type Mask uint16

// MaskOf builds a mask from the given registers.
func MaskOf(regs ...Reg) Mask {
	var m Mask
	for _, r := range regs {
		m |= 1 << r
	}
	return m
}

func (m Mask) Has(r Reg) bool { return m&(1<<r) != 0 }
func (m Mask) Len() int       { return bits.OnesCount16(uint16(m)) }

// Copy overwrites the registers in m of dst with the values from src.
func (m Mask) Copy(dst, src *RegisterFile) {
	for r := Reg(0); r < NumGeneral; r++ {
		if m.Has(r) {
			dst.General[r] = src.General[r]
		}
	}
}

func (m Mask) String() string {
	var names []string
	for r := Reg(0); r < NumGeneral; r++ {
		if m.Has(r) {
			names = append(names, r.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
