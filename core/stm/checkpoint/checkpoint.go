package checkpoint

import "errors"

var ErrNoCheckpoint = errors.New("no checkpoint has been saved")

// Checkpoint is the state captured once at transaction start: every register
// and the program counter the region resumes at after a rollback.
type Checkpoint struct {
	regs  RegisterFile
	pc    uint64
	valid bool
}

// Save copies regs into the checkpoint, replacing any previous snapshot.
func (c *Checkpoint) Save(regs *RegisterFile, pc uint64) {
	c.regs = *regs
	c.pc = pc
	c.valid = true
}

// Restore overwrites dst with the saved registers and returns the resume PC.
// Registers written after Save are discarded, never merged.
func (c *Checkpoint) Restore(dst *RegisterFile) (uint64, error) {
	if !c.valid {
		return 0, ErrNoCheckpoint
	}
	*dst = c.regs
	return c.pc, nil
}

// Registers returns a copy of the saved registers.
func (c *Checkpoint) Registers() RegisterFile { return c.regs }

func (c *Checkpoint) PC() uint64  { return c.pc }
func (c *Checkpoint) Valid() bool { return c.valid }

// Discard forgets the snapshot after the transaction commits.
func (c *Checkpoint) Discard() {
	c.valid = false
}
