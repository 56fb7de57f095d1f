// Package predict describes induction variables and derives their value for a
// speculative transaction from its distance to the commit frontier.
package predict

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownOp     = errors.New("unknown induction update operation")
	ErrZeroAddress   = errors.New("induction variable has no address")
	ErrEmptyVariable = errors.New("induction variable has no name")
)

// Op is the update applied to an induction variable once per transaction.
// The numeric values match the loop metadata encoding.
type Op uint8

const (
	OpAdd Op = 1
	OpSub Op = 2
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ParseOp accepts "add", "sub" or their metadata codes.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "1", "+":
		return OpAdd, nil
	case "sub", "2", "-":
		return OpSub, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Variable is a word in shared memory whose value after n committed
// transactions is Initial updated n times by Stride.
//
// Stride is the change per committed transaction, not per iteration, since
// distances are counted in transactions as sequencer.Distance reports them. A
// loop that moves the variable by one each iteration over chunks of k
// iterations has stride k.
type Variable struct {
	Name    string `yaml:"name"`
	Addr    uint64 `yaml:"addr"`
	Initial uint64 `yaml:"initial"`
	Stride  uint64 `yaml:"stride"`
	Op      Op     `yaml:"op"`
}

// Validate checks that the descriptor is usable.
func (v Variable) Validate() error {
	if v.Name == "" {
		return ErrEmptyVariable
	}
	if v.Addr == 0 {
		return fmt.Errorf("%w: %s", ErrZeroAddress, v.Name)
	}
	if v.Op != OpAdd && v.Op != OpSub {
		return fmt.Errorf("%w: %s uses %s", ErrUnknownOp, v.Name, v.Op)
	}
	return nil
}

// At returns the value expected after n commits from the initial value.
func (v Variable) At(n uint64) uint64 {
	return v.Advance(v.Initial, n)
}

// Advance returns the value expected distance commits after live. Arithmetic
// wraps like the machine registers it models.
func (v Variable) Advance(live, distance uint64) uint64 {
	delta := distance * v.Stride
	if v.Op == OpSub {
		return live - delta
	}
	return live + delta
}

func (v Variable) String() string {
	return fmt.Sprintf("%s@0x%x (%d %s %d)", v.Name, v.Addr, v.Initial, v.Op, v.Stride)
}
