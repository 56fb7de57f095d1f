package predict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVariable_Advance(t *testing.T) {
	tests := []struct {
		name     string
		v        Variable
		live     uint64
		distance uint64
		want     uint64
	}{
		{"add", Variable{Stride: 4, Op: OpAdd}, 100, 3, 112},
		{"sub", Variable{Stride: 8, Op: OpSub}, 100, 2, 84},
		{"distance zero", Variable{Stride: 8, Op: OpAdd}, 77, 0, 77},
		{"sub wraps", Variable{Stride: 1, Op: OpSub}, 0, 1, ^uint64(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.v.Advance(tc.live, tc.distance))
		})
	}
}

func TestVariable_At(t *testing.T) {
	v := Variable{Name: "i", Addr: 0x10, Initial: 10, Stride: 3, Op: OpAdd}
	require.Equal(t, uint64(10), v.At(0))
	require.Equal(t, uint64(40), v.At(10))
}

func TestVariable_Validate(t *testing.T) {
	require.NoError(t, Variable{Name: "i", Addr: 8, Op: OpAdd}.Validate())
	require.ErrorIs(t, Variable{Addr: 8, Op: OpAdd}.Validate(), ErrEmptyVariable)
	require.ErrorIs(t, Variable{Name: "i", Op: OpAdd}.Validate(), ErrZeroAddress)
	require.ErrorIs(t, Variable{Name: "i", Addr: 8, Op: 7}.Validate(), ErrUnknownOp)
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp("SUB")
	require.NoError(t, err)
	require.Equal(t, OpSub, op)

	op, err = ParseOp("1")
	require.NoError(t, err)
	require.Equal(t, OpAdd, op)

	_, err = ParseOp("mul")
	require.ErrorIs(t, err, ErrUnknownOp)
}
