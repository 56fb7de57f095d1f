package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostm/core/stm"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gojostm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load("gojostm.yaml")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.STM.Threads)
	require.Equal(t, uint(18), cfg.STM.HashBits)
	require.True(t, cfg.STM.Prediction)
	require.Equal(t, "cursor", cfg.Workload.Kernel)
	require.Equal(t, uint64(65536), cfg.Workload.Params.N)
	require.Equal(t, uint64(64), cfg.Workload.Params.Chunk)
	require.Equal(t, "stderr", cfg.Logger.OutputFile)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "stm:\n  threads: 2\n"))
	require.NoError(t, err)
	require.Equal(t, 2, cfg.STM.Threads)
	require.Equal(t, uint(stm.DefaultHashBits), cfg.STM.HashBits)
	require.Equal(t, Default().Loop, cfg.Loop)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "stm: [not, a, map]\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "stm:\n  hash_bits: 40\n"))
	require.ErrorIs(t, err, stm.ErrInvalidConfig)

	_, err = Load(writeFile(t, "workload:\n  kernel: fft\n"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeFile(t, "telemetry:\n  trace_sample_ratio: 2\n"))
	require.ErrorIs(t, err, ErrInvalid)
}
