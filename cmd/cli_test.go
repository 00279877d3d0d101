package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTargetKind(t *testing.T) {
	dir := t.TempDir()
	solFile := filepath.Join(dir, "Vault.sol")
	require.NoError(t, os.WriteFile(solFile, []byte("contract Vault {}"), 0o644))
	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# notes"), 0o644))

	t.Run("checksummed address", func(t *testing.T) {
		kind, err := detectTargetKind("0xdAC17F958D2ee523a2206206994597C13D831ec7")
		require.NoError(t, err)
		assert.Equal(t, TargetAddress, kind)
	})

	t.Run("lowercase address", func(t *testing.T) {
		kind, err := detectTargetKind("0xdac17f958d2ee523a2206206994597c13d831ec7")
		require.NoError(t, err)
		assert.Equal(t, TargetAddress, kind)
	})

	t.Run("address list by extension", func(t *testing.T) {
		for _, name := range []string{"targets.txt", "targets.yaml", "targets.yml", "TARGETS.TXT"} {
			kind, err := detectTargetKind(name)
			require.NoError(t, err, "name=%s", name)
			assert.Equal(t, TargetAddressList, kind, "name=%s", name)
		}
	})

	t.Run("directory", func(t *testing.T) {
		kind, err := detectTargetKind(dir)
		require.NoError(t, err)
		assert.Equal(t, TargetDirectory, kind)
	})

	t.Run("solidity file", func(t *testing.T) {
		kind, err := detectTargetKind(solFile)
		require.NoError(t, err)
		assert.Equal(t, TargetSolidityFile, kind)
	})

	t.Run("missing solidity file", func(t *testing.T) {
		_, err := detectTargetKind(filepath.Join(dir, "Missing.sol"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing path that is not an address", func(t *testing.T) {
		_, err := detectTargetKind(filepath.Join(dir, "nosuchthing"))
		assert.ErrorContains(t, err, "not an address")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := detectTargetKind(readme)
		assert.ErrorContains(t, err, "unsupported extension")
	})

	t.Run("empty target", func(t *testing.T) {
		_, err := detectTargetKind("   ")
		assert.ErrorContains(t, err, "-t is required")
	})
}
