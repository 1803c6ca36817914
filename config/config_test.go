package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"refdrop/native/airdrop"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, airdrop.DefaultParams(), cfg.Airdrop.Params())
	require.False(t, cfg.Pauses.Airdrop)
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "params.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultAirdropParams(), cfg.Airdrop)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "TokenPerPerson = 400")

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.toml")
	contents := `[airdrop]
TokenPerPerson = 800
MaximumDepth = 0
NumberOfChildren = 5

[pauses]
Airdrop = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(800), cfg.Airdrop.TokenPerPerson)
	require.Equal(t, uint64(0), cfg.Airdrop.MaximumDepth)
	require.Equal(t, uint64(5), cfg.Airdrop.NumberOfChildren)
	require.Equal(t, uint64(airdrop.DefaultInitialTokens), cfg.Airdrop.InitialTokens)
	require.True(t, cfg.Pauses.Airdrop)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(path, []byte("[airdrop]\nTokensPerPerson = 10\n"), 0o600))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")
}

func TestValidateConfig(t *testing.T) {
	valid := File{Airdrop: DefaultAirdropParams()}
	require.NoError(t, ValidateConfig(valid))

	low := valid
	low.Airdrop.TokenPerPerson = 3
	require.Error(t, ValidateConfig(low))

	noChildren := valid
	noChildren.Airdrop.NumberOfChildren = 0
	require.Error(t, ValidateConfig(noChildren))

	poor := valid
	poor.Airdrop.InitialTokens = 10
	require.Error(t, ValidateConfig(poor))
}
