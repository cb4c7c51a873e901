package engineconfig_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamkit.dev/core/internal/engineconfig"
)

func TestParseDefaultsToBalancedProfile(t *testing.T) {
	k, err := engineconfig.Parse([]byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "balanced", k.Profile)

	p, err := k.Resolve()
	require.NoError(t, err)
	require.Equal(t, 32, p.Graph.NodeInputCapacity)
	require.Equal(t, 5*time.Second, p.ShutdownGrace)
}

func TestParseOverridesPresetFields(t *testing.T) {
	k, err := engineconfig.Parse([]byte(`
profile: low-latency
shutdown_grace_ms: 9000
`))
	require.NoError(t, err)

	p, err := k.Resolve()
	require.NoError(t, err)
	require.Equal(t, 4, p.Graph.NodeInputCapacity)
	require.Equal(t, 9*time.Second, p.ShutdownGrace)
}

func TestUnknownProfileErrors(t *testing.T) {
	_, err := engineconfig.Preset("nonexistent")
	require.Error(t, err)
}
