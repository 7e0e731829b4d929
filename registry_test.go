package upcheck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	upcheck "github.com/upcheck/upcheck"
)

func TestRegistry_AddPeerAssignsStableIndices(t *testing.T) {
	api := &upcheck.UpstreamConfig{Name: "api", Enabled: true}
	cache := &upcheck.UpstreamConfig{Name: "cache", Enabled: true}
	registry := upcheck.NewRegistry(api, cache)

	i0, err := registry.AddPeer("api", "10.0.0.1:80")
	require.NoError(t, err)
	i1, err := registry.AddPeer("cache", "10.0.0.2:6379")
	require.NoError(t, err)
	i2, err := registry.AddPeer("api", "10.0.0.3:80")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, []int{i0, i1, i2})
	assert.Equal(t, 3, registry.Len())
	assert.Equal(t, "cache", registry.Peer(1).Upstream)
	assert.Same(t, api, registry.Peer(2).Config)
}

func TestRegistry_AddPeerUnknownUpstream(t *testing.T) {
	registry := upcheck.NewRegistry()
	_, err := registry.AddPeer("nope", "10.0.0.1:80")
	assert.ErrorIs(t, err, upcheck.ErrUnknownUpstream)
}

func TestRegistry_AddPeerAfterSeal(t *testing.T) {
	registry := upcheck.NewRegistry(&upcheck.UpstreamConfig{Name: "api", Enabled: true})
	_, err := registry.AddPeer("api", "10.0.0.1:80")
	require.NoError(t, err)

	registry.Seal()
	_, err = registry.AddPeer("api", "10.0.0.2:80")
	assert.ErrorIs(t, err, upcheck.ErrAlreadyStarted)
}

func TestRegistry_IsDown(t *testing.T) {
	enabled := &upcheck.UpstreamConfig{Name: "api", Enabled: true}
	disabled := &upcheck.UpstreamConfig{Name: "legacy"}
	registry := upcheck.NewRegistry(enabled, disabled)

	checked, err := registry.AddPeer("api", "10.0.0.1:80")
	require.NoError(t, err)
	unchecked, err := registry.AddPeer("legacy", "10.0.0.2:80")
	require.NoError(t, err)

	assert.False(t, registry.IsDown(checked), "peers start up")

	registry.SetDownForTest(checked, true)
	assert.True(t, registry.IsDown(checked))
	registry.SetDownForTest(checked, false)
	assert.False(t, registry.IsDown(checked))

	// Peers of a disabled group always report up.
	registry.SetDownForTest(unchecked, true)
	assert.False(t, registry.IsDown(unchecked))

	// Out-of-range indices default to up.
	assert.False(t, registry.IsDown(-1))
	assert.False(t, registry.IsDown(99))
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := validFileConfig()
	cfg.Upstreams = append(cfg.Upstreams, upcheck.UpstreamFileConfig{
		Name:  "cache",
		Peers: []string{"10.0.1.1:6379"},
	})
	cfg.ApplyDefaults()

	registry, err := upcheck.NewRegistryFromConfig(cfg)
	require.NoError(t, err)

	require.Equal(t, 3, registry.Len())
	assert.Equal(t, "api", registry.Peer(0).Upstream)
	assert.Equal(t, "10.0.0.2:8080", registry.Peer(1).Address)
	assert.Equal(t, "cache", registry.Peer(2).Upstream)
	assert.False(t, registry.Peer(2).Config.Enabled)

	_, err = registry.AddPeer("api", "10.0.0.9:8080")
	assert.ErrorIs(t, err, upcheck.ErrAlreadyStarted, "registry built from config is sealed")
}
