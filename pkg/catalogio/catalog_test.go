package catalogio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udon-lang/udonc/pkg/extern"
)

func TestLoadFile_ResolvesExterns(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile("testdata/reference.yaml"))

	sig, ok := c.ResolveExternSignature("String", "Length", extern.Getter)
	require.True(t, ok)
	require.Equal(t, "SystemString.__get_Length__SystemInt32", sig)

	_, ok = c.ResolveExternSignature("String", "DoesNotExist", extern.Method)
	require.False(t, ok)
}

func TestLoadFile_ResolvesEvents(t *testing.T) {
	c := New()
	require.NoError(t, c.LoadFile("testdata/reference.yaml"))

	require.True(t, c.IsVrcEventLabel("Start"))
	def, ok := c.GetVrcEventDefinition("OnPlayerJoined")
	require.True(t, ok)
	require.Equal(t, "_onPlayerJoined", def.UdonName)
	require.Equal(t, []string{"player"}, def.Parameters)

	require.False(t, c.IsVrcEventLabel("NotAnEvent"))
}

func TestComputeTypeID_Deterministic(t *testing.T) {
	c := New()
	a := c.ComputeTypeID("GameObject")
	b := c.ComputeTypeID("GameObject")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c.ComputeTypeID("VRCPlayerApi"))
}

func TestLoadBytes_RejectsUnknownAccessKind(t *testing.T) {
	c := New()
	err := c.LoadBytes([]byte("externs:\n  - type: Foo\n    member: Bar\n    kind: bogus\n    signature: x\n"))
	require.Error(t, err)
}
