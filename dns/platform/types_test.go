package platform

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolverConfig(t *testing.T) {
	config, err := ParseResolverConfig([]string{" 10.0.0.1", "", "::ffff:192.168.1.1", "2001:db8::1"})
	require.NoError(t, err)
	assert.Equal(t, "[10.0.0.1, 192.168.1.1, 2001:db8::1]", config.String())

	_, err = ParseResolverConfig([]string{"10.0.0.300"})
	assert.Error(t, err)
}

func TestResolverConfigEqual(t *testing.T) {
	a := MustParseResolverConfig("10.0.0.1", "10.0.0.2")

	assert.True(t, a.Equal(MustParseResolverConfig("10.0.0.1", "10.0.0.2")))
	assert.False(t, a.Equal(MustParseResolverConfig("10.0.0.2", "10.0.0.1")), "order is significant")
	assert.False(t, a.Equal(MustParseResolverConfig("10.0.0.1")))
	assert.True(t, ResolverConfig{}.Equal(nil))
}

func TestResolverConfigClone(t *testing.T) {
	a := MustParseResolverConfig("10.0.0.1")
	b := a.Clone()
	b[0] = MustParseResolverConfig("10.0.0.9")[0]
	assert.Equal(t, "[10.0.0.1]", a.String())
}

func TestActiveInterfaceString(t *testing.T) {
	assert.Equal(t, "eth0", ActiveInterface{Name: "eth0", ID: "eth0"}.String())
	assert.Equal(t, "en0 (SVC)", ActiveInterface{Name: "en0", ID: "SVC"}.String())
	assert.Equal(t, "SVC", ActiveInterface{ID: "SVC"}.String())
}

func TestWriteErrorClassification(t *testing.T) {
	err := writeError("open", fs.ErrPermission)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = writeError("open", errors.New("boom"))
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "open", writeErr.Op)
	assert.NotErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, ErrPermissionDenied, writeError("x", ErrPermissionDenied))
}
