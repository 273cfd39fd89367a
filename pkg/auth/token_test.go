package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	id1, err := NewSessionID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id1, SessionIDPrefix))
	assert.True(t, ValidSessionID(id1))

	id2, err := NewSessionID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestValidSessionID(t *testing.T) {
	assert.False(t, ValidSessionID(""))
	assert.False(t, ValidSessionID("wsid_"))
	assert.False(t, ValidSessionID("wsid_not-base64!!"))
	assert.False(t, ValidSessionID("sess_abcdef"))
	assert.False(t, ValidSessionID(SessionIDPrefix+"c2hvcnQ"))
}

func TestHashSessionID(t *testing.T) {
	h1 := HashSessionID("wsid_a")
	h2 := HashSessionID("wsid_a")
	h3 := HashSessionID("wsid_b")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
