package sshbridge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeParsesBigEndianInt32(t *testing.T) {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, 7)
	assert.Equal(t, 7, exitCode(data))
}

func TestExitCodeIgnoresMalformedPayload(t *testing.T) {
	assert.Equal(t, 0, exitCode([]byte{1, 2}))
	assert.Equal(t, 0, exitCode(nil))
}
