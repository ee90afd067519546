package txstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert := assert.New(t)
	cases := map[TXStatus]string{
		TXStatus(73): "IDLE",
		TXStatus(69): "ERROR",
		TXStatus(84): "ACTIVE",
		TXStatus(0):  "invalid",
	}
	for status, except := range cases {
		assert.Equal(except, status.String())
	}
}

func TestActive(t *testing.T) {
	assert := assert.New(t)

	assert.True(TXACT.Active())
	assert.False(TXIDLE.Active())
	assert.False(TXERR.Active())
}
