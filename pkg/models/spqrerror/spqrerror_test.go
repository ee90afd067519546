package spqrerror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pg-sharding/readreplicas/pkg/models/spqrerror"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsByCode(t *testing.T) {
	assert := assert.New(t)

	err := spqrerror.New(spqrerror.RR_CONFIGURATION, "at least one replica must be specified")
	assert.ErrorIs(err, spqrerror.ErrConfiguration)
	assert.NotErrorIs(err, spqrerror.ErrInvalidOperation)

	wrapped := fmt.Errorf("building pool: %w", err)
	assert.ErrorIs(wrapped, spqrerror.ErrConfiguration)
}

func TestErrorMessage(t *testing.T) {
	assert := assert.New(t)

	err := spqrerror.New(spqrerror.RR_INVALID_OPERATION, "cannot use a forced replica view inside a transaction")
	assert.Equal("InvalidOperationError: cannot use a forced replica view inside a transaction", err.Error())
	assert.Equal("cannot use a forced replica view inside a transaction", err.Message())

	assert.Equal("Unexpected error", spqrerror.GetMessageByCode("nope"))
}

func TestNewfKeepsCause(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("dial tcp: connection refused")
	err := spqrerror.Newf(spqrerror.RR_EXECUTION, "replica %d: %w", 2, cause)

	assert.ErrorIs(err, cause)
	assert.ErrorIs(err, spqrerror.ErrExecution)
	assert.Contains(err.Error(), "replica 2")
}
