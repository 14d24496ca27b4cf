package types

import (
	"errors"
	"flag"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorKeepsKindAndCode(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		code errbuilder.ErrCode
	}{
		{kind: ErrorKindLock, code: errbuilder.CodeFailedPrecondition},
		{kind: ErrorKindNetwork, code: errbuilder.CodeInternal},
		{kind: ErrorKindIntegrity, code: errbuilder.CodeFailedPrecondition},
		{kind: ErrorKindModule, code: errbuilder.CodeInvalidArgument},
		{kind: ErrorKindValidation, code: errbuilder.CodeFailedPrecondition},
		{kind: ErrorKindHook, code: errbuilder.CodePermissionDenied},
		{kind: "", code: errbuilder.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind, "boom", nil)
			var lifecycle *Error
			require.True(t, errors.As(err, &lifecycle))
			assert.Equal(t, tt.code, lifecycle.Code())
			assert.Equal(t, "boom", err.Error())
			if tt.kind != "" {
				assert.Equal(t, tt.kind, KindOf(err))
			}
		})
	}
}

func TestErrorWithoutBuilderUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	bare := &Error{Kind: ErrorKindModule, Msg: "copy failed", Cause: cause}

	assert.False(t, errors.Is(bare, flag.ErrHelp))
	assert.True(t, errors.Is(bare, cause))
	assert.Equal(t, []error{cause}, bare.Unwrap())
	assert.Empty(t, (&Error{Kind: ErrorKindLock, Msg: "held"}).Unwrap())
}

func TestErrorChainReachesCause(t *testing.T) {
	err := NewNetworkError("registry error", ErrAuthenticationRequired)
	assert.True(t, errors.Is(err, ErrAuthenticationRequired))
	assert.False(t, errors.Is(err, flag.ErrHelp))
	assert.True(t, IsKind(err, ErrorKindNetwork))
	assert.Equal(t, "registry error: authentication required", err.Error())
}
