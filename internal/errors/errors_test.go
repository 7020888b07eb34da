package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"rnadiff/domain/core"
)

func TestGetCodeClassifiesDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"design", core.NewDesignError("missing group"), CodeInputValidation},
		{"matrix", core.NewMatrixError("negative count"), CodeInputValidation},
		{"empty", fmt.Errorf("fdr: %w", core.ErrEmptyInput), CodeEmptyInput},
		{"search", core.NewSearchError("poll", stderrors.New("timeout")), CodeSearchUnavailable},
		{"in flight", core.ErrSearchInFlight, CodeSearchUnavailable},
		{"run", core.NewNotFoundError("run", "x"), CodeNotFound},
		{"plain", stderrors.New("boom"), CodeInternalError},
		{"config", ConfigInvalid("port"), CodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
	assert.Equal(t, "", GetCode(nil))
}

func TestWrapKeepsCodeAndChain(t *testing.T) {
	base := core.NewDesignError("missing group")
	wrapped := Wrapf(base, "stage %s", "design")

	assert.Equal(t, CodeInputValidation, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, core.ErrInvalidDesign))
	assert.Equal(t, "stage design: "+base.Error(), wrapped.Error())

	db := Wrap(DatabaseError("insert failed", stderrors.New("locked")), "save run")
	assert.Equal(t, CodeDatabaseError, GetCode(db))
	assert.True(t, IsAppError(db))

	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, WithCode(CodeNotFound, nil))
}

func TestWithCodeOverrides(t *testing.T) {
	err := WithCode(CodeConfigInvalid, stderrors.New("bad port"))
	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "bad port", err.Error())

	err = WithCode(CodeNotFound, ConfigInvalid("x"))
	assert.Equal(t, CodeNotFound, GetCode(err))
	assert.Equal(t, "x", err.Error())
}
