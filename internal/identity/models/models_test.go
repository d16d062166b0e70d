package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	assert.True(t, r.Elevated())

	r, err = ParseRole("dispatcher")
	require.NoError(t, err)
	assert.False(t, r.Elevated())

	_, err = ParseRole("sheriff")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestPrincipalResolvable(t *testing.T) {
	assert.False(t, Principal{}.Resolvable())
	assert.False(t, Principal{UserID: id.NewUserID()}.Resolvable())
	assert.True(t, Principal{UserID: id.NewUserID(), HomeAgencyID: id.NewAgencyID()}.Resolvable())
}
