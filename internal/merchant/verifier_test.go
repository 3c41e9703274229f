package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestIsVerified(t *testing.T) {
	v := NewVerifier([]string{" Shoprite ", "OPay Digital", ""}, zap.NewNop())

	assert.True(t, v.IsVerified("SHOPRITE"))
	assert.True(t, v.IsVerified("shoprite   lekki branch"))
	assert.True(t, v.IsVerified("OPAY DIGITAL SERVICES"))
	assert.False(t, v.IsVerified("SHOPRITES"), "whole words only")
	assert.False(t, v.IsVerified("OPAY"))
	assert.False(t, v.IsVerified(""))
}

func TestEmptyVerifier(t *testing.T) {
	assert.False(t, NewVerifier(nil, nil).IsVerified("anything"))

	var v *Verifier
	assert.False(t, v.IsVerified("anything"))
}
