package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationTransition(t *testing.T) {
	t.Run("pending to accepted", func(t *testing.T) {
		v := Verification{Status: VerificationPending}
		require.NoError(t, v.Transition(VerificationAccepted, ""))
		assert.Equal(t, VerificationAccepted, v.Status)
	})

	t.Run("accept twice", func(t *testing.T) {
		v := Verification{Status: VerificationPending}
		require.NoError(t, v.Transition(VerificationAccepted, ""))
		err := v.Transition(VerificationAccepted, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, VerificationAccepted, v.Status)
	})

	t.Run("reject after accept", func(t *testing.T) {
		v := Verification{Status: VerificationAccepted}
		assert.ErrorIs(t, v.Transition(VerificationRejected, "late"), ErrInvalidTransition)
		assert.Empty(t, v.RejectionReason)
	})

	t.Run("reject needs reason", func(t *testing.T) {
		v := Verification{Status: VerificationPending}
		assert.ErrorIs(t, v.Transition(VerificationRejected, "   "), ErrValidation)
		assert.Equal(t, VerificationPending, v.Status)
	})

	t.Run("reject then re-review", func(t *testing.T) {
		v := Verification{Status: VerificationPending}
		require.NoError(t, v.Transition(VerificationRejected, " damaged proof "))
		assert.Equal(t, "damaged proof", v.RejectionReason)

		require.NoError(t, v.Transition(VerificationRejected, "still blurry"))
		assert.Equal(t, "still blurry", v.RejectionReason)

		require.NoError(t, v.Transition(VerificationAccepted, ""))
		assert.Equal(t, VerificationAccepted, v.Status)
		assert.Empty(t, v.RejectionReason)
	})

	t.Run("reset to pending", func(t *testing.T) {
		v := Verification{Status: VerificationRejected, RejectionReason: "x"}
		assert.ErrorIs(t, v.Transition(VerificationPending, ""), ErrValidation)
		assert.Equal(t, VerificationRejected, v.Status)
	})
}

func TestStatusPolicies(t *testing.T) {
	var p StatusPolicy = PermissiveStatus{}
	assert.True(t, p.Allow(StatusDelivered, StatusConfirmed))
	assert.True(t, p.Allow(StatusConfirmed, StatusDelivered))

	p = ForwardStatus{}
	assert.True(t, p.Allow(StatusConfirmed, StatusProcessing))
	assert.True(t, p.Allow(StatusShipped, StatusShipped))
	assert.False(t, p.Allow(StatusConfirmed, StatusShipped))
	assert.False(t, p.Allow(StatusDelivered, StatusShipped))

	_, err := PolicyByName("sideways")
	assert.Error(t, err)
	p, err = PolicyByName("")
	require.NoError(t, err)
	assert.IsType(t, PermissiveStatus{}, p)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)

	_, err = ParseStatus("delivered")
	assert.ErrorIs(t, err, ErrValidation)
}
