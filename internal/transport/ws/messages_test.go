package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meethub/meeting-service/internal/domain"
)

func Test_decode(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		var p JoinPayload
		err := decode(map[string]any{"code": "ABC123"}, &p)
		require.NoError(t, err)
		assert.Equal(t, "ABC123", p.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		var p JoinPayload
		err := decode(map[string]any{"code": "ABC123", "admin": true}, &p)
		assert.Error(t, err, "unexpected fields must fail, not be filtered")
	})

	t.Run("partial media update keeps untouched flags nil", func(t *testing.T) {
		var p UpdateStatusPayload
		err := decode(map[string]any{"meetingId": "m1", "isMicOn": false}, &p)
		require.NoError(t, err)
		require.NotNil(t, p.MicOn)
		assert.False(t, *p.MicOn)
		assert.Nil(t, p.CameraOn)
		assert.Nil(t, p.ScreenShare)
	})

	t.Run("wrong type rejected", func(t *testing.T) {
		var p ChatSendPayload
		err := decode(map[string]any{"meetingId": "m1", "content": 42}, &p)
		assert.Error(t, err)
	})
}

func Test_kindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrMeetingNotFound, KindNotFound},
		{domain.ErrParticipantNotFound, KindNotFound},
		{domain.ErrForbidden, KindForbidden},
		{domain.ErrAlreadyEnded, KindConflict},
		{domain.ErrInvalidRequest, KindInvalidRequest},
		{domain.ErrUnauthenticated, KindUnauthenticated},
		{domain.ErrMeetingFull, KindUnavailable},
		{domain.ErrBusy, KindTransient},
		{errors.New("pg down"), KindTransient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kindOf(tt.err), "kind for %v", tt.err)
	}
}

func Test_errorMessage_hides_internal_faults(t *testing.T) {
	msg := errorMessage(errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	payload := msg.Payload.(ErrorPayload)
	assert.Equal(t, KindTransient, payload.Kind)
	assert.NotContains(t, payload.Message, "10.0.0.5", "internal details must not leak")

	msg = errorMessage(domain.ErrMeetingFull)
	payload = msg.Payload.(ErrorPayload)
	assert.Equal(t, KindUnavailable, payload.Kind)
	assert.Equal(t, domain.ErrMeetingFull.Error(), payload.Message)
}
