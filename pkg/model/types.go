package model

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidVideoURL         = errors.New("video url must be http or https")
	ErrSessionNotActive        = errors.New("session is not active")
	ErrParticipantLimitReached = errors.New("participant limit reached")
	ErrIllegalTransition       = errors.New("illegal session transition")
	ErrEngineStopped           = errors.New("sync engine stopped")
)

// MarshalBinary lets participants be stored directly in Redis hashes
func (p Participant) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalBinary is the inverse of MarshalBinary
func (p *Participant) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}
