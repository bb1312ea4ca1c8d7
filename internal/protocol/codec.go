package protocol

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownType      = errors.New("unknown message type")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode builds a ready-to-send envelope frame.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	b, err := json.Marshal(Envelope{Type: typ, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", typ, err)
	}
	return b, nil
}

// Decode parses the outer envelope only.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst and, for structs,
// enforces the validate tags.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrMalformedPayload, env.Type)
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// dst is not a struct, nothing to validate
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return nil
}
