package domain

import (
	"errors"
	"fmt"
)

// AnimationState is the avatar animation currently played by a participant.
type AnimationState string

const (
	AnimationIdle    AnimationState = "idle"
	AnimationWalking AnimationState = "walking"
)

var ErrUnknownAnimation = errors.New("unknown animation state")

func ParseAnimationState(raw string) (AnimationState, error) {
	switch s := AnimationState(raw); s {
	case AnimationIdle, AnimationWalking:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAnimation, raw)
	}
}
