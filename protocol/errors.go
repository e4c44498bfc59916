package protocol

import "errors"

var (
	ErrEmpty            = errors.New("empty buffer")
	ErrInvalidLength    = errors.New("invalid command length")
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrOutOfRange       = errors.New("duty cycle out of range [0,100]")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidTelemetry = errors.New("invalid telemetry notification")
)
