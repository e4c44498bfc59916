package protocol

const (
	// DeviceName is the advertised name clients look for.
	DeviceName = "ESP32-RC-CAR"

	ServiceUUID = "fc96f65e-318a-4001-84bd-77e9d12af44b"
	TxCharUUID  = "94b43599-5ea2-41e7-9d99-6ff9b904ae3a" // Notify
	RxCharUUID  = "04d3552e-b9b3-4be6-a8b4-aa43c4507c4d" // Write
)

const (
	CommandLength = 2
	MaxDuty       = 100.0
	MaxDutyByte   = 255
)

const (
	OpForward  Opcode = 0x01
	OpBackward Opcode = 0x02
	OpStop     Opcode = 0x03
	OpSteer    Opcode = 0x04
)

const (
	Stop Direction = iota // zero value is the safe one
	Forward
	Backward
)

const (
	TelemetryState Telemetry = 0x80
	TelemetryLink  Telemetry = 0x81
	TelemetryFault Telemetry = 0x82
)

const (
	LinkDisconnected byte = 0x00
	LinkConnected    byte = 0x01
)

const (
	FaultForceLow byte = 0x01
	FaultSetDuty  byte = 0x02
	FaultServo    byte = 0x03
)
