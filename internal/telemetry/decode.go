package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned for frames that are not a JSON object of the expected shape
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMissingType is returned for JSON objects without a type tag
	ErrMissingType = errors.New("frame has no type")
)

type decoder func(frame []byte) (Message, error)

var decoders = map[string]decoder{
	TypeAvgBattery:              decodeAs[AvgBattery],
	TypeActiveRobots:            decodeAs[ActiveRobots],
	TypeScanned24h:              decodeAs[Scanned24h],
	TypeCriticalUnique:          decodeAs[CriticalUnique],
	TypeStatusAvg:               decodeAs[StatusAvg],
	TypeActivitySeries:          decodeAs[ActivitySeries],
	TypeProductScan:             decodeAs[ProductScan],
	TypeRobotPositions:          decodeAs[RobotPositions],
	TypeRobotPositionsDiff:      decodeAs[RobotPositionsDiff],
	TypeRobotPositionsKeepalive: decodeAs[RobotPositionsKeepalive],
	TypeProductSnapshot:         decodeAs[ProductSnapshot],
	TypeProductChanged:          decodeAs[ProductChanged],
	TypeProductDeleted:          decodeAs[ProductDeleted],
}

func decodeAs[T Message](frame []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Decode classifies a raw frame by its type tag.
// Frames with an unrecognized type decode to Unknown without error.
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Kind == "" {
		return nil, ErrMissingType
	}

	decode, ok := decoders[env.Kind]
	if !ok {
		raw := make(json.RawMessage, len(frame))
		copy(raw, frame)
		return Unknown{Envelope: env, Raw: raw}, nil
	}

	msg, err := decode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, env.Kind, err)
	}
	return msg, nil
}

// Encode renders a message as a wire frame
func Encode(msg Message) ([]byte, error) {
	if u, ok := msg.(Unknown); ok && len(u.Raw) > 0 {
		return u.Raw, nil
	}
	return json.Marshal(msg)
}

// Known reports whether the type tag is handled by Decode
func Known(kind string) bool {
	_, ok := decoders[kind]
	return ok
}
