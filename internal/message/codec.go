package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EncodeFrame serializes a frame for the presentation clients.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSONMarshalFailed, err)
	}
	return data, nil
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrJSONUnmarshalFailed, err)
	}
	return f, nil
}

// FormatToken renders a sample value as one line-protocol token, without the newline.
func FormatToken(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
