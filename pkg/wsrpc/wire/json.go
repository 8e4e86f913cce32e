package wire

import "encoding/json"

// EncodeJSON and DecodeJSON exist purely for debugging the demo server:
// unlike Encode/Decode, the result is human-readable in a packet capture.
// Session and Correlator only ever call Encode/Decode.
func EncodeJSON(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func DecodeJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	return &msg, nil
}
