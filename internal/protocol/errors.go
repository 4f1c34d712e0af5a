package protocol

// ProtocolError reports a frame that could not be decoded or encoded.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
