package discovery

import "encoding/json"

// Request is the taskqueue.QueueDiscoverPlatform payload: which namespace
// and platform name to discover against.
type Request struct {
	NsID string `json:"ns_id"`
	Name string `json:"name"`
}

func encodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest decodes a taskqueue.QueueDiscoverPlatform payload, used by
// the worker dispatching tasks from that queue to Run.
func DecodeRequest(payload []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(payload, &r)
	return r, err
}
