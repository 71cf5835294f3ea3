package transport

import (
	"encoding/json"
	"io"

	"github.com/QuangTung97/council-election/paxos"
)

// The wire format is one JSON document per connection. JSON keeps the
// encoding deterministic and self delimiting, and unknown or extra
// fields are tolerated on read.

func WriteMessage(w io.Writer, msg paxos.Message) error {
	return json.NewEncoder(w).Encode(msg)
}

func ReadMessage(r io.Reader) (paxos.Message, error) {
	var msg paxos.Message
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return paxos.Message{}, err
	}
	return msg, nil
}
