package devreload

import (
	"time"

	"authgate/cmd/internal/ids"
)

const (
	Version = 1

	TypeHello      = "hello"
	TypeBuildReady = "build.ready"
)

// Message is the only frame written to dev reload clients.
type Message struct {
	V            int       `json:"v"`
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	TS           time.Time `json:"ts"`
	BuildVersion string    `json:"build_version"`
}

func newMessage(typ, buildVersion string, now time.Time) Message {
	id, err := ids.NewULID(now)
	if err != nil {
		// Entropy failure only costs the frame its id.
		id = ""
	}
	return Message{
		V:            Version,
		Type:         typ,
		ID:           id,
		TS:           now.UTC(),
		BuildVersion: buildVersion,
	}
}
