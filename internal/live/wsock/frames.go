package wsock

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"apb/internal/live"
	id "apb/pkg/domain"
)

// Client frame types.
const (
	frameAuthenticate = "authenticate"
	frameView         = "bulletin:view"
)

// Server frame type sent once a connection is admitted. Event frames use the
// bulletin event types.
const frameAdmitted = "connection:admitted"

// clientFrame is anything a client may send.
type clientFrame struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	BulletinID string `json:"bulletin_id,omitempty"`
}

type admittedFrame struct {
	Type         string        `json:"event_type"`
	ConnectionID string        `json:"connection_id"`
	Agencies     []id.AgencyID `json:"agencies"`
}

func decodeClientFrame(data []byte) (clientFrame, error) {
	var f clientFrame
	err := json.Unmarshal(data, &f)
	return f, err
}

// Close codes in the private range, one per reason a client can act on.
const (
	CloseAuthFailed       = 4401
	CloseAdmissionTimeout = 4408
	CloseSlowConsumer     = 4429
)

func closeCode(reason live.CloseReason) (int, string) {
	switch reason {
	case live.ReasonAuthFailed:
		return CloseAuthFailed, "authentication failed"
	case live.ReasonAdmissionTimeout:
		return CloseAdmissionTimeout, "admission timeout"
	case live.ReasonSlowConsumer:
		return CloseSlowConsumer, "slow consumer"
	case live.ReasonShutdown:
		return websocket.CloseGoingAway, "server shutting down"
	default:
		return websocket.CloseNormalClosure, ""
	}
}
