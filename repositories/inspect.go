package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders stored records for the Badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "participant:"):
		var p diskParticipant
		if err := cbor.Unmarshal(val, &p); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "PARTICIPANT"
		row.Detail = fmt.Sprintf("%s active=%t last_active=%s",
			p.State, p.Active, time.Unix(0, p.LastActive).UTC().Format(time.RFC3339))
	case strings.HasPrefix(key, "session:"):
		var s diskSession
		if err := cbor.Unmarshal(val, &s); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "SESSION"
		row.Detail = fmt.Sprintf("%s <-> %s active=%t", s.First, s.Second, s.Active)
	case strings.HasPrefix(key, "msg:"):
		var m diskMessage
		if err := cbor.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("%s -> %s (%d bytes)", m.SenderID, m.RecipientID, len(m.Content))
	case strings.HasPrefix(key, "active:"):
		row.Type = "ACTIVE"
		row.Detail = string(val)
	case strings.HasPrefix(key, "state:"):
		row.Type = "INDEX"
	}
	return row
}
