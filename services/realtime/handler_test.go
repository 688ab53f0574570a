package realtime

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControlFramesCarryEnvelope(t *testing.T) {
	for _, typ := range []string{"connected", "ping"} {
		var buf bytes.Buffer
		writeEvent(&buf, Event{Type: typ, Timestamp: time.Now()})

		frame := buf.String()
		require.True(t, strings.HasPrefix(frame, "event: "+typ+"\n"))

		data := strings.TrimSpace(strings.TrimPrefix(frame, "event: "+typ+"\ndata: "))
		var decoded struct {
			Type      string    `json:"type"`
			Timestamp time.Time `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &decoded))
		require.Equal(t, typ, decoded.Type)
		require.False(t, decoded.Timestamp.IsZero())
	}
}
