package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"run start", Event{RunID: id, TS: now, Stage: StageRunStart}, false},
		{"fetch done with url", Event{RunID: id, TS: now, Stage: StageFetchDone, URL: "https://example.com/x/1/"}, false},
		{"fetch done missing url", Event{RunID: id, TS: now, Stage: StageFetchDone}, true},
		{"missing run id", Event{TS: now, Stage: StageRunStart}, true},
		{"missing timestamp", Event{RunID: id, Stage: StageRunStart}, true},
		{"unknown stage", Event{RunID: id, TS: now, Stage: Stage("NOPE")}, true},
		{"negative duration", Event{RunID: id, TS: now, Stage: StageRunDone, Dur: -time.Second}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRunUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: UUIDToBytes(id)}
	require.Equal(t, id, evt.RunUUID())
}
