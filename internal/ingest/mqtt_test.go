package ingest

import (
	"testing"

	"github.com/google/uuid"
)

func TestSensorIDFromTopic(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		topic   string
		want    uuid.UUID
		wantErr bool
	}{
		{"terraweb/sensors/" + id.String() + "/measurements", id, false},
		{"sensors/" + id.String() + "/measurements", id, false},
		{"terraweb/sensors/not-a-uuid/measurements", uuid.Nil, true},
		{"terraweb/measurements", uuid.Nil, true},
		{"", uuid.Nil, true},
	}

	for _, test := range tests {
		got, err := sensorIDFromTopic(test.topic)
		if test.wantErr {
			if err == nil {
				t.Errorf("sensorIDFromTopic(%q) expected error, got %v", test.topic, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("sensorIDFromTopic(%q): %v", test.topic, err)
			continue
		}
		if got != test.want {
			t.Errorf("sensorIDFromTopic(%q) = %v, want %v", test.topic, got, test.want)
		}
	}
}
