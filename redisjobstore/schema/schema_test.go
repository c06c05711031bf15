package schema

import (
	"testing"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

func TestJobHash(t *testing.T) {
	s := New("qz", ":")
	k := quartz.NewJobKey("myjob", "mygroup")
	got := s.JobHash(k)
	want := "qz:job:mygroup:myjob"
	if got != want {
		t.Fatalf("JobHash: expected %q, got %q", want, got)
	}
}

func TestEncodeDecodeTriggerKeyRoundTrip(t *testing.T) {
	s := New("qz", ":")
	k := quartz.NewTriggerKey("t1", "G")
	encoded := s.EncodeTriggerKey(k)
	decoded, ok := s.DecodeTriggerKey(encoded)
	if !ok {
		t.Fatalf("DecodeTriggerKey: expected ok=true")
	}
	if decoded != k {
		t.Fatalf("DecodeTriggerKey: expected %+v, got %+v", k, decoded)
	}
}

func TestDefaultDelimiter(t *testing.T) {
	s := New("qz", "")
	if s.Delimiter != ":" {
		t.Fatalf("expected default delimiter ':', got %q", s.Delimiter)
	}
}

func TestTriggerStateSet(t *testing.T) {
	s := New("qz", ":")
	got := s.TriggerStateSet(quartz.StateWaiting)
	want := "qz:trigger_state:Waiting"
	if got != want {
		t.Fatalf("TriggerStateSet: expected %q, got %q", want, got)
	}
}
