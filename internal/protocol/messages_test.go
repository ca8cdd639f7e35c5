package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageQuery(t *testing.T) {
	raw := []byte(`{"type":"client_query","request_id":"r1","session_id":"s1","query":"What is clause 6.1.2?"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	q, ok := msg.(ClientQuery)
	if !ok {
		t.Fatalf("message type = %T, want ClientQuery", msg)
	}
	if q.SessionID != "s1" || q.RequestID != "r1" || q.Query != "What is clause 6.1.2?" {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestParseClientMessageQueryWithoutSession(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_query","query":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if q := msg.(ClientQuery); q.SessionID != "" {
		t.Fatalf("SessionID = %q, want empty", q.SessionID)
	}
}

func TestParseClientMessageRejectsBlankQuery(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_query","session_id":"s1","query":"   "}`)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"cancel","request_id":"r1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionCancel || control.RequestID != "r1" {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"reboot"}`)); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func BenchmarkParseClientMessageQuery(b *testing.B) {
	raw := []byte(`{"type":"client_query","session_id":"s1","query":"Which Annex A controls cover supplier relationships?"}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatal(err)
		}
	}
}
