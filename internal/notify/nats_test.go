package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"erp-server/internal/core"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error { return nil }

func TestPublishUsesTypeSubject(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, zerolog.Nop())
	n := core.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Title:     "Approval required",
		Type:      "approval",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	p.Publish(context.Background(), n)

	if len(fc.subjects) != 1 || fc.subjects[0] != "erp.notifications.approval" {
		t.Fatalf("subjects = %v", fc.subjects)
	}
	var ev Event
	if err := json.Unmarshal(fc.payloads[0], &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.ID != n.ID.String() || ev.UserID != n.UserID.String() || ev.Title != n.Title {
		t.Errorf("event = %+v", ev)
	}
}

func TestPublishFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, zerolog.New(&logs))
	p.Publish(context.Background(), core.Notification{Type: "credit"})
	if !strings.Contains(logs.String(), "non-fatal") {
		t.Errorf("expected a warning, got %q", logs.String())
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.Publish(context.Background(), core.Notification{Type: "info"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
