package app

import (
	"errors"
	"testing"

	"heimdall/internal/domain"
)

func TestSessionStateMachine(t *testing.T) {
	t.Parallel()

	var session Session
	if _, _, err := session.End(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if session.Add(domain.Event{Kind: domain.KindNew}) {
		t.Fatal("idle session must not buffer events")
	}
	if err := session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Start(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	session.Add(domain.Event{Kind: domain.KindRecurring, Record: domain.AlertRecord{Server: "a"}})
	session.Add(domain.Event{Kind: domain.KindResolved, Record: domain.AlertRecord{Server: "b"}})
	session.Add(domain.Event{Kind: domain.KindNew, Record: domain.AlertRecord{Server: "c"}})
	session.Add(domain.Event{Kind: domain.KindRecurring, Record: domain.AlertRecord{Server: "d"}})

	alerts, resolutions, err := session.End()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(alerts) != 3 || alerts[0].Record.Server != "c" || alerts[1].Record.Server != "a" || alerts[2].Record.Server != "d" {
		t.Fatalf("alerts must list new before recurring in arrival order, got %+v", alerts)
	}
	if len(resolutions) != 1 || resolutions[0].Record.Server != "b" {
		t.Fatalf("unexpected resolutions %+v", resolutions)
	}
	if session.Collecting() {
		t.Fatal("session must be idle after End")
	}
	if err := session.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
}
