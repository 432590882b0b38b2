package service

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRedisStreamNotifierAppendsMessage(t *testing.T) {
	_, client := newRedisClientForTest(t)
	clock := newTestClock()
	n := NewRedisStreamNotifier(client, "mail:outbox", "no-reply@x.com", clock.Now)

	msg := Message{Kind: MailKindVerifyEmail, To: "a@x.com", Subject: "Verify your email", HTML: "<p>hi</p>"}
	if err := n.Send(t.Context(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	entries, err := client.XRange(t.Context(), "mail:outbox", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	v := entries[0].Values
	if v["to"] != "a@x.com" || v["kind"] != MailKindVerifyEmail || v["from"] != "no-reply@x.com" {
		t.Fatalf("unexpected entry: %v", v)
	}
	if v["queued_at"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected queued_at: %v", v["queued_at"])
	}
}

func TestRedisStreamNotifierReportsOutage(t *testing.T) {
	server, client := newRedisClientForTest(t)
	n := NewRedisStreamNotifier(client, "mail:outbox", "no-reply@x.com", newTestClock().Now)
	server.Close()

	if err := n.Send(t.Context(), Message{Kind: MailKindResetPassword, To: "a@x.com"}); err == nil {
		t.Fatal("expected delivery error when redis is down")
	}
}

func TestLogNotifierKeepsBodyOutOfInfo(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier("no-reply@x.com", slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	if err := n.Send(t.Context(), Message{Kind: MailKindResetPassword, To: "a@x.com", HTML: "secret-link"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(buf.String(), "secret-link") {
		t.Fatalf("message body logged at info: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "mail queued") {
		t.Fatalf("expected queued log line: %s", buf.String())
	}
}
