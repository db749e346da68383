package bot

import (
	"context"
	"testing"

	"roombot/internal/transport"
	logx "roombot/pkg/logx"
)

type fakeAdapter struct {
	sent    []string
	answers []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

type fakeRoles map[int64]int

func (f fakeRoles) RoleLevel(ctx context.Context, userID int64) (int, error) {
	return f[userID], nil
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		name string
		args string
		ok   bool
	}{
		{"/start", "start", "", true},
		{"/start@roombot", "start", "", true},
		{"/ROLE 7 2", "role", "7 2", true},
		{"/rooms   ", "rooms", "", true},
		{"  /help extra words ", "help", "extra words", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@roombot", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.in)
		if name != tt.name || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, name, args, ok, tt.name, tt.args, tt.ok)
		}
	}
}

func TestRouterRoleGate(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	roles := fakeRoles{1: 0, 2: 2}
	r := NewRouter(adapter, roles, logx.Nop())

	called := 0
	r.Register(Command{Name: "admin", MinRole: 2, Handle: func(ctx context.Context, msg *transport.Message, args string) error {
		called++
		return nil
	}})

	msg := func(from int64) *transport.Message {
		return &transport.Message{ChatID: 10, FromID: from, Text: "/admin"}
	}
	r.handleMessage(context.Background(), msg(1))
	if called != 0 {
		t.Fatal("handler ran for level-0 user")
	}
	if len(adapter.sent) != 1 || adapter.sent[0] != textForbidden {
		t.Fatalf("sent = %q, want forbidden reply", adapter.sent)
	}

	r.handleMessage(context.Background(), msg(2))
	if called != 1 {
		t.Fatalf("called = %d, want 1 for level-2 user", called)
	}
}

func TestRouterUnknownCommand(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	r := NewRouter(adapter, fakeRoles{}, logx.Nop())

	r.handleMessage(context.Background(), &transport.Message{ChatID: 1, FromID: 1, Text: "/nope"})
	if len(adapter.sent) != 1 || adapter.sent[0] != textUnknownCommand {
		t.Fatalf("sent = %q, want unknown-command reply in private chat", adapter.sent)
	}

	adapter.sent = nil
	r.handleMessage(context.Background(), &transport.Message{ChatID: -100, FromID: 1, Text: "/nope", IsGroup: true})
	if len(adapter.sent) != 0 {
		t.Fatalf("sent = %q, want silence in group chat", adapter.sent)
	}
}

func TestRouterCallbackRoleGate(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	roles := fakeRoles{5: 1}
	r := NewRouter(adapter, roles, logx.Nop())

	var gotParts []string
	r.RegisterCallback("notif", 2, func(ctx context.Context, cb *transport.Callback, parts []string) error {
		gotParts = parts
		return nil
	})

	cb := &transport.Callback{ID: "cb1", FromID: 5, Data: "notif:disable:abc"}
	r.handleCallback(context.Background(), cb)
	if gotParts != nil {
		t.Fatal("callback handler ran for under-leveled user")
	}
	if len(adapter.answers) != 1 || adapter.answers[0] != textForbidden {
		t.Fatalf("answers = %q, want forbidden", adapter.answers)
	}

	roles[5] = 2
	r.handleCallback(context.Background(), cb)
	if len(gotParts) != 3 || gotParts[0] != "notif" || gotParts[1] != "disable" || gotParts[2] != "abc" {
		t.Fatalf("parts = %q", gotParts)
	}
}

func TestRouterUnroutedCallbackStillAnswered(t *testing.T) {
	t.Parallel()
	adapter := &fakeAdapter{}
	r := NewRouter(adapter, fakeRoles{}, logx.Nop())

	r.handleCallback(context.Background(), &transport.Callback{ID: "cb1", FromID: 1, Data: "mystery:button"})
	if len(adapter.answers) != 1 {
		t.Fatalf("answers = %d, want 1 (spinner must be dismissed)", len(adapter.answers))
	}
}
