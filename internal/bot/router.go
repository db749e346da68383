// Package bot routes incoming chat updates to command and callback handlers
// and enforces role levels before a handler runs.
package bot

import (
	"context"
	"sort"
	"strings"
	"time"

	"roombot/internal/transport"
	logx "roombot/pkg/logx"
)

// Roles resolves a user's administrative level (0..3).
type Roles interface {
	RoleLevel(ctx context.Context, userID int64) (int, error)
}

type Handler func(ctx context.Context, msg *transport.Message, args string) error

// CallbackHandler receives the colon-separated callback data already split
// into at most three parts ("notif:disable:<id>" -> ["notif" "disable" "<id>"]).
type CallbackHandler func(ctx context.Context, cb *transport.Callback, parts []string) error

type Command struct {
	Name        string
	Description string
	MinRole     int
	Handle      Handler
}

type callbackRoute struct {
	minRole int
	handle  CallbackHandler
}

type Router struct {
	adapter  transport.Adapter
	roles    Roles
	log      logx.Logger
	commands map[string]Command
	cbRoutes map[string]callbackRoute

	// handleTimeout bounds a single handler so one stuck Telegram call
	// cannot stall the whole update stream.
	handleTimeout time.Duration
}

func NewRouter(adapter transport.Adapter, roles Roles, log logx.Logger) *Router {
	return &Router{
		adapter:       adapter,
		roles:         roles,
		log:           log,
		commands:      make(map[string]Command),
		cbRoutes:      make(map[string]callbackRoute),
		handleTimeout: 30 * time.Second,
	}
}

func (r *Router) Register(cmd Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
}

// RegisterCallback routes callback data whose first colon-separated segment
// equals prefix.
func (r *Router) RegisterCallback(prefix string, minRole int, h CallbackHandler) {
	r.cbRoutes[prefix] = callbackRoute{minRole: minRole, handle: h}
}

// Commands returns the registered commands ordered by name, for help text
// and command menu publishing.
func (r *Router) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run consumes updates until ctx is canceled or the channel closes.
// Handlers run sequentially; ordering within a chat is preserved.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			hctx, cancel := context.WithTimeout(ctx, r.handleTimeout)
			r.dispatch(hctx, u)
			cancel()
		}
	}
}

func (r *Router) dispatch(ctx context.Context, u transport.Update) {
	switch u.Kind {
	case transport.UpdateMessage:
		if u.Message != nil {
			r.handleMessage(ctx, u.Message)
		}
	case transport.UpdateCallback:
		if u.Callback != nil {
			r.handleCallback(ctx, u.Callback)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *transport.Message) {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	cmd, found := r.commands[name]
	if !found {
		// Stay quiet in group chats; unknown text there is usually not
		// meant for the bot.
		if !msg.IsGroup {
			r.reply(ctx, msg, textUnknownCommand)
		}
		return
	}

	if cmd.MinRole > 0 {
		level, err := r.roles.RoleLevel(ctx, msg.FromID)
		if err != nil {
			r.log.Warn("role lookup failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
			return
		}
		if level < cmd.MinRole {
			r.reply(ctx, msg, textForbidden)
			return
		}
	}

	if err := cmd.Handle(ctx, msg, args); err != nil {
		r.log.Warn("command failed",
			logx.String("command", name),
			logx.Int64("user_id", msg.FromID),
			logx.Err(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	parts := strings.SplitN(cb.Data, ":", 3)
	route, found := r.cbRoutes[parts[0]]
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	if route.minRole > 0 {
		level, err := r.roles.RoleLevel(ctx, cb.FromID)
		if err != nil {
			r.log.Warn("role lookup failed", logx.Int64("user_id", cb.FromID), logx.Err(err))
			_ = r.adapter.AnswerCallback(ctx, cb.ID, textForbidden)
			return
		}
		if level < route.minRole {
			_ = r.adapter.AnswerCallback(ctx, cb.ID, textForbidden)
			return
		}
	}

	if err := route.handle(ctx, cb, parts); err != nil {
		r.log.Warn("callback failed",
			logx.String("data", cb.Data),
			logx.Int64("user_id", cb.FromID),
			logx.Err(err))
	}
}

func (r *Router) reply(ctx context.Context, msg *transport.Message, text string) {
	target := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := r.adapter.SendText(ctx, target, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}

// parseCommand extracts "/name@bot args" into (name, args). Non-commands
// report ok=false.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	if rest == "" {
		return "", "", false
	}
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		name = rest
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), args, true
}
