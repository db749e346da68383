package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"roombot/internal/eventbus"
	"roombot/internal/notify"
	"roombot/internal/store"
	"roombot/internal/transport"
	logx "roombot/pkg/logx"
)

// Handlers implements the user-facing commands on top of the booking store
// and the notification snapshot.
type Handlers struct {
	adapter   transport.Adapter
	db        *store.Store
	notes     notify.Store
	bus       *eventbus.Bus
	log       logx.Logger
	webAppURL string
	loc       *time.Location
}

func NewHandlers(adapter transport.Adapter, db *store.Store, notes notify.Store, bus *eventbus.Bus, webAppURL string, loc *time.Location, log logx.Logger) *Handlers {
	if loc == nil {
		loc = time.Local
	}
	return &Handlers{
		adapter:   adapter,
		db:        db,
		notes:     notes,
		bus:       bus,
		log:       log,
		webAppURL: webAppURL,
		loc:       loc,
	}
}

func (h *Handlers) Register(r *Router) {
	r.Register(Command{Name: "start", Description: "Запустить бота", Handle: h.Start})
	r.Register(Command{Name: "help", Description: "Помощь", Handle: h.Help})
	r.Register(Command{Name: "rooms", Description: "Переговорные и брони на сегодня", Handle: h.Rooms})
	r.Register(Command{Name: "notifications", Description: "Управление уведомлениями", MinRole: 2, Handle: h.Notifications})
	r.Register(Command{Name: "role", Description: "Назначить уровень доступа", MinRole: 3, Handle: h.Role})
	r.RegisterCallback("notif", 2, h.NotifCallback)
}

func (h *Handlers) Start(ctx context.Context, msg *transport.Message, _ string) error {
	name := msg.FromName
	if strings.TrimSpace(name) == "" {
		name = textDefaultName
	}
	url := fmt.Sprintf("%s?telegram_id=%d", h.webAppURL, msg.FromID)

	markup := &tele.ReplyMarkup{}
	open := markup.WebApp(textOpenWebApp, &tele.WebApp{URL: url})
	link := markup.URL(textDirectLink, url)
	markup.Inline(markup.Row(open), markup.Row(link))

	return h.send(ctx, msg, fmt.Sprintf(textGreeting, name), markup)
}

func (h *Handlers) Help(ctx context.Context, msg *transport.Message, _ string) error {
	return h.send(ctx, msg, textHelp, nil)
}

// Rooms lists every room with its bookings for the current day in the
// configured timezone.
func (h *Handlers) Rooms(ctx context.Context, msg *transport.Message, _ string) error {
	rooms, err := h.db.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		return h.send(ctx, msg, textNoRooms, nil)
	}

	today := time.Now().In(h.loc)
	bookings, err := h.db.ListBookingsOn(ctx, today)
	if err != nil {
		return fmt.Errorf("list bookings: %w", err)
	}
	byRoom := make(map[int64][]store.Booking, len(rooms))
	for _, b := range bookings {
		byRoom[b.RoomID] = append(byRoom[b.RoomID], b)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏢 <b>Переговорные на %s</b>\n", today.Format("02.01.2006"))
	for _, room := range rooms {
		fmt.Fprintf(&sb, "\n<b>%s</b> (мест: %d)\n", room.Name, room.Capacity)
		rb := byRoom[room.ID]
		if len(rb) == 0 {
			sb.WriteString("  свободна весь день\n")
			continue
		}
		for _, b := range rb {
			fmt.Fprintf(&sb, "  %s–%s %s (%s)\n",
				b.StartsAt.In(h.loc).Format("15:04"),
				b.EndsAt.In(h.loc).Format("15:04"),
				b.Title, b.UserName)
		}
	}
	return h.send(ctx, msg, sb.String(), nil)
}

// Notifications shows the stored records with per-record disable buttons
// and a clear-all button. Reaching here already required level 2; the
// clear-all callback checks level 3 separately.
func (h *Handlers) Notifications(ctx context.Context, msg *transport.Message, _ string) error {
	records, err := h.notes.Load(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}

	active := make([]notify.Record, 0, len(records))
	for _, r := range records {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return h.send(ctx, msg, textNoNotifications, nil)
	}

	var sb strings.Builder
	sb.WriteString("🔔 <b>Уведомления</b>\n")
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(active)+1)
	for i, r := range active {
		fmt.Fprintf(&sb, "\n%d. %s в %s (%s), отправлено %d/%d\n",
			i+1, r.Message, r.NotificationTime, strings.Join(r.DaysOfWeek, ", "),
			r.SentCount, r.RepeatCount)
		// Raw Data keeps the callback payload exactly "notif:disable:<id>"
		// with no telebot unique-prefix framing.
		btn := tele.Btn{Text: fmt.Sprintf("🔕 Отключить %d", i+1), Data: "notif:disable:" + r.ID}
		rows = append(rows, markup.Row(btn))
	}
	rows = append(rows, markup.Row(tele.Btn{Text: textClearAll, Data: "notif:clear"}))
	markup.Inline(rows...)

	return h.send(ctx, msg, sb.String(), markup)
}

// Role assigns an access level: /role <user_id> <level>.
func (h *Handlers) Role(ctx context.Context, msg *transport.Message, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return h.send(ctx, msg, "Формат: /role <user_id> <уровень 0..3>", nil)
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return h.send(ctx, msg, "Некорректный user_id.", nil)
	}
	level, err := strconv.Atoi(fields[1])
	if err != nil || level < 0 || level > 3 {
		return h.send(ctx, msg, "Уровень должен быть числом 0..3.", nil)
	}
	if err := h.db.SetRoleLevel(ctx, userID, level); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return h.send(ctx, msg, fmt.Sprintf("Пользователю %d назначен уровень %d.", userID, level), nil)
}

func (h *Handlers) NotifCallback(ctx context.Context, cb *transport.Callback, parts []string) error {
	if len(parts) < 2 {
		return h.adapter.AnswerCallback(ctx, cb.ID, "")
	}
	switch parts[1] {
	case "disable":
		if len(parts) < 3 || parts[2] == "" {
			return h.adapter.AnswerCallback(ctx, cb.ID, "")
		}
		return h.disableRecord(ctx, cb, parts[2])
	case "clear":
		return h.clearAll(ctx, cb)
	default:
		return h.adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

func (h *Handlers) disableRecord(ctx context.Context, cb *transport.Callback, id string) error {
	records, err := h.notes.Load(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	found := false
	for i := range records {
		if records[i].ID == id {
			records[i].IsActive = false
			found = true
			break
		}
	}
	if !found {
		return h.adapter.AnswerCallback(ctx, cb.ID, textNotifGone)
	}
	if err := h.notes.Save(ctx, records); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	h.log.Info("notification disabled by admin",
		logx.String("id", id), logx.Int64("user_id", cb.FromID))
	return h.adapter.AnswerCallback(ctx, cb.ID, textNotifDisabled)
}

// clearAll wipes the whole snapshot. This is the most destructive admin
// action, so it takes level 3 even though the menu itself takes level 2.
func (h *Handlers) clearAll(ctx context.Context, cb *transport.Callback) error {
	level, err := h.db.RoleLevel(ctx, cb.FromID)
	if err != nil {
		return fmt.Errorf("role lookup: %w", err)
	}
	if level < 3 {
		return h.adapter.AnswerCallback(ctx, cb.ID, textForbidden)
	}
	if err := h.notes.Save(ctx, []notify.Record{}); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	h.bus.Publish(eventbus.Event{Type: eventbus.NotifyCleared, Data: cb.FromID})
	h.log.Info("notifications cleared", logx.Int64("user_id", cb.FromID))
	return h.adapter.AnswerCallback(ctx, cb.ID, textNotifCleared)
}

func (h *Handlers) send(ctx context.Context, msg *transport.Message, text string, markup *tele.ReplyMarkup) error {
	target := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	_, err := h.adapter.SendText(ctx, target, text, opt)
	return err
}
