package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	logging "github.com/op/go-logging"
	tele "gopkg.in/telebot.v3"

	"github.com/bonvoyage09/tardybot/internal/clock"
	"github.com/bonvoyage09/tardybot/internal/health"
	"github.com/bonvoyage09/tardybot/internal/onec"
	"github.com/bonvoyage09/tardybot/internal/store"
)

// Reply keyboard labels double as routing keys for incoming text.
const (
	btnLateText     = "Я опоздал"
	btnSyncText     = "🔄 Синхронизация с 1С"
	btnRequestsText = "Запросы на опоздание"
)

const onecCallTimeout = 30 * time.Second

// sender is the outbound half of *tele.Bot, kept narrow so tests can
// substitute delivery to managers and employees.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Bot struct {
	api      *tele.Bot
	send     sender
	db       *store.DB
	onec     *onec.Client
	clock    *clock.Clock
	sessions *sessions
	log      *logging.Logger
}

type Config struct {
	Token string
}

func New(cfg Config, db *store.DB, oc *onec.Client, clk *clock.Clock, log *logging.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	api, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		api:      api,
		send:     api,
		db:       db,
		onec:     oc,
		clock:    clk,
		sessions: newSessions(),
		log:      log,
	}
	b.register()
	return b, nil
}

func (b *Bot) Start() {
	b.log.Infof("bot online: @%s", b.api.Me.Username)
	b.api.Start()
}

func (b *Bot) Stop() {
	b.api.Stop()
}

func (b *Bot) register() {
	b.api.Handle("/start", b.handleStart)
	b.api.Handle("/reset", b.handleReset)
	b.api.Handle("/refresh", b.handleRefresh)
	b.api.Handle("/whoami", b.handleWhoami)

	b.api.Handle(&tele.Btn{Text: btnLateText}, b.handleTardyBegin)
	b.api.Handle(&tele.Btn{Text: btnSyncText}, b.handleSync)
	b.api.Handle(&tele.Btn{Text: btnRequestsText}, b.handleTardyList)

	b.api.Handle(&tele.Btn{Unique: "tardy_ok"}, b.handleApprove)
	b.api.Handle(&tele.Btn{Unique: "tardy_rej"}, b.handleReject)

	// Free text is only meaningful inside a dialog.
	b.api.Handle(tele.OnText, b.handleText)
}

func mainKeyboard(isManager bool) *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true}
	rows := []tele.Row{
		kb.Row(kb.Text(btnLateText)),
		kb.Row(kb.Text(btnSyncText)),
	}
	if isManager {
		rows = append([]tele.Row{kb.Row(kb.Text(btnRequestsText))}, rows...)
	}
	kb.Reply(rows...)
	return kb
}

func senderID(c tele.Context) string {
	return strconv.FormatInt(c.Sender().ID, 10)
}

// handleText routes free text into whatever dialog step the user is at.
func (b *Bot) handleText(c tele.Context) error {
	sess := b.sessions.get(c.Sender().ID)
	switch sess.State {
	case stateRegPassport:
		return b.regPassport(c, sess)
	case stateRegBirthdate:
		return b.regBirthdate(c, sess)
	case stateTardyReason:
		return b.tardyReason(c, sess)
	case stateTardyStart:
		return b.tardyStartTime(c, sess)
	case stateTardyEnd:
		return b.tardyEndTime(c, sess)
	}
	return c.Send("Используйте кнопки меню или команды: /start, /reset, /refresh, /whoami.")
}

func (b *Bot) handleStart(c tele.Context) error {
	userID := senderID(c)
	u, err := b.db.GetUser(userID)
	if err != nil {
		return err
	}

	b.sessions.clear(c.Sender().ID)
	if u != nil {
		name := u.FullName
		if name == "" {
			name = "сотрудник"
		}
		return c.Send(fmt.Sprintf("✅ Вы уже зарегистрированы как: %s", name), mainKeyboard(u.IsManager))
	}

	b.sessions.put(c.Sender().ID, session{State: stateRegPassport})
	return c.Send("Введите серию и номер паспорта (пример: AD1234567).")
}

func (b *Bot) handleReset(c tele.Context) error {
	userID := senderID(c)
	if err := b.db.DeleteUser(userID); err != nil {
		return err
	}
	b.sessions.put(c.Sender().ID, session{State: stateRegPassport})
	return c.Send("🔁 Регистрация сброшена.\nВведите серию и номер паспорта (пример: AD1234567).")
}

func (b *Bot) handleWhoami(c tele.Context) error {
	return c.Send(fmt.Sprintf("Ваш Telegram ID: %d", c.Sender().ID))
}

func (b *Bot) regPassport(c tele.Context, sess session) error {
	p := normalizePassport(c.Text())
	if !validPassport(p) {
		return c.Send("❌ Неверный формат. Пример: AD1234567 (2 буквы + 7 цифр). Попробуйте ещё раз.")
	}
	sess.Passport = p
	sess.State = stateRegBirthdate
	b.sessions.put(c.Sender().ID, sess)
	return c.Send("Введите дату рождения (пример: 30.09.2005).")
}

func (b *Bot) regBirthdate(c tele.Context, sess session) error {
	birthdate := strings.TrimSpace(c.Text())
	if !validBirthdate(birthdate) {
		return c.Send("❌ Неверный формат даты. Нужен дд.мм.гггг (например: 30.09.2005).")
	}

	userID := senderID(c)
	c.Send("🔄 Выполняется синхронизация с 1С…")

	ctx, cancel := context.WithTimeout(context.Background(), onecCallTimeout)
	defer cancel()

	status, ident, raw, err := b.onec.CheckPassport(ctx, sess.Passport, birthdate, userID)
	if err != nil {
		health.OnecRequests.WithLabelValues("check", "error").Inc()
		return c.Send(fmt.Sprintf("⚠️ Ошибка соединения с 1С: %v", err))
	}
	health.OnecRequests.WithLabelValues("check", "ok").Inc()

	switch {
	case status == 200:
		name := ident.FullName
		if name == "" {
			name = "сотрудник"
		}
		u := &store.User{
			TGID:           userID,
			Passport:       sess.Passport,
			Birthdate:      birthdate,
			FullName:       name,
			RegisteredAt:   b.clock.Now().Format("2006-01-02 15:04:05"),
			IsManager:      ident.IsManager,
			SupervisorTGID: ident.SupervisorTGID,
		}
		if err := b.db.UpsertUser(u); err != nil {
			return err
		}
		b.sessions.clear(c.Sender().ID)
		health.Registrations.WithLabelValues("ok").Inc()
		return c.Send(fmt.Sprintf("✅ Регистрация успешна\n👤 Сотрудник: %s", name), mainKeyboard(ident.IsManager))

	case status == 404 || status == 204:
		health.Registrations.WithLabelValues("not_found").Inc()
		return c.Send("❌ Сотрудник с такими данными не найден.")

	case status == 409:
		health.Registrations.WithLabelValues("duplicate").Inc()
		return c.Send("⚠️ Найдено несколько сотрудников (дубликаты). Обратитесь к администратору.")

	case status == 400:
		health.Registrations.WithLabelValues("bad_data").Inc()
		reason := onec.Reason(raw)
		if reason == "" {
			reason = "Неверные данные."
		}
		return c.Send(fmt.Sprintf("⚠️ Ошибка проверки: %s", reason))

	default:
		health.Registrations.WithLabelValues("unexpected").Inc()
		return c.Send(fmt.Sprintf("⚠️ Неожиданный ответ 1С (%d): %s", status, truncate(raw, 500)))
	}
}

func (b *Bot) handleRefresh(c tele.Context) error {
	userID := senderID(c)
	u, err := b.db.GetUser(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return c.Send("⚠️ Не удалось обновить данные из 1С. Возможно, вы не зарегистрированы или 1С вернула не 200.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), onecCallTimeout)
	defer cancel()

	status, ident, _, err := b.onec.CheckPassport(ctx, u.Passport, u.Birthdate, userID)
	if err != nil || status != 200 {
		health.OnecRequests.WithLabelValues("check", "error").Inc()
		return c.Send("⚠️ Не удалось обновить данные из 1С. Возможно, вы не зарегистрированы или 1С вернула не 200.")
	}
	health.OnecRequests.WithLabelValues("check", "ok").Inc()

	name := ident.FullName
	if name == "" {
		name = u.FullName
	}
	if name == "" {
		name = "сотрудник"
	}
	supervisor := ident.SupervisorTGID
	if supervisor == "" {
		supervisor = u.SupervisorTGID
	}

	updated := &store.User{
		TGID:           userID,
		Passport:       u.Passport,
		Birthdate:      u.Birthdate,
		FullName:       name,
		RegisteredAt:   b.clock.Now().Format("2006-01-02 15:04:05"),
		IsManager:      ident.IsManager,
		SupervisorTGID: supervisor,
	}
	if err := b.db.UpsertUser(updated); err != nil {
		return err
	}

	managerWord := "нет"
	if ident.IsManager {
		managerWord = "да"
	}
	return c.Send(
		fmt.Sprintf("🔄 Данные обновлены из 1С.\nСотрудник: %s\nРуководитель: %s", name, managerWord),
		mainKeyboard(ident.IsManager))
}

func (b *Bot) handleSync(c tele.Context) error {
	userID := senderID(c)
	u, err := b.db.GetUser(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return c.Send("Сначала нужно зарегистрироваться: /start")
	}

	c.Send("🔄 Синхронизирую с 1С…")

	if u.Passport == "" || u.Birthdate == "" {
		return c.Send("⚠️ 1С не вернула корректный ID руководителя.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), onecCallTimeout)
	defer cancel()

	supervisorID, err := b.onec.SyncSupervisor(ctx, u.Passport, u.Birthdate)
	if err != nil {
		health.OnecRequests.WithLabelValues("sync", "error").Inc()
		return c.Send(fmt.Sprintf("⚠️ Ошибка синхронизации: %v", err))
	}
	health.OnecRequests.WithLabelValues("sync", "ok").Inc()

	// An empty result still overwrites: 1C is authoritative here.
	if err := b.db.SetSupervisor(userID, supervisorID); err != nil {
		return err
	}

	if supervisorID == "" {
		return c.Send("⚠️ 1С не вернула корректный ID руководителя.")
	}
	return c.Send(
		fmt.Sprintf("✅ Синхронизация завершена.\nРуководитель (TG ID): %s", supervisorID),
		mainKeyboard(u.IsManager))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
