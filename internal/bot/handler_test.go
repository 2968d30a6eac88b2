package bot

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/bonvoyage09/tardybot/internal/clock"
	"github.com/bonvoyage09/tardybot/internal/logutil"
	"github.com/bonvoyage09/tardybot/internal/onec"
	"github.com/bonvoyage09/tardybot/internal/store"
)

// MockContext stands in for an incoming update.
type MockContext struct {
	tele.Context
	sender  *tele.User
	text    string
	data    string
	sent    []string
	edited  string
	respond *tele.CallbackResponse
}

func (m *MockContext) Sender() *tele.User { return m.sender }
func (m *MockContext) Text() string       { return m.text }
func (m *MockContext) Data() string       { return m.data }
func (m *MockContext) Message() *tele.Message {
	return &tele.Message{Text: m.text}
}
func (m *MockContext) Send(what interface{}, _ ...interface{}) error {
	m.sent = append(m.sent, fmt.Sprint(what))
	return nil
}
func (m *MockContext) Edit(what interface{}, _ ...interface{}) error {
	m.edited = fmt.Sprint(what)
	return nil
}
func (m *MockContext) Respond(resp ...*tele.CallbackResponse) error {
	if len(resp) > 0 {
		m.respond = resp[0]
	}
	return nil
}

func (m *MockContext) lastSent() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

// fakeSender captures outbound deliveries to managers and employees.
type fakeSender struct {
	sent []fakeDelivery
	fail bool
}

type fakeDelivery struct {
	to   tele.Recipient
	what string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.fail {
		return nil, fmt.Errorf("forbidden: bot can't initiate conversation")
	}
	f.sent = append(f.sent, fakeDelivery{to: to, what: fmt.Sprint(what)})
	return &tele.Message{}, nil
}

func newTestBot(t *testing.T, oc *onec.Client) (*Bot, *fakeSender) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if oc == nil {
		oc = onec.New("", "", "", "", "")
	}

	fs := &fakeSender{}
	b := &Bot{
		send:     fs,
		db:       db,
		onec:     oc,
		clock:    clock.In(time.UTC),
		sessions: newSessions(),
		log:      logutil.InitLogger("test", "error"),
	}
	return b, fs
}

func seedUser(t *testing.T, b *Bot, tgID, name, supervisor string, isManager bool) {
	t.Helper()
	err := b.db.UpsertUser(&store.User{
		TGID: tgID, Passport: "AD1234567", Birthdate: "30.09.2005",
		FullName: name, RegisteredAt: "2025-01-02 10:00:00",
		IsManager: isManager, SupervisorTGID: supervisor,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestStartUnregistered(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ctx := &MockContext{sender: &tele.User{ID: 111}}

	if err := b.handleStart(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Введите серию и номер паспорта") {
		t.Errorf("expected passport prompt, got: %s", ctx.lastSent())
	}
	if b.sessions.get(111).State != stateRegPassport {
		t.Error("registration dialog not started")
	}
}

func TestStartAlreadyRegistered(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	ctx := &MockContext{sender: &tele.User{ID: 111}}

	if err := b.handleStart(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Вы уже зарегистрированы как: Иван Иванов") {
		t.Errorf("expected greeting, got: %s", ctx.lastSent())
	}
}

func TestRegistrationFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"fullName":"Иван Иванов","isManager":true,"supervisor_tg_id":"222333444"}`))
	}))
	defer srv.Close()

	b, _ := newTestBot(t, onec.New(srv.URL, "", "", "", ""))
	ctx := &MockContext{sender: &tele.User{ID: 111}}

	if err := b.handleStart(ctx); err != nil {
		t.Fatal(err)
	}

	// Sloppy but valid passport input gets normalized.
	ctx.text = "ad 1234567"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Введите дату рождения") {
		t.Fatalf("expected birthdate prompt, got: %s", ctx.lastSent())
	}

	ctx.text = "30.09.2005"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Регистрация успешна") {
		t.Fatalf("expected success, got: %s", ctx.lastSent())
	}

	u, err := b.db.GetUser("111")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.FullName != "Иван Иванов" || !u.IsManager || u.SupervisorTGID != "222333444" {
		t.Fatalf("user not persisted correctly: %+v", u)
	}
	if b.sessions.get(111).State != stateNone {
		t.Error("session not cleared after registration")
	}
}

func TestRegistrationRejectsBadInput(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ctx := &MockContext{sender: &tele.User{ID: 111}}
	b.sessions.put(111, session{State: stateRegPassport})

	ctx.text = "12345"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Неверный формат") {
		t.Errorf("expected format error, got: %s", ctx.lastSent())
	}
	if b.sessions.get(111).State != stateRegPassport {
		t.Error("bad passport must not advance the dialog")
	}

	b.sessions.put(111, session{State: stateRegBirthdate, Passport: "AD1234567"})
	ctx.text = "31.02.2005"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Неверный формат даты") {
		t.Errorf("expected date error, got: %s", ctx.lastSent())
	}
}

func TestRegistrationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b, _ := newTestBot(t, onec.New(srv.URL, "", "", "", ""))
	ctx := &MockContext{sender: &tele.User{ID: 111}}
	b.sessions.put(111, session{State: stateRegBirthdate, Passport: "AD1234567"})

	ctx.text = "30.09.2005"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "не найден") {
		t.Errorf("expected not-found notice, got: %s", ctx.lastSent())
	}
	if u, _ := b.db.GetUser("111"); u != nil {
		t.Error("user must not be persisted on 404")
	}
}

func TestTardyBeginRequiresRegistration(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ctx := &MockContext{sender: &tele.User{ID: 111}}

	if err := b.handleTardyBegin(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Сначала нужно зарегистрироваться") {
		t.Errorf("expected registration prompt, got: %s", ctx.lastSent())
	}
}

func TestTardyFlow(t *testing.T) {
	b, fs := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	seedUser(t, b, "222", "Пётр Петров", "", true)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	b.sessions.put(111, session{State: stateTardyReason})

	ctx.text = "проспал"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "время начала") {
		t.Fatalf("expected start prompt, got: %s", ctx.lastSent())
	}

	ctx.text = "09:20"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "время конца") {
		t.Fatalf("expected end prompt, got: %s", ctx.lastSent())
	}

	// End before start: re-ask for the end only.
	ctx.text = "09:00"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "не может быть раньше начала") {
		t.Fatalf("expected ordering error, got: %s", ctx.lastSent())
	}

	ctx.text = "09:45"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Запрос отправлен руководителю") {
		t.Fatalf("expected confirmation, got: %s", ctx.lastSent())
	}

	if len(fs.sent) != 1 {
		t.Fatalf("expected one delivery to the manager, got %d", len(fs.sent))
	}
	if to, ok := fs.sent[0].to.(*tele.User); !ok || to.ID != 222 {
		t.Fatalf("delivered to wrong recipient: %+v", fs.sent[0].to)
	}
	if !strings.Contains(fs.sent[0].what, "Новый запрос на опоздание") ||
		!strings.Contains(fs.sent[0].what, "09:20–09:45") {
		t.Fatalf("unexpected manager notice: %s", fs.sent[0].what)
	}

	pending, err := b.db.PendingForManager("222")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Reason != "проспал" {
		t.Fatalf("request not persisted: %+v", pending)
	}
	if b.sessions.get(111).State != stateNone {
		t.Error("session not cleared after submission")
	}
}

func TestTardyFlowManagerUnreachable(t *testing.T) {
	b, fs := newTestBot(t, nil)
	fs.fail = true
	seedUser(t, b, "111", "Иван Иванов", "222", false)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	b.sessions.put(111, session{State: stateTardyEnd, Reason: "проспал", Start: "09:20"})

	ctx.text = "09:45"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Не удалось отправить руководителю") {
		t.Fatalf("expected delivery failure notice, got: %s", ctx.lastSent())
	}

	// The request still exists for the manager to review later.
	pending, _ := b.db.PendingForManager("222")
	if len(pending) != 1 {
		t.Fatalf("request lost on delivery failure: %+v", pending)
	}
}

func TestTardyFlowNoSupervisor(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "", false)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	b.sessions.put(111, session{State: stateTardyEnd, Reason: "проспал", Start: "09:20"})

	ctx.text = "09:45"
	if err := b.handleText(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "не указан корректный Telegram ID руководителя") {
		t.Fatalf("expected supervisor error, got: %s", ctx.lastSent())
	}
	if b.sessions.get(111).State != stateNone {
		t.Error("session must be cleared on abort")
	}
}

func TestTardyListManagerOnly(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	if err := b.handleTardyList(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "только руководителям") {
		t.Errorf("expected access error, got: %s", ctx.lastSent())
	}
}

func TestTardyList(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	seedUser(t, b, "222", "Пётр Петров", "", true)

	if _, err := b.db.CreateTardyRequest("111", "222", "проспал", "09:20", "09:45", "2025-01-02T04:20:00"); err != nil {
		t.Fatal(err)
	}

	ctx := &MockContext{sender: &tele.User{ID: 222}}
	if err := b.handleTardyList(ctx); err != nil {
		t.Fatal(err)
	}
	if len(ctx.sent) != 1 {
		t.Fatalf("expected one card, got %d", len(ctx.sent))
	}
	card := ctx.sent[0]
	if !strings.Contains(card, "Запрос #") ||
		!strings.Contains(card, "Иван Иванов") ||
		!strings.Contains(card, "09:20–09:45") ||
		!strings.Contains(card, "Отправлено: 04:20") {
		t.Fatalf("unexpected card: %s", card)
	}
}

func TestDecideApprove(t *testing.T) {
	b, fs := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	seedUser(t, b, "222", "Пётр Петров", "", true)

	reqID, err := b.db.CreateTardyRequest("111", "222", "проспал", "09:20", "09:45", "2025-01-02T04:20:00")
	if err != nil {
		t.Fatal(err)
	}

	ctx := &MockContext{
		sender: &tele.User{ID: 222},
		text:   "Запрос #1\nСотрудник: Иван Иванов",
		data:   strconv.FormatInt(reqID, 10),
	}
	if err := b.handleApprove(ctx); err != nil {
		t.Fatal(err)
	}

	r, _ := b.db.GetTardy(reqID)
	if r.Status != store.StatusApproved {
		t.Fatalf("status = %s, want approved", r.Status)
	}
	if ctx.respond == nil || ctx.respond.Text != "Одобрено" {
		t.Fatalf("unexpected callback ack: %+v", ctx.respond)
	}
	if !strings.Contains(ctx.edited, "Статус: ✅ Одобрено") {
		t.Fatalf("manager message not updated: %s", ctx.edited)
	}

	if len(fs.sent) != 1 {
		t.Fatalf("expected employee notice, got %d deliveries", len(fs.sent))
	}
	notice := fs.sent[0].what
	if !strings.Contains(notice, "Руководитель: Пётр Петров") ||
		!strings.Contains(notice, "Статус: Одобрено ✅") {
		t.Fatalf("unexpected employee notice: %s", notice)
	}
}

func TestDecideRejectWording(t *testing.T) {
	b, fs := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	seedUser(t, b, "222", "Пётр Петров", "", true)

	reqID, _ := b.db.CreateTardyRequest("111", "222", "проспал", "09:20", "09:45", "2025-01-02T04:20:00")
	ctx := &MockContext{sender: &tele.User{ID: 222}, data: strconv.FormatInt(reqID, 10)}

	if err := b.handleReject(ctx); err != nil {
		t.Fatal(err)
	}
	if ctx.respond.Text != "Отклонено" {
		t.Fatalf("ack = %q", ctx.respond.Text)
	}
	if !strings.Contains(ctx.edited, "Статус: ❌ Отклонено") {
		t.Fatalf("edit = %q", ctx.edited)
	}
	if !strings.Contains(fs.sent[0].what, "Статус: Отказано ❌") {
		t.Fatalf("employee notice = %q", fs.sent[0].what)
	}
}

func TestDecideWrongManager(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)

	reqID, _ := b.db.CreateTardyRequest("111", "222", "проспал", "09:20", "09:45", "2025-01-02T04:20:00")
	ctx := &MockContext{sender: &tele.User{ID: 333}, data: strconv.FormatInt(reqID, 10)}

	if err := b.handleApprove(ctx); err != nil {
		t.Fatal(err)
	}
	if ctx.respond == nil || !ctx.respond.ShowAlert || !strings.Contains(ctx.respond.Text, "Недостаточно прав") {
		t.Fatalf("expected rights alert, got: %+v", ctx.respond)
	}
	r, _ := b.db.GetTardy(reqID)
	if r.Status != store.StatusPending {
		t.Fatalf("status changed by wrong manager: %s", r.Status)
	}
}

func TestDecideTwice(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)
	seedUser(t, b, "222", "Пётр Петров", "", true)

	reqID, _ := b.db.CreateTardyRequest("111", "222", "проспал", "09:20", "09:45", "2025-01-02T04:20:00")

	first := &MockContext{sender: &tele.User{ID: 222}, data: strconv.FormatInt(reqID, 10)}
	if err := b.handleApprove(first); err != nil {
		t.Fatal(err)
	}

	second := &MockContext{sender: &tele.User{ID: 222}, data: strconv.FormatInt(reqID, 10)}
	if err := b.handleReject(second); err != nil {
		t.Fatal(err)
	}
	if second.respond == nil || !strings.Contains(second.respond.Text, "уже обработана") {
		t.Fatalf("expected stale alert, got: %+v", second.respond)
	}

	r, _ := b.db.GetTardy(reqID)
	if r.Status != store.StatusApproved {
		t.Fatalf("decision overwritten: %s", r.Status)
	}
}

func TestWhoami(t *testing.T) {
	b, _ := newTestBot(t, nil)
	ctx := &MockContext{sender: &tele.User{ID: 424242}}
	if err := b.handleWhoami(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "424242") {
		t.Errorf("expected id echo, got: %s", ctx.lastSent())
	}
}

func TestResetRestartsRegistration(t *testing.T) {
	b, _ := newTestBot(t, nil)
	seedUser(t, b, "111", "Иван Иванов", "222", false)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	if err := b.handleReset(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Регистрация сброшена") {
		t.Errorf("expected reset notice, got: %s", ctx.lastSent())
	}
	if u, _ := b.db.GetUser("111"); u != nil {
		t.Error("user row not deleted")
	}
	if b.sessions.get(111).State != stateRegPassport {
		t.Error("registration dialog not restarted")
	}
}

func TestSyncSupervisorButton(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"manager_tg_id":"555666777"}`))
	}))
	defer srv.Close()

	b, _ := newTestBot(t, onec.New("", srv.URL, "", "", ""))
	seedUser(t, b, "111", "Иван Иванов", "", false)

	ctx := &MockContext{sender: &tele.User{ID: 111}}
	if err := b.handleSync(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ctx.lastSent(), "Руководитель (TG ID): 555666777") {
		t.Fatalf("expected sync result, got: %s", ctx.lastSent())
	}

	u, _ := b.db.GetUser("111")
	if u.SupervisorTGID != "555666777" {
		t.Fatalf("supervisor not stored: %+v", u)
	}
}
