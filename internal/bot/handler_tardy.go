package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/bonvoyage09/tardybot/internal/clock"
	"github.com/bonvoyage09/tardybot/internal/health"
	"github.com/bonvoyage09/tardybot/internal/onec"
	"github.com/bonvoyage09/tardybot/internal/store"
)

func decisionKeyboard(reqID int64) *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{}
	ok := kb.Data("✅ Одобрить", "tardy_ok", strconv.FormatInt(reqID, 10))
	rej := kb.Data("❌ Отказать", "tardy_rej", strconv.FormatInt(reqID, 10))
	kb.Inline(kb.Row(ok, rej))
	return kb
}

// handleTardyBegin starts the «Я опоздал» dialog.
func (b *Bot) handleTardyBegin(c tele.Context) error {
	u, err := b.db.GetUser(senderID(c))
	if err != nil {
		return err
	}
	if u == nil {
		return c.Send("Сначала нужно зарегистрироваться: /start")
	}

	if !clock.AfterCutoff(b.clock.Now()) {
		return c.Send("⏱ Опоздание в пределах допустимого. Уведомление не требуется.")
	}

	b.sessions.put(c.Sender().ID, session{State: stateTardyReason})
	return c.Send("Укажите причину опоздания одним сообщением:")
}

func (b *Bot) tardyReason(c tele.Context, sess session) error {
	reason := strings.TrimSpace(c.Text())
	if reason == "" {
		return c.Send("Причина не может быть пустой. Укажите причину опоздания:")
	}
	sess.Reason = reason
	sess.State = stateTardyStart
	b.sessions.put(c.Sender().ID, sess)
	return c.Send("Укажите время начала опоздания в формате HH:MM (например, 09:20):")
}

func (b *Bot) tardyStartTime(c tele.Context, sess session) error {
	s := strings.TrimSpace(c.Text())
	if _, ok := clock.ParseHM(s); !ok {
		return c.Send("⏱ Неверный формат. Введите время начала в формате HH:MM (например, 09:20):")
	}
	sess.Start = s
	sess.State = stateTardyEnd
	b.sessions.put(c.Sender().ID, sess)
	return c.Send("Теперь укажите время конца опоздания в формате HH:MM (например, 09:45):")
}

func (b *Bot) tardyEndTime(c tele.Context, sess session) error {
	endStr := strings.TrimSpace(c.Text())
	endT, ok := clock.ParseHM(endStr)
	if !ok {
		return c.Send("⏱ Неверный формат. Введите время конца в формате HH:MM (например, 09:45):")
	}

	startT, ok := clock.ParseHM(sess.Start)
	if !ok {
		b.sessions.clear(c.Sender().ID)
		return c.Send("Не удалось прочитать время начала. Попробуйте заново: «Я опоздал».")
	}
	if endT.Before(startT) {
		return c.Send("Время конца не может быть раньше начала. Введите время конца ещё раз (HH:MM):")
	}

	userID := senderID(c)
	u, err := b.db.GetUser(userID)
	if err != nil {
		return err
	}
	if u == nil {
		b.sessions.clear(c.Sender().ID)
		return c.Send("Сначала зарегистрируйтесь: /start")
	}

	managerTGID := strings.TrimSpace(u.SupervisorTGID)
	if !allDigits(managerTGID) {
		b.sessions.clear(c.Sender().ID)
		return c.Send("В системе не указан корректный Telegram ID руководителя.")
	}

	reqID, err := b.db.CreateTardyRequest(userID, managerTGID, sess.Reason, sess.Start, endStr, clock.SubmittedNow())
	if err != nil {
		b.sessions.clear(c.Sender().ID)
		return err
	}
	health.TardyRequests.Inc()
	defer b.sessions.clear(c.Sender().ID)

	textForManager := fmt.Sprintf(
		"Новый запрос на опоздание\nСотрудник: %s\nПериод: %s–%s\nПричина: %s\nОтправлено: %s",
		u.FullName, sess.Start, endStr, sess.Reason, b.clock.NowHM())

	managerID, _ := strconv.ParseInt(managerTGID, 10, 64)
	if _, err := b.send.Send(&tele.User{ID: managerID}, textForManager, decisionKeyboard(reqID)); err != nil {
		b.log.Warningf("deliver request %d to manager %s: %v", reqID, managerTGID, err)
		return c.Send("⚠️ Не удалось отправить руководителю (возможно, он ещё не зарегистрирован в боте).")
	}
	return c.Send("✅ Запрос отправлен руководителю.")
}

// handleTardyList shows a manager their pending requests.
func (b *Bot) handleTardyList(c tele.Context) error {
	managerID := senderID(c)
	me, err := b.db.GetUser(managerID)
	if err != nil {
		return err
	}
	if me == nil || !me.IsManager {
		return c.Send("Эта функция доступна только руководителям.")
	}

	pending, err := b.db.PendingForManager(managerID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return c.Send("Нет новых запросов.")
	}

	for _, r := range pending {
		empName := r.EmployeeTGID
		if emp, err := b.db.GetUser(r.EmployeeTGID); err == nil && emp != nil && emp.FullName != "" {
			empName = emp.FullName
		}
		text := fmt.Sprintf(
			"Запрос #%d\nСотрудник: %s\nПериод: %s\nПричина: %s\nОтправлено: %s",
			r.ID, empName, period(&r), r.Reason, b.clock.LocalHM(r.SubmittedAt))
		if err := c.Send(text, decisionKeyboard(r.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleApprove(c tele.Context) error {
	return b.decide(c, store.StatusApproved)
}

func (b *Bot) handleReject(c tele.Context) error {
	return b.decide(c, store.StatusRejected)
}

// decide finalizes a request from an inline keyboard press. Only the
// addressed manager may act, and only while the request is still pending.
// Employee notification and the 1C write-back are best effort and must not
// break the manager's flow.
func (b *Bot) decide(c tele.Context, status string) error {
	reqID, err := strconv.ParseInt(strings.TrimSpace(c.Data()), 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Некорректный запрос", ShowAlert: true})
	}

	r, err := b.db.GetTardy(reqID)
	if err != nil {
		return err
	}
	if r == nil || r.Status != store.StatusPending {
		return c.Respond(&tele.CallbackResponse{Text: "Заявка не найдена или уже обработана", ShowAlert: true})
	}
	if senderID(c) != r.ManagerTGID {
		return c.Respond(&tele.CallbackResponse{Text: "Недостаточно прав для этой заявки", ShowAlert: true})
	}

	changed, err := b.db.DecideTardy(reqID, status)
	if err != nil {
		return err
	}
	if !changed {
		return c.Respond(&tele.CallbackResponse{Text: "Заявка не найдена или уже обработана", ShowAlert: true})
	}
	health.Decisions.WithLabelValues(status).Inc()

	var statusText, emoji, suffix, ack string
	if status == store.StatusApproved {
		statusText, emoji, ack = "Одобрено", "✅", "Одобрено"
		suffix = "\n\nСтатус: ✅ Одобрено"
	} else {
		statusText, emoji, ack = "Отказано", "❌", "Отклонено"
		suffix = "\n\nСтатус: ❌ Отклонено"
	}

	if msg := c.Message(); msg != nil {
		if err := c.Edit(msg.Text + suffix); err != nil {
			b.log.Warningf("edit decision message for request %d: %v", reqID, err)
		}
	}

	empName := b.displayName(r.EmployeeTGID)
	mgrName := b.displayName(r.ManagerTGID)

	notice := employeeNotice(r, empName, mgrName, statusText, emoji, b.clock)
	if employeeID, err := strconv.ParseInt(r.EmployeeTGID, 10, 64); err == nil {
		if _, err := b.send.Send(&tele.User{ID: employeeID}, notice); err != nil {
			b.log.Warningf("notify employee %s about request %d: %v", r.EmployeeTGID, reqID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), onecCallTimeout)
	defer cancel()
	rep := onec.DecisionReport{
		ReqID:        r.ID,
		EmployeeTGID: r.EmployeeTGID,
		ManagerTGID:  r.ManagerTGID,
		EmployeeName: empName,
		ManagerName:  mgrName,
		Reason:       r.Reason,
		Start:        r.StartTime,
		End:          r.EndTime,
		SubmittedAt:  r.SubmittedAt,
		DecidedAt:    b.clock.Now().Format("2006-01-02 15:04:05"),
		Decision:     status,
	}
	if err := b.onec.SendDecision(ctx, rep); err != nil {
		health.OnecRequests.WithLabelValues("decision", "error").Inc()
		b.log.Warningf("1C decision write-back for request %d: %v", reqID, err)
	} else {
		health.OnecRequests.WithLabelValues("decision", "ok").Inc()
	}

	return c.Respond(&tele.CallbackResponse{Text: ack})
}

func (b *Bot) displayName(tgID string) string {
	if u, err := b.db.GetUser(tgID); err == nil && u != nil && u.FullName != "" {
		return u.FullName
	}
	return tgID
}

func employeeNotice(r *store.TardyRequest, empName, mgrName, statusText, emoji string, clk *clock.Clock) string {
	reason := r.Reason
	if reason == "" {
		reason = "—"
	}
	return fmt.Sprintf(
		"Запрос на опоздание\nСотрудник: %s\nРуководитель: %s\n\nПериод: %s\nПричина: %s\nОтправлено: %s\n\nСтатус: %s %s",
		empName, mgrName, period(r), reason, clk.LocalHM(r.SubmittedAt), statusText, emoji)
}

func period(r *store.TardyRequest) string {
	return dash(r.StartTime) + "–" + dash(r.EndTime)
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
