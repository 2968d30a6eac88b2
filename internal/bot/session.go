package bot

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Dialog states. A chat is in at most one multi-step dialog at a time.
type dialogState string

const (
	stateNone         dialogState = ""
	stateRegPassport  dialogState = "reg_passport"
	stateRegBirthdate dialogState = "reg_birthdate"
	stateTardyReason  dialogState = "tardy_reason"
	stateTardyStart   dialogState = "tardy_start"
	stateTardyEnd     dialogState = "tardy_end"
)

// session carries the data accumulated across dialog steps.
type session struct {
	State    dialogState
	Passport string
	Reason   string
	Start    string
}

// sessions keeps dialog state per Telegram user. Abandoned dialogs expire
// after 30 minutes so a user is never stuck mid-registration forever.
type sessions struct {
	c *gocache.Cache
}

func newSessions() *sessions {
	return &sessions{c: gocache.New(30*time.Minute, 10*time.Minute)}
}

func (s *sessions) get(userID int64) session {
	if v, ok := s.c.Get(sessionKey(userID)); ok {
		return v.(session)
	}
	return session{}
}

func (s *sessions) put(userID int64, sess session) {
	s.c.Set(sessionKey(userID), sess, gocache.DefaultExpiration)
}

func (s *sessions) clear(userID int64) {
	s.c.Delete(sessionKey(userID))
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
