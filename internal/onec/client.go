// Package onec talks to the three HTTP services the 1C HR system exposes:
// identity check at registration, supervisor sync, and decision write-back.
// Deployments disagree on response key names, so decoding is tolerant.
package onec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

// Extracts the numeric Telegram ID out of values like "tg://user?id=123456789".
var digitRun = regexp.MustCompile(`\d{5,}`)

type Client struct {
	checkURL    string
	syncURL     string
	decisionURL string
	username    string
	password    string

	httpClient *http.Client
	maxRetries uint64
}

// Identity is what the check endpoint knows about an employee.
type Identity struct {
	FullName       string
	IsManager      bool
	SupervisorTGID string
}

// DecisionReport is the write-back payload for an approved/rejected request.
type DecisionReport struct {
	ReqID        int64  `json:"req_id"`
	EmployeeTGID string `json:"employee_tg_id"`
	ManagerTGID  string `json:"manager_tg_id"`
	EmployeeName string `json:"employee_name"`
	ManagerName  string `json:"manager_name"`
	Reason       string `json:"reason"`
	Start        string `json:"start"`
	End          string `json:"end"`
	SubmittedAt  string `json:"submitted_at"`
	DecidedAt    string `json:"decided_at"`
	Decision     string `json:"decision"`
}

func New(checkURL, syncURL, decisionURL, username, password string) *Client {
	return &Client{
		checkURL:    checkURL,
		syncURL:     syncURL,
		decisionURL: decisionURL,
		username:    username,
		password:    password,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		maxRetries:  3,
	}
}

// CheckPassport verifies an employee against 1C. The HTTP status carries the
// outcome (200 found, 404/204 not found, 409 duplicates, 400 bad data); the
// raw body is returned for the caller's diagnostics.
func (c *Client) CheckPassport(ctx context.Context, passport, birthdate, userID string) (int, Identity, string, error) {
	payload := map[string]string{
		"passport":  passport,
		"birthdate": birthdate,
		"user_id":   userID,
	}
	status, body, err := c.post(ctx, c.checkURL, payload)
	if err != nil {
		return 0, Identity{}, "", err
	}
	return status, parseIdentity(body), string(body), nil
}

// SyncSupervisor asks 1C for the employee's supervisor and returns the
// supervisor's Telegram ID, or "" when the response carries nothing usable.
func (c *Client) SyncSupervisor(ctx context.Context, passport, birthdate string) (string, error) {
	payload := map[string]string{
		"passport":  passport,
		"birthdate": birthdate,
	}
	_, body, err := c.post(ctx, c.syncURL, payload)
	if err != nil {
		return "", err
	}
	return ExtractSupervisorID(body), nil
}

// SendDecision reports a manager's verdict back to 1C. A no-op when the
// decision endpoint is not configured.
func (c *Client) SendDecision(ctx context.Context, rep DecisionReport) error {
	if c.decisionURL == "" {
		return nil
	}
	_, _, err := c.post(ctx, c.decisionURL, rep)
	return err
}

// post sends a JSON body with basic auth, retrying transport errors with
// exponential backoff. Non-2xx statuses are semantic and never retried.
func (c *Client) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	var (
		status   int
		respBody []byte
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.username != "" && c.password != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		status = resp.StatusCode
		respBody = b
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return 0, nil, fmt.Errorf("post %s: %w", url, err)
	}
	return status, respBody, nil
}

func parseIdentity(body []byte) Identity {
	res := gjson.GetManyBytes(body,
		"fullName", "name",
		"isManager", "is_manager", "Руководитель",
		"supervisor_tg_id", "manager_tg_id")

	id := Identity{}
	if res[0].Exists() && res[0].String() != "" {
		id.FullName = res[0].String()
	} else {
		id.FullName = res[1].String()
	}
	id.IsManager = res[2].Bool() || res[3].Bool() || res[4].Bool()
	if res[5].Exists() && res[5].String() != "" {
		id.SupervisorTGID = res[5].String()
	} else {
		id.SupervisorTGID = res[6].String()
	}
	return id
}

// ExtractSupervisorID picks the first non-empty supervisor-ish key and pulls
// the digit run out of it.
func ExtractSupervisorID(body []byte) string {
	results := gjson.GetManyBytes(body,
		"supervisor_tg_id", "manager_tg_id", "managerId", "supervisorId", "supervisor", "manager")
	for _, r := range results {
		if r.Exists() && r.String() != "" {
			return digitRun.FindString(r.String())
		}
	}
	return ""
}

// Reason extracts the validation failure reason from a 400 response body.
func Reason(raw string) string {
	return gjson.Get(raw, "reason").String()
}
