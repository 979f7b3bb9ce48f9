package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ashureev/selve/internal/domain"
)

// Drafts holds locally edited answers alongside the last server-confirmed
// value for each question. A confirmation replaces the draft outright.
type Drafts struct {
	mu        sync.Mutex
	drafts    map[string]json.RawMessage
	confirmed map[string]json.RawMessage
}

// NewDrafts returns an empty draft set.
func NewDrafts() *Drafts {
	return &Drafts{
		drafts:    make(map[string]json.RawMessage),
		confirmed: make(map[string]json.RawMessage),
	}
}

// Set records a local draft for questionID.
func (d *Drafts) Set(questionID string, value json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[questionID] = append(json.RawMessage(nil), value...)
}

// Draft returns the current local value for questionID.
func (d *Drafts) Draft(questionID string) (json.RawMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.drafts[questionID]
	return v, ok
}

// Confirm adopts the server's answer as both draft and confirmed value.
func (d *Drafts) Confirm(a *domain.Answer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := append(json.RawMessage(nil), a.Value...)
	d.drafts[a.QuestionID] = v
	d.confirmed[a.QuestionID] = v
}

// Load confirms every answer of a fetched session.
func (d *Drafts) Load(answers []*domain.Answer) {
	for _, a := range answers {
		d.Confirm(a)
	}
}

// Discard drops the local edit for questionID, falling back to the confirmed
// value when there is one.
func (d *Drafts) Discard(questionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.confirmed[questionID]; ok {
		d.drafts[questionID] = v
		return
	}
	delete(d.drafts, questionID)
}

// Pending lists drafts the server has never confirmed, sorted.
func (d *Drafts) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for q := range d.drafts {
		if _, ok := d.confirmed[q]; !ok {
			out = append(out, q)
		}
	}
	sort.Strings(out)
	return out
}

// Conflicts lists questions whose draft differs from the confirmed value, sorted.
func (d *Drafts) Conflicts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for q, draft := range d.drafts {
		confirmed, ok := d.confirmed[q]
		if ok && !sameJSON(draft, confirmed) {
			out = append(out, q)
		}
	}
	sort.Strings(out)
	return out
}

// SyncError reports the draft the server refused during Sync.
type SyncError struct {
	QuestionID string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.QuestionID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Sync submits pending and conflicting drafts, confirming each response.
// It stops at the first failure and returns the number confirmed.
func (d *Drafts) Sync(ctx context.Context, c *Client, sessionID string) (int, error) {
	questions := append(d.Pending(), d.Conflicts()...)
	sort.Strings(questions)

	n := 0
	for _, q := range questions {
		value, _ := d.Draft(q)
		a, _, err := c.SubmitAnswer(ctx, sessionID, q, value)
		if err != nil {
			return n, &SyncError{QuestionID: q, Err: err}
		}
		d.Confirm(a)
		n++
	}
	return n, nil
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
