package audit

import (
	"context"
	"strings"
	"time"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/ids"
	"inkpost.org/internal/obs"
)

// Entry is one immutable record of a state-changing operation.
type Entry struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	ActorID       string         `json:"userId,omitempty"`
	TargetType    string         `json:"targetType"`
	TargetID      string         `json:"targetId"`
	Snapshot      map[string]any `json:"snapshot,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	IP            string         `json:"ip,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Event is what callers hand to the recorder. Empty actor, correlation id and
// IP are filled from the context.
type Event struct {
	Action        string
	ActorID       string
	TargetType    string
	TargetID      string
	Snapshot      map[string]any
	CorrelationID string
	IP            string
}

type ctxKey string

const clientIPKey ctxKey = "audit_client_ip"

// WithClientIP attaches the caller address to the context for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the caller address attached by WithClientIP.
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// writeTimeout bounds a single insert once it is detached from the request.
const writeTimeout = 5 * time.Second

// Recorder appends audit entries. Write failures are logged and swallowed so
// auditing never fails the operation being audited.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder builds a Recorder on top of store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record writes ev. It never returns an error.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	entry := r.entry(ctx, ev)
	// The audited change is already committed; a client disconnect must not drop its record.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.store.Insert(writeCtx, entry); err != nil {
		obs.LoggerFrom(ctx).Error("audit_write_failed",
			"action", entry.Action,
			"target_type", entry.TargetType,
			"target_id", entry.TargetID,
			"err", err,
		)
		return
	}
	obs.LoggerFrom(ctx).Info("audit",
		"event", entry.Action,
		"user_id", entry.ActorID,
		"target_type", entry.TargetType,
		"target_id", entry.TargetID,
	)
}

func (r *Recorder) entry(ctx context.Context, ev Event) *Entry {
	e := &Entry{
		ID:            ids.New(),
		Action:        strings.TrimSpace(ev.Action),
		ActorID:       ev.ActorID,
		TargetType:    ev.TargetType,
		TargetID:      ev.TargetID,
		CorrelationID: ev.CorrelationID,
		IP:            ev.IP,
		CreatedAt:     r.now().UTC(),
	}
	if e.ActorID == "" {
		if p, ok := auth.PrincipalFromContext(ctx); ok {
			e.ActorID = p.Subject
		}
	}
	if e.CorrelationID == "" {
		e.CorrelationID = obs.CorrelationID(ctx)
	}
	if e.IP == "" {
		e.IP = ClientIP(ctx)
	}
	if len(ev.Snapshot) > 0 {
		e.Snapshot = make(map[string]any, len(ev.Snapshot))
		for k, v := range ev.Snapshot {
			e.Snapshot[k] = v
		}
	}
	return e
}

// MaxListLimit caps how many entries a single listing returns.
const MaxListLimit = 200

// ListResult is a page of entries, newest first, with the total stored count.
type ListResult struct {
	Entries []*Entry `json:"logs"`
	Total   int      `json:"total"`
}

// List returns the newest entries. limit is clamped to [1, MaxListLimit].
func (r *Recorder) List(ctx context.Context, limit int) (ListResult, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	entries, err := r.store.ListRecent(ctx, limit)
	if err != nil {
		return ListResult{}, err
	}
	total, err := r.store.Count(ctx)
	if err != nil {
		return ListResult{}, err
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return ListResult{Entries: entries, Total: total}, nil
}
