package auth

import "time"

// Session is a stored refresh-token record. Only the fingerprint is kept.
type Session struct {
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Sessions is the set of refresh tokens a user may still redeem.
type Sessions []Session

// PurgeExpired drops every record with ExpiresAt at or before now and reports how many went.
func (s *Sessions) PurgeExpired(now time.Time) int {
	kept := (*s)[:0]
	removed := 0
	for _, rec := range *s {
		if !rec.ExpiresAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	*s = kept
	return removed
}

// Add appends a record. A duplicate fingerprint is reported as false and not added.
func (s *Sessions) Add(fingerprint string, expiresAt time.Time) bool {
	for _, rec := range *s {
		if rec.Fingerprint == fingerprint {
			return false
		}
	}
	*s = append(*s, Session{Fingerprint: fingerprint, ExpiresAt: expiresAt})
	return true
}

// Revoke removes the matching record and reports whether one existed.
func (s *Sessions) Revoke(fingerprint string) bool {
	for i, rec := range *s {
		if rec.Fingerprint == fingerprint {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether fingerprint is present and unexpired at now.
func (s Sessions) Contains(fingerprint string, now time.Time) bool {
	for _, rec := range s {
		if rec.Fingerprint == fingerprint {
			return rec.ExpiresAt.After(now)
		}
	}
	return false
}

func (s Sessions) clone() Sessions {
	if s == nil {
		return nil
	}
	out := make(Sessions, len(s))
	copy(out, s)
	return out
}
