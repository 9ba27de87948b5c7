// Package status serves the operator-facing HTTP endpoints next to the game
// port: a plain-text status page, a health check, Prometheus metrics and the
// WebSocket game transport.
package status

import (
	"time"

	"github.com/u1974754/p-final-multi/internal/state"
)

// Data is the template model for the status page.
type Data struct {
	ServerName string
	Version    string
	ServerTime string
	Uptime     string
	GameAddr   string

	SessionsOnline int
	SlotsTaken     int
	Slots          []Slot

	// Optional extra line appended after the slot table.
	Message string
}

type Slot struct {
	Index int
	Taken bool
	Owner string
}

// Snapshot fills the live part of Data from the server state.
func Snapshot(base Data, started, now time.Time, slots *state.Arbiter, sessions *state.SessionStore) Data {
	d := base
	d.ServerTime = now.UTC().Format(time.RFC3339)
	d.Uptime = now.Sub(started).Round(time.Second).String()
	d.SessionsOnline = sessions.Count()
	for _, s := range slots.Snapshot() {
		line := Slot{Index: s.Index, Taken: s.Taken}
		if s.Taken {
			line.Owner = s.Owner.String()
			if sess, ok := sessions.Get(s.Owner); ok {
				line.Owner = sess.ClientName
			}
			d.SlotsTaken++
		}
		d.Slots = append(d.Slots, line)
	}
	return d
}
