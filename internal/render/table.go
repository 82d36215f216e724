// Package render formats the session table for terminals, coloring job
// statuses when the output supports it. Purely cosmetic; the plain dump in
// the scheduler package is the canonical diagnostic.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muesli/termenv"
	"github.com/stokerproj/stoker/pkg/domain"
)

var statusColors = map[domain.JobStatus]string{
	domain.StatusWaiting:  "8", // grey
	domain.StatusReady:    "4", // blue
	domain.StatusRunning:  "3", // yellow
	domain.StatusComplete: "2", // green
	domain.StatusFailed:   "1", // red
}

// SessionTable renders sessions and their jobs as a colored table.
// The jobs of each session are expected pre-sorted by name.
func SessionTable(sessions map[string][]domain.Job) string {
	profile := termenv.ColorProfile()

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	if len(ids) == 0 {
		b.WriteString("no sessions registered\n")
		return b.String()
	}
	for _, id := range ids {
		jobs := sessions[id]
		agg := domain.AggregateStatus(jobs)
		fmt.Fprintf(&b, "%s [%s]\n", termenv.String(id).Bold(), colorSession(profile, agg))
		for _, j := range jobs {
			status := termenv.String(string(j.Status)).
				Foreground(profile.Color(statusColors[j.Status]))
			fmt.Fprintf(&b, "  %-24s %s", j.Name, status)
			if len(j.Parents) > 0 {
				fmt.Fprintf(&b, "  after %s", strings.Join(j.Parents, ","))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func colorSession(profile termenv.Profile, s domain.SessionStatus) termenv.Style {
	color := "7"
	switch s {
	case domain.SessionComplete:
		color = "2"
	case domain.SessionFailed:
		color = "1"
	case domain.SessionRunning:
		color = "3"
	}
	return termenv.String(string(s)).Foreground(profile.Color(color))
}
