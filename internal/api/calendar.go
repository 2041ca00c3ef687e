package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/schedule"
)

const (
	defaultCalendarDays = 7
	maxCalendarDays     = 31
	// maxOccurrences caps how many runs one event contributes to the feed
	maxOccurrences = 200
	// runDuration is the nominal length of a run in calendar clients
	runDuration = time.Minute
)

// handleCalendar serves upcoming runs as an iCalendar feed
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	days := defaultCalendarDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxCalendarDays {
			writeBadRequest(w, fmt.Sprintf("days must be an integer between 1 and %d.", maxCalendarDays))
			return
		}
		days = n
	}

	events, err := s.events.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	now := s.events.Now()
	cal := buildCalendar(events, now, now.Add(time.Duration(days)*24*time.Hour))

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="hearth.ics"`)
	w.WriteHeader(http.StatusOK)
	_ = cal.SerializeTo(w)
}

func buildCalendar(events []*event.Event, now, until time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//hearth//schedule engine//EN")
	cal.SetXWRCalName("Hearth schedules")

	for _, ev := range events {
		for _, run := range occurrences(ev, until) {
			uid := fmt.Sprintf("%s-%d@hearth", ev.ID, run.Unix())
			vev := cal.AddEvent(uid)
			vev.SetDtStampTime(now)
			vev.SetStartAt(run)
			vev.SetEndAt(run.Add(runDuration))
			vev.SetSummary(ev.TaskType)
			vev.SetDescription(ev.ScheduleExpression)
		}
	}
	return cal
}

// occurrences lists the runs of ev from its next run up to until
func occurrences(ev *event.Event, until time.Time) []time.Time {
	next, err := ev.NextRunTime()
	if err != nil || next.After(until) {
		return nil
	}
	runs := []time.Time{next}
	if !ev.IsRecurring {
		return runs
	}

	expr, err := schedule.Parse(ev.ScheduleExpression)
	if err != nil {
		return runs
	}
	for len(runs) < maxOccurrences {
		next, err = schedule.NextRun(expr, next)
		if err != nil || next.After(until) {
			break
		}
		runs = append(runs, next)
	}
	return runs
}
