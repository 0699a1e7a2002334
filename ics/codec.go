// Package ics converts between in-memory event records and iCalendar
// (RFC 5545) calendar object text.
package ics

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const prodID = "-//vtekvtek//caldav-eventsync//EN"

// EventRecord is the in-memory form of a single calendar event. An empty
// UID marks a not-yet-created event; Encode assigns one. StartDate and
// EndDate are epoch milliseconds, interpreted as UTC instants. The core
// does not enforce EndDate >= StartDate; malformed ranges pass through to
// the server unchanged.
type EventRecord struct {
	UID         string `json:"uid,omitempty"`
	Title       string `json:"title"`
	StartDate   int64  `json:"startDate"`
	EndDate     int64  `json:"endDate"`
	AllDay      bool   `json:"allDay"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// Encode serializes rec into a VCALENDAR document holding one VEVENT and
// returns the event UID alongside the body. When rec carries no UID a
// fresh one is generated; the caller must keep it as the record's
// permanent identifier. DTSTAMP is restamped with the current instant on
// every encode, so an update never carries a stale creation stamp.
func Encode(rec EventRecord) (uid string, body string, err error) {
	uid = rec.UID
	if uid == "" {
		uid = uuid.New().String()
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC().Truncate(time.Second))

	if rec.AllDay {
		// iCalendar all-day ends are exclusive: DTEND names the first
		// day after the event, so the record's end day shifts by one.
		dtstart := ical.NewProp(ical.PropDateTimeStart)
		dtstart.SetDate(utcDay(rec.StartDate))
		event.Props.Set(dtstart)

		dtend := ical.NewProp(ical.PropDateTimeEnd)
		dtend.SetDate(utcDay(rec.EndDate).AddDate(0, 0, 1))
		event.Props.Set(dtend)
	} else {
		event.Props.SetDateTime(ical.PropDateTimeStart, utcInstant(rec.StartDate))
		event.Props.SetDateTime(ical.PropDateTimeEnd, utcInstant(rec.EndDate))
	}

	event.Props.SetText(ical.PropSummary, rec.Title)
	if rec.Location != "" {
		event.Props.SetText(ical.PropLocation, rec.Location)
	}
	if rec.Description != "" {
		event.Props.SetText(ical.PropDescription, rec.Description)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", "", fmt.Errorf("failed to encode calendar: %w", err)
	}
	return uid, buf.String(), nil
}

// Decode parses a calendar object body and recovers the event record of
// its first VEVENT. All-day events are translated back from the exclusive
// DTEND convention, so Decode(Encode(rec)) preserves EndDate.
func Decode(body string) (EventRecord, error) {
	cal, err := ical.NewDecoder(strings.NewReader(body)).Decode()
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to decode calendar: %w", err)
	}

	events := cal.Events()
	if len(events) == 0 {
		return EventRecord{}, fmt.Errorf("no events found in calendar")
	}
	event := events[0]

	var rec EventRecord
	if prop := event.Props.Get(ical.PropUID); prop != nil {
		rec.UID = prop.Value
	}
	if rec.Title, err = textProp(event, ical.PropSummary); err != nil {
		return EventRecord{}, err
	}
	if rec.Location, err = textProp(event, ical.PropLocation); err != nil {
		return EventRecord{}, err
	}
	if rec.Description, err = textProp(event, ical.PropDescription); err != nil {
		return EventRecord{}, err
	}

	start := event.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return EventRecord{}, fmt.Errorf("event has no DTSTART")
	}
	rec.AllDay = start.ValueType() == ical.ValueDate

	startTime, err := start.DateTime(time.UTC)
	if err != nil {
		return EventRecord{}, fmt.Errorf("failed to parse DTSTART: %w", err)
	}
	rec.StartDate = startTime.UnixMilli()

	if end := event.Props.Get(ical.PropDateTimeEnd); end != nil {
		endTime, err := end.DateTime(time.UTC)
		if err != nil {
			return EventRecord{}, fmt.Errorf("failed to parse DTEND: %w", err)
		}
		if rec.AllDay {
			endTime = endTime.AddDate(0, 0, -1)
		}
		rec.EndDate = endTime.UnixMilli()
	}

	return rec, nil
}

// ExtractField returns the value of the first content line of body that
// begins with name followed by a colon, with surrounding whitespace
// trimmed. Folded continuation lines are joined before matching. The
// second return value reports whether the field was present.
func ExtractField(body, name string) (string, bool) {
	for _, line := range strings.Split(unfold(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, name+":") {
			return strings.TrimSpace(line[len(name)+1:]), true
		}
	}
	return "", false
}

// unfold removes RFC 5545 line folding (CRLF or LF followed by a space or
// tab) so each property occupies a single line.
func unfold(body string) string {
	r := strings.NewReplacer("\r\n ", "", "\r\n\t", "", "\n ", "", "\n\t", "")
	return r.Replace(body)
}

func textProp(event ical.Event, name string) (string, error) {
	prop := event.Props.Get(name)
	if prop == nil {
		return "", nil
	}
	value, err := prop.Text()
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return value, nil
}

func utcInstant(epochMillis int64) time.Time {
	return time.UnixMilli(epochMillis).UTC().Truncate(time.Second)
}

func utcDay(epochMillis int64) time.Time {
	t := time.UnixMilli(epochMillis).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
