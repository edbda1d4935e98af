package calendar

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
)

const productID = "-//workmate//workmate//EN"

// encodeEvent builds a VCALENDAR wrapping a single VEVENT.
func encodeEvent(uid string, fields EventFields) *ical.Calendar {
	now := time.Now().UTC()

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetText(ical.PropSummary, fields.Title)
	if fields.Description != "" {
		event.Props.SetText(ical.PropDescription, fields.Description)
	}
	if fields.Location != "" {
		event.Props.SetText(ical.PropLocation, fields.Location)
	}
	event.Props.SetDateTime(ical.PropDateTimeStart, fields.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, fields.End.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStamp, now)
	event.Props.SetDateTime(ical.PropLastModified, now)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, event.Component)

	return cal
}

// decodeRemoteEvents extracts all VEVENTs from a calendar object.
func decodeRemoteEvents(cal *ical.Calendar) ([]RemoteEvent, error) {
	var events []RemoteEvent
	for _, evt := range cal.Events() {
		remote, err := decodeRemoteEvent(evt)
		if err != nil {
			return nil, err
		}
		events = append(events, remote)
	}
	return events, nil
}

// decodeRemoteEvent converts one VEVENT into a RemoteEvent.
func decodeRemoteEvent(evt ical.Event) (RemoteEvent, error) {
	uid, err := evt.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return RemoteEvent{}, fmt.Errorf("%w: event without UID", ErrMalformedContent)
	}

	start, err := evt.DateTimeStart(time.UTC)
	if err != nil {
		return RemoteEvent{}, fmt.Errorf("%w: invalid DTSTART for %s: %w", ErrMalformedContent, uid, err)
	}

	end, err := evt.DateTimeEnd(time.UTC)
	if err != nil {
		return RemoteEvent{}, fmt.Errorf("%w: invalid DTEND for %s: %w", ErrMalformedContent, uid, err)
	}
	// Zero-length events: some servers omit DTEND entirely
	if end.IsZero() || !end.After(start) {
		end = start.Add(time.Hour)
	}

	remote := RemoteEvent{
		ExternalID: uid,
		Start:      start.UTC(),
		End:        end.UTC(),
	}

	if summary, err := evt.Props.Text(ical.PropSummary); err == nil {
		remote.Title = summary
	}
	if description, err := evt.Props.Text(ical.PropDescription); err == nil {
		remote.Description = description
	}
	if location, err := evt.Props.Text(ical.PropLocation); err == nil {
		remote.Location = location
	}

	remote.LastModified = lastModified(evt)

	return remote, nil
}

// lastModified returns the remote modification time, falling back from
// LAST-MODIFIED to DTSTAMP. Zero when neither is present.
func lastModified(evt ical.Event) time.Time {
	for _, name := range []string{ical.PropLastModified, ical.PropDateTimeStamp} {
		if prop := evt.Props.Get(name); prop != nil {
			if t, err := prop.DateTime(time.UTC); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
