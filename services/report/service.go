package report

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/PixelCrafter-ath/fit/pkg/errutil"
	"github.com/PixelCrafter-ath/fit/services/checkin"
	"github.com/PixelCrafter-ath/fit/services/contact"
)

const dateLayout = "2006-01-02"

// Service exposes the read-only projections dashboards and exports consume.
type Service struct {
	contacts *contact.Service
	checkins *checkin.Service
}

type ServiceParams struct {
	fx.In

	Contacts *contact.Service
	Checkins *checkin.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		contacts: p.Contacts,
		checkins: p.Checkins,
	}
}

type ContactStatus struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PhoneNumber   string `json:"phone_number"`
	CurrentStreak int    `json:"current_streak"`
	UserType      string `json:"user_type"`
}

type DayStatus struct {
	Date          string          `json:"date"`
	Received      []ContactStatus `json:"received"`
	NotReceived   []ContactStatus `json:"not_received"`
	TotalContacts int             `json:"total_contacts"`
	UpdatedCount  int             `json:"updated_count"`
	MissedCount   int             `json:"missed_count"`
}

// StatusForDate splits the active contacts into those that checked in on day
// and those that did not.
func (s *Service) StatusForDate(ctx context.Context, day string) (*DayStatus, error) {
	if _, err := time.Parse(dateLayout, day); err != nil {
		return nil, errutil.BadRequest("date must be YYYY-MM-DD", errutil.WithErr(err))
	}

	contacts, err := s.contacts.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	checked, err := s.checkins.PhonesWithEventOn(ctx, day)
	if err != nil {
		return nil, err
	}

	out := &DayStatus{
		Date:          day,
		Received:      []ContactStatus{},
		NotReceived:   []ContactStatus{},
		TotalContacts: len(contacts),
	}
	for _, c := range contacts {
		cs := ContactStatus{
			ID:            c.ID,
			Name:          c.Name,
			PhoneNumber:   c.PhoneNumber,
			CurrentStreak: c.CurrentStreak,
			UserType:      c.UserType,
		}
		if checked[c.PhoneNumber] {
			out.Received = append(out.Received, cs)
		} else {
			out.NotReceived = append(out.NotReceived, cs)
		}
	}
	out.UpdatedCount = len(out.Received)
	out.MissedCount = len(out.NotReceived)
	return out, nil
}

type HistoryDay struct {
	Date    string `json:"date"`
	Updated bool   `json:"updated"`
	Message string `json:"message,omitempty"`
}

type HistoryStats struct {
	TotalDays   int `json:"total_days"`
	UpdatedDays int `json:"updated_days"`
	MissedDays  int `json:"missed_days"`
	Streak      int `json:"streak"`
}

type History struct {
	Contact ContactStatus `json:"contact"`
	Days    []HistoryDay  `json:"history"`
	Stats   HistoryStats  `json:"stats"`
}

// History returns the per-day updated/not-updated list for a contact within
// [start, end].
func (s *Service) History(ctx context.Context, contactID, start, end string) (*History, error) {
	startT, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, errutil.BadRequest("start must be YYYY-MM-DD", errutil.WithErr(err))
	}
	endT, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, errutil.BadRequest("end must be YYYY-MM-DD", errutil.WithErr(err))
	}
	if endT.Before(startT) {
		return nil, errutil.BadRequest("end must not precede start")
	}

	c, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}

	events, err := s.checkins.EventsInRange(ctx, contactID, start, end)
	if err != nil {
		return nil, err
	}

	firstMessage := make(map[string]string)
	for _, e := range events {
		if _, ok := firstMessage[e.EventDate]; !ok {
			firstMessage[e.EventDate] = e.Body
		}
	}

	out := &History{
		Contact: ContactStatus{
			ID:            c.ID,
			Name:          c.Name,
			PhoneNumber:   c.PhoneNumber,
			CurrentStreak: c.CurrentStreak,
			UserType:      c.UserType,
		},
	}
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		day := d.Format(dateLayout)
		msg, updated := firstMessage[day]
		out.Days = append(out.Days, HistoryDay{
			Date:    day,
			Updated: updated,
			Message: msg,
		})
		if updated {
			out.Stats.UpdatedDays++
		}
	}
	out.Stats.TotalDays = len(out.Days)
	out.Stats.MissedDays = out.Stats.TotalDays - out.Stats.UpdatedDays
	out.Stats.Streak = c.CurrentStreak

	return out, nil
}
