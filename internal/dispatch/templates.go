package dispatch

import (
	"adoptchat/backend/internal/config"
	"adoptchat/backend/internal/models"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Copy is the rendered wording of one event for both audiences.
type Copy struct {
	Staff    string
	User     string
	Priority models.Priority
}

type template func(ev models.Event) Copy

// templates holds one entry per models.EventTypes.
var templates = map[models.EventType]template{
	models.EventProcessStarted: func(ev models.Event) Copy {
		e := ev.(models.ProcessStarted)
		return Copy{
			Staff: fmt.Sprintf("%s started the adoption process (cycle %d)", name(e.Envelope), e.CycleNumber),
			User:  fmt.Sprintf("Your adoption process has started. Next step: %s", config.StepTitle(2)),
		}
	},
	models.EventItemDonation: func(ev models.Event) Copy {
		e := ev.(models.DonationSubmitted)
		return Copy{
			Staff: fmt.Sprintf("%s submitted a %s donation", name(e.Envelope), e.Category),
			User:  fmt.Sprintf("Your %s donation was submitted", e.Category),
		}
	},
	models.EventFundDonation: func(ev models.Event) Copy {
		e := ev.(models.DonationSubmitted)
		return Copy{
			Staff: fmt.Sprintf("%s submitted a fund donation of %s", name(e.Envelope), amount(e.Amount)),
			User:  fmt.Sprintf("Your fund donation of %s was submitted", amount(e.Amount)),
		}
	},
	models.EventDonationApproved: func(ev models.Event) Copy {
		e := ev.(models.DonationApproved)
		return Copy{
			Staff: fmt.Sprintf("%s donation from %s was approved", e.Category, name(e.Envelope)),
			User:  fmt.Sprintf("Your %s donation was approved. Thank you!", e.Category),
		}
	},
	models.EventDonationRejected: func(ev models.Event) Copy {
		e := ev.(models.DonationRejected)
		c := Copy{
			Staff:    fmt.Sprintf("%s donation from %s was rejected", e.Category, name(e.Envelope)),
			User:     fmt.Sprintf("Your %s donation was not accepted", e.Category),
			Priority: models.PriorityHigh,
		}
		if e.Reason != "" {
			c.Staff += ": " + e.Reason
			c.User += ": " + e.Reason
		}
		return c
	},
	models.EventAppointmentScheduled: func(ev models.Event) Copy {
		e := ev.(models.AppointmentScheduled)
		c := Copy{
			Staff: fmt.Sprintf("%s booked an appointment for %s", name(e.Envelope), when(e.At)),
			User:  fmt.Sprintf("Your appointment is scheduled for %s", when(e.At)),
		}
		if e.Purpose != "" {
			c.Staff += " (" + e.Purpose + ")"
			c.User += " (" + e.Purpose + ")"
		}
		return c
	},
	models.EventAppointmentCancelled: func(ev models.Event) Copy {
		e := ev.(models.AppointmentCancelled)
		c := Copy{
			Staff:    fmt.Sprintf("%s cancelled the appointment on %s", name(e.Envelope), when(e.At)),
			User:     fmt.Sprintf("Your appointment on %s was cancelled", when(e.At)),
			Priority: models.PriorityUrgent,
		}
		if e.Reason != "" {
			c.Staff += ": " + e.Reason
			c.User += ": " + e.Reason
		}
		return c
	},
	models.EventMatchCompleted: func(ev models.Event) Copy {
		e := ev.(models.MatchCompleted)
		staff := fmt.Sprintf("%s has been matched", name(e.Envelope))
		user := "Good news! You have been matched"
		if e.ChildName != "" {
			staff += " with " + e.ChildName
			user += " with " + e.ChildName
		}
		return Copy{Staff: staff, User: user, Priority: models.PriorityHigh}
	},
	models.EventStepCompleted: func(ev models.Event) Copy {
		e := ev.(models.StepCompleted)
		title := e.StepTitle
		if title == "" {
			title = config.StepTitle(e.Step)
		}
		return Copy{
			Staff: fmt.Sprintf("%s completed step %d of %d: %s", name(e.Envelope), e.Step, config.ProcessStepCount, title),
			User:  fmt.Sprintf("Step %d of %d completed: %s", e.Step, config.ProcessStepCount, title),
		}
	},
	models.EventCycleRestarted: func(ev models.Event) Copy {
		e := ev.(models.CycleRestarted)
		return Copy{
			Staff:    fmt.Sprintf("%s finished all %d steps. Cycle %d has started", name(e.Envelope), config.ProcessStepCount, e.CycleNumber),
			User:     fmt.Sprintf("You completed all %d steps! Cycle %d has started", config.ProcessStepCount, e.CycleNumber),
			Priority: models.PriorityHigh,
		}
	},
}

// Render returns the wording for ev.
func Render(ev models.Event) (Copy, error) {
	tpl, ok := templates[ev.Type()]
	if !ok {
		return Copy{}, fmt.Errorf("%w: no template for %s", models.ErrInvalidEvent, ev.Type())
	}
	c := tpl(ev)
	if c.Priority == "" {
		c.Priority = models.PriorityNormal
	}
	return c, nil
}

func name(e models.Envelope) string {
	if e.Username != "" {
		return e.Username
	}
	return "User " + e.UserID
}

func amount(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func when(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
