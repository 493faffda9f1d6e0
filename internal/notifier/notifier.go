package notifier

import (
	"encoding/json"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/logger"
)

type Config struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	FromAddress string
	FrontDesk   string
}

// Notifier turns appointment sync events into email to the front desk.
// Patients are not addressed directly; patient contact data lives in the
// backend, outside this subsystem.
type Notifier struct {
	cfg    Config
	dialer *gomail.Dialer
	logger *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		logger: log.WithComponent("notifier"),
	}
}

// HandleAppointmentEvent is registered as a sync channel handler. Only
// terminal or confirmation transitions produce mail.
func (n *Notifier) HandleAppointmentEvent(event *model.SyncEvent) {
	if !n.cfg.Enabled || len(event.Payload) == 0 {
		return
	}

	var apt model.Appointment
	if err := json.Unmarshal(event.Payload, &apt); err != nil {
		n.logger.Error(err, "failed to decode appointment event")
		return
	}

	var subject string
	switch apt.Status {
	case model.AppointmentStatusConfirmed:
		subject = "Appointment confirmed"
	case model.AppointmentStatusCancelled:
		subject = "Appointment cancelled"
	case model.AppointmentStatusNoShow:
		subject = "Patient marked as no-show"
	default:
		return
	}

	body := fmt.Sprintf("Appointment %s on %s at %s is now %s.",
		apt.ID, apt.Date, apt.Time, apt.Status)

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.cfg.FromAddress)
	msg.SetHeader("To", n.cfg.FrontDesk)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		n.logger.Error(err, "failed to send notification email",
			"appointment_id", apt.ID.String())
		return
	}
	n.logger.Debug("notification sent", "appointment_id", apt.ID.String(), "status", string(apt.Status))
}
