package providers

import (
	"github.com/samber/do/v2"

	"github.com/beaconapp/beacon-server/internal/config"
	"github.com/beaconapp/beacon-server/internal/logger"
	"github.com/beaconapp/beacon-server/internal/mail"
)

// MailerHandle wraps the background mail dispatcher.
type MailerHandle struct {
	*mail.Async
}

// Shutdown implements do.Shutdownable. It waits for in-flight mail.
func (h *MailerHandle) Shutdown() error {
	h.Wait()
	return nil
}

// ProvideMailer provides the mail dispatcher used for password reset codes.
func ProvideMailer(i do.Injector) (*MailerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var next mail.Dispatcher
	switch cfg.Mail.Driver {
	case "smtp":
		next = mail.NewSMTPDispatcher(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			UseTLS:   cfg.Mail.UseTLS,
			Timeout:  cfg.Mail.Timeout,
		})
		log.Info("Mail relay configured", "host", cfg.Mail.Host, "port", cfg.Mail.Port)
	default:
		next = mail.NewLogDispatcher(log.Logger)
		log.Warn("No mail relay configured, reset codes are logged")
	}

	return &MailerHandle{Async: mail.NewAsync(next, log.Logger)}, nil
}
