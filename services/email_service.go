package services

import (
	"context"
	"fmt"

	"microlending/config"

	"gopkg.in/gomail.v2"
)

// MailSender отправляет подготовленные письма
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService отправляет уведомления заявителям и заемщикам
type EmailService struct {
	sender MailSender
	from   string
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return NewEmailServiceWithSender(dialer, cfg.SMTP.From)
}

// NewEmailServiceWithSender создает EmailService поверх произвольного отправителя
func NewEmailServiceWithSender(sender MailSender, from string) *EmailService {
	return &EmailService{sender: sender, from: from}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// Publish отправляет письмо по событию, если для него есть шаблон и у адресата указан email
func (s *EmailService) Publish(ctx context.Context, event Event) error {
	if event.Contact.Email == "" {
		return nil
	}

	subject, body, ok := renderNotification(event)
	if !ok {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SendEmail(event.Contact.Email, subject, body)
}

// renderNotification формирует тему и тело письма для события
func renderNotification(event Event) (string, string, bool) {
	switch event.Type {
	case EventInterviewScheduled:
		when := ""
		if event.InterviewAt != nil {
			when = event.InterviewAt.Format("02.01.2006 15:04")
		}
		return "Назначено собеседование по заявке", fmt.Sprintf(`
		<h2>Здравствуйте, %s!</h2>
		<p>По вашей заявке %s назначено собеседование.</p>
		<p>Дата и время: %s</p>
	`, event.Contact.Name, event.ApplicationID, when), true

	case EventApplicationDenied:
		return "Решение по заявке", fmt.Sprintf(`
		<h2>Здравствуйте, %s!</h2>
		<p>К сожалению, заявка %s отклонена.</p>
		<p>Вы можете подать новую заявку позже.</p>
	`, event.Contact.Name, event.ApplicationID), true

	case EventLoanGenerated:
		return "Кредит оформлен", fmt.Sprintf(`
		<h2>Здравствуйте, %s!</h2>
		<p>Кредит %s оформлен.</p>
		<p>Сумма к возврату: %s</p>
	`, event.Contact.Name, event.LoanID, event.Balance.StringFixed(2)), true

	case EventLoanSettled:
		return "Поздравляем! Ваш кредит успешно погашен", fmt.Sprintf(`
		<h2>Поздравляем!</h2>
		<p>Ваш кредит %s был успешно погашен.</p>
		<p>Теперь вам доступна повторная заявка.</p>
	`, event.LoanID), true

	case EventCollectionOverdue:
		return "Просроченный взнос", fmt.Sprintf(`
		<h2>Здравствуйте, %s!</h2>
		<p>Взнос %s по кредиту %s просрочен.</p>
		<p>Остаток к оплате: %s</p>
	`, event.Contact.Name, event.ReferenceNumber, event.LoanID, event.Amount.StringFixed(2)), true
	}
	return "", "", false
}
