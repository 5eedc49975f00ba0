package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"

	"outreachcrm/config"
	"outreachcrm/engine"
	"outreachcrm/models"
)

// ReplyWorker polls the outreach inbox over IMAP and marks enrollments as
// replied when a known contact writes back.
type ReplyWorker struct {
	DB     *gorm.DB
	Engine *engine.SequenceEngine
	IMAP   config.IMAPConfig
	Logger *log.Logger

	PollInterval time.Duration
}

func NewReplyWorker(db *gorm.DB, eng *engine.SequenceEngine, imapCfg config.IMAPConfig, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		DB:           db,
		Engine:       eng,
		IMAP:         imapCfg,
		Logger:       logger,
		PollInterval: 5 * time.Minute,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	rw.Logger.Println("Reply worker started")

	ticker := time.NewTicker(rw.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Reply worker shutting down...")
			return
		case <-ticker.C:
			if err := rw.checkInbox(); err != nil {
				rw.Logger.Printf("Inbox check failed: %v", err)
			}
		}
	}
}

func (rw *ReplyWorker) checkInbox() error {
	imapAddr := fmt.Sprintf("%s:%d", rw.IMAP.Host, rw.IMAP.Port)
	imapClient, err := client.DialTLS(imapAddr, &tls.Config{
		ServerName: rw.IMAP.Host,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %v", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(rw.IMAP.Username, rw.IMAP.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %v", err)
	}

	mailbox := rw.IMAP.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset,
			[]imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if err := rw.processMessage(msg); err != nil {
			rw.Logger.Printf("Failed to process message %d: %v", msg.SeqNum, err)
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %v", err)
	}
	return nil
}

// processMessage matches the sender address against known contacts and marks
// their active enrollments as replied. Messages from unknown addresses are
// ignored.
func (rw *ReplyWorker) processMessage(msg *imap.Message) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}
	from := msg.Envelope.From[0]
	fromEmail := strings.ToLower(from.MailboxName + "@" + from.HostName)

	var contact models.Contact
	err := rw.DB.Where("email = ?", fromEmail).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	snippet := rw.extractSnippet(msg)

	var enrollments []models.Enrollment
	if err := rw.DB.Where("contact_id = ? AND status = ?",
		contact.ID, models.EnrollmentStatusActive).Find(&enrollments).Error; err != nil {
		return err
	}

	for _, enrollment := range enrollments {
		if err := rw.Engine.MarkReplied(enrollment.ID); err != nil {
			rw.Logger.Printf("Failed to mark enrollment %d replied: %v", enrollment.ID, err)
			continue
		}

		description := "Reply received"
		if msg.Envelope.Subject != "" {
			description = "Reply received: " + msg.Envelope.Subject
		}
		if snippet != "" {
			description += "\n\n" + snippet
		}

		activity := models.Activity{
			ContactID:    contact.ID,
			ActivityType: models.ActivityEmailReplied,
			Description:  description,
			EmailSubject: msg.Envelope.Subject,
			SequenceID:   &enrollment.SequenceID,
			PerformedAt:  time.Now().UTC(),
			PerformedBy:  "system",
		}
		if err := rw.DB.Create(&activity).Error; err != nil {
			rw.Logger.Printf("Failed to record reply activity: %v", err)
		}
	}

	// Contacts outside any sequence still get their reply logged.
	if len(enrollments) == 0 {
		activity := models.Activity{
			ContactID:    contact.ID,
			ActivityType: models.ActivityEmailReplied,
			Description:  "Reply received: " + msg.Envelope.Subject,
			EmailSubject: msg.Envelope.Subject,
			PerformedAt:  time.Now().UTC(),
			PerformedBy:  "system",
		}
		if err := rw.DB.Create(&activity).Error; err != nil {
			return err
		}
		return rw.DB.Model(&contact).Update("last_replied_at", time.Now().UTC()).Error
	}

	return nil
}

const snippetLimit = 300

// extractSnippet pulls the first plain-text part of the message body.
func (rw *ReplyWorker) extractSnippet(msg *imap.Message) string {
	section := imap.BodySectionName{}
	body := msg.GetBody(&section)
	if body == nil {
		return ""
	}

	reader, err := mail.CreateReader(body)
	if err != nil {
		return ""
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ""
		}

		if _, ok := part.Header.(*mail.InlineHeader); ok {
			raw, err := io.ReadAll(io.LimitReader(part.Body, 4096))
			if err != nil {
				return ""
			}
			text := strings.TrimSpace(string(raw))
			runes := []rune(text)
			if len(runes) > snippetLimit {
				text = string(runes[:snippetLimit]) + "..."
			}
			return text
		}
	}
	return ""
}
