package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails the operator when a run ends in failure.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     string
	send   sendFunc
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from, to string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, to: to, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, videoID int64, sourcePath, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := n.send(addr, nil, n.from, []string{n.to}, failureMessage(n.from, n.to, videoID, sourcePath, errorMsg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", n.to),
			zap.Int64("video_id", videoID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", n.to),
		zap.Int64("video_id", videoID),
	)
	return nil
}

func failureMessage(from, to string, videoID int64, sourcePath, errorMsg string) []byte {
	subject := fmt.Sprintf("Person detection failed [video %d]", videoID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Person detection could not finish for a video.\r\n\r\n"+
			"Video ID: %d\r\n"+
			"Source: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Re-trigger processing once the cause is fixed; detections already stored are kept.\r\n",
		videoID, sourcePath, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
