package services

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/gitreportshq/gitreports/models"
)

// Notifier tells a repository's owning user that an issue was filed.
// Implementations must be fire and forget: delivery failure never affects
// the submission result.
type Notifier interface {
	IssueSubmitted(repoId uint, issueNumber int)
}

// EmailNotifier delivers issue notifications over SMTP. With no SMTP host
// configured the notification is only logged.
type EmailNotifier struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

func (n *EmailNotifier) IssueSubmitted(repoId uint, issueNumber int) {
	go n.deliver(repoId, issueNumber)
}

func (n *EmailNotifier) deliver(repoId uint, issueNumber int) {
	repo, err := models.DB.GetRepositoryById(repoId)
	if err != nil || repo == nil {
		slog.Error("notification skipped, repository not found", "repoId", repoId, "error", err)
		return
	}
	owner, err := models.DB.GetRepositoryOwner(repo)
	if err != nil || owner == nil {
		slog.Error("notification skipped, repository has no owner", "repoId", repoId, "error", err)
		return
	}

	slog.Info("Issue submitted notification",
		"repoId", repo.ID,
		"repo", repo.FullName(),
		"issueNumber", issueNumber,
		"ownerId", owner.ID)

	if n.Host == "" || owner.Email == "" {
		slog.Debug("smtp not configured or owner has no email, notification logged only",
			"repoId", repo.ID)
		return
	}

	subject := fmt.Sprintf("New issue #%d on %s", issueNumber, repo.FullName())
	body := fmt.Sprintf("A new issue was submitted to %s through Git Reports.\r\n\r\n"+
		"https://github.com/%s/issues/%d\r\n", repo.FullName(), repo.FullName(), issueNumber)
	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s", owner.Email, n.From, subject, body))

	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	var auth smtp.Auth
	if n.Username != "" {
		auth = smtp.PlainAuth("", n.Username, n.Password, n.Host)
	}
	if err := smtp.SendMail(addr, auth, n.From, []string{owner.Email}, msg); err != nil {
		slog.Error("failed to deliver notification email",
			"repoId", repo.ID,
			"issueNumber", issueNumber,
			"error", err)
	}
}
