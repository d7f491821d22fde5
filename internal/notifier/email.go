package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"buddy-match/internal/model"
)

// ErrNoAddress 候选人没有可用的邮箱。
var ErrNoAddress = errors.New("candidate has no email address")

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	Subject  string `yaml:"subject" json:"subject"`
}

// Enabled 判断配置是否完整。
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.Port != 0 && c.From != ""
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Directory 根据候选人 ID 查找联系方式。
type Directory interface {
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := buildEmailData(msg)
	return smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data))
}

// EmailNotifier 通过邮件投递匹配通知。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
	dir    Directory
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, dir Directory, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	return &EmailNotifier{cfg: cfg, sender: sender, dir: dir}
}

// Notify 查找候选人邮箱并发送。
func (n EmailNotifier) Notify(ctx context.Context, candidateID string, msg Message) error {
	c, err := n.dir.GetCandidate(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", candidateID, err)
	}
	to := strings.TrimSpace(c.Email)
	if to == "" {
		return fmt.Errorf("%s: %w", candidateID, ErrNoAddress)
	}

	subject := msg.Subject
	if n.cfg.Subject != "" {
		subject = n.cfg.Subject
	}
	return n.sender.Send(ctx, EmailMessage{
		From:    n.cfg.From,
		To:      []string{to},
		Subject: subject,
		Body:    msg.Body,
	})
}

func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
