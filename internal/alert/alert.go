// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends alerts to operators by mail.
package alert // import "github.com/go-lpc/npx/internal/alert"

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
)

// Mailer sends alerts by mail.
type Mailer struct {
	Usr     string
	Pwd     string
	Srv     string
	Port    int
	Targets []string

	send func(m *mail.Message) error
}

// FromEnv creates a mailer configured from the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
func FromEnv() *Mailer {
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	var tgts []string
	for _, tgt := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		tgts = append(tgts, tgt)
	}
	return &Mailer{
		Usr:     os.Getenv("MAIL_USERNAME"),
		Pwd:     os.Getenv("MAIL_PASSWORD"),
		Srv:     os.Getenv("MAIL_SERVER"),
		Port:    port,
		Targets: tgts,
	}
}

// Alert sends a mail with the provided subject and body to all targets.
func (m *Mailer) Alert(subject, body string) error {
	if m.Usr == "" || m.Pwd == "" ||
		m.Srv == "" || m.Port == 0 ||
		len(m.Targets) == 0 {
		return fmt.Errorf("alert: could not send mail alert: missing credentials")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.Usr)
	msg.SetHeader("Bcc", m.Targets...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	send := m.send
	if send == nil {
		send = m.dialAndSend
	}
	err := send(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail alert: %w", err)
	}
	return nil
}

func (m *Mailer) dialAndSend(msg *mail.Message) error {
	dial := mail.NewDialer(m.Srv, m.Port, m.Usr, m.Pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}
