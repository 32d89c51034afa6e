// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	mail "gopkg.in/gomail.v2"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("MAIL_USERNAME", "daq@example.org")
	t.Setenv("MAIL_PASSWORD", "s3cr3t")
	t.Setenv("MAIL_SERVER", "smtp.example.org")
	t.Setenv("MAIL_PORT", "587")
	t.Setenv("MAIL_TGTS", "alice@example.org, bob@example.org,")

	m := FromEnv()
	if m.Usr != "daq@example.org" || m.Pwd != "s3cr3t" || m.Srv != "smtp.example.org" || m.Port != 587 {
		t.Fatalf("invalid mailer: %+v", m)
	}
	if got, want := m.Targets, []string{"alice@example.org", "bob@example.org"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}
}

func TestAlert(t *testing.T) {
	var sent []*mail.Message
	m := &Mailer{
		Usr:     "daq@example.org",
		Pwd:     "s3cr3t",
		Srv:     "smtp.example.org",
		Port:    587,
		Targets: []string{"alice@example.org"},
		send: func(msg *mail.Message) error {
			sent = append(sent, msg)
			return nil
		},
	}

	err := m.Alert("[npx] FIFO alert: slot 3", "fill: 92.0%")
	if err != nil {
		t.Fatalf("could not send alert: %+v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("invalid number of mails: %d", len(sent))
	}
	if got, want := sent[0].GetHeader("Subject"), []string{"[npx] FIFO alert: slot 3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid subject: got=%q, want=%q", got, want)
	}

	buf := new(bytes.Buffer)
	if _, err := sent[0].WriteTo(buf); err != nil {
		t.Fatalf("could not write mail: %+v", err)
	}
	if !strings.Contains(buf.String(), "fill: 92.0%") {
		t.Fatalf("missing body:\n%s", buf.String())
	}

	m.send = func(msg *mail.Message) error { return errors.New("connection refused") }
	if err := m.Alert("subject", "body"); err == nil {
		t.Fatalf("expected an error")
	}

	m.Pwd = ""
	if err := m.Alert("subject", "body"); err == nil {
		t.Fatalf("expected an error for missing credentials")
	}
}
