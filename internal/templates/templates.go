// Package templates renders the outreach copy for each stage.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"os"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEmailSubject = "Important Update"

	DefaultEmailHTML = `<div style="font-size: 16px; font-family: Arial, sans-serif; color: #333;">
<p>Hi {{.FirstName}},</p>

<p>It’s been a while since we saw you! I was updating our client records and realized you qualify for our "Returning Client" status.</p>

<p>That means if you move with us again, you automatically get <strong>5% off</strong> your quote.</p>

<p>We just opened up a few spots for estimates next week. Are you moving soon (or know someone who is)?</p>

<p>Best,<br>Jim</p>
</div>`

	DefaultSMSBody = `Hey {{.FirstName}}, Jim here from Splendid Moving.

Did you see my email about the 5% loyalty discount?

If you are moving soon, you can use this link to get a quote with the 5% off applied: https://services.msgsndr.com/urls/l/QGRUkVTzw 

Let me know if it works!`
)

// Data is what templates can reference.
type Data struct {
	FirstName string
}

// File is the on-disk override format. Empty fields keep the defaults.
type File struct {
	Email struct {
		Subject string `yaml:"subject"`
		HTML    string `yaml:"html"`
	} `yaml:"email"`
	SMS struct {
		Body string `yaml:"body"`
	} `yaml:"sms"`
}

// Set holds the parsed templates for both stages.
type Set struct {
	subject string
	email   *htmltemplate.Template
	sms     *texttemplate.Template
}

// Default returns the built-in templates.
func Default() *Set {
	s, err := build(DefaultEmailSubject, DefaultEmailHTML, DefaultSMSBody)
	if err != nil {
		panic(fmt.Sprintf("templates: built-in templates invalid: %v", err))
	}
	return s
}

// Load returns the built-in templates overridden by the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("templates: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML override document.
func Parse(data []byte) (*Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("templates: payload is empty")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("templates: decode: %w", err)
	}

	subject := orDefault(f.Email.Subject, DefaultEmailSubject)
	html := orDefault(f.Email.HTML, DefaultEmailHTML)
	sms := orDefault(f.SMS.Body, DefaultSMSBody)
	return build(subject, html, sms)
}

func build(subject, html, sms string) (*Set, error) {
	emailTmpl, err := htmltemplate.New("email").Option("missingkey=error").Parse(html)
	if err != nil {
		return nil, fmt.Errorf("templates: parse email: %w", err)
	}
	smsTmpl, err := texttemplate.New("sms").Option("missingkey=error").Parse(sms)
	if err != nil {
		return nil, fmt.Errorf("templates: parse sms: %w", err)
	}
	s := &Set{subject: strings.TrimSpace(subject), email: emailTmpl, sms: smsTmpl}

	// Fields are checked at execution time, so render once with sample data.
	sample := Data{FirstName: "there"}
	if _, err := s.Email(sample); err != nil {
		return nil, err
	}
	if _, err := s.SMS(sample); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) EmailSubject() string {
	return s.subject
}

// Email renders the HTML email body. The first name is HTML escaped.
func (s *Set) Email(d Data) (string, error) {
	var buf bytes.Buffer
	if err := s.email.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("templates: render email: %w", err)
	}
	return buf.String(), nil
}

func (s *Set) SMS(d Data) (string, error) {
	var buf bytes.Buffer
	if err := s.sms.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("templates: render sms: %w", err)
	}
	return buf.String(), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
