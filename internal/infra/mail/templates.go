package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/catalog.yaml templates/layout.html
var templateFS embed.FS

const (
	typeFollowUp = "followup"
	typeDefault  = "default"

	fallbackName = "there"
)

type typeCopy struct {
	Subject       string   `yaml:"subject"`
	SubjectPrefix string   `yaml:"subject_prefix"`
	Heading       string   `yaml:"heading"`
	Paragraphs    []string `yaml:"paragraphs"`
}

type catalog struct {
	Signature  []string            `yaml:"signature"`
	EmailTypes map[string]typeCopy `yaml:"email_types"`
	FollowUps  map[string]string   `yaml:"followups"`
}

type layoutData struct {
	Heading    string
	Paragraphs []string
	Signature  []string
}

// Rendered is a ready to send subject and HTML body.
type Rendered struct {
	Subject string
	HTML    string
}

var (
	copyCatalog = mustLoadCatalog()
	layout      = template.Must(template.ParseFS(templateFS, "templates/layout.html"))
)

func mustLoadCatalog() catalog {
	raw, err := templateFS.ReadFile("templates/catalog.yaml")
	if err != nil {
		panic(fmt.Sprintf("read email catalog: %v", err))
	}
	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		panic(fmt.Sprintf("parse email catalog: %v", err))
	}
	if _, ok := c.EmailTypes[typeDefault]; !ok {
		panic("email catalog has no default type")
	}
	return c
}

// Render builds the final subject and HTML for a queued email. It does no
// I/O and is deterministic. Unknown types get the generic wrapper.
func Render(emailType, recipientName, subject, body string) (Rendered, error) {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = fallbackName
	}

	key := strings.ToLower(strings.TrimSpace(emailType))
	c, ok := copyCatalog.EmailTypes[key]
	if !ok {
		key = typeDefault
		c = copyCatalog.EmailTypes[typeDefault]
	}

	data := layoutData{
		Heading:   strings.ReplaceAll(c.Heading, "{name}", name),
		Signature: copyCatalog.Signature,
	}
	data.Paragraphs = append(data.Paragraphs, c.Paragraphs...)

	bodyParagraphs := Paragraphs(body)
	if key == typeFollowUp && len(bodyParagraphs) == 0 {
		bodyParagraphs = Paragraphs(FollowUpCopy(""))
	}
	data.Paragraphs = append(data.Paragraphs, bodyParagraphs...)

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s email: %w", key, err)
	}

	return Rendered{
		Subject: finalSubject(c, subject),
		HTML:    buf.String(),
	}, nil
}

func finalSubject(c typeCopy, subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = c.Subject
	}
	if c.SubjectPrefix != "" && !strings.HasPrefix(subject, c.SubjectPrefix) {
		subject = c.SubjectPrefix + subject
	}
	return subject
}

// DefaultSubject is the catalog subject for an email type, empty when the
// type has none.
func DefaultSubject(emailType string) string {
	c, ok := copyCatalog.EmailTypes[strings.ToLower(strings.TrimSpace(emailType))]
	if !ok {
		return ""
	}
	return c.Subject
}

// FollowUpCopy returns the body text for a named follow-up template,
// falling back to the default copy.
func FollowUpCopy(name string) string {
	if text, ok := copyCatalog.FollowUps[strings.ToLower(strings.TrimSpace(name))]; ok {
		return text
	}
	return copyCatalog.FollowUps[typeDefault]
}

// Paragraphs splits plain text on blank lines.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
