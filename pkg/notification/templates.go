package notification

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Templates holds the SMS bodies per event type. Messages stay plain ASCII
// so they survive every carrier.
type Templates struct {
	PaymentSettled        string `yaml:"payment_settled" json:"payment_settled"`
	ConsultationCompleted string `yaml:"consultation_completed" json:"consultation_completed"`
}

func LoadTemplates(path string) (Templates, error) {
	if path == "" {
		return DefaultTemplates(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultTemplates(), err
	}

	var t Templates
	if err := yaml.Unmarshal(content, &t); err != nil {
		return Templates{}, err
	}
	if t.PaymentSettled == "" && t.ConsultationCompleted == "" {
		return Templates{}, errors.New("no notification templates configured")
	}
	return t, nil
}

func DefaultTemplates() Templates {
	return Templates{
		PaymentSettled:        "Paid Rs{{.amount}} for {{.code}}. Thank you.",
		ConsultationCompleted: "Consultation {{.code}} is complete. Your prescription is ready at the counter.",
	}
}

// Render executes the template body against the event data.
func Render(body string, data map[string]interface{}) (string, error) {
	tmpl, err := template.New("sms").Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
