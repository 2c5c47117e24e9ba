package nodes

import (
	"encoding/json"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// EmailConfig carries a send-email action's static SendGrid fields.
type EmailConfig struct {
	FromEmail string `json:"fromEmail"`
	FromName string `json:"fromName"`
	Subject string `json:"subject"`
	APIKey string `json:"apiKey"`
}

type emailNode struct {
	cfg EmailConfig
}

func NewEmailNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("email node: marshal config: %w", err)
		}
		var cfg EmailConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("email node: parse config: %w", err)
		}
		if cfg.FromEmail == "" || cfg.Subject == "" {
			return nil, fmt.Errorf("email node: fromEmail and subject are required")
		}
		return &emailNode{cfg: cfg}, nil
	}
}

func (n *emailNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	toEmail := ""
	if v, ok := nctx.Inputs.Get("to"); ok && v.Kind == value.TypeString {
		toEmail = v.Str
	}
	body := ""
	if v, ok := nctx.Inputs.Get("body"); ok && v.Kind == value.TypeString {
		body = v.Str
	}
	if toEmail == "" {
		return registry.Errored("email node: to is required", 0), nil
	}

	apiKey := n.cfg.APIKey
	if apiKey == "" {
		if secret, ok := nctx.GetSecret("sendgrid_api_key"); ok {
			apiKey = secret
		}
	}
	if apiKey == "" {
		return registry.Errored("email node: no SendGrid API key configured", 0), nil
	}

	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, n.cfg.Subject, to, body, body)

	client := sendgrid.NewSendClient(apiKey)
	resp, err := client.SendWithContext(nctx.Context, message)
	if err != nil {
		return registry.Errored(fmt.Sprintf("email node: send failed: %v", err), 1), nil
	}
	if resp.StatusCode >= 300 {
		return registry.Errored(fmt.Sprintf("email node: sendgrid returned status %d", resp.StatusCode), 1), nil
	}

	return registry.Completed(value.NodeRuntimeValues{
			"statusCode": value.Number(float64(resp.StatusCode)),
		}, 1), nil
}

func EmailMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:email",
		Tags: []string{"action", "communication"},
		Inputs: []value.ParameterSpec{
			{Name: "to", Type: value.TypeString, Required: true},
			{Name: "body", Type: value.TypeString, Required: true},
		},
		Outputs: []value.ParameterSpec{{Name: "statusCode", Type: value.TypeNumber}},
		Usage: 1,
		Documentation: "Sends an email via SendGrid.",
	}
}
