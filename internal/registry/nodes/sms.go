package nodes

import (
	"encoding/json"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// SMSConfig holds Twilio send-SMS credentials and sender number.
type SMSConfig struct {
	FromNumber string `json:"fromNumber"`
	AccountSID string `json:"accountSid"`
	AuthToken string `json:"authToken"`
}

type smsNode struct {
	cfg SMSConfig
}

func NewSMSNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("sms node: marshal config: %w", err)
		}
		var cfg SMSConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("sms node: parse config: %w", err)
		}
		if cfg.FromNumber == "" {
			return nil, fmt.Errorf("sms node: fromNumber is required")
		}
		return &smsNode{cfg: cfg}, nil
	}
}

func (n *smsNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	toNumber := ""
	if v, ok := nctx.Inputs.Get("to"); ok && v.Kind == value.TypeString {
		toNumber = v.Str
	}
	body := ""
	if v, ok := nctx.Inputs.Get("body"); ok && v.Kind == value.TypeString {
		body = v.Str
	}
	if toNumber == "" {
		return registry.Errored("sms node: to is required", 0), nil
	}

	accountSID := n.cfg.AccountSID
	authToken := n.cfg.AuthToken
	if authToken == "" {
		if secret, ok := nctx.GetSecret("twilio_auth_token"); ok {
			authToken = secret
		}
	}
	if accountSID == "" || authToken == "" {
		return registry.Errored("sms node: missing Twilio credentials", 0), nil
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
	})

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(n.cfg.FromNumber)
	params.SetBody(body)

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		return registry.Errored(fmt.Sprintf("sms node: send failed: %v", err), 1), nil
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}

	return registry.Completed(value.NodeRuntimeValues{
			"sid": value.String(sid),
		}, 1), nil
}

func SMSMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:sms",
		Tags: []string{"action", "communication"},
		Inputs: []value.ParameterSpec{
			{Name: "to", Type: value.TypeString, Required: true},
			{Name: "body", Type: value.TypeString, Required: true},
		},
		Outputs: []value.ParameterSpec{{Name: "sid", Type: value.TypeString}},
		Usage: 1,
		Documentation: "Sends an SMS message via Twilio.",
	}
}
