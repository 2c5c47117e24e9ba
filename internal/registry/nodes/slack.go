package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// slackBaseURL is the Slack Web API root. The client is hand-rolled
// over net/http rather than a third-party SDK.
const slackBaseURL = "https://slack.com/api"

// SlackMessageConfig holds a chat.postMessage target.
type SlackMessageConfig struct {
	Channel string `json:"channel"`
	CredentialID string `json:"credentialId"`
}

type slackNode struct {
	cfg SlackMessageConfig
	client *http.Client
}

func NewSlackNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("slack node: marshal config: %w", err)
		}
		var cfg SlackMessageConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("slack node: parse config: %w", err)
		}
		if cfg.Channel == "" {
			return nil, fmt.Errorf("slack node: channel is required")
		}
		return &slackNode{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}, nil
	}
}

func (n *slackNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	text := ""
	if v, ok := nctx.Inputs.Get("text"); ok && v.Kind == value.TypeString {
		text = v.Str
	}

	integration, ok := nctx.GetIntegration(n.cfg.CredentialID)
	if !ok {
		return registry.Errored("slack node: integration not found", 0), nil
	}

	body, err := json.Marshal(map[string]any{
			"channel": n.cfg.Channel,
			"text": text,
	})
	if err != nil {
		return registry.Errored(fmt.Sprintf("slack node: encode body: %v", err), 0), nil
	}

	req, err := http.NewRequestWithContext(nctx.Context, http.MethodPost, slackBaseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return registry.Errored(fmt.Sprintf("slack node: build request: %v", err), 0), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+integration.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		return registry.Errored(fmt.Sprintf("slack node: request failed: %v", err), 1), nil
	}
	defer resp.Body.Close()

	var parsed struct {
		OK bool `json:"ok"`
		TS string `json:"ts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return registry.Errored(fmt.Sprintf("slack node: decode response: %v", err), 1), nil
	}
	if !parsed.OK {
		return registry.Errored("slack node: API returned ok=false", 1), nil
	}

	return registry.Completed(value.NodeRuntimeValues{
			"ts": value.String(parsed.TS),
		}, 1), nil
}

func SlackMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:slack_message",
		Tags: []string{"action", "communication"},
		Inputs: []value.ParameterSpec{
			{Name: "text", Type: value.TypeString, Required: true},
		},
		Outputs: []value.ParameterSpec{{Name: "ts", Type: value.TypeString}},
		Usage: 1,
		Documentation: "Posts a message to a Slack channel via the chat.postMessage API.",
	}
}
