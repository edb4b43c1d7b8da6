package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dialer-platform/internal/config"
)

const defaultTelnyxBaseURL = "https://api.telnyx.com/v2"

// TelnyxProvider implements CallProvider against the Telnyx Call Control v2
// REST API. Events come back asynchronously on the webhook endpoint.
type TelnyxProvider struct {
	apiKey       string
	connectionID string
	baseURL      string
	httpClient   *http.Client
}

func NewTelnyxProvider(cfg config.TelnyxConfig) (*TelnyxProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("telephony: telnyx api key is required")
	}
	if cfg.ConnectionID == "" {
		return nil, errors.New("telephony: telnyx connection id is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultTelnyxBaseURL
	}
	return &TelnyxProvider{
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		baseURL:      base,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *TelnyxProvider) Name() string { return "telnyx" }

func (p *TelnyxProvider) HealthCheck(ctx context.Context) error {
	// Lightweight authenticated read; any 2xx means credentials and
	// connectivity are good.
	var out struct{}
	return p.do(ctx, http.MethodGet, "/connections/"+p.connectionID, nil, &out)
}

// APIError is returned for non-2xx provider responses so callers can decide
// whether a failure is swallowable (e.g. hangup on an already-dead session).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telnyx: unexpected status %d: %s", e.StatusCode, e.Body)
}

type originateBody struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	WebhookURL   string `json:"webhook_url,omitempty"`
	ClientState  string `json:"client_state,omitempty"`

	AnsweringMachineDetection       string           `json:"answering_machine_detection,omitempty"`
	AnsweringMachineDetectionConfig *amdDetectConfig `json:"answering_machine_detection_config,omitempty"`
}

type amdDetectConfig struct {
	TotalAnalysisTimeMillis int64 `json:"total_analysis_time_millis,omitempty"`
}

type callData struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
}

func (p *TelnyxProvider) Originate(ctx context.Context, req OriginateRequest) (OriginateResult, error) {
	if req.To == "" || req.From == "" {
		return OriginateResult{}, errors.New("telephony: from and to are required")
	}

	body := originateBody{
		ConnectionID: p.connectionID,
		To:           req.To,
		From:         req.From,
		WebhookURL:   req.WebhookURL,
		ClientState:  req.ClientState.Encode(),
	}
	if req.AMD.Enabled {
		body.AnsweringMachineDetection = "premium"
		if req.AMD.TotalAnalysisTime > 0 {
			body.AnsweringMachineDetectionConfig = &amdDetectConfig{
				TotalAnalysisTimeMillis: req.AMD.TotalAnalysisTime.Milliseconds(),
			}
		}
	}

	var out callData
	if err := p.do(ctx, http.MethodPost, "/calls", body, &out); err != nil {
		return OriginateResult{}, err
	}
	if out.Data.CallControlID == "" {
		return OriginateResult{}, errors.New("telephony: originate response missing call_control_id")
	}
	return OriginateResult{SessionID: out.Data.CallControlID}, nil
}

func (p *TelnyxProvider) Hangup(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("telephony: session id is required")
	}
	var out struct{}
	return p.do(ctx, http.MethodPost, "/calls/"+sessionID+"/actions/hangup", struct{}{}, &out)
}

func (p *TelnyxProvider) Transfer(ctx context.Context, req TransferRequest) error {
	if req.SessionID == "" || req.To == "" {
		return errors.New("telephony: session id and destination are required")
	}
	body := struct {
		To   string `json:"to"`
		From string `json:"from,omitempty"`
	}{To: req.To, From: req.CallerID}

	var out struct{}
	return p.do(ctx, http.MethodPost, "/calls/"+req.SessionID+"/actions/transfer", body, &out)
}

func (p *TelnyxProvider) StartPlayback(ctx context.Context, req PlaybackRequest) error {
	if req.SessionID == "" || req.AudioURL == "" {
		return errors.New("telephony: session id and audio url are required")
	}
	loop := req.Loop
	if loop < 1 {
		loop = 1
	}
	body := struct {
		AudioURL string `json:"audio_url"`
		Loop     int    `json:"loop"`
	}{AudioURL: req.AudioURL, Loop: loop}

	var out struct{}
	return p.do(ctx, http.MethodPost, "/calls/"+req.SessionID+"/actions/playback_start", body, &out)
}

func (p *TelnyxProvider) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Cap the body read; provider error payloads are small.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("telnyx: decoding response: %w", err)
		}
	}
	return nil
}
