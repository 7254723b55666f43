// Package transport implements the one-shot HTTPS activation handshake and
// the persistent full-duplex cloud session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voxcore/pkg/identity"
	"voxcore/pkg/logging"
)

// ActivationResult reports whether the device needs out-of-band activation.
type ActivationResult struct {
	Activated bool
	Code      string
	Message   string
}

type activationRequest struct {
	UUID        string          `json:"uuid"`
	Application applicationInfo `json:"application"`
	OTA         map[string]any  `json:"ota"`
	Board       boardInfo       `json:"board"`
}

type applicationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type boardInfo struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type activationResponse struct {
	Activation *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"activation"`
}

// Activate performs the activation handshake against url for the given
// device identity. It never sends Authorization or Protocol-Version headers:
// activation precedes token issuance.
func Activate(ctx context.Context, client *http.Client, url string, id *identity.Identity, appName, appVersion, boardType, boardName string) (*ActivationResult, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(activationRequest{
		UUID:        id.ClientID,
		Application: applicationInfo{Name: appName, Version: appVersion},
		OTA:         map[string]any{},
		Board:       boardInfo{Type: boardType, Name: boardName},
	})
	if err != nil {
		return nil, fmt.Errorf("transport: marshal activation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build activation request: %w", err)
	}
	req.Header.Set("Device-Id", id.DeviceID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voxcore/1.0")
	req.Header.Set("Accept-Language", "en-US")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: activation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: activation status %d", resp.StatusCode)
	}

	var parsed activationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("transport: decode activation response: %w", err)
	}

	if parsed.Activation == nil {
		return &ActivationResult{Activated: true}, nil
	}
	return &ActivationResult{
		Activated: false,
		Code:      parsed.Activation.Code,
		Message:   parsed.Activation.Message,
	}, nil
}

// PollActivation retries Activate every interval until the device reports
// activated or ctx is cancelled. onPending is invoked with each not-yet
// result so the caller can surface the code via the GUI bridge. A transient
// error from Activate (the network being down, the cloud being unreachable)
// does not abort the poll: it is retried with the same doubling backoff used
// by the session reconnect loop, since activation is just as likely to be
// run on a flaky first boot as the cloud session itself.
func PollActivation(ctx context.Context, client *http.Client, url string, id *identity.Identity, appName, appVersion, boardType, boardName string, interval time.Duration, logger logging.Logger, onPending func(*ActivationResult)) error {
	if logger == nil {
		logger = logging.Default("transport.activation")
	}
	backoff := minBackoff

	for {
		result, err := Activate(ctx, client, url, id, appName, appVersion, boardType, boardName)
		if err != nil {
			logger.WarnPrintf("activation request failed, retrying in %s: %v", backoff, err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		if result.Activated {
			return id.SetActivated(true)
		}
		if onPending != nil {
			onPending(result)
		}
		if !sleep(ctx, interval) {
			return ctx.Err()
		}
	}
}
