package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient talks to the audio endpoints. It implements StatusSource
// and URLSource for the observer and the URL cache.
type APIClient struct {
	BaseURL string
	Token   string

	// SignedTTL is the server's configured presign validity; the client
	// assumes a refreshed URL stays valid this long, minus a safety
	// margin, since the refresh response does not carry the expiry.
	SignedTTL time.Duration

	HTTPClient *http.Client
}

const expirySafetyMargin = 30 * time.Second

func (a *APIClient) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// SubmitAudioJob asks the server to generate audio for the item. The
// server replies before the job runs; observe the item to learn the
// outcome.
func (a *APIClient) SubmitAudioJob(ctx context.Context, contentItemID uint) error {
	body, _ := json.Marshal(map[string]interface{}{
		"jwt_token":  a.Token,
		"rl_item_id": contentItemID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/audio/create", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (a *APIClient) AudioStatus(ctx context.Context, contentItemID uint) (AudioStatus, string, error) {
	url := fmt.Sprintf("%s/api/items/%d", a.BaseURL, contentItemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusNone, "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return StatusNone, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return StatusNone, "", apiError(resp)
	}

	var out struct {
		Status   string `json:"status"`
		AudioUID string `json:"l_item_uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StatusNone, "", err
	}
	switch out.Status {
	case "processing":
		return StatusProcessing, "", nil
	case "ready":
		return StatusReady, out.AudioUID, nil
	default:
		return StatusNone, "", nil
	}
}

func (a *APIClient) RefreshURL(ctx context.Context, audioUID string) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{
		"jwt_token":  a.Token,
		"l_item_uid": audioUID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/audio/refresh-url", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, apiError(resp)
	}

	var out struct {
		OK        bool   `json:"ok"`
		PublicURL string `json:"public_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, err
	}
	if !out.OK || out.PublicURL == "" {
		return "", time.Time{}, fmt.Errorf("refresh returned no url")
	}

	ttl := a.SignedTTL
	if ttl > expirySafetyMargin {
		ttl -= expirySafetyMargin
	}
	return out.PublicURL, time.Now().Add(ttl), nil
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &out) == nil && out.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
