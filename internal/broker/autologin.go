package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	apperrors "igot-scanner/internal/errors"
)

const kiteLoginBase = "https://kite.zerodha.com"

// AutoLogin performs the full Kite login without a browser: password
// login, TOTP second factor, then the Connect consent redirect that
// yields the request token. Requires password and totp_secret in the
// credentials file.
func (k *KiteBroker) AutoLogin(ctx context.Context, password, totpSecret string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}

	var requestToken string
	client := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// The redirect chain ends at the app's registered callback
			// with the request token in the query. Stop there; the
			// callback host usually isn't reachable from this machine.
			if tok := req.URL.Query().Get("request_token"); tok != "" {
				requestToken = tok
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	requestID, err := k.passwordLogin(ctx, client, password)
	if err != nil {
		return err
	}

	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generating TOTP code: %w", err)
	}
	if err := k.submitTwoFA(ctx, client, requestID, code); err != nil {
		return err
	}

	// With the auth cookies set, the Connect login URL skips the forms
	// and redirects straight through the consent step.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.client.GetLoginURL(), nil)
	if err != nil {
		return fmt.Errorf("creating connect request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("completing connect flow: %w", err)
	}
	resp.Body.Close()

	if requestToken == "" {
		return fmt.Errorf("connect flow finished without a request token")
	}
	return k.CompleteLogin(ctx, requestToken)
}

type kiteAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RequestID string `json:"request_id"`
	} `json:"data"`
}

func (k *KiteBroker) passwordLogin(ctx context.Context, client *http.Client, password string) (string, error) {
	form := url.Values{
		"user_id":  {k.userID},
		"password": {password},
	}

	resp, err := postForm(ctx, client, kiteLoginBase+"/api/login", form)
	if err != nil {
		return "", fmt.Errorf("password login: %w", err)
	}
	defer resp.Body.Close()

	var body kiteAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if body.Status != "success" {
		return "", fmt.Errorf("password login rejected (%s): %w", body.Message, apperrors.ErrInvalidCredentials)
	}
	return body.Data.RequestID, nil
}

func (k *KiteBroker) submitTwoFA(ctx context.Context, client *http.Client, requestID, code string) error {
	form := url.Values{
		"user_id":      {k.userID},
		"request_id":   {requestID},
		"twofa_value":  {code},
		"twofa_type":   {"totp"},
		"skip_session": {"true"},
	}

	resp, err := postForm(ctx, client, kiteLoginBase+"/api/twofa", form)
	if err != nil {
		return fmt.Errorf("twofa submit: %w", err)
	}
	defer resp.Body.Close()

	var body kiteAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding twofa response: %w", err)
	}
	if body.Status != "success" {
		return fmt.Errorf("twofa rejected (%s): %w", body.Message, apperrors.ErrInvalidCredentials)
	}
	return nil
}

func postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
