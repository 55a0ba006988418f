package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// Client: HTTP-клиент бэкенда приложения.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, op, method, path string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return response{}, wrapGeneric(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, networkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, networkError(op, err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return wrapGeneric(op, "decode response", err)
	}
	return nil
}

// GetService загружает детали одного сервиса.
func (c *Client) GetService(ctx context.Context, id string) (ServiceDetail, error) {
	const op = "get service"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/v1/services/"+url.PathEscape(id))
	if err != nil {
		return ServiceDetail{}, err
	}
	if resp.status != http.StatusOK {
		return ServiceDetail{}, genericError(op, "response status %d", resp.status)
	}
	var d ServiceDetail
	if err := decode(op, resp.body, &d); err != nil {
		return ServiceDetail{}, err
	}
	if d.ServiceID == "" {
		return ServiceDetail{}, genericError(op, "missing service_id in response")
	}
	return d, nil
}

var startStatuses = map[int]StartStatus{
	http.StatusCreated:   StartProcessing,
	http.StatusAccepted:  StartProcessing,
	http.StatusForbidden: StartIneligible,
	http.StatusConflict:  StartAlreadyActive,
}

func (c *Client) startActivation(ctx context.Context, op, path string) (StartStatus, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path)
	if err != nil {
		return "", err
	}
	if st, ok := startStatuses[resp.status]; ok {
		return st, nil
	}
	return "", genericError(op, "response status %d", resp.status)
}

func (c *Client) activationStatus(ctx context.Context, op, path string) (ActivationStatus, error) {
	resp, err := c.do(ctx, op, http.MethodGet, path)
	if err != nil {
		return "", err
	}
	switch resp.status {
	case http.StatusOK:
		var d activationDetail
		if err := decode(op, resp.body, &d); err != nil {
			return "", err
		}
		switch d.Status {
		case remoteCompleted:
			return ActivationCompleted, nil
		case remoteError:
			return ActivationError, nil
		case remotePending, remoteRunning:
			return ActivationProcessing, nil
		default:
			return "", genericError(op, "unexpected status result %q", d.Status)
		}
	case http.StatusNotFound:
		return ActivationNotFound, nil
	default:
		return "", genericError(op, "response status %d", resp.status)
	}
}

func (c *Client) StartCgnActivation(ctx context.Context) (StartStatus, error) {
	return c.startActivation(ctx, "start cgn activation", "/api/v1/cgn/activation")
}

func (c *Client) GetCgnStatus(ctx context.Context) (ActivationStatus, error) {
	return c.activationStatus(ctx, "get cgn activation", "/api/v1/cgn/activation")
}

func (c *Client) StartEycaActivation(ctx context.Context) (StartStatus, error) {
	return c.startActivation(ctx, "start eyca activation", "/api/v1/cgn/eyca/activation")
}

func (c *Client) GetEycaStatus(ctx context.Context) (ActivationStatus, error) {
	return c.activationStatus(ctx, "get eyca activation", "/api/v1/cgn/eyca/activation")
}

// StartEligibilityCheck: 202 запускает проверку, 409 значит, что она уже идёт
// (её результат тоже получаем поллингом), 403: бонус уже выдан семье.
func (c *Client) StartEligibilityCheck(ctx context.Context) (StartStatus, error) {
	const op = "start eligibility check"
	resp, err := c.do(ctx, op, http.MethodPost, "/api/v1/bonus/vacanze/eligibility")
	if err != nil {
		return "", err
	}
	switch resp.status {
	case http.StatusAccepted, http.StatusConflict:
		return StartProcessing, nil
	case http.StatusForbidden:
		return StartAlreadyActive, nil
	default:
		return "", genericError(op, "response status %d", resp.status)
	}
}

func (c *Client) GetEligibilityCheck(ctx context.Context) (EligibilityStatus, error) {
	const op = "get eligibility check"
	resp, err := c.do(ctx, op, http.MethodGet, "/api/v1/bonus/vacanze/eligibility")
	if err != nil {
		return "", err
	}
	switch resp.status {
	case http.StatusOK:
		var ch eligibilityCheck
		if err := decode(op, resp.body, &ch); err != nil {
			return "", err
		}
		switch st := EligibilityStatus(ch.Status); st {
		case EligibilityEligible, EligibilityIneligible, EligibilityIseeNotFound:
			return st, nil
		default:
			return "", genericError(op, "unexpected status result %q", ch.Status)
		}
	case http.StatusAccepted:
		return EligibilityProcessing, nil
	case http.StatusNotFound:
		return EligibilityNotFound, nil
	default:
		return "", genericError(op, "response status %d", resp.status)
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("backend(%s)", c.baseURL)
}
