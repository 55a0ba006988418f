package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubServer отвечает на path заданным кодом и телом.
func stubServer(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", time.Second)
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestGetService(t *testing.T) {
	var gotAuth string
	c := stubServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /api/v1/services/s1": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			reply(200, `{"service_id":"s1","service_name":"Tari","organization_name":"Comune"}`)(w, r)
		},
		"GET /api/v1/services/s2": reply(500, ``),
		"GET /api/v1/services/s3": reply(200, `{"service_id":`),
	})
	ctx := context.Background()

	d, err := c.GetService(ctx, "s1")
	if err != nil {
		t.Fatalf("s1: %v", err)
	}
	if d.ServiceName != "Tari" || gotAuth != "Bearer tok" {
		t.Fatalf("detail=%+v auth=%q", d, gotAuth)
	}
	if _, err := c.GetService(ctx, "s2"); !IsGeneric(err) {
		t.Fatalf("s2: want GenericError, got %v", err)
	}
	_, err = c.GetService(ctx, "s3")
	if !IsGeneric(err) {
		t.Fatalf("s3: want GenericError on decode failure, got %v", err)
	}
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("s3: decode cause lost: %v", err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", 200*time.Millisecond)
	_, err := c.GetEycaStatus(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("want NetworkError, got %v", err)
	}
}

func TestStartActivationMapping(t *testing.T) {
	cases := []struct {
		status  int
		want    StartStatus
		wantErr bool
	}{
		{201, StartProcessing, false},
		{202, StartProcessing, false},
		{403, StartIneligible, false},
		{409, StartAlreadyActive, false},
		{500, "", true},
	}
	for _, tc := range cases {
		c := stubServer(t, map[string]func(http.ResponseWriter, *http.Request){
			"POST /api/v1/cgn/eyca/activation": reply(tc.status, ``),
		})
		got, err := c.StartEycaActivation(context.Background())
		if tc.wantErr {
			if !IsGeneric(err) {
				t.Fatalf("status %d: want GenericError, got %v", tc.status, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("status %d: got=%s err=%v want=%s", tc.status, got, err, tc.want)
		}
	}
}

func TestActivationStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		body    string
		want    ActivationStatus
		wantErr bool
	}{
		{200, `{"status":"COMPLETED"}`, ActivationCompleted, false},
		{200, `{"status":"ERROR"}`, ActivationError, false},
		{200, `{"status":"PENDING"}`, ActivationProcessing, false},
		{200, `{"status":"RUNNING"}`, ActivationProcessing, false},
		{200, `{"status":"BANANA"}`, "", true},
		{200, `not json`, "", true},
		{404, ``, ActivationNotFound, false},
		{418, ``, "", true},
	}
	for _, tc := range cases {
		c := stubServer(t, map[string]func(http.ResponseWriter, *http.Request){
			"GET /api/v1/cgn/activation": reply(tc.status, tc.body),
		})
		got, err := c.GetCgnStatus(context.Background())
		if tc.wantErr {
			if !IsGeneric(err) {
				t.Fatalf("%d %s: want GenericError, got %v", tc.status, tc.body, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%d %s: got=%s err=%v want=%s", tc.status, tc.body, got, err, tc.want)
		}
	}
}

func TestEligibilityMapping(t *testing.T) {
	c := stubServer(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/v1/bonus/vacanze/eligibility": reply(409, ``),
		"GET /api/v1/bonus/vacanze/eligibility":  reply(200, `{"status":"ELIGIBLE"}`),
	})
	ctx := context.Background()
	if st, err := c.StartEligibilityCheck(ctx); err != nil || st != StartProcessing {
		t.Fatalf("start: %s %v", st, err)
	}
	if st, err := c.GetEligibilityCheck(ctx); err != nil || st != EligibilityEligible {
		t.Fatalf("get: %s %v", st, err)
	}
}
