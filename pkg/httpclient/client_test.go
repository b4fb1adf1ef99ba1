// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultRetryStrategy(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   RetryStrategy
	}{
		{"rate_limit_429", http.StatusTooManyRequests, SmartRetry},
		{"service_unavailable_503", http.StatusServiceUnavailable, SmartRetry},
		{"request_timeout_408", http.StatusRequestTimeout, ConservativeRetry},
		{"internal_server_error_500", http.StatusInternalServerError, ConservativeRetry},
		{"bad_gateway_502", http.StatusBadGateway, ConservativeRetry},
		{"gateway_timeout_504", http.StatusGatewayTimeout, ConservativeRetry},
		{"success_200", http.StatusOK, NoRetry},
		{"not_found_404", http.StatusNotFound, NoRetry},
		{"bad_request_400", http.StatusBadRequest, NoRetry},
		{"unauthorized_401", http.StatusUnauthorized, NoRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryStrategy(tt.statusCode); got != tt.expected {
				t.Errorf("DefaultRetryStrategy(%d) = %v, want %v", tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Do() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestDo_RecoversAfterServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithHTTPClient(server.Client()),
		WithMaxRetries(3),
		WithBaseDelay(10*time.Millisecond),
		WithRetryStrategy(func(int) RetryStrategy { return SmartRetry }),
	)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Do() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ClientErrorFailsFast(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()), WithMaxRetries(3))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Do() status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(
		WithHTTPClient(server.Client()),
		WithMaxRetries(2),
		WithBaseDelay(5*time.Millisecond),
	)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	_, err := client.Do(req)
	if err == nil {
		t.Fatal("Do() error = nil, want RetryableError")
	}
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Do() error type = %T, want *RetryableError", err)
	}
	if retryErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("RetryableError.StatusCode = %d, want %d", retryErr.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestDo_HonorsRetryAfterHeader(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()), WithMaxRetries(2))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Do() status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if waited := time.Since(start); waited < time.Second {
		t.Errorf("expected to wait at least 1s, waited %v", waited)
	}
}

func TestRetryDelay(t *testing.T) {
	client := New(WithBaseDelay(time.Second))
	resp := &http.Response{Header: http.Header{}}

	tests := []struct {
		name     string
		strategy RetryStrategy
		attempt  int
		expected time.Duration
	}{
		{"no_retry", NoRetry, 0, 0},
		{"smart_backoff_attempt_0", SmartRetry, 0, time.Second + 100*time.Millisecond},
		{"smart_backoff_attempt_1", SmartRetry, 1, 2*time.Second + 200*time.Millisecond},
		{"conservative_attempt_0", ConservativeRetry, 0, 2 * time.Second},
		{"conservative_attempt_1", ConservativeRetry, 1, 3 * time.Second},
		{"conservative_exhausted", ConservativeRetry, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.retryDelay(tt.strategy, tt.attempt, resp); got != tt.expected {
				t.Errorf("retryDelay(%v, %d) = %v, want %v", tt.strategy, tt.attempt, got, tt.expected)
			}
		})
	}

	withHeader := &http.Response{Header: http.Header{}}
	withHeader.Header.Set("Retry-After", "5")
	if got := client.retryDelay(SmartRetry, 0, withHeader); got != 5*time.Second {
		t.Errorf("retryDelay with Retry-After = %v, want 5s", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	header := http.Header{}
	if got := parseRetryAfter(header); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v, want 0", got)
	}

	header.Set("Retry-After", "3")
	if got := parseRetryAfter(header); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v, want 3s", got)
	}

	header.Set("Retry-After", "not-a-number")
	if got := parseRetryAfter(header); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %v, want 0", got)
	}
}
