package stagesvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		host    string
		opts    []Option
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid https host",
			host:    "https://erp-runner.example.com",
			opts:    []Option{WithLogger(logger)},
			wantErr: false,
		},
		{
			name:    "valid http host",
			host:    "http://192.168.1.100:7001",
			wantErr: false, // Should use default logger
		},
		{
			name:    "missing scheme",
			host:    "erp-runner.example.com",
			wantErr: true,
			errMsg:  "host URL must include scheme",
		},
		{
			name:    "invalid url",
			host:    "http://:invalid",
			wantErr: true,
			errMsg:  "invalid host URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.host, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, client)
				assert.Equal(t, tt.host, client.baseURL.String())
				assert.NotNil(t, client.logger)
			}
		})
	}
}

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name         string
		handler      http.HandlerFunc
		modifyClient func(*Client)
		input        map[string]any
		wantResult   Result
		wantErr      bool
		errMsg       string
	}{
		{
			name: "success with data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/run", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var input map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
				assert.Equal(t, "sheet-42", input["targetSheetId"])

				w.Write([]byte(`{"success":true,"data":{"artifactRef":"book-7"},"message":"done"}`))
			},
			input: map[string]any{"targetSheetId": "sheet-42"},
			wantResult: Result{
				Success: true,
				Data:    map[string]any{"artifactRef": "book-7"},
				Message: "done",
			},
		},
		{
			name: "collaborator reports failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":false,"error":"sheet locked by another user"}`))
			},
			input: map[string]any{},
			wantResult: Result{
				Success: false,
				Error:   "sheet locked by another user",
			},
		},
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			input:   map[string]any{},
			wantErr: true,
			errMsg:  "stage service returned status 502",
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			input:   map[string]any{},
			wantErr: true,
			errMsg:  "failed to unmarshal response",
		},
		{
			name:    "connection error",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			modifyClient: func(c *Client) {
				c.baseURL.Host = "localhost:1" // Invalid port should trigger connection error
			},
			input:   map[string]any{},
			wantErr: true,
			errMsg:  "failed to call stage service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			client, err := New(ts.URL, WithLogger(logger))
			require.NoError(t, err)

			if tt.modifyClient != nil {
				tt.modifyClient(client)
			}

			result, err := client.Run(context.Background(), tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantResult, result)
			}
		})
	}
}

func TestRun_BearerToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("token set", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"success":true}`))
		}))
		defer ts.Close()

		client, err := New(ts.URL, WithToken("secret-token"), WithLogger(logger))
		require.NoError(t, err)

		_, err = client.Run(context.Background(), map[string]any{})
		require.NoError(t, err)
	})

	t.Run("no token", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"success":true}`))
		}))
		defer ts.Close()

		client, err := New(ts.URL, WithLogger(logger))
		require.NoError(t, err)

		_, err = client.Run(context.Background(), map[string]any{})
		require.NoError(t, err)
	})
}

type errorReader struct{}

func (e *errorReader) Read(p []byte) (n int, err error) {
	return 0, errors.New("read error")
}
func (e *errorReader) Close() error {
	return nil
}

// TestRunReadError specifically tests the body read failure
func TestRunReadError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := New("http://example.com", WithLogger(logger))
	require.NoError(t, err)

	// Mocking the http.Client to return a response with a faulty body
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       &errorReader{},
			}, nil
		}),
	}

	result, err := client.Run(context.Background(), map[string]any{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read response body")
	assert.Equal(t, Result{}, result)
}

func TestRun_ContextCancelled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	client, err := New(ts.URL, WithLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Run(ctx, map[string]any{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
