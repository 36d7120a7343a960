package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/screening-orchestrator/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&ClientConfig{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		RequestTimeout:    5 * time.Second,
		RequestsPerSecond: 1000, // effectively unpaced in tests
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	return client, server
}

func TestInitiateCall(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}

		var req InitiateCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.PhoneNumber != "+15551234567" {
			t.Errorf("to_number = %s", req.PhoneNumber)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{
			"conversation_id": "conv_123",
			"status":          "initiated",
		})
	})

	sessionID, err := client.InitiateCall(context.Background(), &InitiateCallRequest{
		AgentID:     "agent_1",
		PhoneNumber: "+15551234567",
	})
	if err != nil {
		t.Fatalf("InitiateCall() error = %v", err)
	}
	if sessionID != "conv_123" {
		t.Errorf("sessionID = %s, want conv_123", sessionID)
	}
}

func TestInitiateCallValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if _, err := client.InitiateCall(context.Background(), &InitiateCallRequest{PhoneNumber: "+1555"}); err == nil {
		t.Error("expected error for missing agent id")
	}
	if _, err := client.InitiateCall(context.Background(), &InitiateCallRequest{AgentID: "a"}); err == nil {
		t.Error("expected error for missing phone number")
	}
}

func TestGetConversationStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{name: "not found maps to ErrNotFound", statusCode: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "429 maps to ErrRateLimited", statusCode: http.StatusTooManyRequests, wantErr: ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			_, err := client.GetConversation(context.Background(), "conv_x")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetConversation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetConversation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/conversations/conv_9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"conversation_id": "conv_9",
			"status": "done",
			"transcript": [
				{"role": "agent", "message": "Hello"},
				{"role": "user", "message": "Hi there"}
			],
			"analysis": {
				"call_successful": true,
				"evaluation_criteria_results": [
					{"criteria": "communication", "result": "success", "rationale": "clear answers"}
				]
			}
		}`))
	})

	conv, err := client.GetConversation(context.Background(), "conv_9")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}

	if conv.IsOngoing() {
		t.Error("IsOngoing() = true for done conversation")
	}
	if len(conv.Transcript) != 2 {
		t.Errorf("transcript length = %d, want 2", len(conv.Transcript))
	}
	if conv.Evaluation == nil || conv.Evaluation.CallSuccessful == nil || !*conv.Evaluation.CallSuccessful {
		t.Error("expected call_successful = true")
	}
}

func TestCriteriaListShapes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want []types.CriteriaResult
	}{
		{
			name: "array shape",
			json: `[{"criteria": "c1", "result": "success"}, {"criteria": "c2", "result": "failure", "rationale": "no detail"}]`,
			want: []types.CriteriaResult{
				{Criteria: "c1", Passed: true},
				{Criteria: "c2", Passed: false, Reason: "no detail"},
			},
		},
		{
			name: "map shape",
			json: `{"b_experience": {"result": "failure", "rationale": "none"}, "a_comms": {"passed": true}}`,
			want: []types.CriteriaResult{
				{Criteria: "a_comms", Passed: true},
				{Criteria: "b_experience", Passed: false, Reason: "none"},
			},
		},
		{
			name: "empty array",
			json: `[]`,
			want: []types.CriteriaResult{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CriteriaList
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d criteria, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("criteria[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCriteriaListRejectsScalar(t *testing.T) {
	var got CriteriaList
	if err := json.Unmarshal([]byte(`"oops"`), &got); err == nil {
		t.Error("expected error for scalar criteria payload")
	}
}
