package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{403, ErrorClassRateLimit},
		{429, ErrorClassRateLimit},
		{404, ErrorClassAPI},
		{422, ErrorClassAPI},
		{500, ErrorClassAPI},
		{502, ErrorClassAPI},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.expected {
				t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		contains []string
	}{
		{
			name: "with url",
			apiError: &APIError{
				StatusCode: 404,
				Body:       `{"message":"Not Found"}`,
				URL:        "https://api.github.com/users/ghost",
			},
			contains: []string{"404", "Not Found", "/users/ghost"},
		},
		{
			name: "without url",
			apiError: &APIError{
				StatusCode: 422,
				Body:       "Validation Failed",
			},
			contains: []string{"422", "Validation Failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.apiError.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, want it to contain %q", msg, want)
				}
			}
		})
	}
}

func TestAPIError_As(t *testing.T) {
	err := fmt.Errorf("list repositories: %w", &APIError{StatusCode: 404, Body: "Not Found"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As should find *APIError")
	}
	if apiErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Class() != ErrorClassAPI {
		t.Errorf("Class() = %q, want %q", apiErr.Class(), ErrorClassAPI)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("IsNotFound() = true for a plain error")
	}
}

func TestCredential_Redacted(t *testing.T) {
	token := Credential("ghp_secret")

	for _, s := range []string{
		token.String(),
		fmt.Sprintf("%v", token),
		fmt.Sprintf("%s", token),
		fmt.Sprintf("%#v", token),
		fmt.Sprintf("%+v", Config{Token: token}),
	} {
		if strings.Contains(s, "ghp_secret") {
			t.Errorf("credential leaked in %q", s)
		}
	}

	text, err := token.MarshalText()
	if err != nil || strings.Contains(string(text), "ghp_secret") {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}

	if token.Empty() {
		t.Error("Empty() = true for a set token")
	}
	if !Credential("").Empty() {
		t.Error("Empty() = false for an empty token")
	}
}
