package utils

import (
	"strings"
	"testing"
)

func TestParseSignerKey(t *testing.T) {
	email, key, err := parseSignerKey(`{"client_email":"signer@zesha.iam.gserviceaccount.com","private_key":"-----BEGIN\\nABC\\n-----END"}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if email != "signer@zesha.iam.gserviceaccount.com" {
		t.Fatalf("email = %q", email)
	}
	if got := string(key); got != "-----BEGIN\nABC\n-----END" {
		t.Fatalf("escaped newlines were not unescaped: %q", got)
	}
}

func TestParseSignerKey_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"client_email":`,
		"missing email":      `{"private_key":"abc"}`,
		"missing privateKey": `{"client_email":"signer@zesha.iam.gserviceaccount.com"}`,
	}
	for name, raw := range cases {
		if _, _, err := parseSignerKey(raw); err == nil {
			t.Fatalf("%s: expected an error", name)
		} else if !strings.Contains(err.Error(), "GCS_CREDENTIALS_JSON") {
			t.Fatalf("%s: error should name the variable, got %v", name, err)
		}
	}
}
