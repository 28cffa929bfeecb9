package utils

import "testing"

func TestExtractObjectKeyFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"3/reports/evening.xlsx", "3/reports/evening.xlsx"},
		{"gs://zesha-reports/3/reports/evening.xlsx", "3/reports/evening.xlsx"},
		{"https://storage.googleapis.com/zesha-reports/3/reports/evening.xlsx", "3/reports/evening.xlsx"},
		{"https://zesha-reports.storage.googleapis.com/3/reports/evening.xlsx", "3/reports/evening.xlsx"},
		{"https://storage.cloud.google.com/zesha-reports/3/balances/photo.jpg", "3/balances/photo.jpg"},
		{"https://cdn.example.com/download?objectKey=3%2Freports%2Fevening.xlsx", "3/reports/evening.xlsx"},
		{"", ""},
		{"gs://bucket-only", ""},
		{"3/reports/../secrets.txt", ""}, // traversal in a raw key
	}
	for _, tc := range cases {
		if got := ExtractObjectKeyFromURL(tc.in); got != tc.want {
			t.Fatalf("ExtractObjectKeyFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildObjectAccessURL_Fallback(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "storage.googleapis.com")
	t.Setenv("GCS_BUCKET", "zesha-reports")

	got := BuildObjectAccessURL("3/reports/evening.xlsx")
	want := "https://storage.googleapis.com/zesha-reports/3/reports/evening.xlsx"
	if got != want {
		t.Fatalf("BuildObjectAccessURL = %q, want %q", got, want)
	}
}

func TestBuildObjectAccessURL_Template(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "https://cdn.example.com/files/{objectKey}")
	got := BuildObjectAccessURL("3/reports/evening.xlsx")
	if got != "https://cdn.example.com/files/3/reports/evening.xlsx" {
		t.Fatalf("BuildObjectAccessURL = %q", got)
	}
}
