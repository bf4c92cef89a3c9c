package target

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain host gets https", "example.com", "https://example.com", false},
		{"http preserved", "http://example.com", "http://example.com", false},
		{"port preserved", "https://example.com:8443", "https://example.com:8443", false},
		{"trailing slash trimmed", "https://example.com/", "https://example.com", false},
		{"path kept", "https://example.com/app/", "https://example.com/app", false},
		{"empty", "", "", true},
		{"javascript scheme", "javascript:alert(1)", "", true},
		{"script tag", "https://example.com/<script>", "", true},
		{"ftp scheme", "ftp://example.com", "", true},
		{"missing host", "https://", "", true},
		{"bad host chars", "https://exa mple.com", "", true},
		{"too long", "https://example.com/" + strings.Repeat("a", 3000), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got.BaseURL != tt.want {
				t.Errorf("Parse(%q) BaseURL = %q, want %q", tt.in, got.BaseURL, tt.want)
			}
		})
	}
}

func TestParseHost(t *testing.T) {
	got, err := Parse("https://example.com:8080/admin")
	if err != nil {
		t.Fatal(err)
	}
	if got.Host != "example.com" {
		t.Errorf("Host = %q, want example.com", got.Host)
	}
	if got.Scheme != "https" {
		t.Errorf("Scheme = %q, want https", got.Scheme)
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"simple", "admin", "admin", false},
		{"leading slash trimmed", "/admin/login", "admin/login", false},
		{"backslash flattened", `admin\login`, "admin/login", false},
		{"traversal", "../etc/passwd", "", true},
		{"encoded nul", "admin%00", "", true},
		{"encoded newline", "admin%0apanel", "", true},
		{"raw newline", "admin\npanel", "", true},
		{"raw carriage return", "admin\rpanel", "", true},
		{"empty", "", "", true},
		{"only slashes", "///", "", true},
		{"too long", strings.Repeat("a", 2001), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePath(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidatePath(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidatePath(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ValidatePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilterPaths(t *testing.T) {
	in := []string{"admin", "../etc/passwd", "/login", "panel%00"}
	got := FilterPaths(in)
	want := []string{"admin", "login"}
	if len(got) != len(want) {
		t.Fatalf("FilterPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterPaths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateProxyURL(t *testing.T) {
	valid := []string{
		"http://127.0.0.1:8080",
		"https://proxy.example.com",
		"socks5://127.0.0.1:1080",
		"socks4://10.0.0.1:1080",
		"socks5h://proxy.example.com:9050",
	}
	for _, raw := range valid {
		if err := ValidateProxyURL(raw); err != nil {
			t.Errorf("ValidateProxyURL(%q) = %v, want nil", raw, err)
		}
	}

	invalid := []string{"", "ftp://127.0.0.1", "socks5://", "http://bad host"}
	for _, raw := range invalid {
		if err := ValidateProxyURL(raw); err == nil {
			t.Errorf("ValidateProxyURL(%q) = nil, want error", raw)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "example.com"},
		{`a/b\c:d`, "a_b_c_d"},
		{"...", "untitled"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
