package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/metrics":                "/metrics",
		"/signin":                 "/signin",
		"/signup-sendotp":         "/signup-sendotp",
		"/user-info?expand=true":  "/user-info",
		"/refresh-token/":         "/refresh-token",
		"/v1/info":                "/v1/info",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
