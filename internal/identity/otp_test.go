package identity

import "testing"

func TestGenerateOtpFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		otp, err := GenerateOtp()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(otp) != otpDigits {
			t.Fatalf("otp %q: want %d digits", otp, otpDigits)
		}
		for _, r := range otp {
			if r < '0' || r > '9' {
				t.Fatalf("otp %q: non-digit %q", otp, r)
			}
		}
	}
}

func TestOtpHashRoundTrip(t *testing.T) {
	otp := Otp("042719")
	hash, err := otp.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !otp.Matches(hash) {
		t.Fatalf("correct code rejected")
	}
	if Otp("042718").Matches(hash) {
		t.Fatalf("wrong code accepted")
	}
}

func TestAnchorSecretCookie(t *testing.T) {
	secret := NewAnchorSecret()
	cookie, err := secret.CookieValue()
	if err != nil {
		t.Fatalf("cookie value: %v", err)
	}
	if cookie == string(secret) {
		t.Fatalf("cookie must not expose the raw secret")
	}
	if !secret.MatchesCookie(cookie) {
		t.Fatalf("own cookie rejected")
	}
	if NewAnchorSecret().MatchesCookie(cookie) {
		t.Fatalf("foreign secret matched cookie")
	}
}
