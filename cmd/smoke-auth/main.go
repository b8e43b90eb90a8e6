// smoke-auth exercises a running auth server end to end: sign in, fetch the
// profile, rotate the access token and confirm the old one died. It needs an
// existing active account, passed through the environment.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"
)

func main() {
	base := os.Getenv("RESUMATCH_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("RESUMATCH_SMOKE_EMAIL")
	password := os.Getenv("RESUMATCH_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("RESUMATCH_SMOKE_EMAIL and RESUMATCH_SMOKE_PASSWORD are required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		log.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("healthz: status %d", resp.StatusCode)
	}

	body := postJSON(client, base+"/signin", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusCreated)
	access, _ := body["accessToken"].(string)
	if access == "" {
		log.Fatalf("signin returned no access token: %v", body)
	}

	info := getJSON(client, base+"/user-info", access, http.StatusOK)
	user, _ := info["user"].(map[string]any)
	if user == nil || user["email"] != email {
		log.Fatalf("user-info mismatch: %v", info)
	}

	body = postJSON(client, base+"/refresh-token", nil, http.StatusOK)
	rotated, _ := body["accessToken"].(string)
	if rotated == "" || rotated == access {
		log.Fatalf("refresh did not rotate the access token")
	}

	// The rotated-away token must be dead and the fresh one alive.
	getJSON(client, base+"/user-info", access, http.StatusUnauthorized)
	getJSON(client, base+"/user-info", rotated, http.StatusOK)

	fmt.Printf("auth smoke test passed: user=%s\n", email)
}

func postJSON(client *http.Client, url string, payload any, wantStatus int) map[string]any {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			log.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("POST %s: status %d, want %d (%v)", url, resp.StatusCode, wantStatus, body)
	}
	return body
}

func getJSON(client *http.Client, url, bearer string, wantStatus int) map[string]any {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("GET %s: status %d, want %d (%v)", url, resp.StatusCode, wantStatus, body)
	}
	return body
}
