package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testInbox = "inbox@agency.example"

type fakeGraph struct {
	server     *httptest.Server
	tokenCalls int32
	listCalls  int32
	expiresIn  int
	total      int
	pageSize   int
	filter     atomic.Value
	base       time.Time
}

func newFakeGraph(t *testing.T, total int) *fakeGraph {
	t.Helper()

	fake := &fakeGraph{
		expiresIn: 3600,
		total:     total,
		pageSize:  50,
		base:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fake.tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", atomic.LoadInt32(&fake.tokenCalls)),
			"expires_in":   fake.expiresIn,
		})
	})
	mux.HandleFunc("/v1.0/users/"+testInbox+"/messages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fake.listCalls, 1)
		if filter := r.URL.Query().Get("$filter"); filter != "" {
			fake.filter.Store(filter)
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := page * fake.pageSize
		end := start + fake.pageSize
		if end > fake.total {
			end = fake.total
		}

		items := make([]map[string]any, 0, fake.pageSize)
		for i := start; i < end; i++ {
			items = append(items, map[string]any{
				"id":               fmt.Sprintf("msg-%03d", i),
				"subject":          fmt.Sprintf("trip inquiry %d", i),
				"bodyPreview":      "hello",
				"receivedDateTime": fake.base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
				"from": map[string]any{
					"emailAddress": map[string]any{
						"address": fmt.Sprintf("customer%d@example.com", i),
						"name":    "Customer",
					},
				},
			})
		}

		payload := map[string]any{"value": items}
		if end < fake.total {
			payload["@odata.nextLink"] = fake.server.URL +
				"/v1.0/users/" + testInbox + "/messages?page=" + strconv.Itoa(page+1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("/v1.0/users/"+testInbox+"/messages/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/attachments") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"name": "itinerary.pdf", "contentType": "application/pdf", "size": 48213},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":               "msg-001",
			"subject":          "trip inquiry 1",
			"receivedDateTime": fake.base.Format(time.RFC3339),
			"hasAttachments":   true,
			"from": map[string]any{
				"emailAddress": map[string]any{"address": "customer1@example.com", "name": "Customer"},
			},
			"body": map[string]any{"contentType": "HTML", "content": "<p>quote please</p>"},
		})
	})

	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeGraph) client() *GraphClient {
	return NewGraphClient(GraphClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Mailbox:      testInbox,
		BaseURL:      f.server.URL + "/v1.0",
		TokenURL:     f.server.URL + "/token",
		Timeout:      2 * time.Second,
	})
}

func TestGraphClientListPaginates(t *testing.T) {
	fake := newFakeGraph(t, 120)
	client := fake.client()

	since := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	summaries, err := client.ListMessagesSince(context.Background(), since)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(summaries) != 120 {
		t.Fatalf("expected 120 messages, got %d", len(summaries))
	}
	if got := atomic.LoadInt32(&fake.listCalls); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
	if got := atomic.LoadInt32(&fake.tokenCalls); got != 1 {
		t.Fatalf("expected token fetched once, got %d", got)
	}
	if summaries[0].ID != "msg-000" || summaries[119].ID != "msg-119" {
		t.Fatalf("unexpected ordering: first=%s last=%s", summaries[0].ID, summaries[119].ID)
	}
	if filter, _ := fake.filter.Load().(string); filter != "receivedDateTime ge 2026-03-10T08:30:00Z" {
		t.Fatalf("unexpected filter: %q", filter)
	}
}

func TestGraphClientGetMessageWithAttachments(t *testing.T) {
	fake := newFakeGraph(t, 1)
	client := fake.client()

	detail, err := client.GetMessage(context.Background(), "msg-001")
	if err != nil {
		t.Fatalf("get message failed: %v", err)
	}
	if detail.ContentType != "html" {
		t.Fatalf("expected html content type, got %q", detail.ContentType)
	}
	if detail.Body != "<p>quote please</p>" {
		t.Fatalf("unexpected body: %q", detail.Body)
	}
	if len(detail.Attachments) != 1 || detail.Attachments[0].Name != "itinerary.pdf" {
		t.Fatalf("unexpected attachments: %+v", detail.Attachments)
	}
	if detail.Attachments[0].Size != 48213 {
		t.Fatalf("unexpected attachment size: %d", detail.Attachments[0].Size)
	}
}

func TestGraphClientRefreshesExpiringToken(t *testing.T) {
	fake := newFakeGraph(t, 1)
	fake.expiresIn = 30 // inside the refresh buffer, so every call refetches

	client := fake.client()
	if _, err := client.GetMessage(context.Background(), "msg-001"); err != nil {
		t.Fatalf("get message failed: %v", err)
	}
	if _, err := client.GetMessage(context.Background(), "msg-001"); err != nil {
		t.Fatalf("get message failed: %v", err)
	}
	if got := atomic.LoadInt32(&fake.tokenCalls); got < 2 {
		t.Fatalf("expected token refresh, got %d fetches", got)
	}
}

func TestGraphClientUnavailableWithoutCredentials(t *testing.T) {
	client := NewGraphClient(GraphClientConfig{})
	if client.Available() {
		t.Fatalf("expected client to be unavailable")
	}
	_, err := client.ListMessagesSince(context.Background(), time.Now())
	if !errors.Is(err, ErrMailboxUnavailable) {
		t.Fatalf("expected ErrMailboxUnavailable, got %v", err)
	}
}

func TestGraphClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"ServiceUnavailable"}}`))
	}))
	defer server.Close()

	client := NewGraphClient(GraphClientConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		Mailbox:      testInbox,
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
		Timeout:      2 * time.Second,
	})

	_, err := client.ListMessagesSince(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "graph status 503") {
		t.Fatalf("expected graph status error, got %v", err)
	}
}

func TestSkipReason(t *testing.T) {
	cases := []struct {
		sender  string
		subject string
		skip    bool
	}{
		{"no-reply@booking.example", "your receipt", true},
		{"mailer-daemon@example.com", "anything", true},
		{"alice@example.com", "Undeliverable: trip quote", true},
		{"alice@example.com", "Automatic reply: vacation", true},
		{"alice@example.com", "Weekly Newsletter: deals inside", true},
		{"alice@example.com", "Trip to Rome in October", false},
		{"bob@gmail.com", "quote for family of four", false},
	}

	for _, tc := range cases {
		reason := SkipReason(tc.sender, tc.subject)
		if tc.skip && reason == "" {
			t.Fatalf("expected %q/%q to be skipped", tc.sender, tc.subject)
		}
		if !tc.skip && reason != "" {
			t.Fatalf("expected %q/%q to pass, got reason %q", tc.sender, tc.subject, reason)
		}
	}
}
