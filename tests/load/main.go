// Command load drives the intake and dashboard endpoints against an
// in-process server with memory stores and a canned extraction model. It
// measures the request path only: webhook acknowledgement latency, the
// duplicate fast path, and the dashboard reads, without a database or a
// model provider in the loop.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tripshield/inquiry-desk/internal/auth"
	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	httpserver "github.com/tripshield/inquiry-desk/internal/http"
	"github.com/tripshield/inquiry-desk/internal/http/handlers"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/service"
	"github.com/tripshield/inquiry-desk/internal/whatsapp"
	"github.com/tripshield/inquiry-desk/internal/worker"
)

const (
	loadWebhookSecret = "load-webhook-secret"
	loadAdminPassword = "load-admin-pass"
	replayedMessageID = "wamid.replayed"
)

const cannedExtractionJSON = `{
	"first_name": "Ana", "last_name": "Silva",
	"travel_start_date": "2026-09-10", "travel_end_date": "2026-09-24",
	"trip_destination": "Paris"
}`

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

// cannedModel answers every extraction request instantly with the same
// complete inquiry, so the benchmark exercises the pipeline rather than a
// provider.
type cannedModel struct{}

func (cannedModel) Complete(_ context.Context, request extraction.ChatRequest) (extraction.ChatResult, error) {
	return extraction.ChatResult{Text: cannedExtractionJSON, ModelID: request.Model}, nil
}

func (cannedModel) Available() bool { return true }

type benchmarkEnv struct {
	server *httptest.Server
	client *http.Client
	cancel context.CancelFunc
}

func main() {
	webhookTotal := flag.Int("webhook-total", 400, "total signed webhook deliveries")
	webhookConcurrency := flag.Int("webhook-concurrency", 32, "concurrency for webhook deliveries")
	replayTotal := flag.Int("replay-total", 200, "total duplicate webhook replays")
	replayConcurrency := flag.Int("replay-concurrency", 16, "concurrency for duplicate replays")
	listTotal := flag.Int("list-total", 200, "total inquiry list requests")
	listConcurrency := flag.Int("list-concurrency", 24, "concurrency for inquiry list requests")
	statsTotal := flag.Int("stats-total", 120, "total stats requests")
	statsConcurrency := flag.Int("stats-concurrency", 16, "concurrency for stats requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	webhookScenario := runScenario("webhook_intake", *webhookTotal, *webhookConcurrency, func(index int) error {
		event := webhookEvent(
			fmt.Sprintf("wamid.load-%d", index),
			fmt.Sprintf("55119999%04d@c.us", index%64),
			"Quote for a trip to Paris, Sep 10 to Sep 24, two travelers.",
		)
		return postSignedWebhook(env, event, http.StatusAccepted)
	})

	// Every replay hits a message id stored before the run, so the service
	// answers from the dedupe check without touching the queue.
	replayScenario := runScenario("webhook_replay", *replayTotal, *replayConcurrency, func(int) error {
		event := webhookEvent(replayedMessageID, "5511999990000@c.us", "original delivery")
		return postSignedWebhook(env, event, http.StatusOK)
	})

	listScenario := runScenario("inquiry_list", *listTotal, *listConcurrency, func(index int) error {
		query := fmt.Sprintf("%s/api/inquiries?page=%d&page_size=25", env.server.URL, (index%4)+1)
		return getJSON(env.client, query, http.StatusOK)
	})

	statsScenario := runScenario("inquiry_stats", *statsTotal, *statsConcurrency, func(int) error {
		return getJSON(env.client, env.server.URL+"/api/inquiries/stats", http.StatusOK)
	})

	results := []scenarioResult{
		webhookScenario,
		replayScenario,
		listScenario,
		statsScenario,
	}

	slo := map[string]bool{
		"webhook_ack_p95_le_250ms":    webhookScenario.P95MS <= 250,
		"webhook_replay_p95_le_100ms": replayScenario.P95MS <= 100,
		"inquiry_list_p95_le_500ms":   listScenario.P95MS <= 500,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	taskQueue := queue.NewMemoryQueue(queue.Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
	})
	inquiries := repository.NewMemoryInquiriesRepository()
	cursors := repository.NewMemoryCursorsRepository()
	users := repository.NewMemoryUsersRepository()
	sessions := auth.NewMemorySessionStore(time.Hour)

	if err := auth.EnsureAdminUser(ctx, users, "admin", loadAdminPassword, logger); err != nil {
		cancel()
		return nil, fmt.Errorf("seed admin user: %w", err)
	}

	extractor := extraction.NewExtractor(extraction.ExtractorDependencies{
		Client: cannedModel{},
		Logger: logger,
	})

	inquiryService := service.NewInquiryService(inquiries, nil)
	intakeService := service.NewIntakeService(taskQueue, inquiries, logger)

	api := handlers.NewAPI(handlers.APIDependencies{
		Inquiries:     inquiryService,
		Intake:        intakeService,
		Users:         users,
		Sessions:      sessions,
		WebhookSecret: loadWebhookSecret,
		SessionTTL:    time.Hour,
		Logger:        logger,
	})
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Sessions:       sessions,
		Logger:         logger,
		RateLimitRPS:   50000,
		RateLimitBurst: 50000,
	})

	processor := worker.NewProcessor(worker.Dependencies{
		Queue:     taskQueue,
		Inquiries: inquiries,
		Cursors:   cursors,
		Mailbox:   mailbox.NewGraphClient(mailbox.GraphClientConfig{}),
		Extractor: extractor,
		Logger:    logger,
	}, worker.Config{
		IdleSleep:   time.Millisecond,
		MaxAttempts: 3,
	})
	go processor.Start(ctx)

	if err := seedReplayedMessage(ctx, inquiries); err != nil {
		cancel()
		return nil, err
	}

	server := httptest.NewServer(router)

	jar, err := cookiejar.New(nil)
	if err != nil {
		cancel()
		server.Close()
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second, Jar: jar}

	login := map[string]any{"username": "admin", "password": loadAdminPassword}
	if err := postJSON(client, server.URL+"/api/auth/login", login, http.StatusOK); err != nil {
		cancel()
		server.Close()
		return nil, fmt.Errorf("dashboard login: %w", err)
	}

	return &benchmarkEnv{
		server: server,
		client: client,
		cancel: cancel,
	}, nil
}

// seedReplayedMessage stores the message the replay scenario re-delivers,
// so every replay takes the duplicate fast path deterministically.
func seedReplayedMessage(ctx context.Context, inquiries repository.InquiriesRepository) error {
	inquiry, _, err := inquiries.ResolveInquiry(ctx, "whatsapp:5511999990000@c.us", domain.StatusNewWhatsApp)
	if err != nil {
		return fmt.Errorf("seed replay inquiry: %w", err)
	}
	message := &domain.WhatsAppMessage{
		InquiryID:  inquiry.ID,
		ProviderID: replayedMessageID,
		ChatID:     "5511999990000@c.us",
		Body:       "original delivery",
		SentAt:     time.Now().UTC(),
	}
	if err := inquiries.InsertWhatsAppMessage(ctx, message); err != nil {
		return fmt.Errorf("seed replay message: %w", err)
	}
	return nil
}

func webhookEvent(messageID, chatID, text string) map[string]any {
	return map[string]any{
		"typeWebhook": "incomingMessageReceived",
		"timestamp":   time.Now().Unix(),
		"idMessage":   messageID,
		"senderData": map[string]any{
			"chatId":     chatID,
			"senderName": "Load Tester",
		},
		"messageData": map[string]any{
			"typeMessage": "textMessage",
			"textMessageData": map[string]any{
				"textMessage": text,
			},
		},
	}
}

func postSignedWebhook(env *benchmarkEnv, event map[string]any, expectedStatus int) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhooks/whatsapp", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(whatsapp.SignatureHeader, whatsapp.Sign(loadWebhookSecret, encoded))

	response, err := env.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(client *http.Client, url string, payload any, expectedStatus int) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
