package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

// Extraction sources recorded on extracted_data rows.
const (
	SourceNone     = "none"
	SourceLocal    = "local"
	SourceOpenAI   = "openai"
	SourceCombined = "combined"
)

const extractInstructions = `You extract travel insurance inquiry details from a customer message.
Return only a JSON object with these keys, using "" for anything the message does not state:
first_name, last_name, home_address, date_of_birth, email, phone_number,
travel_start_date, travel_end_date, trip_destination, origin, trip_cost,
initial_trip_deposit_date, travelers.
"travelers" is an array of {"first_name":"","last_name":"","date_of_birth":""} objects,
one per person traveling, when the message lists them.
Normalize dates to YYYY-MM-DD when the year is known. Never invent values.
Do not use markdown code fences.`

const intentInstructions = `Classify the intent of an email sent to a travel insurance agency.
Answer with exactly one of: inquiry, spam, solicitation, out_of_office, undeliverable, confirmation, personal, other.
Answer with the single label and nothing else.`

type ExtractorDependencies struct {
	Router *ModelRouter
	Client TextGenerator
	Cache  *ResultCache
	Logger *log.Logger

	MaxInputChars int
}

// Extractor turns raw message text into schema fields. Model output wins
// over the local regex pass; the local pass fills whatever the model left
// blank and carries the whole result when no client is configured.
type Extractor struct {
	router   *ModelRouter
	client   TextGenerator
	cache    *ResultCache
	logger   *log.Logger
	maxInput int
}

func NewExtractor(deps ExtractorDependencies) *Extractor {
	if deps.Router == nil {
		deps.Router = NewModelRouter(ModelRouterConfig{})
	}
	if deps.Cache == nil {
		deps.Cache = NewResultCache(CacheConfig{})
	}
	if deps.MaxInputChars <= 0 {
		deps.MaxInputChars = 6000
	}

	return &Extractor{
		router:   deps.Router,
		client:   deps.Client,
		cache:    deps.Cache,
		logger:   deps.Logger,
		maxInput: deps.MaxInputChars,
	}
}

// ExtractTravelData returns the fields found in text plus the source tag.
// Empty or unparseable model output is not an error: it means nothing was
// extracted. A provider failure after retries is returned as an error so
// the caller can retry the whole task later.
func (e *Extractor) ExtractTravelData(ctx context.Context, text string) (domain.ExtractedFields, string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ExtractedFields{}, SourceNone, nil
	}
	if len(trimmed) > e.maxInput {
		trimmed = trimmed[:e.maxInput]
	}

	local := localExtract(trimmed)

	if e.client == nil || !e.client.Available() {
		if local.IsEmpty() {
			return domain.ExtractedFields{}, SourceNone, nil
		}
		return local, SourceLocal, nil
	}

	signature := e.cache.BuildSignature(string(TaskExtract), trimmed)
	if fields, source, ok := e.cache.Get(signature); ok {
		return fields, source, nil
	}

	profile := e.router.Select(TaskExtract)
	output, modelID, err := e.completeText(ctx, profile, extractInstructions, trimmed)
	if err != nil {
		return domain.ExtractedFields{}, "", fmt.Errorf("travel extraction: %w", err)
	}

	modelFields, parsed := parseModelFields(output)
	if !parsed {
		e.logf("extraction output was not valid JSON, treating as empty model=%s", modelID)
	}

	merged := modelFields
	adopted := domain.MergeFields(&merged, local)
	source := extractionSource(!modelFields.IsEmpty(), len(adopted) > 0)

	e.cache.Set(signature, merged, source, modelID)
	return merged, source, nil
}

// ClassifyIntent labels an email by subject and body preview. Labels
// outside the known set collapse to other. Without a configured client
// everything is treated as an inquiry so the pipeline keeps moving.
func (e *Extractor) ClassifyIntent(ctx context.Context, subject, preview string) (domain.Intent, error) {
	if e.client == nil || !e.client.Available() {
		return domain.IntentInquiry, nil
	}

	profile := e.router.Select(TaskIntent)
	output, modelID, err := e.completeText(ctx, profile, intentInstructions, buildIntentInput(subject, preview))
	if err != nil {
		return domain.IntentOther, fmt.Errorf("intent classification: %w", err)
	}

	intent := normalizeIntentLabel(output)
	if intent == domain.IntentOther && !strings.EqualFold(strings.TrimSpace(output), string(domain.IntentOther)) {
		e.logf("intent label %q not recognized, using other model=%s", snippet(output, 60), modelID)
	}
	return intent, nil
}

func (e *Extractor) completeText(
	ctx context.Context,
	profile ModelProfile,
	instructions string,
	input string,
) (string, string, error) {
	if e.client == nil || !e.client.Available() {
		return "", "", ErrClientUnavailable
	}

	primary, err := e.client.Complete(ctx, ChatRequest{
		Model:           profile.PrimaryModel,
		Instructions:    instructions,
		Input:           input,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if err == nil {
		return primary.Text, firstNonEmpty(primary.ModelID, profile.PrimaryModel), nil
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}

	fallback, fallbackErr := e.client.Complete(ctx, ChatRequest{
		Model:           profile.FallbackModel,
		Instructions:    instructions,
		Input:           input,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	return fallback.Text, firstNonEmpty(fallback.ModelID, profile.FallbackModel), nil
}

func parseModelFields(output string) (domain.ExtractedFields, bool) {
	raw, err := extractJSON(output)
	if err != nil {
		return domain.ExtractedFields{}, false
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.ExtractedFields{}, false
	}

	var fields domain.ExtractedFields
	for key, value := range decoded {
		if key == domain.FieldTravelers {
			fields.Travelers = parseTravelers(value)
			continue
		}
		fields.Set(key, scalarString(value))
	}
	return fields, true
}

func parseTravelers(value any) []domain.Traveler {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	travelers := make([]domain.Traveler, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		traveler := domain.Traveler{
			FirstName:   scalarString(entry["first_name"]),
			LastName:    scalarString(entry["last_name"]),
			DateOfBirth: scalarString(entry["date_of_birth"]),
		}
		if traveler.FirstName == "" && traveler.LastName == "" && traveler.DateOfBirth == "" {
			continue
		}
		travelers = append(travelers, traveler)
	}
	if len(travelers) == 0 {
		return nil
	}
	return travelers
}

func scalarString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}

func extractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty model output")
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return []byte(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return []byte(candidate), nil
		}
	}

	return nil, errors.New("model output is not valid JSON")
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	datePattern  = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`)
	costPattern  = regexp.MustCompile(`\$ ?(\d[\d,]*(?:\.\d{1,2})?)\b`)
)

func localExtract(text string) domain.ExtractedFields {
	var fields domain.ExtractedFields
	if match := emailPattern.FindString(text); match != "" {
		fields.Email = match
	}
	if match := phonePattern.FindString(text); match != "" {
		fields.PhoneNumber = strings.TrimSpace(match)
	}
	// A lone date could be a birth date or either end of the trip, so
	// dates are only adopted in pairs.
	if dates := datePattern.FindAllString(text, -1); len(dates) >= 2 {
		fields.TravelStartDate = dates[0]
		fields.TravelEndDate = dates[1]
	}
	if match := costPattern.FindStringSubmatch(text); match != nil {
		fields.TripCost = "$" + match[1]
	}
	return fields
}

func extractionSource(modelContributed, localContributed bool) string {
	switch {
	case modelContributed && localContributed:
		return SourceCombined
	case modelContributed:
		return SourceOpenAI
	case localContributed:
		return SourceLocal
	default:
		return SourceNone
	}
}

func buildIntentInput(subject, preview string) string {
	subject = strings.TrimSpace(subject)
	preview = strings.TrimSpace(preview)
	if len(preview) > 1200 {
		preview = preview[:1200]
	}
	return "Subject: " + subject + "\n\nBody:\n" + preview
}

func normalizeIntentLabel(output string) domain.Intent {
	normalized := strings.ToLower(strings.TrimSpace(output))
	normalized = strings.Trim(normalized, "\"'`.,: ")
	collapsed := strings.ReplaceAll(normalized, " ", "_")
	for _, intent := range domain.KnownIntents() {
		if collapsed == string(intent) {
			return intent
		}
	}

	if words := strings.Fields(normalized); len(words) > 0 {
		first := strings.Trim(words[0], "\"'`.,:")
		for _, intent := range domain.KnownIntents() {
			if first == string(intent) {
				return intent
			}
		}
	}
	return domain.IntentOther
}

func snippet(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit]
}

func (e *Extractor) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
