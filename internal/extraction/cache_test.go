package extraction

import (
	"testing"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

func TestResultCacheHitAndExpiry(t *testing.T) {
	cache := NewResultCache(CacheConfig{TTL: 20 * time.Millisecond, MaxEntries: 10})
	signature := cache.BuildSignature("extract", "some body")

	if _, _, ok := cache.Get(signature); ok {
		t.Fatalf("expected miss on empty cache")
	}

	cache.Set(signature, domain.ExtractedFields{FirstName: "Alice"}, SourceOpenAI, "gpt-4o-mini")
	fields, source, ok := cache.Get(signature)
	if !ok || fields.FirstName != "Alice" || source != SourceOpenAI {
		t.Fatalf("expected hit, got ok=%v fields=%+v source=%s", ok, fields, source)
	}

	time.Sleep(30 * time.Millisecond)
	if _, _, ok := cache.Get(signature); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestResultCacheEvictsOldest(t *testing.T) {
	cache := NewResultCache(CacheConfig{TTL: time.Minute, MaxEntries: 2})

	first := cache.BuildSignature("extract", "first")
	cache.Set(first, domain.ExtractedFields{FirstName: "A"}, SourceOpenAI, "m")
	time.Sleep(2 * time.Millisecond)
	cache.Set(cache.BuildSignature("extract", "second"), domain.ExtractedFields{FirstName: "B"}, SourceOpenAI, "m")
	time.Sleep(2 * time.Millisecond)
	cache.Set(cache.BuildSignature("extract", "third"), domain.ExtractedFields{FirstName: "C"}, SourceOpenAI, "m")

	if _, _, ok := cache.Get(first); ok {
		t.Fatalf("expected oldest entry evicted")
	}
}

func TestResultCacheSignatureNormalizes(t *testing.T) {
	cache := NewResultCache(CacheConfig{})
	a := cache.BuildSignature("extract", "  Hello World  ")
	b := cache.BuildSignature("extract", "hello world")
	if a != b {
		t.Fatalf("expected normalized signatures to match")
	}
	if a == cache.BuildSignature("intent", "hello world") {
		t.Fatalf("expected task kind to partition signatures")
	}
}
