package extraction

import "testing"

func TestEmailBodyTextStripsMarkup(t *testing.T) {
	body := `<html><head><style>p { color: red; }</style></head><body>
	<p>Hello,</p>
	<p>We are planning a trip to <b>Lisbon</b> &amp; Porto.</p>
	<div>Budget: $4,200</div>
	</body></html>`

	got := EmailBodyText(body)
	want := "Hello,\n\nWe are planning a trip to Lisbon & Porto.\n\nBudget: $4,200"
	if got != want {
		t.Fatalf("unexpected text:\n got: %q\nwant: %q", got, want)
	}
}

func TestEmailBodyTextPlainPassthrough(t *testing.T) {
	got := EmailBodyText("just a plain\nmessage")
	if got != "just a plain\nmessage" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestEmailBodyTextEmpty(t *testing.T) {
	if got := EmailBodyText("   \n\t"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
