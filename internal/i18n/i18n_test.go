package i18n

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	c := NewCatalog("en")

	got := c.Render("en", KeyCertFailedSubject, map[string]string{"domain": "app.customer.com"})
	want := "Certificate issuance failed for app.customer.com"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderGermanLocale(t *testing.T) {
	c := NewCatalog("en")

	got := c.Render("de", KeyCertFailedSubject, map[string]string{"domain": "app.customer.com"})
	want := "Zertifikatsausstellung für app.customer.com fehlgeschlagen"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}

	body := c.Render("de", KeyCertFailedBody, map[string]string{
		"domain": "app.customer.com", "error": "boom", "attempt": "2",
	})
	for _, fragment := range []string{"für", "nächsten", "geprüft", "boom"} {
		if !strings.Contains(body, fragment) {
			t.Errorf("body %q is missing %q", body, fragment)
		}
	}
}

func TestRenderFallsBackToDefaultLocale(t *testing.T) {
	c := NewCatalog("en")

	got := c.Render("fr", KeyCertFailedSubject, map[string]string{"domain": "app.customer.com"})
	if !strings.Contains(got, "app.customer.com") || !strings.Contains(got, "Certificate") {
		t.Errorf("fallback render = %q", got)
	}
}

func TestRenderMissingKeyReturnsKey(t *testing.T) {
	c := NewCatalog("en")

	if got := c.Render("en", "emails.nonexistent", nil); got != "emails.nonexistent" {
		t.Errorf("Render = %q, want the key itself", got)
	}
}

func TestRenderUsesRegisteredLocale(t *testing.T) {
	c := NewCatalog("en")
	c.AddMessages("nl", map[string]string{
		KeyCertFailedSubject: "Certificaatuitgifte mislukt voor {domain}",
	})

	got := c.Render("nl", KeyCertFailedSubject, map[string]string{"domain": "app.customer.com"})
	want := "Certificaatuitgifte mislukt voor app.customer.com"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}

	// Keys absent from the added locale still fall back.
	body := c.Render("nl", KeyCertFailedBody, map[string]string{
		"domain": "app.customer.com", "error": "boom", "attempt": "1",
	})
	if !strings.Contains(body, "boom") {
		t.Errorf("fallback body = %q", body)
	}
}

func TestUnknownDefaultLocaleFallsBackToEnglish(t *testing.T) {
	c := NewCatalog("xx")
	if c.DefaultLocale() != "en" {
		t.Errorf("default locale = %q, want en", c.DefaultLocale())
	}
}
