// Package i18n provides a small message catalog with default-locale
// fallback for operator-facing notification emails.
package i18n

import "strings"

// Catalog holds localized message templates keyed by locale and message key.
// Placeholders use the {name} form.
type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
}

// Message keys used by the certificate failure pipeline
const (
	KeyCertFailedSubject = "emails.certificate.subject"
	KeyCertFailedBody    = "emails.certificate.body"
)

// builtin carries the shipped locales. Additional locales can be registered
// at runtime with AddMessages.
var builtin = map[string]map[string]string{
	"en": {
		KeyCertFailedSubject: "Certificate issuance failed for {domain}",
		KeyCertFailedBody: "Certificate generation for {domain} failed.\n\n" +
			"Error: {error}\n" +
			"Attempt: {attempt}\n\n" +
			"The domain will be retried automatically on the next maintenance pass.",
	},
	"de": {
		KeyCertFailedSubject: "Zertifikatsausstellung für {domain} fehlgeschlagen",
		KeyCertFailedBody: "Die Zertifikatserstellung für {domain} ist fehlgeschlagen.\n\n" +
			"Fehler: {error}\n" +
			"Versuch: {attempt}\n\n" +
			"Die Domain wird beim nächsten Wartungslauf automatisch erneut geprüft.",
	},
}

// NewCatalog creates a catalog seeded with the built-in locales. An unknown
// defaultLocale falls back to "en".
func NewCatalog(defaultLocale string) *Catalog {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	messages := make(map[string]map[string]string, len(builtin))
	for locale, msgs := range builtin {
		copied := make(map[string]string, len(msgs))
		for k, v := range msgs {
			copied[k] = v
		}
		messages[locale] = copied
	}
	if _, ok := messages[defaultLocale]; !ok {
		defaultLocale = "en"
	}
	return &Catalog{
		defaultLocale: defaultLocale,
		messages:      messages,
	}
}

// AddMessages registers or overrides messages for a locale
func (c *Catalog) AddMessages(locale string, msgs map[string]string) {
	if c.messages[locale] == nil {
		c.messages[locale] = make(map[string]string, len(msgs))
	}
	for k, v := range msgs {
		c.messages[locale][k] = v
	}
}

// DefaultLocale returns the catalog's fallback locale
func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// Render resolves the key in the requested locale, falling back to the
// default locale when the locale or the key is missing, and substitutes
// {name} placeholders from params. A key missing everywhere renders as the
// key itself so a broken catalog still produces a traceable message.
func (c *Catalog) Render(locale, key string, params map[string]string) string {
	template, ok := c.lookup(locale, key)
	if !ok {
		template, ok = c.lookup(c.defaultLocale, key)
	}
	if !ok {
		template = key
	}

	if len(params) == 0 {
		return template
	}

	pairs := make([]string, 0, len(params)*2)
	for name, value := range params {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func (c *Catalog) lookup(locale, key string) (string, bool) {
	msgs, ok := c.messages[locale]
	if !ok {
		return "", false
	}
	template, ok := msgs[key]
	return template, ok
}
