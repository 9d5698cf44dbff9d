package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFiles embed.FS

const (
	MsgOutOfStock        = "StockOutOfStock"
	MsgInsufficientStock = "StockInsufficient"
	MsgOrderNotCancel    = "OrderNotCancellable"
	MsgBatchNotEmpty     = "BatchNotEmpty"
	MsgParentArchived    = "ParentArchived"
)

type Translator struct {
	bundle *goi18n.Bundle
}

// New loads the embedded en and id message files.
func New() (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, path := range []string{"locales/active.en.json", "locales/active.id.json"} {
		if _, err := bundle.LoadMessageFileFS(localeFiles, path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return &Translator{bundle: bundle}, nil
}

// Localize renders messageID for the first matching language in langs (raw
// Accept-Language values are accepted). It falls back to fallback when the
// message is missing.
func (t *Translator) Localize(messageID string, data map[string]any, fallback string, langs ...string) string {
	if t == nil {
		return fallback
	}
	localizer := goi18n.NewLocalizer(t.bundle, langs...)
	msg, err := localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return fallback
	}
	return msg
}
