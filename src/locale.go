package main

import (
	"embed"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

const defaultLang = "zh"

//go:embed translate/*.yml
var translations embed.FS

var (
	bundle  = newBundle()
	matcher = language.NewMatcher([]language.Tag{
		language.Chinese,
		language.English,
		language.Russian,
	})
)

type localizer struct {
	*i18n.Localizer
}

func newBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.Chinese)
	b.RegisterUnmarshalFunc("yml", yaml.Unmarshal)

	files, err := translations.ReadDir("translate")
	if err != nil {
		panic(err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		data, err := translations.ReadFile(path.Join("translate", f.Name()))
		if err != nil {
			panic(err)
		}

		b.MustParseMessageFileBytes(data, f.Name())
	}

	return b
}

// newLocalizer picks the closest supported language for an Accept-Language
// header or a two-letter bot language code.
func newLocalizer(al string) localizer {
	if al == "" {
		al = defaultLang
	}

	tag, _ := language.MatchStrings(matcher, al)
	base, _ := tag.Base()

	return localizer{i18n.NewLocalizer(bundle, base.String())}
}

func botLocalizer(b *Bot) localizer {
	return newLocalizer(b.Lang)
}

func (l localizer) message(messageID string) string {
	return l.template(messageID, nil)
}

func (l localizer) template(messageID string, templateData map[string]interface{}) string {
	msg, err := l.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: templateData,
	})
	if err != nil {
		return messageID
	}

	return msg
}

func setLocale() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("localizer", newLocalizer(c.GetHeader("Accept-Language")))
	}
}

func requestLocalizer(c *gin.Context) localizer {
	if l, ok := c.Get("localizer"); ok {
		return l.(localizer)
	}

	return newLocalizer("")
}
