package normalize

import (
	"golang.org/x/text/language"

	"github.com/LeventeLantos/chat-hub/internal/model"
)

type captions struct {
	image string
	audio string
}

var supportedCaptions = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
}

var captionsByTag = map[language.Tag]captions{
	language.BrazilianPortuguese: {image: "📷 Imagem", audio: "🎤 Áudio"},
	language.English:             {image: "📷 Image", audio: "🎤 Audio"},
	language.Spanish:             {image: "📷 Imagen", audio: "🎤 Audio"},
}

var captionMatcher = language.NewMatcher(supportedCaptions)

func captionsFor(lang string) captions {
	_, idx := language.MatchStrings(captionMatcher, lang)
	return captionsByTag[supportedCaptions[idx]]
}

func (c captions) forType(t model.MessageType) string {
	switch t {
	case model.Image:
		return c.image
	case model.Audio:
		return c.audio
	}
	return ""
}
