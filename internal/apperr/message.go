package apperr

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	msgNetwork    = "Unable to reach the server. Check your connection."
	msgTimeout    = "The server took too long to respond."
	msgNotFound   = "The requested form could not be found."
	msgServer     = "The server had a problem (%d). Please try again later."
	msgValidation = "Please fix the highlighted fields."
	msgStorage    = "Could not save data on this device."
	msgUnknown    = "Something went wrong."
)

func init() {
	es := language.Spanish
	message.SetString(es, msgNetwork, "No se puede conectar con el servidor. Revisa tu conexión.")
	message.SetString(es, msgTimeout, "El servidor tardó demasiado en responder.")
	message.SetString(es, msgNotFound, "No se encontró el formulario solicitado.")
	message.SetString(es, msgServer, "El servidor tuvo un problema (%d). Inténtalo de nuevo más tarde.")
	message.SetString(es, msgValidation, "Corrige los campos marcados.")
	message.SetString(es, msgStorage, "No se pudieron guardar los datos en este dispositivo.")
	message.SetString(es, msgUnknown, "Algo salió mal.")
}

// ParseLocale resolves a locale name such as "es" or "en-US", falling back
// to English.
func ParseLocale(name string) language.Tag {
	tag, err := language.Parse(name)
	if err != nil {
		return language.English
	}
	return tag
}

// UserMessage returns the localized text shown to a user for err.
func UserMessage(tag language.Tag, err error) string {
	if err == nil {
		return ""
	}
	p := message.NewPrinter(tag)
	ae := Classify(err)
	switch ae.Kind {
	case KindNetwork:
		return p.Sprintf(msgNetwork)
	case KindTimeout:
		return p.Sprintf(msgTimeout)
	case KindNotFound:
		return p.Sprintf(msgNotFound)
	case KindServer:
		return p.Sprintf(msgServer, ae.Status)
	case KindValidation:
		return p.Sprintf(msgValidation)
	case KindStorage:
		return p.Sprintf(msgStorage)
	default:
		return p.Sprintf(msgUnknown)
	}
}
