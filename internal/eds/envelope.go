package eds

import (
	"errors"
	"strings"
)

// Маркеры сертификата внутри XML-DSig конверта, который возвращает агент.
var certMarkers = []struct{ open, close string }{
	{"<ds:X509Certificate>", "</ds:X509Certificate>"},
	{"<X509Certificate>", "</X509Certificate>"},
}

var ErrNoCertificate = errors.New("eds: envelope carries no certificate")

// CertificateFromEnvelope вырезает base64-сертификат из подписанного
// конверта. Транспортная обёртка дальше не разбирается.
func CertificateFromEnvelope(envelope string) (string, error) {
	for _, m := range certMarkers {
		start := strings.Index(envelope, m.open)
		if start < 0 {
			continue
		}
		start += len(m.open)
		end := strings.Index(envelope[start:], m.close)
		if end < 0 {
			return "", ErrNoCertificate
		}
		cert := strings.Join(strings.Fields(envelope[start:start+end]), "")
		if cert == "" {
			return "", ErrNoCertificate
		}
		return cert, nil
	}
	return "", ErrNoCertificate
}
