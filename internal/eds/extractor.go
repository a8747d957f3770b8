// Package eds реализует вход по ЭЦП: разбор сертификата X.509, извлечение
// идентификационных атрибутов (ИИН, БИН, ФИО) и обмен с локальным агентом
// подписи.
package eds

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	// ErrParse — сертификат не удалось разобрать. Наружу уходит одно короткое
	// сообщение, подробности остаются в серверном логе.
	ErrParse = errors.New("eds: could not parse certificate")
	// ErrMissingIdentity — в сертификате нет CommonName.
	ErrMissingIdentity = errors.New("eds: certificate carries no identity")
)

// Fields — атрибуты, извлечённые из сертификата. Обязателен только FullName.
type Fields struct {
	FullName         string
	PersonalID       string
	OrganizationID   string
	OrganizationName string
	Email            string
}

var (
	oidCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidSerialNumber       = asn1.ObjectIdentifier{2, 5, 4, 5}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
	oidEmailAddress       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
	oidSubjectAltName     = asn1.ObjectIdentifier{2, 5, 29, 17}
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Структуры ровно той глубины, которая нужна, чтобы добраться до Subject и
// расширений. Остальные поля сертификата остаются сырыми байтами, поэтому
// экзотические алгоритмы подписи (ГОСТ) разбору не мешают.
type certificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm asn1.RawValue
	SignatureValue     asn1.BitString
}

type tbsCertificate struct {
	Version         int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber    *big.Int
	Signature       asn1.RawValue
	Issuer          asn1.RawValue
	Validity        asn1.RawValue
	Subject         asn1.RawValue
	PublicKey       asn1.RawValue
	IssuerUniqueID  asn1.BitString   `asn1:"optional,tag:1"`
	SubjectUniqueID asn1.BitString   `asn1:"optional,tag:2"`
	Extensions      []pkix.Extension `asn1:"omitempty,optional,explicit,tag:3"`
}

// Extract разбирает base64-DER сертификат и возвращает атрибуты субъекта.
func Extract(certB64 string) (*Fields, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certB64), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var cert certificate
	if rest, err := asn1.Unmarshal(der, &cert); err != nil || len(rest) > 0 {
		return nil, fmt.Errorf("%w: bad DER structure", ErrParse)
	}

	var tbs tbsCertificate
	if _, err := asn1.Unmarshal(cert.TBSCertificate.FullBytes, &tbs); err != nil {
		return nil, fmt.Errorf("%w: bad tbsCertificate", ErrParse)
	}

	var subject pkix.RDNSequence
	if _, err := asn1.Unmarshal(tbs.Subject.FullBytes, &subject); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrParse)
	}

	f := &Fields{}
	for _, rdn := range subject {
		for _, atv := range rdn {
			value := attributeString(atv.Value)
			if value == "" {
				continue
			}
			switch {
			case atv.Type.Equal(oidCommonName):
				f.FullName = value
			case atv.Type.Equal(oidOrganizationalUnit):
				applyMarker(f, value)
			case atv.Type.Equal(oidOrganization):
				f.OrganizationName = value
			case atv.Type.Equal(oidSerialNumber):
				if !applyMarker(f, value) && len(value) == 12 && f.PersonalID == "" {
					// Без маркера, но ровно 12 знаков — считаем ИИН.
					f.PersonalID = value
				}
			case atv.Type.Equal(oidEmailAddress):
				f.Email = value
			}
		}
	}

	if f.Email == "" {
		f.Email = emailFromSAN(tbs.Extensions)
	}

	if f.FullName == "" {
		return nil, ErrMissingIdentity
	}
	return f, nil
}

// applyMarker распознаёт значения вида "BIN123456789012" / "IIN940217300123".
func applyMarker(f *Fields, value string) bool {
	if i := strings.Index(value, "BIN"); i >= 0 {
		f.OrganizationID = value[i+3:]
		return true
	}
	if i := strings.Index(value, "IIN"); i >= 0 {
		f.PersonalID = value[i+3:]
		return true
	}
	return false
}

// attributeString приводит значение ASN.1-атрибута к строке. Вложенные и
// многосоставные значения склеиваются, незнакомые типы игнорируются.
func attributeString(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case []byte:
		return strings.TrimSpace(string(value))
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if s := attributeString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}

// emailFromSAN ищет адрес почты в сыром содержимом расширения
// subjectAltName. Поиск best-effort: неудача — просто пустая строка.
func emailFromSAN(exts []pkix.Extension) string {
	for _, ext := range exts {
		if !ext.Id.Equal(oidSubjectAltName) {
			continue
		}
		return emailPattern.FindString(string(ext.Value))
	}
	return ""
}
