// Carga del CSD (certificado de sello digital) desde .p12/.pfx o par PEM.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	"github.com/facturalo/timbrado-api/internal/domain/document"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("csd: leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("csd: decodificar p12: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (por separado o
// combinados en uno).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("csd: cargar PEM: %w", err)
	}
	return cert, nil
}

// ValidateCSD verifica que el CSD sea utilizable para firmar: certificado
// presente y vigente, llave privada RSA y correspondencia llave-certificado.
// Cualquier falla es SigningError (fatal para el documento en curso).
func ValidateCSD(cert tls.Certificate, now time.Time) (*x509.Certificate, *rsa.PrivateKey, error) {
	if len(cert.Certificate) == 0 {
		return nil, nil, &document.SigningError{Motivo: "certificado ausente"}
	}
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, nil, &document.SigningError{Motivo: "certificado ilegible", Err: err}
		}
		leaf = parsed
	}
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return nil, nil, &document.SigningError{
			Motivo: fmt.Sprintf("certificado fuera de vigencia (%s a %s)",
				leaf.NotBefore.Format("2006-01-02"), leaf.NotAfter.Format("2006-01-02")),
		}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok || priv == nil {
		return nil, nil, &document.SigningError{Motivo: "el CSD debe incluir llave privada RSA"}
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, &document.SigningError{Motivo: "el certificado no contiene llave pública RSA"}
	}
	if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
		return nil, nil, &document.SigningError{Motivo: "la llave privada no corresponde al certificado"}
	}
	return leaf, priv, nil
}

// NoCertificado extrae el número de certificado de 20 dígitos del serial.
// El SAT codifica el serial como la secuencia ASCII de los dígitos; si los
// bytes no son todos dígitos imprimibles se usa la representación decimal.
func NoCertificado(cert *x509.Certificate) string {
	raw := cert.SerialNumber.Bytes()
	digits := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b < '0' || b > '9' {
			return cert.SerialNumber.String()
		}
		digits = append(digits, b)
	}
	if len(digits) == 0 {
		return cert.SerialNumber.String()
	}
	return string(digits)
}
