// Package cfdi: puertos (interfaces) del pipeline de timbrado.
package cfdi

import (
	"context"
	"crypto/tls"

	"github.com/facturalo/timbrado-api/internal/domain/document"
)

// Signer firma el XML de un comprobante y devuelve el XML con los atributos
// de firma embebidos (Sello, NoCertificado, Certificado).
type Signer interface {
	// Sign toma el XML sin firma y el CSD (certificado con llave privada) y
	// retorna el XML firmado. La firma es determinista: mismo XML y misma
	// llave producen el mismo Sello.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}

// Credentials credenciales del emisor ante el PAC.
type Credentials struct {
	Usuario  string
	Password string
}

// Stamper define el puerto de salida hacia el PAC para el timbrado.
// Hay una implementación por transporte (JSON/HTTP para comprobantes
// generales, SOAP para retenciones) más un simulador explícito; la selección
// es por tipo de documento, nunca un fallback silencioso.
type Stamper interface {
	// Stamp envía el XML firmado al PAC y normaliza la respuesta. Las fallas
	// de transporte se mapean a StampResult con Estado ERROR; los rechazos de
	// negocio conservan código y mensaje del PAC tal cual.
	Stamp(ctx context.Context, signedXML []byte, doc *document.TaxDocument, creds Credentials) (*document.StampResult, error)
}

// Canceller define el puerto de salida para cancelar un comprobante timbrado.
type Canceller interface {
	// Cancel solicita la cancelación del UUID indicado. Los invariantes
	// locales (sustitución exige UUID sustituto) se validan antes de tocar
	// la red.
	Cancel(ctx context.Context, req *document.CancellationRequest, creds Credentials) (*document.CancellationResult, error)
}
