// Servicio de sellado digital de comprobantes fiscales: deriva la cadena
// original, la firma con la llave del CSD (RSA-SHA256) y embebe los atributos
// Sello, NoCertificado y Certificado en el XML.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/beevik/etree"

	infracfdi "github.com/facturalo/timbrado-api/internal/infrastructure/cfdi"
	pkgcfdi "github.com/facturalo/timbrado-api/pkg/cfdi"
)

// SelloService implementa pkg/cfdi.Signer. No guarda estado entre llamadas:
// la firma es determinista para el mismo XML y la misma llave.
type SelloService struct{}

// NewSelloService crea el servicio.
func NewSelloService() *SelloService {
	return &SelloService{}
}

// Sign deriva la cadena original del XML, la firma con RSA PKCS#1 v1.5 sobre
// SHA-256 y devuelve el XML con Sello, NoCertificado y Certificado embebidos
// en la raíz. El documento de entrada no se modifica.
func (s *SelloService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("csd: XML vacío")
	}
	leaf, priv, err := ValidateCSD(cert, time.Now())
	if err != nil {
		return nil, err
	}

	cadena, err := infracfdi.OriginalString(xmlBytes)
	if err != nil {
		return nil, fmt.Errorf("csd: derivar cadena original: %w", err)
	}

	digest := sha256.Sum256([]byte(cadena))
	firma, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("csd: firmar cadena original: %w", err)
	}

	sello := base64.StdEncoding.EncodeToString(firma)
	certB64 := base64.StdEncoding.EncodeToString(leaf.Raw)
	noCert := NoCertificado(leaf)

	return embedSignature(xmlBytes, sello, noCert, certB64)
}

// embedSignature agrega los atributos de firma a la raíz del comprobante.
// Falla si el documento ya trae Sello: la firma es una transición one-way y
// un documento no puede firmarse dos veces.
func embedSignature(xmlBytes []byte, sello, noCert, certB64 string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("csd: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("csd: documento sin raíz")
	}
	if root.SelectAttr("Sello") != nil {
		return nil, fmt.Errorf("csd: el documento ya está firmado")
	}
	root.CreateAttr("Sello", sello)
	root.CreateAttr("NoCertificado", noCert)
	root.CreateAttr("Certificado", certB64)

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, fmt.Errorf("csd: serializar XML firmado: %w", err)
	}
	return out.Bytes(), nil
}

var _ pkgcfdi.Signer = (*SelloService)(nil)
