package signer_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	infracfdi "github.com/facturalo/timbrado-api/internal/infrastructure/cfdi"
	"github.com/facturalo/timbrado-api/internal/infrastructure/cfdi/signer"
)

// serial de 20 dígitos codificado como bytes ASCII, igual que los CSD del SAT.
const testSerialDigits = "30001000000400002434"

// newTestCSD genera un CSD autofirmado para pruebas. notBefore/notAfter
// permiten fabricar certificados vencidos.
func newTestCSD(t *testing.T, notBefore, notAfter time.Time) tls.Certificate {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serial := new(big.Int).SetBytes([]byte(testSerialDigits))
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "ESCUELA KEMPER URGATE"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
}

func vigente(t *testing.T) tls.Certificate {
	return newTestCSD(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
}

const xmlSinFirma = `<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Fecha="2026-03-15T12:30:00" SubTotal="1000.00" Moneda="MXN" Total="1160.00" TipoDeComprobante="I" Exportacion="01" LugarExpedicion="64000">
  <cfdi:Emisor Rfc="EKU9003173C9" Nombre="ESCUELA KEMPER URGATE" RegimenFiscal="601"/>
</cfdi:Comprobante>`

// ── Sign ──────────────────────────────────────────────────────────────────────

func TestSign_EmbebeAtributosDeFirma(t *testing.T) {
	csd := vigente(t)

	out, err := signer.NewSelloService().Sign([]byte(xmlSinFirma), csd)
	require.NoError(t, err)

	xd := etree.NewDocument()
	require.NoError(t, xd.ReadFromBytes(out))
	root := xd.Root()
	require.NotNil(t, root)
	assert.NotEmpty(t, root.SelectAttrValue("Sello", ""))
	assert.NotEmpty(t, root.SelectAttrValue("Certificado", ""))
	assert.Equal(t, testSerialDigits, root.SelectAttrValue("NoCertificado", ""),
		"el NoCertificado debe ser el serial ASCII de 20 dígitos")
}

// TestSign_Determinista mismo XML y misma llave producen el mismo Sello.
func TestSign_Determinista(t *testing.T) {
	csd := vigente(t)
	svc := signer.NewSelloService()

	out1, err1 := svc.Sign([]byte(xmlSinFirma), csd)
	out2, err2 := svc.Sign([]byte(xmlSinFirma), csd)
	require.NoError(t, err1)
	require.NoError(t, err2)

	sello := func(data []byte) string {
		xd := etree.NewDocument()
		require.NoError(t, xd.ReadFromBytes(data))
		return xd.Root().SelectAttrValue("Sello", "")
	}
	assert.Equal(t, sello(out1), sello(out2))
}

// TestSign_VerificableConLlavePublica el Sello debe validar contra la cadena
// original con la llave pública del certificado.
func TestSign_VerificableConLlavePublica(t *testing.T) {
	csd := vigente(t)

	out, err := signer.NewSelloService().Sign([]byte(xmlSinFirma), csd)
	require.NoError(t, err)

	cadena, err := infracfdi.OriginalString(out)
	require.NoError(t, err)

	sello, _, _, err := infracfdi.SignatureAttrs(out)
	require.NoError(t, err)
	require.NotEmpty(t, sello)

	assert.True(t, verificaRSA(t, csd, cadena, sello),
		"el Sello debe corresponder a la cadena original derivada del XML firmado")
}

func TestSign_ErrorSiYaFirmado(t *testing.T) {
	csd := vigente(t)
	svc := signer.NewSelloService()

	firmado, err := svc.Sign([]byte(xmlSinFirma), csd)
	require.NoError(t, err)

	_, err = svc.Sign(firmado, csd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ya está firmado")
}

func TestSign_ErrorSiCertificadoVencido(t *testing.T) {
	vencido := newTestCSD(t, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	_, err := signer.NewSelloService().Sign([]byte(xmlSinFirma), vencido)
	var sigErr *document.SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Contains(t, sigErr.Motivo, "vigencia")
}

func TestSign_ErrorSiLlaveNoCorresponde(t *testing.T) {
	csd := vigente(t)
	otra, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	csd.PrivateKey = otra

	_, err = signer.NewSelloService().Sign([]byte(xmlSinFirma), csd)
	var sigErr *document.SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Contains(t, sigErr.Motivo, "no corresponde")
}

func TestSign_ErrorSiXMLVacio(t *testing.T) {
	_, err := signer.NewSelloService().Sign(nil, vigente(t))
	assert.Error(t, err)
}

// ── ValidateCSD / NoCertificado ───────────────────────────────────────────────

func TestValidateCSD_CertificadoAusente(t *testing.T) {
	_, _, err := signer.ValidateCSD(tls.Certificate{}, time.Now())
	var sigErr *document.SigningError
	require.ErrorAs(t, err, &sigErr)
	assert.Contains(t, sigErr.Motivo, "ausente")
}

func TestNoCertificado_SerialNoNumerico(t *testing.T) {
	csd := newTestCSD(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	csd.Leaf.SerialNumber = big.NewInt(0x1234)

	// bytes no imprimibles: cae a la representación decimal
	assert.Equal(t, "4660", signer.NoCertificado(csd.Leaf))
}

// verificaRSA valida la firma PKCS#1 v1.5 / SHA-256 del sello en Base64.
func verificaRSA(t *testing.T, csd tls.Certificate, cadena, selloB64 string) bool {
	t.Helper()
	pub := csd.Leaf.PublicKey.(*rsa.PublicKey)
	firma, err := base64.StdEncoding.DecodeString(selloB64)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(cadena))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], firma) == nil
}
