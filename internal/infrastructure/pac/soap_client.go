package pac

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

const (
	soapNS          = "http://schemas.xmlsoap.org/soap/envelope/"
	soapActionStamp = "stamp"
)

// SOAPClient implementa cfdi.Stamper para constancias de retenciones: el PAC
// expone el timbrado de retenciones sólo por SOAP. El XML firmado viaja en
// Base64 dentro del envelope junto con usuario y contraseña.
type SOAPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewSOAPClient construye el cliente SOAP. El timeout es generoso porque el
// PAC puede tardar varios segundos en responder.
func NewSOAPClient(opts Options) *SOAPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SOAPClient{
		endpoint:   opts.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Estructuras SOAP de petición ──────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"s:Envelope"`
	XmlnsS  string     `xml:"xmlns:s,attr"`
	Header  soapHeader `xml:"s:Header"`
	Body    soapBody   `xml:"s:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// stampBody cuerpo de la operación stamp.
type stampBody struct {
	XMLName  xml.Name `xml:"stamp"`
	XML      string   `xml:"xml"` // XML firmado en Base64
	Username string   `xml:"username"`
	Password string   `xml:"password"`
}

// ── Estructuras SOAP de respuesta ─────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	StampResponse *stampSOAPResponse `xml:"stampResponse"`
	Fault         *soapFault         `xml:"Fault"`
}

type stampSOAPResponse struct {
	Result stampSOAPResult `xml:"stampResult"`
}

type stampSOAPResult struct {
	XML              string          `xml:"xml"`
	UUID             string          `xml:"UUID"`
	Fecha            string          `xml:"Fecha"`
	CodEstatus       string          `xml:"CodEstatus"`
	SatSeal          string          `xml:"SatSeal"`
	NoCertificadoSAT string          `xml:"NoCertificadoSAT"`
	Incidencias      []soapIncidencia `xml:"Incidencias>Incidencia"`
}

type soapIncidencia struct {
	IdIncidencia      string `xml:"IdIncidencia"`
	CodigoError       string `xml:"CodigoError"`
	MensajeIncidencia string `xml:"MensajeIncidencia"`
	ExtraInfo         string `xml:"ExtraInfo"`
	NoCertificadoPac  string `xml:"NoCertificadoPac"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// Stamp envía la constancia firmada por SOAP y normaliza la respuesta.
// Las retenciones llevan UUID generado localmente: el confirmado por el PAC
// debe coincidir, de lo contrario el resultado es ERROR.
func (c *SOAPClient) Stamp(ctx context.Context, signedXML []byte, doc *document.TaxDocument, creds cfdi.Credentials) (*document.StampResult, error) {
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		Body: soapBody{Content: &stampBody{
			XML:      base64.StdEncoding.EncodeToString(signedXML),
			Username: creds.Usuario,
			Password: creds.Password,
		}},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionStamp)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return transportError("timbrado retenciones", fmt.Errorf("timeout o cancelación: %w", ctx.Err())), nil
		}
		return transportError("timbrado retenciones", err), nil
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError("timbrado retenciones", fmt.Errorf("leer respuesta: %w", err)), nil
	}

	return c.parseResponse(rawBody, doc)
}

// parseResponse desempaqueta la respuesta SOAP: éxito (stampResult con UUID y
// sello SAT) o rechazo de negocio (bloque Incidencias con código y mensaje
// del PAC, que se propagan tal cual).
func (c *SOAPClient) parseResponse(rawBody []byte, doc *document.TaxDocument) (*document.StampResult, error) {
	dec := xml.NewDecoder(bytes.NewReader(rawBody))
	// Algunos PAC responden ISO-8859-1; el CharsetReader resuelve el
	// encoding declarado en el prólogo.
	dec.CharsetReader = charsetReader

	var envResp soapResponseEnvelope
	if err := dec.Decode(&envResp); err != nil {
		return transportError("timbrado retenciones",
			fmt.Errorf("respuesta SOAP no parseable: %s", truncate(rawBody, 512))), nil
	}

	if envResp.Body.Fault != nil {
		return transportError("timbrado retenciones",
			fmt.Errorf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString)), nil
	}
	if envResp.Body.StampResponse == nil {
		return transportError("timbrado retenciones",
			fmt.Errorf("respuesta SOAP vacía o inesperada: %s", truncate(rawBody, 512))), nil
	}

	result := envResp.Body.StampResponse.Result

	// Rechazo de negocio: se conserva el código y mensaje del PAC.
	if len(result.Incidencias) > 0 {
		inc := result.Incidencias[0]
		msg := inc.MensajeIncidencia
		if inc.ExtraInfo != "" {
			msg += " (" + inc.ExtraInfo + ")"
		}
		return &document.StampResult{
			Estado:       document.StampRechazada,
			CodigoError:  inc.CodigoError,
			MensajeError: msg,
		}, nil
	}

	// El UUID confirmado debe coincidir con el generado localmente.
	if doc.Retencion != nil && doc.Retencion.UUID != "" &&
		!strings.EqualFold(result.UUID, doc.Retencion.UUID) {
		return transportError("timbrado retenciones",
			fmt.Errorf("el PAC confirmó UUID %s distinto del local %s", result.UUID, doc.Retencion.UUID)), nil
	}

	out := &document.StampResult{
		Estado:           document.StampTimbrada,
		UUID:             result.UUID,
		XMLTimbrado:      result.XML,
		SelloSAT:         result.SatSeal,
		NoCertificadoSAT: result.NoCertificadoSAT,
	}
	if result.Fecha != "" {
		if t, perr := time.Parse("2006-01-02T15:04:05", result.Fecha); perr == nil {
			out.FechaTimbrado = t
		}
	}
	return out, nil
}

// charsetReader resuelve encodings no UTF-8 declarados en el prólogo XML
// (típicamente ISO-8859-1) usando el índice IANA.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("soap: charset %q no soportado", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

var _ cfdi.Stamper = (*SOAPClient)(nil)
