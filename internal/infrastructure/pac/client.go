// Package pac implementa los clientes de timbrado y cancelación contra el
// proveedor autorizado de certificación (PAC): transporte JSON/HTTP para
// comprobantes generales, SOAP para constancias de retenciones, y un
// simulador explícito para ambientes sin acceso al PAC.
package pac

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

// respuestas del PAC acotadas a 4 MB (el XML timbrado viene en el body).
const maxResponseBytes = 4 << 20

// Options configuración común de los clientes PAC.
type Options struct {
	BaseURL string
	// Timeout por llamada; el caller puede acotar más con el context.
	Timeout time.Duration
}

// JSONClient implementa cfdi.Stamper sobre el endpoint JSON/HTTP del PAC.
// No reintenta: las fallas de transporte se normalizan a Estado ERROR y la
// política de reintento es decisión del caller.
type JSONClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewJSONClient construye el cliente JSON/HTTP.
func NewJSONClient(opts Options) *JSONClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JSONClient{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// stampRequest body de POST {base}/stamp.
type stampRequest struct {
	UUID         string `json:"uuid,omitempty"`
	XMLContent   string `json:"xmlContent"` // XML firmado en Base64
	RFCEmisor    string `json:"rfcEmisor"`
	RFCReceptor  string `json:"rfcReceptor"`
	Total        string `json:"total"`
	Tipo         string `json:"tipo"`
	FechaFactura string `json:"fechaFactura"`
	Serie        string `json:"serie,omitempty"`
	Folio        string `json:"folio,omitempty"`
	Usuario      string `json:"usuario"`
	Password     string `json:"password"`
}

// stampResponse respuesta del PAC (éxito o rechazo de negocio).
type stampResponse struct {
	OK             bool   `json:"ok"`
	Status         string `json:"status"`
	UUID           string `json:"uuid"`
	XMLTimbrado    string `json:"xmlTimbrado"`
	CadenaOriginal string `json:"cadenaOriginal"`
	SelloDigital   string `json:"selloDigital"`
	Certificado    string `json:"certificado"`
	FechaTimbrado  string `json:"fechaTimbrado"`
	ErrorCode      string `json:"errorCode"`
	Message        string `json:"message"`
}

// Stamp envía el comprobante firmado al PAC y normaliza la respuesta.
func (c *JSONClient) Stamp(ctx context.Context, signedXML []byte, doc *document.TaxDocument, creds cfdi.Credentials) (*document.StampResult, error) {
	body := stampRequest{
		XMLContent:   base64.StdEncoding.EncodeToString(signedXML),
		RFCEmisor:    doc.Emisor.RFC,
		RFCReceptor:  doc.Receptor.RFC,
		Total:        doc.Totales.Total.StringFixed(2),
		Tipo:         string(doc.Tipo),
		FechaFactura: doc.Fecha.Format("2006-01-02T15:04:05"),
		Serie:        doc.Serie,
		Folio:        doc.Folio,
		Usuario:      creds.Usuario,
		Password:     creds.Password,
	}

	raw, err := c.post(ctx, c.baseURL+"/stamp", body)
	if err != nil {
		// Falla de transporte: resultado ERROR, recuperable por reintento del caller.
		return transportError("timbrado", err), nil
	}

	var resp stampResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return transportError("timbrado", fmt.Errorf("respuesta no parseable: %w", err)), nil
	}

	if !resp.OK {
		return &document.StampResult{
			Estado:       document.StampRechazada,
			CodigoError:  resp.ErrorCode,
			MensajeError: resp.Message,
		}, nil
	}

	result := &document.StampResult{
		Estado:      document.StampTimbrada,
		UUID:        resp.UUID,
		XMLTimbrado: resp.XMLTimbrado,
		SelloSAT:    resp.SelloDigital,
	}
	if resp.FechaTimbrado != "" {
		if t, perr := time.Parse("2006-01-02T15:04:05", resp.FechaTimbrado); perr == nil {
			result.FechaTimbrado = t
		}
	}
	return result, nil
}

func (c *JSONClient) post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("pac: serializar petición: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("pac: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pac: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pac: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("pac: leer respuesta: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("pac: HTTP %d: %s", resp.StatusCode, truncate(raw, 512))
	}
	return raw, nil
}

func transportError(op string, err error) *document.StampResult {
	return &document.StampResult{
		Estado:       document.StampError,
		MensajeError: fmt.Sprintf("%s: %v", op, err),
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}

var _ cfdi.Stamper = (*JSONClient)(nil)
