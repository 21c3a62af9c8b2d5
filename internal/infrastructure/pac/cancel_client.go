package pac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

// CancelClient implementa cfdi.Canceller sobre el endpoint JSON/HTTP del PAC.
type CancelClient struct {
	*JSONClient
}

// NewCancelClient construye el cliente de cancelación.
func NewCancelClient(opts Options) *CancelClient {
	return &CancelClient{JSONClient: NewJSONClient(opts)}
}

// cancelRequest body de POST {base}/cancel.
type cancelRequest struct {
	UUID            string `json:"uuid"`
	Motivo          string `json:"motivo"`
	RFCEmisor       string `json:"rfcEmisor"`
	RFCReceptor     string `json:"rfcReceptor"`
	Total           string `json:"total"`
	Tipo            string `json:"tipo"`
	FechaFactura    string `json:"fechaFactura"`
	PublicoGeneral  bool   `json:"publicoGeneral"`
	TieneRelaciones bool   `json:"tieneRelaciones"`
	UUIDSustituto   string `json:"uuidSustituto,omitempty"`
	Usuario         string `json:"usuario"`
	Password        string `json:"password"`
}

// cancelResponse respuesta del PAC a la cancelación.
type cancelResponse struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	ReceiptID string `json:"receiptId"`
	Message   string `json:"message"`
}

// Cancel solicita la cancelación del comprobante. Los invariantes locales
// (motivo de sustitución exige UUID sustituto) se validan ANTES de contactar
// al PAC: una violación produce ValidationError sin llamada de red.
func (c *CancelClient) Cancel(ctx context.Context, req *document.CancellationRequest, creds cfdi.Credentials) (*document.CancellationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := cancelRequest{
		UUID:            req.UUID,
		Motivo:          req.Motivo,
		RFCEmisor:       req.RFCEmisor,
		RFCReceptor:     req.RFCReceptor,
		Total:           req.Total,
		Tipo:            string(req.Tipo),
		FechaFactura:    req.FechaFactura.Format("2006-01-02T15:04:05"),
		PublicoGeneral:  req.RFCReceptor == cfdi.RFCPublicoGeneral,
		TieneRelaciones: req.UUIDSustituto != "",
		UUIDSustituto:   req.UUIDSustituto,
		Usuario:         creds.Usuario,
		Password:        creds.Password,
	}

	raw, err := c.post(ctx, c.baseURL+"/cancel", body)
	if err != nil {
		return &document.CancellationResult{
			Estado:  document.CancelError,
			Mensaje: fmt.Sprintf("cancelación: %v", err),
		}, nil
	}

	var resp cancelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return &document.CancellationResult{
			Estado:  document.CancelError,
			Mensaje: fmt.Sprintf("cancelación: respuesta no parseable: %v", err),
		}, nil
	}

	estado := document.CancelRechazada
	if resp.OK {
		estado = document.CancelCancelada
		// El SAT puede dejar la cancelación pendiente de aceptación del receptor.
		if resp.Status == "EN_PROCESO" {
			estado = document.CancelEnProceso
		}
	}
	return &document.CancellationResult{
		Estado:  estado,
		Acuse:   resp.ReceiptID,
		Mensaje: resp.Message,
	}, nil
}

var _ cfdi.Canceller = (*CancelClient)(nil)
