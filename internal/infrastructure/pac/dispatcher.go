package pac

import (
	"context"
	"fmt"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

// Dispatcher selecciona la estrategia de transporte por tipo de documento:
// SOAP para retenciones, JSON/HTTP para todo lo demás. La selección es por
// tipo, no por inspección del XML.
type Dispatcher struct {
	json cfdi.Stamper
	soap cfdi.Stamper
}

// NewDispatcher construye el despachador con ambos transportes.
func NewDispatcher(json, soap cfdi.Stamper) *Dispatcher {
	return &Dispatcher{json: json, soap: soap}
}

// Stamp delega en el transporte correspondiente al tipo del documento.
func (d *Dispatcher) Stamp(ctx context.Context, signedXML []byte, doc *document.TaxDocument, creds cfdi.Credentials) (*document.StampResult, error) {
	switch doc.Tipo {
	case document.TipoRetencion:
		if d.soap == nil {
			return nil, fmt.Errorf("pac: transporte SOAP no configurado para retenciones")
		}
		return d.soap.Stamp(ctx, signedXML, doc, creds)
	case document.TipoIngreso, document.TipoPago, document.TipoTraslado:
		if d.json == nil {
			return nil, fmt.Errorf("pac: transporte JSON no configurado")
		}
		return d.json.Stamp(ctx, signedXML, doc, creds)
	default:
		return nil, fmt.Errorf("pac: %w: %q", document.ErrTipoDesconocido, doc.Tipo)
	}
}

var _ cfdi.Stamper = (*Dispatcher)(nil)
