package pac

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

// Simulator fabrica resultados SIMULADO sin ninguna llamada de red, para
// ambientes sin acceso al PAC. Se activa únicamente por configuración
// explícita (PAC_SIMULADO=true) y cada uso queda en el log: NUNCA es un
// fallback ante fallas de transporte.
type Simulator struct {
	log zerolog.Logger
}

// NewSimulator construye el simulador. Deja constancia en el log de que el
// timbrado real está deshabilitado.
func NewSimulator(log zerolog.Logger) *Simulator {
	log.Warn().Msg("timbrado en modo SIMULADO: no se contactará al PAC")
	return &Simulator{log: log}
}

// Stamp fabrica un StampResult SIMULADO con UUID local y el cuerpo original
// del documento. Las retenciones conservan su UUID local.
func (s *Simulator) Stamp(_ context.Context, signedXML []byte, doc *document.TaxDocument, _ cfdi.Credentials) (*document.StampResult, error) {
	u := uuid.NewString()
	if doc.Retencion != nil && doc.Retencion.UUID != "" {
		u = doc.Retencion.UUID
	}
	s.log.Info().
		Str("tipo", string(doc.Tipo)).
		Str("uuid", u).
		Msg("timbrado simulado")
	return &document.StampResult{
		Estado:        document.StampSimulado,
		UUID:          u,
		XMLTimbrado:   string(signedXML),
		FechaTimbrado: time.Now(),
	}, nil
}

// Cancel fabrica una cancelación aceptada, validando primero los invariantes
// locales igual que el cliente real.
func (s *Simulator) Cancel(_ context.Context, req *document.CancellationRequest, _ cfdi.Credentials) (*document.CancellationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("uuid", req.UUID).
		Str("motivo", req.Motivo).
		Msg("cancelación simulada")
	return &document.CancellationResult{
		Estado:  document.CancelCancelada,
		Acuse:   "SIM-" + uuid.NewString(),
		Mensaje: "cancelación simulada, sin contacto con el PAC",
	}, nil
}

var (
	_ cfdi.Stamper   = (*Simulator)(nil)
	_ cfdi.Canceller = (*Simulator)(nil)
)
