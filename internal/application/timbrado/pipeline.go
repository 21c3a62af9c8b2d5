// Package timbrado orquesta el ciclo completo de emisión de un comprobante:
//
//	Cálculo de impuestos → XML canónico → Sello CSD → Timbrado PAC
//
// y la cancelación de comprobantes ya timbrados. Cada ejecución es síncrona y
// pertenece a una sola petición de emisión: no hay estado mutable compartido
// entre ejecuciones fuera del store del CSD (sólo lectura). El pipeline no
// reintenta; el caller puede re-invocar el timbrado con el mismo XML firmado
// (la firma es idempotente) pero nunca reenviar un UUID ya confirmado.
package timbrado

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/domain/tax"
	infracfdi "github.com/facturalo/timbrado-api/internal/infrastructure/cfdi"
	"github.com/facturalo/timbrado-api/internal/infrastructure/cfdi/signer"
	pkgcfdi "github.com/facturalo/timbrado-api/pkg/cfdi"
)

// Pipeline ejecuta la emisión y cancelación de comprobantes. El caller
// persiste el documento y el resultado; aquí sólo se transita el estado.
type Pipeline struct {
	engine    *tax.Engine
	builder   *infracfdi.BuilderService
	signer    pkgcfdi.Signer
	csd       *signer.Store
	stamper   pkgcfdi.Stamper
	canceller pkgcfdi.Canceller
	creds     pkgcfdi.Credentials
	log       zerolog.Logger
}

// New construye el pipeline con todas sus dependencias.
func New(
	engine *tax.Engine,
	builder *infracfdi.BuilderService,
	sig pkgcfdi.Signer,
	csd *signer.Store,
	stamper pkgcfdi.Stamper,
	canceller pkgcfdi.Canceller,
	creds pkgcfdi.Credentials,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		engine:    engine,
		builder:   builder,
		signer:    sig,
		csd:       csd,
		stamper:   stamper,
		canceller: canceller,
		creds:     creds,
		log:       log,
	}
}

// IssueResult resultado de la emisión: el XML firmado (reutilizable para
// reintentos del caller) y el resultado del timbrado.
type IssueResult struct {
	SignedXML []byte
	Stamp     *document.StampResult
}

// Issue ejecuta el ciclo completo sobre un documento en borrador. Muta el
// documento (conceptos calculados, totales, firma, estado) y devuelve el
// resultado definitivo. Errores de validación y de firma abortan antes de
// cualquier llamada de red.
func (p *Pipeline) Issue(ctx context.Context, doc *document.TaxDocument) (*IssueResult, error) {
	log := p.log.With().Str("tipo", string(doc.Tipo)).Str("serie", doc.Serie).Str("folio", doc.Folio).Logger()

	// Guardas de ciclo de vida: firmar es one-way y un UUID timbrado no se reenvía.
	switch doc.Estado {
	case document.EstadoTimbrada:
		return nil, document.ErrYaTimbrada
	case document.EstadoBorrador, document.EstadoCalculada, "":
	default:
		return nil, fmt.Errorf("%w: emisión desde estado %q", document.ErrEstadoInvalido, doc.Estado)
	}
	if doc.Firmada() {
		return nil, document.ErrYaFirmada
	}

	// 1. Cálculo de impuestos y conciliación de totales.
	bd, err := p.calculate(doc)
	if err != nil {
		doc.Estado = document.EstadoRechazada
		return nil, err
	}
	doc.Estado = document.EstadoCalculada

	// 2. Construcción del XML canónico (inmutable una vez producido).
	if doc.Tipo == document.TipoRetencion && doc.Retencion != nil && doc.Retencion.UUID == "" {
		// Las retenciones llevan UUID local previo al timbrado.
		doc.Retencion.UUID = uuid.NewString()
	}
	xmlBytes, err := p.builder.Build(doc, bd)
	if err != nil {
		doc.Estado = document.EstadoRechazada
		log.Error().Err(err).Msg("construcción de XML fallida")
		return nil, err
	}
	log.Debug().Int("bytes", len(xmlBytes)).Msg("XML canónico construido")

	// 3. Sello digital con el CSD del proceso.
	cert, err := p.csd.Get()
	if err != nil {
		doc.Estado = document.EstadoRechazada
		return nil, &document.SigningError{Motivo: "cargar CSD", Err: err}
	}
	signedXML, err := p.signer.Sign(xmlBytes, cert)
	if err != nil {
		doc.Estado = document.EstadoRechazada
		log.Error().Err(err).Msg("firma fallida")
		return nil, err
	}
	doc.Firma, err = extractSignature(signedXML)
	if err != nil {
		doc.Estado = document.EstadoRechazada
		return nil, err
	}
	doc.Estado = document.EstadoFirmada
	log.Debug().Str("noCertificado", doc.Firma.NoCertificado).Msg("comprobante firmado")

	// 4. Timbrado.
	result, err := p.stamper.Stamp(ctx, signedXML, doc, p.creds)
	if err != nil {
		doc.Estado = document.EstadoError
		return nil, fmt.Errorf("timbrado: %w", err)
	}

	switch result.Estado {
	case document.StampTimbrada, document.StampSimulado:
		doc.Estado = document.EstadoTimbrada
		log.Info().Str("uuid", result.UUID).Str("estado", result.Estado).Msg("comprobante timbrado")
	case document.StampRechazada:
		doc.Estado = document.EstadoRechazada
		log.Warn().Str("codigo", result.CodigoError).Str("mensaje", result.MensajeError).Msg("comprobante rechazado por el PAC")
	default:
		doc.Estado = document.EstadoError
		log.Error().Str("mensaje", result.MensajeError).Msg("error de transporte en timbrado")
	}

	return &IssueResult{SignedXML: signedXML, Stamp: result}, nil
}

// calculate corre el motor de impuestos y concilia contra los totales
// declarados; si el caller no declaró totales, se adoptan los calculados.
func (p *Pipeline) calculate(doc *document.TaxDocument) (*tax.Breakdown, error) {
	if doc.Tipo != document.TipoIngreso {
		// Pagos, traslados y retenciones no llevan desglose de traslados.
		return tax.NewBreakdown(), nil
	}
	conceptos, bd, err := p.engine.Calculate(doc.Conceptos)
	if err != nil {
		return nil, err
	}
	if doc.Totales.Total.IsZero() && doc.Totales.SubTotal.IsZero() {
		doc.Totales = p.engine.Totales(conceptos, bd)
	} else if err := p.engine.Reconcile(doc.Totales, conceptos, bd); err != nil {
		return nil, err
	}
	doc.Conceptos = conceptos
	return bd, nil
}

// Cancel solicita la cancelación de un comprobante timbrado. La transición
// de estado se valida localmente; los invariantes de la petición (motivo 01
// exige sustituto) los valida el cliente antes de tocar la red.
func (p *Pipeline) Cancel(ctx context.Context, doc *document.TaxDocument, req *document.CancellationRequest) (*document.CancellationResult, error) {
	if doc != nil && !doc.PuedeCancelarse() {
		return nil, fmt.Errorf("%w: cancelación desde estado %q", document.ErrNoTimbrada, doc.Estado)
	}
	if doc != nil {
		doc.Estado = document.EstadoCancelacionSolicitada
	}

	result, err := p.canceller.Cancel(ctx, req, p.creds)
	if err != nil {
		var vErr *document.ValidationError
		if doc != nil && errors.As(err, &vErr) {
			// La petición nunca salió; el comprobante sigue timbrado.
			doc.Estado = document.EstadoTimbrada
		}
		return nil, err
	}

	if doc != nil {
		switch result.Estado {
		case document.CancelCancelada:
			doc.Estado = document.EstadoCancelada
		case document.CancelEnProceso:
			doc.Estado = document.EstadoCancelacionSolicitada
		case document.CancelRechazada:
			doc.Estado = document.EstadoCancelacionRechazada
		default:
			doc.Estado = document.EstadoTimbrada
		}
	}
	p.log.Info().Str("uuid", req.UUID).Str("estado", result.Estado).Msg("cancelación resuelta")
	return result, nil
}

// extractSignature lee los atributos de firma del XML firmado para el bloque
// de firma del documento.
func extractSignature(signedXML []byte) (*document.SignatureBlock, error) {
	sello, noCert, certB64, err := infracfdi.SignatureAttrs(signedXML)
	if err != nil {
		return nil, fmt.Errorf("timbrado: extraer firma: %w", err)
	}
	return &document.SignatureBlock{
		Sello:         sello,
		NoCertificado: noCert,
		Certificado:   certB64,
		DigestAlg:     "SHA256",
	}, nil
}
