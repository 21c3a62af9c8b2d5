package document

import (
	"time"
)

// Estados del resultado de timbrado devueltos por el PAC (o simulados).
const (
	StampTimbrada  = "TIMBRADA"
	StampRechazada = "RECHAZADA"
	StampError     = "ERROR"
	StampSimulado  = "SIMULADO"
)

// StampResult resultado normalizado del timbrado, común a ambos transportes
// (JSON/HTTP y SOAP). Una llamada siempre produce un resultado definitivo o
// un error; no hay éxito parcial.
type StampResult struct {
	Estado           string
	UUID             string // asignado por el PAC; en retenciones debe coincidir con el UUID local
	XMLTimbrado      string
	FechaTimbrado    time.Time
	SelloSAT         string
	NoCertificadoSAT string
	CodigoError      string
	MensajeError     string
}

// Timbrada informa si el PAC (o el simulador) confirmó el comprobante.
func (r *StampResult) Timbrada() bool {
	return r.Estado == StampTimbrada || r.Estado == StampSimulado
}

// Estados del resultado de cancelación.
const (
	CancelCancelada = "CANCELADA"
	CancelEnProceso = "EN_PROCESO"
	CancelRechazada = "RECHAZADA"
	CancelError     = "ERROR"
)

// MotivoSustitucion motivo de cancelación "01": comprobante emitido con
// errores con relación; exige UUID sustituto.
const MotivoSustitucion = "01"

// CancellationRequest petición de cancelación de un comprobante timbrado.
type CancellationRequest struct {
	UUID          string
	Motivo        string // catálogo c_MotivoCancelacion: 01..04
	UUIDSustituto string // obligatorio si y sólo si Motivo == "01"
	RFCEmisor     string
	RFCReceptor   string
	Total         string
	Tipo          DocumentType
	FechaFactura  time.Time
}

// Validate verifica los invariantes locales antes de contactar al PAC.
func (r *CancellationRequest) Validate() error {
	if r.UUID == "" {
		return &ValidationError{Campo: "uuid", Detalle: "obligatorio"}
	}
	switch r.Motivo {
	case "01", "02", "03", "04":
	default:
		return &ValidationError{Campo: "motivo", Detalle: "debe ser 01, 02, 03 o 04"}
	}
	if r.Motivo == MotivoSustitucion && r.UUIDSustituto == "" {
		return &ValidationError{Campo: "uuidSustituto", Detalle: "obligatorio cuando el motivo es 01 (sustitución)"}
	}
	if r.Motivo != MotivoSustitucion && r.UUIDSustituto != "" {
		return &ValidationError{Campo: "uuidSustituto", Detalle: "sólo aplica con motivo 01"}
	}
	return nil
}

// CancellationResult resultado normalizado de la cancelación.
type CancellationResult struct {
	Estado  string
	Acuse   string // receipt id devuelto por el PAC
	Mensaje string
}
