// Package cfdi contiene catálogos y validaciones alineados a los Anexos
// Técnicos del SAT para CFDI 4.0, Retenciones 2.0 y Carta Porte 3.1, además
// de los puertos (interfaces) del pipeline de timbrado.
package cfdi

// =============================================================================
// Catálogo c_TipoDeComprobante
// =============================================================================

const (
	ComprobanteIngreso  = "I" // Ingreso (factura)
	ComprobanteEgreso   = "E" // Egreso (nota de crédito)
	ComprobanteTraslado = "T" // Traslado (Carta Porte)
	ComprobantePago     = "P" // Complemento de pago
	ComprobanteNomina   = "N" // Nómina
)

// =============================================================================
// Catálogo c_Impuesto
// =============================================================================

const (
	ImpuestoISR  = "001" // ISR (sólo retenciones)
	ImpuestoIVA  = "002" // IVA
	ImpuestoIEPS = "003" // IEPS
)

// =============================================================================
// Catálogo c_ObjetoImp
// =============================================================================

const (
	ObjetoImpNoObjeto   = "01" // No objeto de impuesto
	ObjetoImpSiObjeto   = "02" // Sí objeto de impuesto
	ObjetoImpNoDesglose = "03" // Sí objeto, no obligado al desglose
)

// =============================================================================
// Catálogo c_FormaPago (códigos de uso frecuente)
// =============================================================================

const (
	FormaPagoEfectivo      = "01"
	FormaPagoChequeNominal = "02"
	FormaPagoTransferencia = "03"
	FormaPagoTarjetaCredito = "04"
	FormaPagoTarjetaDebito = "28"
	FormaPagoPorDefinir    = "99" // obligatorio en método PPD
)

// =============================================================================
// Catálogo c_MetodoPago
// =============================================================================

const (
	MetodoPagoUnaExhibicion = "PUE" // Pago en una sola exhibición
	MetodoPagoParcialidades = "PPD" // Pago en parcialidades o diferido
)

// =============================================================================
// Catálogo c_UsoCFDI (códigos de uso frecuente)
// =============================================================================

const (
	UsoGastosGenerales   = "G03"
	UsoAdquisicionMercancias = "G01"
	UsoSinEfectosFiscales = "S01"
	UsoPagos             = "CP01" // obligatorio en comprobantes tipo P
)

// =============================================================================
// Catálogo c_Exportacion
// =============================================================================

const (
	ExportacionNoAplica   = "01"
	ExportacionDefinitiva = "02"
)

// =============================================================================
// Catálogo c_RegimenFiscal (códigos de uso frecuente)
// =============================================================================

const (
	RegimenGeneralLeyPM        = "601" // General de Ley Personas Morales
	RegimenPersonasFisicasAct  = "612" // PF con actividades empresariales
	RegimenSinObligaciones     = "616" // Sin obligaciones fiscales
	RegimenSimplificadoConfianza = "626" // RESICO
)

// ValidRegimenFiscalCodes códigos de régimen fiscal aceptados por el builder.
var ValidRegimenFiscalCodes = map[string]bool{
	"601": true, "603": true, "605": true, "606": true, "608": true,
	"610": true, "611": true, "612": true, "614": true, "616": true,
	"620": true, "621": true, "622": true, "623": true, "624": true,
	"625": true, "626": true,
}

// =============================================================================
// Catálogo c_MotivoCancelacion
// =============================================================================

const (
	MotivoErroresConRelacion = "01" // Comprobante emitido con errores con relación (exige sustituto)
	MotivoErroresSinRelacion = "02" // Comprobante emitido con errores sin relación
	MotivoNoSeLlevoACabo     = "03" // No se llevó a cabo la operación
	MotivoFacturaGlobal      = "04" // Operación nominativa relacionada en factura global
)

// =============================================================================
// Catálogo c_TipoRelacion (códigos de uso frecuente)
// =============================================================================

const (
	RelacionNotaCredito = "01" // Nota de crédito de los documentos relacionados
	RelacionSustitucion = "04" // Sustitución de los CFDI previos
)

// =============================================================================
// Catálogo c_ClaveUnidad (códigos de uso frecuente)
// =============================================================================

const (
	UnidadPieza         = "H87" // Pieza
	UnidadServicio      = "E48" // Unidad de servicio
	UnidadActividad     = "ACT" // Actividad
	UnidadKilogramo     = "KGM"
	UnidadLitro         = "LTR"
	UnidadNoAplica      = "XNA" // se usa en retenciones
)

// ValidMeasurementUnitCodes códigos de unidad válidos para las líneas.
var ValidMeasurementUnitCodes = map[string]bool{
	UnidadPieza: true, UnidadServicio: true, UnidadActividad: true,
	UnidadKilogramo: true, UnidadLitro: true, UnidadNoAplica: true,
	"MTR": true, "MTK": true, "MTQ": true, "HUR": true, "DAY": true,
}

// =============================================================================
// Catálogo c_CveRetenc (códigos de uso frecuente)
// =============================================================================

const (
	RetencServiciosProfesionales = "01"
	RetencRegalias               = "02"
	RetencArrendamiento          = "14"
	RetencEnajenacionAcciones    = "24"
)

// RFC genérico para operaciones con público en general.
const RFCPublicoGeneral = "XAXX010101000"

// RFC genérico para residentes en el extranjero.
const RFCExtranjero = "XEXX010101000"
