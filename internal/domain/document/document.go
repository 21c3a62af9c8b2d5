// Package document define el modelo de dominio del comprobante fiscal (CFDI)
// y su ciclo de vida dentro del pipeline de timbrado.
package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType identifica el tipo de comprobante fiscal.
type DocumentType string

const (
	// TipoIngreso factura de ingreso (CFDI 4.0, TipoDeComprobante I).
	TipoIngreso DocumentType = "I"
	// TipoPago complemento de pago (CFDI 4.0 tipo P + Pagos 2.0).
	TipoPago DocumentType = "P"
	// TipoRetencion constancia de retenciones (Retenciones 2.0, timbrado SOAP).
	TipoRetencion DocumentType = "RET"
	// TipoTraslado CFDI de traslado con complemento Carta Porte 3.1.
	TipoTraslado DocumentType = "T"
)

// DocumentStatus estados del ciclo de vida del comprobante.
// Borrador → Calculada → Firmada → Timbrada | Rechazada | Error.
// Timbrada → CancelacionSolicitada → Cancelada | CancelacionRechazada.
type DocumentStatus string

const (
	EstadoBorrador              DocumentStatus = "BORRADOR"
	EstadoCalculada             DocumentStatus = "CALCULADA"
	EstadoFirmada               DocumentStatus = "FIRMADA"
	EstadoTimbrada              DocumentStatus = "TIMBRADA"
	EstadoRechazada             DocumentStatus = "RECHAZADA"
	EstadoError                 DocumentStatus = "ERROR"
	EstadoCancelacionSolicitada DocumentStatus = "CANCELACION_SOLICITADA"
	EstadoCancelada             DocumentStatus = "CANCELADA"
	EstadoCancelacionRechazada  DocumentStatus = "CANCELACION_RECHAZADA"
)

// Emisor datos fiscales del emisor del comprobante.
type Emisor struct {
	RFC             string
	Nombre          string
	RegimenFiscal   string // catálogo SAT c_RegimenFiscal (ej: 601)
	LugarExpedicion string // código postal de expedición
}

// Receptor datos fiscales del receptor.
type Receptor struct {
	RFC           string
	Nombre        string
	CodigoPostal  string // DomicilioFiscalReceptor (CFDI 4.0)
	RegimenFiscal string // c_RegimenFiscal del receptor (obligatorio en 4.0)
	UsoCFDI       string // catálogo c_UsoCFDI (ej: G03)
}

// LineItem un concepto del comprobante. Pertenece a un único TaxDocument.
type LineItem struct {
	ClaveProdServ    string // catálogo c_ClaveProdServ (8 dígitos)
	NoIdentificacion string
	Descripcion      string
	ClaveUnidad      string // catálogo c_ClaveUnidad (ej: H87, E48)
	Cantidad         decimal.Decimal
	ValorUnitario    decimal.Decimal
	Descuento        decimal.Decimal
	Importe          decimal.Decimal // Cantidad * ValorUnitario (antes de descuento)
	ObjetoImp        string          // c_ObjetoImp: 01 no objeto, 02 sí objeto, 03 sí objeto no desglose

	// TasaIVA nil = exento; de lo contrario fracción (0.16, 0.08, 0).
	TasaIVA *decimal.Decimal
	// IEPS opcional: tasa (fracción) o cuota fija por unidad. A lo más uno.
	TasaIEPS  *decimal.Decimal
	CuotaIEPS *decimal.Decimal

	// Calculados por el motor de impuestos.
	ImporteIVA  decimal.Decimal
	ImporteIEPS decimal.Decimal
}

// Base gravable del concepto: Importe - Descuento.
func (li LineItem) Base() decimal.Decimal {
	return li.Importe.Sub(li.Descuento)
}

// Totales montos agregados del comprobante.
type Totales struct {
	SubTotal  decimal.Decimal // Σ Importe de conceptos
	Descuento decimal.Decimal
	Impuestos decimal.Decimal // Σ impuestos trasladados
	Total     decimal.Decimal
}

// Relation liga el comprobante con otros UUID (sustitución, pagos, etc.).
type Relation struct {
	TipoRelacion string   // catálogo c_TipoRelacion (04 = sustitución)
	UUIDs        []string
}

// SignatureBlock metadatos de la firma digital. Presente sólo desde EstadoFirmada.
type SignatureBlock struct {
	Certificado   string // certificado DER en Base64 (atributo Certificado)
	NoCertificado string // serial de 20 dígitos del CSD
	DigestAlg     string // "SHA256"
	Sello         string // firma RSA en Base64 (atributo Sello)
}

// PagoDoctoRelacionado documento saldado por un pago (Pagos 2.0).
type PagoDoctoRelacionado struct {
	IdDocumento      string // UUID del CFDI pagado
	Serie            string
	Folio            string
	MonedaDR         string
	NumParcialidad   int
	ImpSaldoAnt      decimal.Decimal
	ImpPagado        decimal.Decimal
	ImpSaldoInsoluto decimal.Decimal
	ObjetoImpDR      string
}

// Pago un pago recibido dentro del complemento Pagos 2.0.
type Pago struct {
	FechaPago    time.Time
	FormaDePagoP string // c_FormaPago (03 = transferencia)
	MonedaP      string
	Monto        decimal.Decimal
	Relacionados []PagoDoctoRelacionado
}

// CartaPorteUbicacion origen o destino del traslado de mercancías.
type CartaPorteUbicacion struct {
	TipoUbicacion            string // "Origen" | "Destino"
	RFCRemitenteDestinatario string
	FechaHoraSalidaLlegada   time.Time
	CodigoPostal             string
	DistanciaRecorrida       *decimal.Decimal // sólo destino
}

// CartaPorteMercancia un bien transportado.
type CartaPorteMercancia struct {
	BienesTransp string // c_ClaveProdServCP
	Descripcion  string
	Cantidad     decimal.Decimal
	ClaveUnidad  string
	PesoEnKg     decimal.Decimal
}

// CartaPorteAutotransporte identificación del vehículo y permiso SCT.
type CartaPorteAutotransporte struct {
	PermSCT          string
	NumPermisoSCT    string
	ConfigVehicular  string // c_ConfigAutotransporte (ej: VL, C2)
	PlacaVM          string
	AnioModeloVM     int
	AseguraRespCivil string
	PolizaRespCivil  string
}

// CartaPorte datos del complemento Carta Porte 3.1.
type CartaPorte struct {
	Ubicaciones    []CartaPorteUbicacion
	Mercancias     []CartaPorteMercancia
	PesoBrutoTotal decimal.Decimal
	UnidadPeso     string // c_ClaveUnidadPeso (ej: KGM)
	Autotransporte *CartaPorteAutotransporte
}

// RetencionData datos de una constancia de retenciones (Retenciones 2.0).
type RetencionData struct {
	CveRetenc         string // catálogo c_CveRetenc (ej: 01 servicios profesionales)
	FolioInt          string
	MesIni            int
	MesFin            int
	Ejercicio         int
	MontoTotOperacion decimal.Decimal
	MontoTotGrav      decimal.Decimal
	MontoTotExent     decimal.Decimal
	MontoTotRet       decimal.Decimal
	// ImpRetenidos desglose por tipo de impuesto (01 ISR, 02 IVA).
	ImpRetenidos []ImpRetenido
	// UUID local generado antes del timbrado; el PAC debe confirmarlo idéntico.
	UUID string
}

// ImpRetenido un impuesto retenido dentro de la constancia.
type ImpRetenido struct {
	BaseRet     decimal.Decimal
	Impuesto    string // 01 ISR, 02 IVA
	MontoRet    decimal.Decimal
	TipoPagoRet string // "01" pago definitivo, "02" pago provisional
}

// TaxDocument representación canónica en memoria de un comprobante fiscal.
// Es propiedad exclusiva del pipeline hasta que el caller persiste el resultado.
type TaxDocument struct {
	Tipo        DocumentType
	Version     string // "4.0" para CFDI, "2.0" para retenciones
	Serie       string
	Folio       string
	Fecha       time.Time
	Moneda      string
	FormaPago   string // c_FormaPago (sólo ingreso)
	MetodoPago  string // PUE | PPD (sólo ingreso)
	Exportacion string // c_Exportacion ("01" no aplica)

	Emisor       Emisor
	Receptor     Receptor
	Conceptos    []LineItem
	Totales      Totales
	Relacionados []Relation

	// Complementos según Tipo.
	Pagos      []Pago
	CartaPorte *CartaPorte
	Retencion  *RetencionData

	Estado DocumentStatus
	Firma  *SignatureBlock
}

// Firmada informa si el documento ya tiene firma embebida.
func (d *TaxDocument) Firmada() bool {
	return d.Firma != nil
}

// PuedeFirmarse valida la transición Calculada → Firmada (la firma es one-way).
func (d *TaxDocument) PuedeFirmarse() bool {
	return d.Estado == EstadoCalculada && d.Firma == nil
}

// PuedeTimbrarse valida que el documento esté firmado y no timbrado.
// Reenviar un UUID ya confirmado por el PAC es error del caller, no se reintenta.
func (d *TaxDocument) PuedeTimbrarse() bool {
	return d.Estado == EstadoFirmada
}

// PuedeCancelarse la cancelación sólo procede sobre documentos timbrados.
func (d *TaxDocument) PuedeCancelarse() bool {
	return d.Estado == EstadoTimbrada
}
