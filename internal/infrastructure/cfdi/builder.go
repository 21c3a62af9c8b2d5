// Package cfdi implementa la construcción del XML de los comprobantes
// fiscales (CFDI 4.0, Pagos 2.0, Retenciones 2.0, Carta Porte 3.1) y la
// derivación de la cadena original para la firma.
package cfdi

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/domain/tax"
)

// Namespaces oficiales del SAT.
const (
	NsCFDI        = "http://www.sat.gob.mx/cfd/4"
	NsPago20      = "http://www.sat.gob.mx/Pagos20"
	NsCartaPorte  = "http://www.sat.gob.mx/CartaPorte31"
	NsRetenciones = "http://www.sat.gob.mx/esquemas/retencionpago/2"
	nsXsi         = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationCFDI = "http://www.sat.gob.mx/cfd/4 http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"
	schemaLocationRet  = "http://www.sat.gob.mx/esquemas/retencionpago/2 http://www.sat.gob.mx/esquemas/retencionpago/2/retencionpagov2.xsd"
)

// Versiones de esquema soportadas.
const (
	VersionCFDI        = "4.0"
	VersionRetenciones = "2.0"
	VersionPagos       = "2.0"
	VersionCartaPorte  = "3.1"
)

const fechaLayout = "2006-01-02T15:04:05"

// BuilderService construye la representación canónica del comprobante
// (bytes UTF-8, sin firma). El resultado es inmutable: cualquier corrección
// exige reconstruir desde un nuevo TaxDocument.
type BuilderService struct{}

// NewBuilderService crea el servicio.
func NewBuilderService() *BuilderService {
	return &BuilderService{}
}

// Build genera el XML del comprobante según su tipo y versión de esquema.
// Valida el conjunto de atributos obligatorios del tipo antes de serializar:
// un campo faltante produce MissingRequiredFieldError sin tocar el encoder.
func (s *BuilderService) Build(doc *document.TaxDocument, bd *tax.Breakdown) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cfdi: documento nil")
	}
	switch doc.Tipo {
	case document.TipoIngreso:
		return s.buildComprobante(doc, bd)
	case document.TipoPago:
		return s.buildComplementoPago(doc)
	case document.TipoTraslado:
		return s.buildTraslado(doc)
	case document.TipoRetencion:
		return s.buildRetenciones(doc)
	default:
		return nil, fmt.Errorf("cfdi: %w: %q", document.ErrTipoDesconocido, doc.Tipo)
	}
}

// buildComprobante arma el CFDI 4.0 de ingreso: Comprobante + Emisor +
// Receptor + Conceptos (con impuestos por línea) + Impuestos agregados.
func (s *BuilderService) buildComprobante(doc *document.TaxDocument, bd *tax.Breakdown) ([]byte, error) {
	if err := validateIngreso(doc); err != nil {
		return nil, err
	}
	if bd == nil {
		return nil, &document.MissingRequiredFieldError{Campo: "desglose de impuestos"}
	}

	xd, root := newComprobanteRoot(doc)
	root.CreateAttr("FormaPago", doc.FormaPago)
	root.CreateAttr("SubTotal", money(doc.Totales.SubTotal))
	if doc.Totales.Descuento.IsPositive() {
		root.CreateAttr("Descuento", money(doc.Totales.Descuento))
	}
	root.CreateAttr("Moneda", doc.Moneda)
	root.CreateAttr("Total", money(doc.Totales.Total))
	root.CreateAttr("TipoDeComprobante", "I")
	root.CreateAttr("Exportacion", exportacion(doc))
	root.CreateAttr("MetodoPago", doc.MetodoPago)
	root.CreateAttr("LugarExpedicion", doc.Emisor.LugarExpedicion)

	writeRelacionados(root, doc)
	writeEmisor(root, doc)
	writeReceptor(root, doc)
	writeConceptos(root, doc)
	writeImpuestosGlobales(root, bd)

	return serialize(xd)
}

// newComprobanteRoot crea el documento etree con la raíz cfdi:Comprobante y
// los atributos comunes a todo CFDI 4.0 en el orden del esquema. Los
// atributos de firma (Sello, NoCertificado, Certificado) los agrega el
// motor de firma, nunca el builder.
func newComprobanteRoot(doc *document.TaxDocument) (*etree.Document, *etree.Element) {
	xd := etree.NewDocument()
	xd.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := xd.CreateElement("cfdi:Comprobante")
	root.CreateAttr("xmlns:cfdi", NsCFDI)
	root.CreateAttr("xmlns:xsi", nsXsi)
	root.CreateAttr("xsi:schemaLocation", schemaLocationCFDI)
	root.CreateAttr("Version", VersionCFDI)
	if doc.Serie != "" {
		root.CreateAttr("Serie", doc.Serie)
	}
	if doc.Folio != "" {
		root.CreateAttr("Folio", doc.Folio)
	}
	root.CreateAttr("Fecha", doc.Fecha.Format(fechaLayout))
	return xd, root
}

func writeRelacionados(root *etree.Element, doc *document.TaxDocument) {
	for _, rel := range doc.Relacionados {
		if len(rel.UUIDs) == 0 {
			continue
		}
		relElem := root.CreateElement("cfdi:CfdiRelacionados")
		relElem.CreateAttr("TipoRelacion", rel.TipoRelacion)
		for _, u := range rel.UUIDs {
			r := relElem.CreateElement("cfdi:CfdiRelacionado")
			r.CreateAttr("UUID", u)
		}
	}
}

func writeEmisor(root *etree.Element, doc *document.TaxDocument) {
	e := root.CreateElement("cfdi:Emisor")
	e.CreateAttr("Rfc", doc.Emisor.RFC)
	e.CreateAttr("Nombre", doc.Emisor.Nombre)
	e.CreateAttr("RegimenFiscal", doc.Emisor.RegimenFiscal)
}

func writeReceptor(root *etree.Element, doc *document.TaxDocument) {
	r := root.CreateElement("cfdi:Receptor")
	r.CreateAttr("Rfc", doc.Receptor.RFC)
	r.CreateAttr("Nombre", doc.Receptor.Nombre)
	r.CreateAttr("DomicilioFiscalReceptor", doc.Receptor.CodigoPostal)
	r.CreateAttr("RegimenFiscalReceptor", doc.Receptor.RegimenFiscal)
	r.CreateAttr("UsoCFDI", doc.Receptor.UsoCFDI)
}

func writeConceptos(root *etree.Element, doc *document.TaxDocument) {
	conceptos := root.CreateElement("cfdi:Conceptos")
	for _, li := range doc.Conceptos {
		c := conceptos.CreateElement("cfdi:Concepto")
		c.CreateAttr("ClaveProdServ", li.ClaveProdServ)
		if li.NoIdentificacion != "" {
			c.CreateAttr("NoIdentificacion", li.NoIdentificacion)
		}
		c.CreateAttr("Cantidad", cantidad(li.Cantidad))
		c.CreateAttr("ClaveUnidad", li.ClaveUnidad)
		c.CreateAttr("Descripcion", li.Descripcion)
		c.CreateAttr("ValorUnitario", money(li.ValorUnitario))
		c.CreateAttr("Importe", money(li.Importe))
		if li.Descuento.IsPositive() {
			c.CreateAttr("Descuento", money(li.Descuento))
		}
		c.CreateAttr("ObjetoImp", li.ObjetoImp)

		if li.ObjetoImp == "02" {
			writeImpuestosConcepto(c, li)
		}
	}
}

// writeImpuestosConcepto desglosa los traslados de una línea. Una línea
// exenta lleva TipoFactor="Exento" sin TasaOCuota ni Importe; tasa cero se
// declara explícita con TasaOCuota="0.000000".
func writeImpuestosConcepto(c *etree.Element, li document.LineItem) {
	imp := c.CreateElement("cfdi:Impuestos")
	tras := imp.CreateElement("cfdi:Traslados")

	base := li.Base()
	switch {
	case li.TasaIEPS != nil:
		t := tras.CreateElement("cfdi:Traslado")
		t.CreateAttr("Base", money(base))
		t.CreateAttr("Impuesto", tax.ImpuestoIEPS)
		t.CreateAttr("TipoFactor", "Tasa")
		t.CreateAttr("TasaOCuota", tax.FormatTasa(*li.TasaIEPS))
		t.CreateAttr("Importe", money(li.ImporteIEPS))
	case li.CuotaIEPS != nil:
		t := tras.CreateElement("cfdi:Traslado")
		t.CreateAttr("Base", cantidad(li.Cantidad))
		t.CreateAttr("Impuesto", tax.ImpuestoIEPS)
		t.CreateAttr("TipoFactor", "Cuota")
		t.CreateAttr("TasaOCuota", tax.FormatTasa(*li.CuotaIEPS))
		t.CreateAttr("Importe", money(li.ImporteIEPS))
	}

	baseIVA := base.Add(li.ImporteIEPS)
	t := tras.CreateElement("cfdi:Traslado")
	t.CreateAttr("Base", money(baseIVA))
	t.CreateAttr("Impuesto", tax.ImpuestoIVA)
	if li.TasaIVA == nil {
		t.CreateAttr("TipoFactor", "Exento")
		return
	}
	t.CreateAttr("TipoFactor", "Tasa")
	t.CreateAttr("TasaOCuota", tax.FormatTasa(*li.TasaIVA))
	t.CreateAttr("Importe", money(li.ImporteIVA))
}

// writeImpuestosGlobales agrega el nodo cfdi:Impuestos del comprobante con
// los traslados agrupados por impuesto y tasa (los buckets del desglose).
// Los buckets exentos se agrupan sin TasaOCuota ni Importe.
func writeImpuestosGlobales(root *etree.Element, bd *tax.Breakdown) {
	imp := root.CreateElement("cfdi:Impuestos")
	imp.CreateAttr("TotalImpuestosTrasladados", money(bd.TotalImpuestos()))
	tras := imp.CreateElement("cfdi:Traslados")
	for _, bk := range bd.Buckets() {
		t := tras.CreateElement("cfdi:Traslado")
		t.CreateAttr("Base", money(bk.Base))
		t.CreateAttr("Impuesto", bk.Impuesto)
		if bk.TasaOCuota == tax.BucketExento {
			t.CreateAttr("TipoFactor", "Exento")
			continue
		}
		t.CreateAttr("TipoFactor", "Tasa")
		t.CreateAttr("TasaOCuota", bk.TasaOCuota)
		t.CreateAttr("Importe", money(bk.Importe))
	}
}

func exportacion(doc *document.TaxDocument) string {
	if doc.Exportacion == "" {
		return "01"
	}
	return doc.Exportacion
}

func serialize(xd *etree.Document) ([]byte, error) {
	xd.Indent(2)
	out, err := xd.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("cfdi: serializar XML: %w", err)
	}
	return out, nil
}

// money formatea montos con la precisión fija de la moneda (2 decimales,
// sin recorte de ceros ni notación científica).
func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// cantidad formatea cantidades con 6 decimales fijos.
func cantidad(d decimal.Decimal) string {
	return d.StringFixed(6)
}
