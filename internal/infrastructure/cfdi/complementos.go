package cfdi

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/facturalo/timbrado-api/internal/domain/document"
)

// buildComplementoPago arma el CFDI 4.0 tipo P con el complemento Pagos 2.0.
// El comprobante cabecera lleva monto cero, moneda XXX y el concepto fijo
// "84111506 / CP01" que exige el esquema.
func (s *BuilderService) buildComplementoPago(doc *document.TaxDocument) ([]byte, error) {
	if err := validatePago(doc); err != nil {
		return nil, err
	}

	xd, root := newComprobanteRoot(doc)
	root.CreateAttr("xmlns:pago20", NsPago20)
	root.CreateAttr("SubTotal", "0")
	root.CreateAttr("Moneda", "XXX")
	root.CreateAttr("Total", "0")
	root.CreateAttr("TipoDeComprobante", "P")
	root.CreateAttr("Exportacion", "01")
	root.CreateAttr("LugarExpedicion", doc.Emisor.LugarExpedicion)

	writeRelacionados(root, doc)
	writeEmisor(root, doc)

	// Receptor de tipo P: UsoCFDI fijo CP01.
	r := root.CreateElement("cfdi:Receptor")
	r.CreateAttr("Rfc", doc.Receptor.RFC)
	r.CreateAttr("Nombre", doc.Receptor.Nombre)
	r.CreateAttr("DomicilioFiscalReceptor", doc.Receptor.CodigoPostal)
	r.CreateAttr("RegimenFiscalReceptor", doc.Receptor.RegimenFiscal)
	r.CreateAttr("UsoCFDI", "CP01")

	// Concepto fijo del esquema Pagos 2.0.
	conceptos := root.CreateElement("cfdi:Conceptos")
	c := conceptos.CreateElement("cfdi:Concepto")
	c.CreateAttr("ClaveProdServ", "84111506")
	c.CreateAttr("Cantidad", "1")
	c.CreateAttr("ClaveUnidad", "ACT")
	c.CreateAttr("Descripcion", "Pago")
	c.CreateAttr("ValorUnitario", "0")
	c.CreateAttr("Importe", "0")
	c.CreateAttr("ObjetoImp", "01")

	comp := root.CreateElement("cfdi:Complemento")
	pagos := comp.CreateElement("pago20:Pagos")
	pagos.CreateAttr("Version", VersionPagos)

	montoTotal := decimal.Zero
	for _, p := range doc.Pagos {
		montoTotal = montoTotal.Add(p.Monto)
	}
	totales := pagos.CreateElement("pago20:Totales")
	totales.CreateAttr("MontoTotalPagos", money(montoTotal))

	for _, p := range doc.Pagos {
		pe := pagos.CreateElement("pago20:Pago")
		pe.CreateAttr("FechaPago", p.FechaPago.Format(fechaLayout))
		pe.CreateAttr("FormaDePagoP", p.FormaDePagoP)
		pe.CreateAttr("MonedaP", p.MonedaP)
		if p.MonedaP != "MXN" {
			// TipoCambioP obligatorio cuando la moneda del pago no es MXN.
			pe.CreateAttr("TipoCambioP", "1")
		}
		pe.CreateAttr("Monto", money(p.Monto))
		for _, dr := range p.Relacionados {
			de := pe.CreateElement("pago20:DoctoRelacionado")
			de.CreateAttr("IdDocumento", dr.IdDocumento)
			if dr.Serie != "" {
				de.CreateAttr("Serie", dr.Serie)
			}
			if dr.Folio != "" {
				de.CreateAttr("Folio", dr.Folio)
			}
			de.CreateAttr("MonedaDR", dr.MonedaDR)
			de.CreateAttr("NumParcialidad", strconv.Itoa(dr.NumParcialidad))
			de.CreateAttr("ImpSaldoAnt", money(dr.ImpSaldoAnt))
			de.CreateAttr("ImpPagado", money(dr.ImpPagado))
			de.CreateAttr("ImpSaldoInsoluto", money(dr.ImpSaldoInsoluto))
			objeto := dr.ObjetoImpDR
			if objeto == "" {
				objeto = "01"
			}
			de.CreateAttr("ObjetoImpDR", objeto)
		}
	}

	return serialize(xd)
}

// buildTraslado arma el CFDI 4.0 tipo T con el complemento Carta Porte 3.1:
// ubicaciones origen/destino, mercancías con cifras de carga y
// autotransporte con identificación vehicular.
func (s *BuilderService) buildTraslado(doc *document.TaxDocument) ([]byte, error) {
	if err := validateTraslado(doc); err != nil {
		return nil, err
	}

	xd, root := newComprobanteRoot(doc)
	root.CreateAttr("xmlns:cartaporte31", NsCartaPorte)
	root.CreateAttr("SubTotal", "0")
	root.CreateAttr("Moneda", "XXX")
	root.CreateAttr("Total", "0")
	root.CreateAttr("TipoDeComprobante", "T")
	root.CreateAttr("Exportacion", "01")
	root.CreateAttr("LugarExpedicion", doc.Emisor.LugarExpedicion)

	writeEmisor(root, doc)

	r := root.CreateElement("cfdi:Receptor")
	r.CreateAttr("Rfc", doc.Receptor.RFC)
	r.CreateAttr("Nombre", doc.Receptor.Nombre)
	r.CreateAttr("DomicilioFiscalReceptor", doc.Receptor.CodigoPostal)
	r.CreateAttr("RegimenFiscalReceptor", doc.Receptor.RegimenFiscal)
	r.CreateAttr("UsoCFDI", "S01")

	conceptos := root.CreateElement("cfdi:Conceptos")
	for _, m := range doc.CartaPorte.Mercancias {
		c := conceptos.CreateElement("cfdi:Concepto")
		c.CreateAttr("ClaveProdServ", m.BienesTransp)
		c.CreateAttr("Cantidad", cantidad(m.Cantidad))
		c.CreateAttr("ClaveUnidad", m.ClaveUnidad)
		c.CreateAttr("Descripcion", m.Descripcion)
		c.CreateAttr("ValorUnitario", "0")
		c.CreateAttr("Importe", "0")
		c.CreateAttr("ObjetoImp", "01")
	}

	comp := root.CreateElement("cfdi:Complemento")
	cp := comp.CreateElement("cartaporte31:CartaPorte")
	cp.CreateAttr("Version", VersionCartaPorte)
	cp.CreateAttr("TranspInternac", "No")

	ubic := cp.CreateElement("cartaporte31:Ubicaciones")
	for _, u := range doc.CartaPorte.Ubicaciones {
		ue := ubic.CreateElement("cartaporte31:Ubicacion")
		ue.CreateAttr("TipoUbicacion", u.TipoUbicacion)
		ue.CreateAttr("RFCRemitenteDestinatario", u.RFCRemitenteDestinatario)
		ue.CreateAttr("FechaHoraSalidaLlegada", u.FechaHoraSalidaLlegada.Format(fechaLayout))
		if u.TipoUbicacion == "Destino" && u.DistanciaRecorrida != nil {
			ue.CreateAttr("DistanciaRecorrida", u.DistanciaRecorrida.StringFixed(2))
		}
		dom := ue.CreateElement("cartaporte31:Domicilio")
		dom.CreateAttr("CodigoPostal", u.CodigoPostal)
		dom.CreateAttr("Pais", "MEX")
	}

	merc := cp.CreateElement("cartaporte31:Mercancias")
	merc.CreateAttr("PesoBrutoTotal", doc.CartaPorte.PesoBrutoTotal.StringFixed(3))
	merc.CreateAttr("UnidadPeso", doc.CartaPorte.UnidadPeso)
	merc.CreateAttr("NumTotalMercancias", strconv.Itoa(len(doc.CartaPorte.Mercancias)))
	for _, m := range doc.CartaPorte.Mercancias {
		me := merc.CreateElement("cartaporte31:Mercancia")
		me.CreateAttr("BienesTransp", m.BienesTransp)
		me.CreateAttr("Descripcion", m.Descripcion)
		me.CreateAttr("Cantidad", cantidad(m.Cantidad))
		me.CreateAttr("ClaveUnidad", m.ClaveUnidad)
		me.CreateAttr("PesoEnKg", m.PesoEnKg.StringFixed(3))
	}

	at := doc.CartaPorte.Autotransporte
	ate := merc.CreateElement("cartaporte31:Autotransporte")
	ate.CreateAttr("PermSCT", at.PermSCT)
	ate.CreateAttr("NumPermisoSCT", at.NumPermisoSCT)
	idv := ate.CreateElement("cartaporte31:IdentificacionVehicular")
	idv.CreateAttr("ConfigVehicular", at.ConfigVehicular)
	idv.CreateAttr("PlacaVM", at.PlacaVM)
	idv.CreateAttr("AnioModeloVM", strconv.Itoa(at.AnioModeloVM))
	seg := ate.CreateElement("cartaporte31:Seguros")
	seg.CreateAttr("AseguraRespCivil", at.AseguraRespCivil)
	seg.CreateAttr("PolizaRespCivil", at.PolizaRespCivil)

	return serialize(xd)
}

// buildRetenciones arma la constancia de retenciones 2.0 (documento raíz
// propio, no un CFDI). El FolioInt lleva el UUID local que el PAC debe
// confirmar idéntico al timbrar.
func (s *BuilderService) buildRetenciones(doc *document.TaxDocument) ([]byte, error) {
	if err := validateRetencion(doc); err != nil {
		return nil, err
	}
	ret := doc.Retencion

	xd := etree.NewDocument()
	xd.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := xd.CreateElement("retenciones:Retenciones")
	root.CreateAttr("xmlns:retenciones", NsRetenciones)
	root.CreateAttr("xmlns:xsi", nsXsi)
	root.CreateAttr("xsi:schemaLocation", schemaLocationRet)
	root.CreateAttr("Version", VersionRetenciones)
	folioInt := ret.FolioInt
	if folioInt == "" {
		folioInt = ret.UUID
	}
	root.CreateAttr("FolioInt", folioInt)
	root.CreateAttr("FechaExp", doc.Fecha.Format("2006-01-02T15:04:05-07:00"))
	root.CreateAttr("CveRetenc", ret.CveRetenc)
	root.CreateAttr("LugarExpRetenc", doc.Emisor.LugarExpedicion)

	e := root.CreateElement("retenciones:Emisor")
	e.CreateAttr("RfcE", doc.Emisor.RFC)
	e.CreateAttr("NomDenRazSocE", doc.Emisor.Nombre)
	e.CreateAttr("RegimenFiscalE", doc.Emisor.RegimenFiscal)

	r := root.CreateElement("retenciones:Receptor")
	r.CreateAttr("NacionalidadR", "Nacional")
	nac := r.CreateElement("retenciones:Nacional")
	nac.CreateAttr("RfcR", doc.Receptor.RFC)
	nac.CreateAttr("NomDenRazSocR", doc.Receptor.Nombre)
	if doc.Receptor.CodigoPostal != "" {
		nac.CreateAttr("DomicilioFiscalR", doc.Receptor.CodigoPostal)
	}

	p := root.CreateElement("retenciones:Periodo")
	p.CreateAttr("MesIni", strconv.Itoa(ret.MesIni))
	p.CreateAttr("MesFin", strconv.Itoa(ret.MesFin))
	p.CreateAttr("Ejercicio", strconv.Itoa(ret.Ejercicio))

	t := root.CreateElement("retenciones:Totales")
	t.CreateAttr("MontoTotOperacion", money(ret.MontoTotOperacion))
	t.CreateAttr("MontoTotGrav", money(ret.MontoTotGrav))
	t.CreateAttr("MontoTotExent", money(ret.MontoTotExent))
	t.CreateAttr("MontoTotRet", money(ret.MontoTotRet))
	for _, ir := range ret.ImpRetenidos {
		ie := t.CreateElement("retenciones:ImpRetenidos")
		ie.CreateAttr("BaseRet", money(ir.BaseRet))
		ie.CreateAttr("ImpuestoRet", ir.Impuesto)
		ie.CreateAttr("MontoRet", money(ir.MontoRet))
		ie.CreateAttr("TipoPagoRet", ir.TipoPagoRet)
	}

	return serialize(xd)
}
