package cfdi

import (
	"github.com/facturalo/timbrado-api/internal/domain/document"
	pkgcfdi "github.com/facturalo/timbrado-api/pkg/cfdi"
)

// Conjuntos de campos obligatorios por tipo/versión. Se validan completos
// antes de serializar: el validador remoto trata atributos vacíos como
// malformados, así que nunca se emiten.

func validateComunes(doc *document.TaxDocument) error {
	switch {
	case doc.Fecha.IsZero():
		return &document.MissingRequiredFieldError{Campo: "fecha de emisión"}
	case doc.Emisor.RFC == "":
		return &document.MissingRequiredFieldError{Campo: "emisor.rfc"}
	case doc.Emisor.Nombre == "":
		return &document.MissingRequiredFieldError{Campo: "emisor.nombre"}
	case doc.Emisor.RegimenFiscal == "":
		return &document.MissingRequiredFieldError{Campo: "emisor.regimenFiscal"}
	case doc.Emisor.LugarExpedicion == "":
		return &document.MissingRequiredFieldError{Campo: "emisor.lugarExpedicion"}
	case doc.Receptor.RFC == "":
		return &document.MissingRequiredFieldError{Campo: "receptor.rfc"}
	case doc.Receptor.Nombre == "":
		return &document.MissingRequiredFieldError{Campo: "receptor.nombre"}
	}
	if err := pkgcfdi.ValidateRFC(doc.Emisor.RFC); err != nil {
		return &document.MissingRequiredFieldError{Campo: "emisor.rfc (" + err.Error() + ")"}
	}
	if err := pkgcfdi.ValidateRFC(doc.Receptor.RFC); err != nil {
		return &document.MissingRequiredFieldError{Campo: "receptor.rfc (" + err.Error() + ")"}
	}
	return nil
}

// validateReceptorCFDI40 el receptor de un CFDI 4.0 exige domicilio fiscal,
// régimen y uso.
func validateReceptorCFDI40(doc *document.TaxDocument) error {
	switch {
	case doc.Receptor.CodigoPostal == "":
		return &document.MissingRequiredFieldError{Campo: "receptor.codigoPostal"}
	case doc.Receptor.RegimenFiscal == "":
		return &document.MissingRequiredFieldError{Campo: "receptor.regimenFiscal"}
	case doc.Receptor.UsoCFDI == "":
		return &document.MissingRequiredFieldError{Campo: "receptor.usoCFDI"}
	}
	if !pkgcfdi.ValidRegimenFiscalCodes[doc.Receptor.RegimenFiscal] {
		return &document.MissingRequiredFieldError{Campo: "receptor.regimenFiscal (código fuera de catálogo)"}
	}
	return nil
}

func validateIngreso(doc *document.TaxDocument) error {
	if err := validateComunes(doc); err != nil {
		return err
	}
	if err := validateReceptorCFDI40(doc); err != nil {
		return err
	}
	switch {
	case doc.Moneda == "":
		return &document.MissingRequiredFieldError{Campo: "moneda"}
	case doc.FormaPago == "":
		return &document.MissingRequiredFieldError{Campo: "formaPago"}
	case doc.MetodoPago == "":
		return &document.MissingRequiredFieldError{Campo: "metodoPago"}
	case len(doc.Conceptos) == 0:
		return &document.MissingRequiredFieldError{Campo: "conceptos"}
	}
	for _, li := range doc.Conceptos {
		switch {
		case li.ClaveProdServ == "":
			return &document.MissingRequiredFieldError{Campo: "concepto.claveProdServ"}
		case li.ClaveUnidad == "":
			return &document.MissingRequiredFieldError{Campo: "concepto.claveUnidad"}
		case li.Descripcion == "":
			return &document.MissingRequiredFieldError{Campo: "concepto.descripcion"}
		case li.ObjetoImp == "":
			return &document.MissingRequiredFieldError{Campo: "concepto.objetoImp"}
		}
	}
	return nil
}

func validatePago(doc *document.TaxDocument) error {
	if err := validateComunes(doc); err != nil {
		return err
	}
	if err := validateReceptorCFDI40(doc); err != nil {
		return err
	}
	if len(doc.Pagos) == 0 {
		return &document.MissingRequiredFieldError{Campo: "pagos"}
	}
	for _, p := range doc.Pagos {
		switch {
		case p.FechaPago.IsZero():
			return &document.MissingRequiredFieldError{Campo: "pago.fechaPago"}
		case p.FormaDePagoP == "":
			return &document.MissingRequiredFieldError{Campo: "pago.formaDePagoP"}
		case p.MonedaP == "":
			return &document.MissingRequiredFieldError{Campo: "pago.monedaP"}
		case len(p.Relacionados) == 0:
			return &document.MissingRequiredFieldError{Campo: "pago.doctoRelacionado"}
		}
		for _, dr := range p.Relacionados {
			if dr.IdDocumento == "" {
				return &document.MissingRequiredFieldError{Campo: "pago.doctoRelacionado.idDocumento"}
			}
			if dr.MonedaDR == "" {
				return &document.MissingRequiredFieldError{Campo: "pago.doctoRelacionado.monedaDR"}
			}
		}
	}
	return nil
}

// validateTraslado el complemento Carta Porte exige ubicaciones origen y
// destino, identificación vehicular y cifras de la carga.
func validateTraslado(doc *document.TaxDocument) error {
	if err := validateComunes(doc); err != nil {
		return err
	}
	if err := validateReceptorCFDI40(doc); err != nil {
		return err
	}
	cp := doc.CartaPorte
	if cp == nil {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte"}
	}
	var origen, destino bool
	for _, u := range cp.Ubicaciones {
		switch u.TipoUbicacion {
		case "Origen":
			origen = true
		case "Destino":
			destino = true
		}
		if u.CodigoPostal == "" {
			return &document.MissingRequiredFieldError{Campo: "cartaPorte.ubicacion.codigoPostal"}
		}
		if u.RFCRemitenteDestinatario == "" {
			return &document.MissingRequiredFieldError{Campo: "cartaPorte.ubicacion.rfc"}
		}
	}
	if !origen {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.ubicacion origen"}
	}
	if !destino {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.ubicacion destino"}
	}
	if len(cp.Mercancias) == 0 {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.mercancias"}
	}
	if cp.PesoBrutoTotal.IsZero() || cp.UnidadPeso == "" {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.pesoBrutoTotal/unidadPeso"}
	}
	if cp.Autotransporte == nil {
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.autotransporte"}
	}
	at := cp.Autotransporte
	switch {
	case at.PermSCT == "" || at.NumPermisoSCT == "":
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.autotransporte.permisoSCT"}
	case at.ConfigVehicular == "" || at.PlacaVM == "" || at.AnioModeloVM == 0:
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.autotransporte.identificacionVehicular"}
	case at.AseguraRespCivil == "" || at.PolizaRespCivil == "":
		return &document.MissingRequiredFieldError{Campo: "cartaPorte.autotransporte.seguros"}
	}
	return nil
}

// validateRetencion la constancia exige clasificación de la retención y
// periodo, además del UUID local generado antes del timbrado.
func validateRetencion(doc *document.TaxDocument) error {
	if err := validateComunes(doc); err != nil {
		return err
	}
	ret := doc.Retencion
	if ret == nil {
		return &document.MissingRequiredFieldError{Campo: "retencion"}
	}
	switch {
	case ret.CveRetenc == "":
		return &document.MissingRequiredFieldError{Campo: "retencion.cveRetenc"}
	case ret.MesIni < 1 || ret.MesIni > 12 || ret.MesFin < 1 || ret.MesFin > 12:
		return &document.MissingRequiredFieldError{Campo: "retencion.periodo (mesIni/mesFin)"}
	case ret.Ejercicio == 0:
		return &document.MissingRequiredFieldError{Campo: "retencion.ejercicio"}
	case len(ret.ImpRetenidos) == 0:
		return &document.MissingRequiredFieldError{Campo: "retencion.impRetenidos"}
	case ret.UUID == "":
		return &document.MissingRequiredFieldError{Campo: "retencion.uuid (se genera localmente antes del timbrado)"}
	}
	return nil
}
