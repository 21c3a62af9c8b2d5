package cfdi_test

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/domain/tax"
	infracfdi "github.com/facturalo/timbrado-api/internal/infrastructure/cfdi"
)

// RFCs de prueba del SAT con dígito verificador válido.
const (
	testRFCEmisor   = "EKU9003173C9"
	testRFCReceptor = "URE180429TM6"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func buildIngresoDoc() *document.TaxDocument {
	tasa := decimal.NewFromFloat(0.16)
	return &document.TaxDocument{
		Tipo:       document.TipoIngreso,
		Version:    "4.0",
		Serie:      "A",
		Folio:      "1001",
		Fecha:      time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC),
		Moneda:     "MXN",
		FormaPago:  "03",
		MetodoPago: "PUE",
		Emisor: document.Emisor{
			RFC:             testRFCEmisor,
			Nombre:          "ESCUELA KEMPER URGATE",
			RegimenFiscal:   "601",
			LugarExpedicion: "64000",
		},
		Receptor: document.Receptor{
			RFC:           testRFCReceptor,
			Nombre:        "UNIVERSIDAD ROBOTICA ESPAÑOLA",
			CodigoPostal:  "86991",
			RegimenFiscal: "601",
			UsoCFDI:       "G03",
		},
		Conceptos: []document.LineItem{
			{
				ClaveProdServ: "84111506",
				Descripcion:   "Servicios de consultoría",
				ClaveUnidad:   "E48",
				Cantidad:      decimal.NewFromInt(1),
				ValorUnitario: decimal.NewFromInt(1000),
				Importe:       decimal.NewFromInt(1000),
				ObjetoImp:     "02",
				TasaIVA:       &tasa,
			},
		},
	}
}

// calcula impuestos y totales del documento con el motor real.
func calcular(t *testing.T, doc *document.TaxDocument) *tax.Breakdown {
	t.Helper()
	engine := tax.NewEngine()
	conceptos, bd, err := engine.Calculate(doc.Conceptos)
	require.NoError(t, err)
	doc.Conceptos = conceptos
	doc.Totales = engine.Totales(conceptos, bd)
	return bd
}

func parseXML(t *testing.T, data []byte) *etree.Element {
	t.Helper()
	xd := etree.NewDocument()
	require.NoError(t, xd.ReadFromBytes(data))
	root := xd.Root()
	require.NotNil(t, root)
	return root
}

// ── CFDI de ingreso ───────────────────────────────────────────────────────────

func TestBuild_Ingreso_AtributosRaiz(t *testing.T) {
	doc := buildIngresoDoc()
	bd := calcular(t, doc)

	out, err := infracfdi.NewBuilderService().Build(doc, bd)
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Equal(t, "Comprobante", root.Tag)
	assert.Equal(t, "4.0", root.SelectAttrValue("Version", ""))
	assert.Equal(t, "I", root.SelectAttrValue("TipoDeComprobante", ""))
	assert.Equal(t, "1000.00", root.SelectAttrValue("SubTotal", ""))
	assert.Equal(t, "1160.00", root.SelectAttrValue("Total", ""))
	assert.Equal(t, "2026-03-15T12:30:00", root.SelectAttrValue("Fecha", ""))
	assert.Equal(t, "01", root.SelectAttrValue("Exportacion", ""),
		"Exportacion vacío debe emitirse como 01 (no aplica)")
}

// TestBuild_Ingreso_SinAtributosDeFirma el builder nunca emite Sello,
// NoCertificado ni Certificado: son del motor de firma.
func TestBuild_Ingreso_SinAtributosDeFirma(t *testing.T) {
	doc := buildIngresoDoc()
	bd := calcular(t, doc)

	out, err := infracfdi.NewBuilderService().Build(doc, bd)
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Nil(t, root.SelectAttr("Sello"))
	assert.Nil(t, root.SelectAttr("NoCertificado"))
	assert.Nil(t, root.SelectAttr("Certificado"))
}

func TestBuild_Ingreso_TrasladoPorConcepto(t *testing.T) {
	doc := buildIngresoDoc()
	bd := calcular(t, doc)

	out, err := infracfdi.NewBuilderService().Build(doc, bd)
	require.NoError(t, err)

	root := parseXML(t, out)
	traslado := root.FindElement("//Conceptos/Concepto/Impuestos/Traslados/Traslado")
	require.NotNil(t, traslado)
	assert.Equal(t, "1000.00", traslado.SelectAttrValue("Base", ""))
	assert.Equal(t, "002", traslado.SelectAttrValue("Impuesto", ""))
	assert.Equal(t, "Tasa", traslado.SelectAttrValue("TipoFactor", ""))
	assert.Equal(t, "0.160000", traslado.SelectAttrValue("TasaOCuota", ""))
	assert.Equal(t, "160.00", traslado.SelectAttrValue("Importe", ""))
}

// TestBuild_Ingreso_LineaExenta una línea exenta lleva TipoFactor="Exento"
// sin TasaOCuota ni Importe, distinto de la tasa cero explícita.
func TestBuild_Ingreso_LineaExenta(t *testing.T) {
	doc := buildIngresoDoc()
	doc.Conceptos[0].TasaIVA = nil
	bd := calcular(t, doc)

	out, err := infracfdi.NewBuilderService().Build(doc, bd)
	require.NoError(t, err)

	root := parseXML(t, out)
	traslado := root.FindElement("//Conceptos/Concepto/Impuestos/Traslados/Traslado")
	require.NotNil(t, traslado)
	assert.Equal(t, "Exento", traslado.SelectAttrValue("TipoFactor", ""))
	assert.Nil(t, traslado.SelectAttr("TasaOCuota"))
	assert.Nil(t, traslado.SelectAttr("Importe"))
}

func TestBuild_Ingreso_DescuentoOpcional(t *testing.T) {
	svc := infracfdi.NewBuilderService()

	// sin descuento el atributo se omite por completo
	doc := buildIngresoDoc()
	bd := calcular(t, doc)
	out, err := svc.Build(doc, bd)
	require.NoError(t, err)
	assert.Nil(t, parseXML(t, out).SelectAttr("Descuento"))

	// con descuento se emite en la raíz y en el concepto
	doc = buildIngresoDoc()
	doc.Conceptos[0].Descuento = decimal.NewFromInt(100)
	bd = calcular(t, doc)
	out, err = svc.Build(doc, bd)
	require.NoError(t, err)
	root := parseXML(t, out)
	assert.Equal(t, "100.00", root.SelectAttrValue("Descuento", ""))
	concepto := root.FindElement("//Conceptos/Concepto")
	require.NotNil(t, concepto)
	assert.Equal(t, "100.00", concepto.SelectAttrValue("Descuento", ""))
}

// ── validación previa a serializar ────────────────────────────────────────────

func TestBuild_Ingreso_ErrorSiFaltaRegimenReceptor(t *testing.T) {
	doc := buildIngresoDoc()
	doc.Receptor.RegimenFiscal = ""

	_, err := infracfdi.NewBuilderService().Build(doc, calcularSinTotales(t, doc))
	var missing *document.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Campo, "regimenFiscal")
}

func TestBuild_Ingreso_ErrorSiRFCEmisorInvalido(t *testing.T) {
	doc := buildIngresoDoc()
	doc.Emisor.RFC = "EKU9003173C1" // dígito verificador incorrecto

	_, err := infracfdi.NewBuilderService().Build(doc, calcularSinTotales(t, doc))
	var missing *document.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Campo, "emisor.rfc")
}

func TestBuild_TipoDesconocido(t *testing.T) {
	doc := buildIngresoDoc()
	doc.Tipo = "X"

	_, err := infracfdi.NewBuilderService().Build(doc, tax.NewBreakdown())
	assert.ErrorIs(t, err, document.ErrTipoDesconocido)
}

func calcularSinTotales(t *testing.T, doc *document.TaxDocument) *tax.Breakdown {
	t.Helper()
	_, bd, err := tax.NewEngine().Calculate(doc.Conceptos)
	require.NoError(t, err)
	return bd
}

// ── complemento de pago ───────────────────────────────────────────────────────

func buildPagoDoc() *document.TaxDocument {
	doc := buildIngresoDoc()
	doc.Tipo = document.TipoPago
	doc.FormaPago = ""
	doc.MetodoPago = ""
	doc.Conceptos = nil
	doc.Pagos = []document.Pago{{
		FechaPago:    time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC),
		FormaDePagoP: "03",
		MonedaP:      "MXN",
		Monto:        decimal.NewFromInt(1160),
		Relacionados: []document.PagoDoctoRelacionado{{
			IdDocumento:      "5FB2822E-396D-4725-8521-CDC4BDD20CCF",
			MonedaDR:         "MXN",
			NumParcialidad:   1,
			ImpSaldoAnt:      decimal.NewFromInt(1160),
			ImpPagado:        decimal.NewFromInt(1160),
			ImpSaldoInsoluto: decimal.Zero,
			ObjetoImpDR:      "02",
		}},
	}}
	return doc
}

func TestBuild_Pago_EstructuraFija(t *testing.T) {
	doc := buildPagoDoc()

	out, err := infracfdi.NewBuilderService().Build(doc, nil)
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Equal(t, "P", root.SelectAttrValue("TipoDeComprobante", ""))
	assert.Equal(t, "0", root.SelectAttrValue("SubTotal", ""))
	assert.Equal(t, "0", root.SelectAttrValue("Total", ""))
	assert.Equal(t, "XXX", root.SelectAttrValue("Moneda", ""))

	concepto := root.FindElement("//Conceptos/Concepto")
	require.NotNil(t, concepto)
	assert.Equal(t, "84111506", concepto.SelectAttrValue("ClaveProdServ", ""))
	assert.Equal(t, "ACT", concepto.SelectAttrValue("ClaveUnidad", ""))
	assert.Equal(t, "Pago", concepto.SelectAttrValue("Descripcion", ""))

	pago := root.FindElement("//Complemento/Pagos/Pago")
	require.NotNil(t, pago)
	assert.Equal(t, "1160.00", pago.SelectAttrValue("Monto", ""))
	docto := pago.FindElement("DoctoRelacionado")
	require.NotNil(t, docto)
	assert.Equal(t, "5FB2822E-396D-4725-8521-CDC4BDD20CCF", docto.SelectAttrValue("IdDocumento", ""))
	assert.Equal(t, "1", docto.SelectAttrValue("NumParcialidad", ""))
}

func TestBuild_Pago_ErrorSinDoctoRelacionado(t *testing.T) {
	doc := buildPagoDoc()
	doc.Pagos[0].Relacionados = nil

	_, err := infracfdi.NewBuilderService().Build(doc, nil)
	var missing *document.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Campo, "doctoRelacionado")
}

// ── retenciones ───────────────────────────────────────────────────────────────

func buildRetencionDoc() *document.TaxDocument {
	doc := buildIngresoDoc()
	doc.Tipo = document.TipoRetencion
	doc.Version = "2.0"
	doc.Conceptos = nil
	doc.Retencion = &document.RetencionData{
		CveRetenc:         "01",
		MesIni:            1,
		MesFin:            3,
		Ejercicio:         2026,
		MontoTotOperacion: decimal.NewFromInt(10000),
		MontoTotGrav:      decimal.NewFromInt(10000),
		MontoTotRet:       decimal.NewFromInt(1000),
		ImpRetenidos: []document.ImpRetenido{{
			BaseRet:     decimal.NewFromInt(10000),
			Impuesto:    "01",
			MontoRet:    decimal.NewFromInt(1000),
			TipoPagoRet: "01",
		}},
		UUID: "0AD082F4-1B1B-493E-A7CE-6F12EAE64E6D",
	}
	return doc
}

func TestBuild_Retencion_RaizYPeriodo(t *testing.T) {
	doc := buildRetencionDoc()

	out, err := infracfdi.NewBuilderService().Build(doc, nil)
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Equal(t, "Retenciones", root.Tag)
	assert.Equal(t, "2.0", root.SelectAttrValue("Version", ""))
	assert.Equal(t, "01", root.SelectAttrValue("CveRetenc", ""))
	assert.Equal(t, doc.Retencion.UUID, root.SelectAttrValue("FolioInt", ""),
		"sin FolioInt propio, el folio interno lleva el UUID local")

	periodo := root.FindElement("//Periodo")
	require.NotNil(t, periodo)
	assert.Equal(t, "1", periodo.SelectAttrValue("MesIni", ""))
	assert.Equal(t, "3", periodo.SelectAttrValue("MesFin", ""))
	assert.Equal(t, "2026", periodo.SelectAttrValue("Ejercicio", ""))
}

// TestBuild_Retencion_ErrorSinUUIDLocal las constancias llevan UUID generado
// localmente antes del timbrado; sin él no hay XML.
func TestBuild_Retencion_ErrorSinUUIDLocal(t *testing.T) {
	doc := buildRetencionDoc()
	doc.Retencion.UUID = ""

	_, err := infracfdi.NewBuilderService().Build(doc, nil)
	var missing *document.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Campo, "uuid")
}

// ── traslado / carta porte ────────────────────────────────────────────────────

func buildTrasladoDoc() *document.TaxDocument {
	doc := buildIngresoDoc()
	doc.Tipo = document.TipoTraslado
	doc.FormaPago = ""
	doc.MetodoPago = ""
	dist := decimal.NewFromInt(120)
	doc.CartaPorte = &document.CartaPorte{
		Ubicaciones: []document.CartaPorteUbicacion{
			{
				TipoUbicacion:            "Origen",
				RFCRemitenteDestinatario: testRFCEmisor,
				FechaHoraSalidaLlegada:   time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC),
				CodigoPostal:             "64000",
			},
			{
				TipoUbicacion:            "Destino",
				RFCRemitenteDestinatario: testRFCReceptor,
				FechaHoraSalidaLlegada:   time.Date(2026, 3, 16, 14, 0, 0, 0, time.UTC),
				CodigoPostal:             "86991",
				DistanciaRecorrida:       &dist,
			},
		},
		Mercancias: []document.CartaPorteMercancia{{
			BienesTransp: "50425400",
			Descripcion:  "Cajas de fruta",
			Cantidad:     decimal.NewFromInt(100),
			ClaveUnidad:  "XBX",
			PesoEnKg:     decimal.NewFromFloat(450.5),
		}},
		PesoBrutoTotal: decimal.NewFromFloat(450.5),
		UnidadPeso:     "KGM",
		Autotransporte: &document.CartaPorteAutotransporte{
			PermSCT:          "TPAF01",
			NumPermisoSCT:    "1234567",
			ConfigVehicular:  "C2",
			PlacaVM:          "ABC1234",
			AnioModeloVM:     2022,
			AseguraRespCivil: "Seguros SA",
			PolizaRespCivil:  "POL-998877",
		},
	}
	return doc
}

func TestBuild_Traslado_CartaPorte(t *testing.T) {
	doc := buildTrasladoDoc()

	out, err := infracfdi.NewBuilderService().Build(doc, nil)
	require.NoError(t, err)

	root := parseXML(t, out)
	assert.Equal(t, "T", root.SelectAttrValue("TipoDeComprobante", ""))

	cp := root.FindElement("//Complemento/CartaPorte")
	require.NotNil(t, cp)
	assert.Equal(t, "3.1", cp.SelectAttrValue("Version", ""))

	ubicaciones := cp.FindElements("Ubicaciones/Ubicacion")
	require.Len(t, ubicaciones, 2)

	mercancias := cp.FindElement("Mercancias")
	require.NotNil(t, mercancias)
	assert.Equal(t, "450.500", mercancias.SelectAttrValue("PesoBrutoTotal", ""))

	vehiculo := cp.FindElement("Mercancias/Autotransporte/IdentificacionVehicular")
	require.NotNil(t, vehiculo)
	assert.Equal(t, "ABC1234", vehiculo.SelectAttrValue("PlacaVM", ""))
}

func TestBuild_Traslado_ErrorSinDestino(t *testing.T) {
	doc := buildTrasladoDoc()
	doc.CartaPorte.Ubicaciones = doc.CartaPorte.Ubicaciones[:1] // sólo origen

	_, err := infracfdi.NewBuilderService().Build(doc, nil)
	var missing *document.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Campo, "destino")
}
