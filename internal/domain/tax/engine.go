// Package tax implementa el motor de cálculo de impuestos trasladados
// (IVA y IEPS) y la agregación por tasa para el desglose del comprobante.
package tax

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/facturalo/timbrado-api/internal/domain/document"
)

// Llaves de bucket para tasas sin IVA. Las líneas a tasa cero y las exentas
// van en buckets propios: el esquema exige declarar la tasa 0 explícita,
// distinta de "no gravado".
const (
	BucketExento = "Exento"
	BucketCero   = "0.000000"
)

// Códigos de impuesto del catálogo c_Impuesto.
const (
	ImpuestoIVA  = "002"
	ImpuestoIEPS = "003"
)

// decimales de la moneda (MXN): redondeo half-up a centavos.
const currencyPlaces = 2

// toleranceCents tolerancia de conciliación: la menor denominación de la moneda.
var toleranceCents = decimal.New(1, -currencyPlaces) // 0.01

// Bucket agrega base, impuesto y total de todas las líneas con la misma tasa.
type Bucket struct {
	Impuesto   string // 002 IVA, 003 IEPS
	TasaOCuota string // "0.160000", "0.080000", "0.000000" o "Exento"
	Base       decimal.Decimal
	Importe    decimal.Decimal
	Total      decimal.Decimal
}

// Breakdown desglose de impuestos por tasa. Los buckets particionan las
// líneas sin traslapes ni huecos: cada impuesto de línea cae en exactamente
// un bucket.
type Breakdown struct {
	buckets map[string]*Bucket
}

// NewBreakdown crea un desglose vacío.
func NewBreakdown() *Breakdown {
	return &Breakdown{buckets: make(map[string]*Bucket)}
}

func (b *Breakdown) add(impuesto, tasa string, base, importe decimal.Decimal) {
	key := impuesto + ":" + tasa
	bk, ok := b.buckets[key]
	if !ok {
		bk = &Bucket{Impuesto: impuesto, TasaOCuota: tasa}
		b.buckets[key] = bk
	}
	bk.Base = bk.Base.Add(base)
	bk.Importe = bk.Importe.Add(importe)
	bk.Total = bk.Total.Add(base).Add(importe)
}

// Buckets devuelve los buckets ordenados por impuesto y tasa (orden estable
// para serialización y pruebas).
func (b *Breakdown) Buckets() []*Bucket {
	out := make([]*Bucket, 0, len(b.buckets))
	for _, bk := range b.buckets {
		out = append(out, bk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Impuesto != out[j].Impuesto {
			return out[i].Impuesto < out[j].Impuesto
		}
		return out[i].TasaOCuota < out[j].TasaOCuota
	})
	return out
}

// Get busca un bucket por impuesto y tasa. Devuelve nil si no existe.
func (b *Breakdown) Get(impuesto, tasa string) *Bucket {
	return b.buckets[impuesto+":"+tasa]
}

// TotalImpuestos suma de todos los importes de impuesto del desglose.
func (b *Breakdown) TotalImpuestos() decimal.Decimal {
	total := decimal.Zero
	for _, bk := range b.buckets {
		total = total.Add(bk.Importe)
	}
	return total
}

// Len número de buckets.
func (b *Breakdown) Len() int { return len(b.buckets) }

// Engine motor de cálculo. Sin estado; seguro para uso concurrente.
type Engine struct{}

// NewEngine crea el motor.
func NewEngine() *Engine {
	return &Engine{}
}

// Calculate computa el impuesto por línea (redondeado a centavos, half-up) y
// el desglose agregado por tasa. Muta los campos calculados de cada concepto
// (ImporteIVA, ImporteIEPS) y devuelve el Breakdown.
//
// Valida las tasas antes de computar: una tasa negativa o fuera de rango
// produce InvalidRateError sin efectos parciales.
func (e *Engine) Calculate(conceptos []document.LineItem) ([]document.LineItem, *Breakdown, error) {
	for i := range conceptos {
		if err := validateRates(i, &conceptos[i]); err != nil {
			return nil, nil, err
		}
	}

	bd := NewBreakdown()
	out := make([]document.LineItem, len(conceptos))
	copy(out, conceptos)

	for i := range out {
		li := &out[i]
		base := li.Base()

		// IEPS se calcula primero: en CFDI el IEPS trasladado forma parte de
		// la base del IVA cuando ambos aplican.
		iepsImporte := decimal.Zero
		switch {
		case li.TasaIEPS != nil:
			iepsImporte = roundHalfUp(base.Mul(*li.TasaIEPS))
			bd.add(ImpuestoIEPS, FormatTasa(*li.TasaIEPS), base, iepsImporte)
		case li.CuotaIEPS != nil:
			iepsImporte = roundHalfUp(li.Cantidad.Mul(*li.CuotaIEPS))
			bd.add(ImpuestoIEPS, FormatTasa(*li.CuotaIEPS), base, iepsImporte)
		}
		li.ImporteIEPS = iepsImporte

		baseIVA := base.Add(iepsImporte)
		switch {
		case li.TasaIVA == nil:
			// Exento: bucket propio con importe cero.
			li.ImporteIVA = decimal.Zero
			bd.add(ImpuestoIVA, BucketExento, baseIVA, decimal.Zero)
		case li.TasaIVA.IsZero():
			// Tasa 0%: declaración explícita, distinta de exento.
			li.ImporteIVA = decimal.Zero
			bd.add(ImpuestoIVA, BucketCero, baseIVA, decimal.Zero)
		default:
			li.ImporteIVA = roundHalfUp(baseIVA.Mul(*li.TasaIVA))
			bd.add(ImpuestoIVA, FormatTasa(*li.TasaIVA), baseIVA, li.ImporteIVA)
		}
	}

	return out, bd, nil
}

// Totales calcula los montos agregados del comprobante a partir de los
// conceptos y el desglose.
func (e *Engine) Totales(conceptos []document.LineItem, bd *Breakdown) document.Totales {
	sub := decimal.Zero
	desc := decimal.Zero
	for _, li := range conceptos {
		sub = sub.Add(li.Importe)
		desc = desc.Add(li.Descuento)
	}
	imp := bd.TotalImpuestos()
	return document.Totales{
		SubTotal:  roundHalfUp(sub),
		Descuento: roundHalfUp(desc),
		Impuestos: roundHalfUp(imp),
		Total:     roundHalfUp(sub.Sub(desc).Add(imp)),
	}
}

// Reconcile compara los totales del caller contra los calculados. La
// tolerancia es un centavo; fuera de ella falla con InconsistentTotalsError.
func (e *Engine) Reconcile(declarados document.Totales, conceptos []document.LineItem, bd *Breakdown) error {
	calc := e.Totales(conceptos, bd)

	if diff := declarados.SubTotal.Sub(calc.SubTotal).Abs(); diff.GreaterThan(toleranceCents) {
		return &document.InconsistentTotalsError{
			Campo: "subtotal", Esperado: calc.SubTotal.StringFixed(2), Recibido: declarados.SubTotal.StringFixed(2),
		}
	}
	if diff := declarados.Impuestos.Sub(calc.Impuestos).Abs(); diff.GreaterThan(toleranceCents) {
		return &document.InconsistentTotalsError{
			Campo: "impuestos", Esperado: calc.Impuestos.StringFixed(2), Recibido: declarados.Impuestos.StringFixed(2),
		}
	}
	if diff := declarados.Total.Sub(calc.Total).Abs(); diff.GreaterThan(toleranceCents) {
		return &document.InconsistentTotalsError{
			Campo: "total", Esperado: calc.Total.StringFixed(2), Recibido: declarados.Total.StringFixed(2),
		}
	}
	return nil
}

func validateRates(idx int, li *document.LineItem) error {
	if li.TasaIVA != nil {
		if li.TasaIVA.IsNegative() {
			return &document.InvalidRateError{Concepto: idx, Rate: li.TasaIVA.String(), Detalle: "tasa de IVA negativa"}
		}
		if li.TasaIVA.GreaterThan(decimal.NewFromInt(1)) {
			return &document.InvalidRateError{Concepto: idx, Rate: li.TasaIVA.String(), Detalle: "la tasa debe ser fracción (ej: 0.16)"}
		}
	}
	if li.TasaIEPS != nil && li.CuotaIEPS != nil {
		return &document.InvalidRateError{Concepto: idx, Rate: li.TasaIEPS.String(), Detalle: "IEPS por tasa y por cuota son excluyentes"}
	}
	if li.TasaIEPS != nil && li.TasaIEPS.IsNegative() {
		return &document.InvalidRateError{Concepto: idx, Rate: li.TasaIEPS.String(), Detalle: "tasa de IEPS negativa"}
	}
	if li.CuotaIEPS != nil && li.CuotaIEPS.IsNegative() {
		return &document.InvalidRateError{Concepto: idx, Rate: li.CuotaIEPS.String(), Detalle: "cuota de IEPS negativa"}
	}
	if li.Cantidad.IsNegative() || li.ValorUnitario.IsNegative() {
		return &document.InvalidRateError{Concepto: idx, Rate: li.Cantidad.String(), Detalle: "cantidad y valor unitario deben ser no negativos"}
	}
	return nil
}

// FormatTasa formatea una tasa para el atributo TasaOCuota: 6 decimales fijos
// (ej: 0.160000), como exige el esquema.
func FormatTasa(d decimal.Decimal) string {
	return d.StringFixed(6)
}

// roundHalfUp redondea a centavos con half away from zero (half-up para
// montos positivos), el modo de redondeo fiscal.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(currencyPlaces)
}
