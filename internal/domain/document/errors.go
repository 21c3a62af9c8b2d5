package document

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrEstadoInvalido   = errors.New("transición de estado no permitida")
	ErrYaFirmada        = errors.New("el documento ya está firmado")
	ErrYaTimbrada       = errors.New("el documento ya fue timbrado; reenviar el mismo UUID es error del caller")
	ErrNoTimbrada       = errors.New("el documento no está timbrado")
	ErrTipoDesconocido  = errors.New("tipo de comprobante desconocido")
)

// InvalidRateError tasa de impuesto negativa o fuera de catálogo.
type InvalidRateError struct {
	Concepto int    // índice del concepto (base 0)
	Rate     string // tasa recibida, tal cual
	Detalle  string
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("tax: tasa inválida %q en concepto %d: %s", e.Rate, e.Concepto, e.Detalle)
}

// InconsistentTotalsError los totales del caller no cuadran con los calculados.
// La tolerancia es la menor denominación de la moneda (0.01).
type InconsistentTotalsError struct {
	Campo     string // "subtotal" | "impuestos" | "total"
	Esperado  string
	Recibido  string
}

func (e *InconsistentTotalsError) Error() string {
	return fmt.Sprintf("tax: %s inconsistente: calculado %s, recibido %s", e.Campo, e.Esperado, e.Recibido)
}

// MissingRequiredFieldError falta un campo obligatorio para el tipo/versión
// del comprobante. Se detecta antes de serializar.
type MissingRequiredFieldError struct {
	Campo string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("cfdi: campo obligatorio ausente: %s", e.Campo)
}

// SigningError error fatal de firma: certificado ausente, vencido o llave que
// no corresponde al certificado. Aborta antes del timbrado.
type SigningError struct {
	Motivo string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("csd: %s: %v", e.Motivo, e.Err)
	}
	return "csd: " + e.Motivo
}

func (e *SigningError) Unwrap() error { return e.Err }

// ValidationError invariante violado en una petición (ej: cancelación por
// sustitución sin UUID sustituto). Se detecta localmente, sin red.
type ValidationError struct {
	Campo   string
	Detalle string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validación: %s: %s", e.Campo, e.Detalle)
}
