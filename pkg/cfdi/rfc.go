package cfdi

import (
	"fmt"
	"regexp"
	"strings"
)

// Patrón del RFC: 3 letras (moral) o 4 (física), fecha AAMMDD y homoclave.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)

// valores de carácter para el dígito verificador del RFC (anexo del SAT).
var rfcCharValues = map[rune]int{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'A': 10, 'B': 11, 'C': 12, 'D': 13, 'E': 14, 'F': 15, 'G': 16, 'H': 17,
	'I': 18, 'J': 19, 'K': 20, 'L': 21, 'M': 22, 'N': 23, '&': 24, 'O': 25,
	'P': 26, 'Q': 27, 'R': 28, 'S': 29, 'T': 30, 'U': 31, 'V': 32, 'W': 33,
	'X': 34, 'Y': 35, 'Z': 36, ' ': 37, 'Ñ': 38,
}

// NormalizeRFC limpia y normaliza un RFC: mayúsculas, sin espacios ni guiones.
func NormalizeRFC(rfc string) string {
	rfc = strings.ToUpper(strings.TrimSpace(rfc))
	rfc = strings.ReplaceAll(rfc, "-", "")
	rfc = strings.ReplaceAll(rfc, " ", "")
	return rfc
}

// ValidateRFC valida estructura y dígito verificador de un RFC (persona
// física de 13 posiciones o moral de 12). Los RFC genéricos de público en
// general y extranjeros se aceptan sin verificar dígito.
func ValidateRFC(rfc string) error {
	rfc = NormalizeRFC(rfc)
	if rfc == RFCPublicoGeneral || rfc == RFCExtranjero {
		return nil
	}
	n := len([]rune(rfc))
	if n != 12 && n != 13 {
		return fmt.Errorf("cfdi: RFC debe tener 12 o 13 posiciones, tiene %d", n)
	}
	if !rfcPattern.MatchString(rfc) {
		return fmt.Errorf("cfdi: RFC %q no cumple la estructura del SAT", rfc)
	}
	expected, err := ComputeRFCVerificationDigit(rfc)
	if err != nil {
		return err
	}
	runes := []rune(rfc)
	if got := runes[len(runes)-1]; got != expected {
		return fmt.Errorf("cfdi: dígito verificador del RFC inválido: esperado %c, recibido %c", expected, got)
	}
	return nil
}

// ComputeRFCVerificationDigit calcula el último carácter del RFC a partir de
// las posiciones anteriores. Algoritmo módulo 11 con la tabla de valores del
// SAT; los RFC de 12 posiciones se rellenan con un espacio a la izquierda.
func ComputeRFCVerificationDigit(rfc string) (rune, error) {
	rfc = NormalizeRFC(rfc)
	runes := []rune(rfc)
	if len(runes) < 12 {
		return 0, fmt.Errorf("cfdi: RFC demasiado corto para calcular dígito verificador")
	}
	base := runes[:len(runes)-1]
	if len(base) == 11 {
		base = append([]rune{' '}, base...)
	}
	if len(base) != 12 {
		return 0, fmt.Errorf("cfdi: RFC con longitud inesperada %d", len(base)+1)
	}
	var sum int
	for i, r := range base {
		v, ok := rfcCharValues[r]
		if !ok {
			return 0, fmt.Errorf("cfdi: carácter %q inválido en RFC", r)
		}
		sum += v * (13 - i)
	}
	remainder := sum % 11
	switch remainder {
	case 0:
		return '0', nil
	case 1:
		return 'A', nil
	default:
		digit := 11 - remainder
		return rune('0' + digit), nil
	}
}

// EsPersonaMoral informa si el RFC corresponde a persona moral (12 posiciones).
func EsPersonaMoral(rfc string) bool {
	return len([]rune(NormalizeRFC(rfc))) == 12
}
