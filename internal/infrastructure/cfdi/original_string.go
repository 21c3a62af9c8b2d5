package cfdi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// Atributos excluidos de la cadena original: son producto de la firma y su
// exclusión hace idempotente la derivación (recalcular sobre el XML firmado
// produce exactamente la misma cadena).
var excludedAttrs = map[string]bool{
	"Sello":         true,
	"Certificado":   true,
	"NoCertificado": true,
}

// OriginalString deriva la cadena original del comprobante: la concatenación
// determinista de los valores de atributos del documento en orden fijo,
// delimitada con "|" y envuelta en "||...||".
//
// El documento se canonicaliza primero (C14N) para que el resultado no
// dependa de cómo fue serializado el XML (orden de atributos, entidades,
// espacios); después se recorre el árbol en orden de documento.
func OriginalString(xmlBytes []byte) (string, error) {
	if len(xmlBytes) == 0 {
		return "", fmt.Errorf("cfdi: XML vacío")
	}
	canonical, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return "", fmt.Errorf("cfdi: canonicalizar documento: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(canonical); err != nil {
		return "", fmt.Errorf("cfdi: parsear documento canónico: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("cfdi: documento sin raíz")
	}

	var values []string
	collectAttrValues(root, &values)
	if len(values) == 0 {
		return "", fmt.Errorf("cfdi: el documento no tiene atributos que concatenar")
	}
	return "||" + strings.Join(values, "|") + "||", nil
}

// collectAttrValues recorre el árbol en profundidad acumulando los valores de
// atributos, omitiendo declaraciones de namespace, schemaLocation y los
// atributos de firma.
func collectAttrValues(e *etree.Element, out *[]string) {
	for _, a := range e.Attr {
		if a.Space == "xmlns" || a.Key == "xmlns" {
			continue
		}
		if a.Space == "xsi" {
			continue
		}
		if excludedAttrs[a.Key] {
			continue
		}
		*out = append(*out, strings.TrimSpace(a.Value))
	}
	for _, child := range e.ChildElements() {
		collectAttrValues(child, out)
	}
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// SignatureAttrs extrae los atributos de firma de la raíz de un comprobante
// ya firmado: Sello, NoCertificado y Certificado, en ese orden.
func SignatureAttrs(signedXML []byte) (sello, noCert, certB64 string, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return "", "", "", fmt.Errorf("cfdi: parsear XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", "", "", fmt.Errorf("cfdi: documento sin raíz")
	}
	selloAttr := root.SelectAttr("Sello")
	if selloAttr == nil {
		return "", "", "", fmt.Errorf("cfdi: el documento no está firmado")
	}
	return selloAttr.Value, root.SelectAttrValue("NoCertificado", ""), root.SelectAttrValue("Certificado", ""), nil
}
