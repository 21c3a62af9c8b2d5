package pac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/infrastructure/pac"
	"github.com/facturalo/timbrado-api/pkg/cfdi"
)

// stamperSpy registra qué transporte fue invocado.
type stamperSpy struct {
	llamado bool
}

func (s *stamperSpy) Stamp(context.Context, []byte, *document.TaxDocument, cfdi.Credentials) (*document.StampResult, error) {
	s.llamado = true
	return &document.StampResult{Estado: document.StampTimbrada}, nil
}

func TestDispatcher_RetencionVaPorSOAP(t *testing.T) {
	jsonSpy, soapSpy := &stamperSpy{}, &stamperSpy{}
	d := pac.NewDispatcher(jsonSpy, soapSpy)

	_, err := d.Stamp(context.Background(), []byte("<ret/>"), testRetencionDoc(), testCreds)
	require.NoError(t, err)
	assert.True(t, soapSpy.llamado)
	assert.False(t, jsonSpy.llamado)
}

func TestDispatcher_IngresoPagoTrasladoVanPorJSON(t *testing.T) {
	for _, tipo := range []document.DocumentType{document.TipoIngreso, document.TipoPago, document.TipoTraslado} {
		jsonSpy, soapSpy := &stamperSpy{}, &stamperSpy{}
		d := pac.NewDispatcher(jsonSpy, soapSpy)

		doc := testDoc()
		doc.Tipo = tipo
		_, err := d.Stamp(context.Background(), []byte("<cfdi/>"), doc, testCreds)
		require.NoError(t, err)
		assert.True(t, jsonSpy.llamado, "tipo %s debe ir por JSON", tipo)
		assert.False(t, soapSpy.llamado)
	}
}

// TestDispatcher_TipoDesconocido un tipo fuera de catálogo es error, nunca un
// fallback silencioso a algún transporte.
func TestDispatcher_TipoDesconocido(t *testing.T) {
	d := pac.NewDispatcher(&stamperSpy{}, &stamperSpy{})

	doc := testDoc()
	doc.Tipo = "Z"
	_, err := d.Stamp(context.Background(), []byte("<x/>"), doc, testCreds)
	assert.ErrorIs(t, err, document.ErrTipoDesconocido)
}

func TestDispatcher_SOAPNoConfigurado(t *testing.T) {
	d := pac.NewDispatcher(&stamperSpy{}, nil)

	_, err := d.Stamp(context.Background(), []byte("<ret/>"), testRetencionDoc(), testCreds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOAP")
}
