package pac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/infrastructure/pac"
)

func testCancelReq() *document.CancellationRequest {
	return &document.CancellationRequest{
		UUID:         "5FB2822E-396D-4725-8521-CDC4BDD20CCF",
		Motivo:       "02",
		RFCEmisor:    "EKU9003173C9",
		RFCReceptor:  "URE180429TM6",
		Total:        "1160.00",
		Tipo:         document.TipoIngreso,
		FechaFactura: time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC),
	}
}

func TestCancelClient_Cancelada(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "02", body["motivo"])
		assert.Equal(t, false, body["publicoGeneral"])

		json.NewEncoder(w).Encode(map[string]any{
			"ok":        true,
			"status":    "CANCELADA",
			"receiptId": "ACUSE-778899",
		})
	}))
	defer srv.Close()

	client := pac.NewCancelClient(pac.Options{BaseURL: srv.URL})
	result, err := client.Cancel(context.Background(), testCancelReq(), testCreds)
	require.NoError(t, err)

	assert.Equal(t, document.CancelCancelada, result.Estado)
	assert.Equal(t, "ACUSE-778899", result.Acuse)
}

func TestCancelClient_EnProceso(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"status": "EN_PROCESO",
		})
	}))
	defer srv.Close()

	client := pac.NewCancelClient(pac.Options{BaseURL: srv.URL})
	result, err := client.Cancel(context.Background(), testCancelReq(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, document.CancelEnProceso, result.Estado)
}

// TestCancelClient_ValidaAntesDeRed el motivo 01 sin UUID sustituto falla
// localmente: el PAC nunca recibe la petición.
func TestCancelClient_ValidaAntesDeRed(t *testing.T) {
	var llamadas atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		llamadas.Add(1)
	}))
	defer srv.Close()

	req := testCancelReq()
	req.Motivo = "01" // sustitución sin UUID sustituto

	client := pac.NewCancelClient(pac.Options{BaseURL: srv.URL})
	_, err := client.Cancel(context.Background(), req, testCreds)

	var vErr *document.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "uuidSustituto", vErr.Campo)
	assert.Equal(t, int32(0), llamadas.Load(), "la validación local no debe tocar la red")
}

func TestCancelClient_MotivoFueraDeCatalogo(t *testing.T) {
	req := testCancelReq()
	req.Motivo = "07"

	client := pac.NewCancelClient(pac.Options{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Cancel(context.Background(), req, testCreds)

	var vErr *document.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "motivo", vErr.Campo)
}

func TestCancelClient_Rechazada(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":      false,
			"message": "el receptor rechazó la cancelación",
		})
	}))
	defer srv.Close()

	client := pac.NewCancelClient(pac.Options{BaseURL: srv.URL})
	result, err := client.Cancel(context.Background(), testCancelReq(), testCreds)
	require.NoError(t, err)

	assert.Equal(t, document.CancelRechazada, result.Estado)
	assert.Contains(t, result.Mensaje, "rechazó")
}
