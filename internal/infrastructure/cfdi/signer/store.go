package signer

import (
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
)

// CSDSource rutas y contraseña para cargar el CSD.
type CSDSource struct {
	P12Path  string // .p12/.pfx; tiene prioridad si está definido
	CertPath string // .pem del certificado
	KeyPath  string // .pem de la llave (vacío = combinado con el certificado)
	Password string
}

// Store mantiene el CSD del proceso: se carga perezosamente una sola vez y es
// de sólo lectura para los requests. La rotación del certificado pasa por
// Reload, una operación administrativa explícita y serializada; nunca se
// recarga como efecto colateral de una petición.
type Store struct {
	mu     sync.RWMutex
	source CSDSource
	cert   *tls.Certificate
}

// NewStore crea el store sin cargar nada todavía.
func NewStore(source CSDSource) *Store {
	return &Store{source: source}
}

// Get devuelve el CSD, cargándolo la primera vez. Las lecturas concurrentes
// son seguras sin más coordinación que el RWMutex interno.
func (s *Store) Get() (tls.Certificate, error) {
	s.mu.RLock()
	if s.cert != nil {
		cert := *s.cert
		s.mu.RUnlock()
		return cert, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert == nil {
		cert, err := load(s.source)
		if err != nil {
			return tls.Certificate{}, err
		}
		s.cert = &cert
	}
	return *s.cert, nil
}

// Reload vuelve a cargar el CSD desde disco (rotación de certificado). Si la
// fuente nueva es inválida, el CSD anterior se conserva intacto.
func (s *Store) Reload(source CSDSource) error {
	cert, err := load(source)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.source = source
	s.cert = &cert
	s.mu.Unlock()
	return nil
}

func load(src CSDSource) (tls.Certificate, error) {
	switch {
	case src.P12Path != "":
		lower := strings.ToLower(src.P12Path)
		if !strings.HasSuffix(lower, ".p12") && !strings.HasSuffix(lower, ".pfx") {
			return tls.Certificate{}, fmt.Errorf("csd: %q no es un archivo .p12/.pfx", src.P12Path)
		}
		return LoadFromP12(src.P12Path, src.Password)
	case src.CertPath != "":
		return LoadFromPEM(src.CertPath, src.KeyPath)
	default:
		return tls.Certificate{}, fmt.Errorf("csd: no hay ruta de certificado configurada (CSD_P12_PATH o CSD_CERT_PATH)")
	}
}
