package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App AppConfig
	PAC PACConfig
	CSD CSDConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env             string // development, staging, production
	Name            string
	LugarExpedicion string // Código postal del emisor (LugarExpedicion del comprobante)
}

// PACConfig configuración del proveedor autorizado de certificación.
type PACConfig struct {
	BaseURL        string // Endpoint JSON/HTTP para timbrado y cancelación
	RetencionesURL string // Endpoint SOAP para constancias de retenciones
	Usuario        string
	Password       string
	Simulado       bool // true = modo simulado explícito, nunca fallback
	TimeoutSeconds int
}

// Timeout devuelve el timeout de red hacia el PAC.
func (c PACConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate verifica que haya transporte configurado: endpoints reales o modo
// simulado declarado, nunca ninguno de los dos.
func (c PACConfig) Validate() error {
	if c.Simulado {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("config: PAC_BASE_URL es obligatorio fuera del modo simulado")
	}
	if c.Usuario == "" || c.Password == "" {
		return fmt.Errorf("config: PAC_USER y PAC_PASSWORD son obligatorios fuera del modo simulado")
	}
	return nil
}

// CSDConfig ubicación del certificado de sello digital del emisor.
// Si P12Path está definido tiene prioridad; si no, se usa CertPath/KeyPath en PEM.
type CSDConfig struct {
	P12Path  string // Ruta al .p12 (certificado + llave)
	CertPath string // Ruta al certificado .pem
	KeyPath  string // Ruta a la llave privada .pem (vacío = mismo archivo que CertPath)
	Password string // Contraseña del .p12
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, PAC_BASE_URL, CSD_CERT_PATH, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	// También intenta config.env
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	// Bind de variables de entorno (Viper las lee automáticamente si AutomaticEnv está activo)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:             getString(v, "APP_ENV", "development"),
			Name:            getString(v, "APP_NAME", "timbrado-api"),
			LugarExpedicion: getString(v, "CFDI_LUGAR_EXPEDICION", ""),
		},
		PAC: PACConfig{
			BaseURL:        getString(v, "PAC_BASE_URL", ""),
			RetencionesURL: getString(v, "PAC_RETENCIONES_URL", ""),
			Usuario:        getString(v, "PAC_USER", ""),
			Password:       getString(v, "PAC_PASSWORD", ""),
			Simulado:       getBool(v, "PAC_SIMULADO", false),
			TimeoutSeconds: getInt(v, "PAC_TIMEOUT_SECONDS", 30),
		},
		CSD: CSDConfig{
			P12Path:  getString(v, "CSD_P12_PATH", ""),
			CertPath: getString(v, "CSD_CERT_PATH", ""),
			KeyPath:  getString(v, "CSD_KEY_PATH", ""),
			Password: getString(v, "CSD_PASSWORD", ""),
		},
	}

	if err := cfg.PAC.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
