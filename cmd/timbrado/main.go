// timbrado: CLI de emisión de comprobantes fiscales.
//
//	timbrado timbrar documento.json -o comprobante.xml
//	timbrado validar documento.json
//	timbrado cancelar --uuid ... --motivo 02 --rfc-emisor ... --rfc-receptor ... --total ...
//	timbrado csd verificar
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facturalo/timbrado-api/internal/application/timbrado"
	"github.com/facturalo/timbrado-api/internal/domain/document"
	"github.com/facturalo/timbrado-api/internal/domain/tax"
	infracfdi "github.com/facturalo/timbrado-api/internal/infrastructure/cfdi"
	"github.com/facturalo/timbrado-api/internal/infrastructure/cfdi/signer"
	"github.com/facturalo/timbrado-api/internal/infrastructure/pac"
	pkgcfdi "github.com/facturalo/timbrado-api/pkg/cfdi"
	"github.com/facturalo/timbrado-api/pkg/config"
	"github.com/facturalo/timbrado-api/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app agrupa las dependencias construidas una vez por invocación.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	pipeline *timbrado.Pipeline
	csd      *signer.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	csd := signer.NewStore(signer.CSDSource{
		P12Path:  cfg.CSD.P12Path,
		CertPath: cfg.CSD.CertPath,
		KeyPath:  cfg.CSD.KeyPath,
		Password: cfg.CSD.Password,
	})

	var stamper pkgcfdi.Stamper
	var canceller pkgcfdi.Canceller
	if cfg.PAC.Simulado {
		log.Warn().Msg("modo simulado activo: no se contactará al PAC")
		sim := pac.NewSimulator(log.Zerolog())
		stamper = sim
		canceller = sim
	} else {
		jsonClient := pac.NewJSONClient(pac.Options{BaseURL: cfg.PAC.BaseURL, Timeout: cfg.PAC.Timeout()})
		soapClient := pac.NewSOAPClient(pac.Options{BaseURL: cfg.PAC.RetencionesURL, Timeout: cfg.PAC.Timeout()})
		stamper = pac.NewDispatcher(jsonClient, soapClient)
		canceller = pac.NewCancelClient(pac.Options{BaseURL: cfg.PAC.BaseURL, Timeout: cfg.PAC.Timeout()})
	}

	pipeline := timbrado.New(
		tax.NewEngine(),
		infracfdi.NewBuilderService(),
		signer.NewSelloService(),
		csd,
		stamper,
		canceller,
		pkgcfdi.Credentials{Usuario: cfg.PAC.Usuario, Password: cfg.PAC.Password},
		log.Zerolog(),
	)

	return &app{cfg: cfg, log: log, pipeline: pipeline, csd: csd}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timbrado",
		Short:         "Emisión, timbrado y cancelación de comprobantes fiscales",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTimbrarCmd(), newValidarCmd(), newCancelarCmd(), newCSDCmd())
	return root
}

func newTimbrarCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "timbrar <documento.json>",
		Short: "Calcula, construye, firma y timbra un comprobante",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res, err := a.pipeline.Issue(ctx, doc)
			if err != nil {
				return err
			}

			switch {
			case res.Stamp.Timbrada():
				fmt.Printf("estado: %s\nuuid: %s\n", res.Stamp.Estado, res.Stamp.UUID)
			default:
				fmt.Printf("estado: %s\ncodigo: %s\nmensaje: %s\n", res.Stamp.Estado, res.Stamp.CodigoError, res.Stamp.MensajeError)
			}

			xmlOut := []byte(res.Stamp.XMLTimbrado)
			if len(xmlOut) == 0 {
				xmlOut = res.SignedXML
			}
			if output != "" {
				if err := os.WriteFile(output, xmlOut, 0o644); err != nil {
					return fmt.Errorf("escribir %s: %w", output, err)
				}
				fmt.Println("xml:", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archivo de salida para el XML timbrado")
	return cmd
}

func newValidarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validar <documento.json>",
		Short: "Calcula impuestos y construye el XML sin firmar ni timbrar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}

			engine := tax.NewEngine()
			bd := tax.NewBreakdown()
			if doc.Tipo == document.TipoIngreso {
				conceptos, calc, err := engine.Calculate(doc.Conceptos)
				if err != nil {
					return err
				}
				doc.Conceptos = conceptos
				doc.Totales = engine.Totales(conceptos, calc)
				bd = calc
			}

			xmlBytes, err := infracfdi.NewBuilderService().Build(doc, bd)
			if err != nil {
				return err
			}
			fmt.Printf("válido: %s, subtotal %s, total %s, %d bytes de XML\n",
				doc.Tipo, doc.Totales.SubTotal.StringFixed(2), doc.Totales.Total.StringFixed(2), len(xmlBytes))
			return nil
		},
	}
}

func newCancelarCmd() *cobra.Command {
	var (
		uuid, motivo, sustituto   string
		rfcEmisor, rfcReceptor    string
		total, tipo, fechaFactura string
	)
	cmd := &cobra.Command{
		Use:   "cancelar",
		Short: "Solicita la cancelación de un comprobante timbrado",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			req := &document.CancellationRequest{
				UUID:          uuid,
				Motivo:        motivo,
				UUIDSustituto: sustituto,
				RFCEmisor:     rfcEmisor,
				RFCReceptor:   rfcReceptor,
				Total:         total,
				Tipo:          document.DocumentType(tipo),
			}
			if fechaFactura != "" {
				t, err := time.Parse("2006-01-02", fechaFactura)
				if err != nil {
					return fmt.Errorf("fecha-factura: %w", err)
				}
				req.FechaFactura = t
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res, err := a.pipeline.Cancel(ctx, nil, req)
			if err != nil {
				return err
			}
			fmt.Printf("estado: %s\nacuse: %s\n", res.Estado, res.Acuse)
			if res.Mensaje != "" {
				fmt.Println("mensaje:", res.Mensaje)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&uuid, "uuid", "", "UUID del comprobante a cancelar")
	cmd.Flags().StringVar(&motivo, "motivo", "02", "motivo de cancelación (01..04)")
	cmd.Flags().StringVar(&sustituto, "uuid-sustituto", "", "UUID del comprobante que sustituye (motivo 01)")
	cmd.Flags().StringVar(&rfcEmisor, "rfc-emisor", "", "RFC del emisor")
	cmd.Flags().StringVar(&rfcReceptor, "rfc-receptor", "", "RFC del receptor")
	cmd.Flags().StringVar(&total, "total", "", "total del comprobante")
	cmd.Flags().StringVar(&tipo, "tipo", "I", "tipo de comprobante (I, P, T, RET)")
	cmd.Flags().StringVar(&fechaFactura, "fecha-factura", "", "fecha de emisión (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("uuid")
	return cmd
}

func newCSDCmd() *cobra.Command {
	csd := &cobra.Command{
		Use:   "csd",
		Short: "Operaciones sobre el certificado de sello digital",
	}
	csd.AddCommand(&cobra.Command{
		Use:   "verificar",
		Short: "Carga el CSD configurado y verifica vigencia y llave",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			cert, err := a.csd.Get()
			if err != nil {
				return err
			}
			leaf, _, err := signer.ValidateCSD(cert, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("sujeto: %s\nnoCertificado: %s\nvigencia: %s a %s\n",
				leaf.Subject.CommonName,
				signer.NoCertificado(leaf),
				leaf.NotBefore.Format("2006-01-02"),
				leaf.NotAfter.Format("2006-01-02"))
			return nil
		},
	})
	return csd
}

// loadDocument lee un TaxDocument serializado como JSON.
func loadDocument(path string) (*document.TaxDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer %s: %w", path, err)
	}
	var doc document.TaxDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsear %s: %w", path, err)
	}
	return &doc, nil
}
