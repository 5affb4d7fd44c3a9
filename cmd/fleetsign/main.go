// fleetsign: CLI admin contra /v1/admin del service.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func (c *client) expect2xx(op string, status int, body []byte) error {
	if status/100 != 2 {
		return fmt.Errorf("%s fallo: status=%d body=%s", op, status, string(body))
	}
	return nil
}

func main() {
	var (
		baseURL = envOr("FLEETSIGN_ADMIN_URL", "http://localhost:8080")
		apiKey  = envOr("FLEETSIGN_ADMIN_KEY", "")
		out     = envOr("FLEETSIGN_OUT", "text")
		timeout = 30 * time.Second
	)

	root := &cobra.Command{
		Use:   "fleetsign",
		Short: "CLI admin para fleetsign (solo /v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return fmt.Errorf("falta API key (flag --admin-api-key o env FLEETSIGN_ADMIN_KEY)")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "admin-api-url", baseURL, "URL base del Admin API (env FLEETSIGN_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "API key del Admin API (env FLEETSIGN_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: timeout}}

	// ping: usa GET /v1/admin/rotation-events con limit=1
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping al Admin API (requiere X-Admin-API-Key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/rotation-events?limit=1", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("ping", status, body); err != nil {
				return err
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, []byte(`{"ok":true}`))
			return nil
		},
	}

	// rotate
	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Disparar un ciclo de rotación (promoción + re-firma + distribución)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/admin/rotation", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("rotate", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}

	// keys
	keysCmd := &cobra.Command{Use: "keys", Short: "Par de claves vigente"}
	keysListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar claves current/old",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/keys", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("keys list", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	var evLimit int
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Audit trail de rotaciones",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/rotation-events"
			if evLimit > 0 {
				path = fmt.Sprintf("%s?limit=%d", path, evLimit)
			}
			status, body, err := cl.do("GET", path, nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("keys events", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	eventsCmd.Flags().IntVar(&evLimit, "limit", 0, "Máximo de eventos (0 = default del server)")
	keysCmd.AddCommand(keysListCmd, eventsCmd)

	// tenants
	tenantsCmd := &cobra.Command{Use: "tenants", Short: "Operaciones sobre tenants"}

	var tenantName string
	tenantsCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Onboardear un tenant (devuelve credenciales de bus una sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantName == "" {
				return fmt.Errorf("--name es requerido")
			}
			b, _ := json.Marshal(map[string]any{"name": tenantName})
			status, body, err := cl.do("POST", "/v1/admin/tenants", b)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("tenants create", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	tenantsCreateCmd.Flags().StringVar(&tenantName, "name", "", "Nombre del tenant")

	tenantsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/tenants", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("tenants list", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}

	var credTenantID string
	tenantsCredsCmd := &cobra.Command{
		Use:   "rotate-bus-credentials",
		Short: "Rotar las credenciales de bus del tenant (el prefix no cambia)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if credTenantID == "" {
				return fmt.Errorf("--id es requerido")
			}
			status, body, err := cl.do("POST", "/v1/admin/tenants/"+credTenantID+"/bus-credentials", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("rotate-bus-credentials", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	tenantsCredsCmd.Flags().StringVar(&credTenantID, "id", "", "UUID del tenant")
	tenantsCmd.AddCommand(tenantsCreateCmd, tenantsListCmd, tenantsCredsCmd)

	// agents
	agentsCmd := &cobra.Command{Use: "agents", Short: "Operaciones sobre agentes"}

	var agTenantID, agName, agMode string
	agentsCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Registrar un agente (devuelve token y credencial una sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agTenantID == "" || agName == "" {
				return fmt.Errorf("--tenant-id y --name son requeridos")
			}
			b, _ := json.Marshal(map[string]any{
				"tenant_id": agTenantID,
				"name":      agName,
				"mode":      agMode,
			})
			status, body, err := cl.do("POST", "/v1/admin/agents", b)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("agents create", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	agentsCreateCmd.Flags().StringVar(&agTenantID, "tenant-id", "", "UUID del tenant")
	agentsCreateCmd.Flags().StringVar(&agName, "name", "", "Nombre del agente")
	agentsCreateCmd.Flags().StringVar(&agMode, "mode", "polling", "Modo: persistent|polling")

	var agListTenant string
	agentsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar agentes (opcionalmente por tenant)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/agents"
			if agListTenant != "" {
				path += "?tenant_id=" + agListTenant
			}
			status, body, err := cl.do("GET", path, nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("agents list", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	agentsListCmd.Flags().StringVar(&agListTenant, "tenant-id", "", "Filtrar por tenant")
	agentsCmd.AddCommand(agentsCreateCmd, agentsListCmd)

	// artifacts
	artifactsCmd := &cobra.Command{Use: "artifacts", Short: "Operaciones sobre artefactos firmados"}

	var artID, artTenantID, artFile string
	artifactsSignCmd := &cobra.Command{
		Use:   "sign",
		Short: "Firmar y almacenar un artefacto desde un archivo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if artFile == "" {
				return fmt.Errorf("--file es requerido")
			}
			payload, err := os.ReadFile(artFile)
			if err != nil {
				return err
			}
			b, _ := json.Marshal(map[string]any{
				"id":        artID,
				"tenant_id": artTenantID,
				"payload":   base64.StdEncoding.EncodeToString(payload),
			})
			status, body, err := cl.do("POST", "/v1/admin/artifacts", b)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("artifacts sign", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	artifactsSignCmd.Flags().StringVar(&artID, "id", "", "ID del artefacto (vacío = UUID nuevo)")
	artifactsSignCmd.Flags().StringVar(&artTenantID, "tenant-id", "", "UUID del tenant (vacío = global)")
	artifactsSignCmd.Flags().StringVar(&artFile, "file", "", "Archivo con el payload")

	artifactsListCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar artefactos",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/artifacts", nil)
			if err != nil {
				return err
			}
			if err := cl.expect2xx("artifacts list", status, body); err != nil {
				return err
			}
			cl.print(status, body)
			return nil
		},
	}
	artifactsCmd.AddCommand(artifactsSignCmd, artifactsListCmd)

	root.AddCommand(pingCmd, rotateCmd, keysCmd, tenantsCmd, agentsCmd, artifactsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
