package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fleetsign/internal/agent/client"
	"github.com/dropDatabas3/fleetsign/internal/agent/keycache"
	"github.com/dropDatabas3/fleetsign/internal/agent/reconciler"
	"github.com/dropDatabas3/fleetsign/internal/agent/verifier"
	"github.com/dropDatabas3/fleetsign/internal/auth"
	"github.com/dropDatabas3/fleetsign/internal/bus/membus"
	httpx "github.com/dropDatabas3/fleetsign/internal/http"
	adminctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/admin"
	agentctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/agentapi"
	healthctl "github.com/dropDatabas3/fleetsign/internal/http/controllers/health"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	adminsvc "github.com/dropDatabas3/fleetsign/internal/http/services/admin"
	agentsvc "github.com/dropDatabas3/fleetsign/internal/http/services/agentapi"
	"github.com/dropDatabas3/fleetsign/internal/metrics"
	"github.com/dropDatabas3/fleetsign/internal/protocol"
	"github.com/dropDatabas3/fleetsign/internal/rotation"
	"github.com/dropDatabas3/fleetsign/internal/signing"
	"github.com/dropDatabas3/fleetsign/internal/store/memory"
)

const testAdminKey = "router-test-admin-key"

type env struct {
	ts        *httptest.Server
	st        *memory.Store
	custodian *signing.LocalCustodian
	provider  *rotation.Provider
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st := memory.New()
	custodian, err := signing.NewLocalCustodian()
	require.NoError(t, err)
	tokens, err := auth.NewTokenManager("router-test-secret-0123456789abcdef", "fleetsign-test", time.Hour)
	require.NoError(t, err)

	provider := rotation.NewProvider(st.Keys())
	coordinator := rotation.NewCoordinator(custodian, st.Keys(), st.Artifacts(), st.Tenants(), st.RotationEvents())
	distributor := rotation.NewDistributor(membus.New(), st.Tenants(), nil)
	signer := rotation.NewArtifactSigner(custodian, st.Artifacts())

	deps := httpx.RouterDeps{
		AdminAPIKey: testAdminKey,
		Tokens:      tokens,

		Rotation:  adminctl.NewRotationController(adminsvc.NewRotationService(coordinator, distributor, provider)),
		Tenants:   adminctl.NewTenantsController(adminsvc.NewTenantsService(st.Tenants())),
		Agents:    adminctl.NewAgentsController(adminsvc.NewAgentsService(st.Agents(), st.Tenants(), tokens)),
		Keys:      adminctl.NewKeysController(adminsvc.NewKeysService(st.Keys(), st.RotationEvents())),
		Artifacts: adminctl.NewArtifactsController(adminsvc.NewArtifactsService(signer, st.Artifacts())),

		Agent:  agentctl.NewController(agentsvc.New(provider, st.Agents())),
		Health: healthctl.NewController(st),
	}

	ts := httptest.NewServer(httpx.NewRouter(deps))
	t.Cleanup(ts.Close)

	return &env{ts: ts, st: st, custodian: custodian, provider: provider}
}

// adminDo ejecuta un request admin con la API key y decodifica el body en out.
func (e *env) adminDo(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Admin-API-Key", testAdminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRouter_AdminRequiresAPIKey(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, err := http.Post(e.ts.URL+"/v1/admin/rotation", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "unauthorized", body.Error)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/v1/admin/tenants", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-API-Key", "wrong-key")
	resp2, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRouter_AgentRequiresBearer(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, err := http.Get(e.ts.URL + "/v1/agent/keys")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/v1/agent/keys", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp2, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRouter_HealthAndUnknownRoute(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(e.ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(e.ts.URL + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "route_not_found", body.Error)
}

func TestRouter_AgentKeysBeforeFirstRotation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var tenant dto.CreateTenantResponse
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/tenants", dto.CreateTenantRequest{Name: "acme"}, &tenant))

	var agent dto.CreateAgentResponse
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/agents", dto.CreateAgentRequest{
			TenantID: tenant.Tenant.ID, Name: "edge-01", Mode: "polling",
		}, &agent))

	// Sin clave current instalada el key-fetch es 503: el agente debe
	// reintentar, no cachear un par vacío.
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/v1/agent/keys", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+agent.Token)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// TestRouter_RotationLifecycle recorre el ciclo completo contra el server
// real: enrolamiento, firma, verificación en el agente, rotación, ventana
// legacy, re-firma y expiración de la clave vieja.
func TestRouter_RotationLifecycle(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	var tenant dto.CreateTenantResponse
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/tenants", dto.CreateTenantRequest{Name: "acme"}, &tenant))
	require.NotEmpty(t, tenant.BusCredentials)

	var agent dto.CreateAgentResponse
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/agents", dto.CreateAgentRequest{
			TenantID: tenant.Tenant.ID, Name: "edge-01", Mode: "polling",
		}, &agent))
	require.NotEmpty(t, agent.Token)
	require.NotEmpty(t, agent.Credential)

	// Primera rotación: instala la clave del custodio como current.
	var rot dto.RotateResult
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodPost, "/v1/admin/rotation", nil, &rot))
	require.Equal(t, "rotated", rot.Status)
	require.Equal(t, 1, rot.TenantsTargeted)
	require.Equal(t, 1, rot.Published)

	var artifact dto.Artifact
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/artifacts", dto.CreateArtifactRequest{
			ID: "deploy-v1", Payload: []byte("run: deploy --version v1"),
		}, &artifact))

	stored, err := e.st.Artifacts().GetByID(ctx, "deploy-v1")
	require.NoError(t, err)
	sigK1 := append([]byte(nil), stored.Signature...)

	// Lado agente: cliente HTTP real + cache en memoria.
	api := client.New(e.ts.URL, agent.Token, 5*time.Second)
	cache := keycache.NewMemory()
	ver := verifier.New(cache, api)
	rec := reconciler.New(cache, api)

	// Cold start: el cache está vacío, la primera verificación fetchea.
	status, err := ver.Verify(ctx, stored.Payload, sigK1)
	require.NoError(t, err)
	require.Equal(t, verifier.StatusVerifiedRefreshed, status)

	status, err = ver.Verify(ctx, stored.Payload, sigK1)
	require.NoError(t, err)
	require.Equal(t, verifier.StatusVerified, status)

	// El heartbeat ack expone el hash de la clave current.
	k1PEM, err := e.custodian.PublicKeyPEM(ctx)
	require.NoError(t, err)
	ack, err := api.Heartbeat(ctx, protocol.HeartbeatRequest{Status: "ok"})
	require.NoError(t, err)
	require.Equal(t, "ok", ack.Status)
	require.Equal(t, signing.KeyHash(k1PEM), ack.CurrentKeyHash)

	// Rotación real: clave nueva en el custodio, re-firma de artefactos.
	require.NoError(t, e.custodian.Rotate())
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodPost, "/v1/admin/rotation", nil, &rot))
	require.Equal(t, "rotated", rot.Status)
	require.Equal(t, 1, rot.ResignedCount)
	require.Zero(t, rot.ResignFailedCount)

	// Camino de polling: el heartbeat trae el hash nuevo y el reconciler
	// actualiza el cache (current=K2, old=K1).
	ack, err = api.Heartbeat(ctx, protocol.HeartbeatRequest{Status: "ok"})
	require.NoError(t, err)
	require.NotEqual(t, signing.KeyHash(k1PEM), ack.CurrentKeyHash)
	updated, err := rec.Reconcile(ctx, ack.CurrentKeyHash)
	require.NoError(t, err)
	require.True(t, updated)

	// La firma vieja sigue siendo válida durante la retención, como legacy.
	status, err = ver.Verify(ctx, stored.Payload, sigK1)
	require.NoError(t, err)
	require.Equal(t, verifier.StatusVerifiedLegacy, status)

	// La firma re-generada verifica contra current.
	resigned, err := e.st.Artifacts().GetByID(ctx, "deploy-v1")
	require.NoError(t, err)
	require.NotEqual(t, sigK1, resigned.Signature)
	status, err = ver.Verify(ctx, resigned.Payload, resigned.Signature)
	require.NoError(t, err)
	require.Equal(t, verifier.StatusVerified, status)

	// El audit trail registra ambas rotaciones, la más reciente primero.
	var events []dto.RotationEvent
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodGet, "/v1/admin/rotation-events", nil, &events))
	require.Len(t, events, 2)
	require.NotNil(t, events[0].OldKID)

	// Expira la clave vieja (cutoff en el futuro equivale a una ventana de
	// retención ya vencida): un agente que enrola después de la retención ya
	// no recibe K1 y rechaza las firmas legacy.
	evicted, err := e.st.Keys().DeleteExpiredOld(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, evicted)
	e.provider.Invalidate()

	fresh := verifier.New(keycache.NewMemory(), api)
	status, err = fresh.Verify(ctx, stored.Payload, sigK1)
	require.ErrorIs(t, err, verifier.ErrRejected)
	require.Equal(t, verifier.StatusRejected, status)
	require.False(t, status.Executable())
}

func TestRouter_RotationUnchangedIsIdempotent(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var rot dto.RotateResult
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodPost, "/v1/admin/rotation", nil, &rot))
	require.Equal(t, "rotated", rot.Status)

	// Sin Rotate() en el custodio la clave no cambió: mismo current, sin old.
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodPost, "/v1/admin/rotation", nil, &rot))
	require.Equal(t, "unchanged", rot.Status)

	var keys []dto.Key
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodGet, "/v1/admin/keys", nil, &keys))
	require.Len(t, keys, 1)
}

func TestRouter_MetricsUseRoutePattern(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var tenant dto.CreateTenantResponse
	require.Equal(t, http.StatusCreated,
		e.adminDo(t, http.MethodPost, "/v1/admin/tenants", dto.CreateTenantRequest{Name: "acme"}, &tenant))

	var got dto.Tenant
	require.Equal(t, http.StatusOK,
		e.adminDo(t, http.MethodGet, "/v1/admin/tenants/"+tenant.Tenant.ID, nil, &got))

	// El label de ruta es el patrón de chi, no el path con el UUID: el path
	// crudo sería una serie nueva por tenant.
	pattern := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(
		http.MethodGet, "/v1/admin/tenants/{tenantID}", "200"))
	require.GreaterOrEqual(t, pattern, float64(1))

	raw := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(
		http.MethodGet, "/v1/admin/tenants/"+tenant.Tenant.ID, "200"))
	require.Zero(t, raw)
}
