package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fleetsign/internal/auth"
	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// AgentsService registra y consulta agentes de la flota.
type AgentsService interface {
	Create(ctx context.Context, req dto.CreateAgentRequest) (*dto.CreateAgentResponse, error)
	Get(ctx context.Context, id string) (*dto.Agent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]dto.Agent, error)
	List(ctx context.Context) ([]dto.Agent, error)
	Delete(ctx context.Context, id string) error
}

type agentsService struct {
	agents  repository.AgentRepository
	tenants repository.TenantRepository
	tokens  *auth.TokenManager
}

func NewAgentsService(agents repository.AgentRepository, tenants repository.TenantRepository, tokens *auth.TokenManager) AgentsService {
	return &agentsService{agents: agents, tenants: tenants, tokens: tokens}
}

func parseMode(raw string) (repository.ConnectivityMode, error) {
	switch repository.ConnectivityMode(raw) {
	case repository.ModePersistent:
		return repository.ModePersistent, nil
	case repository.ModePolling:
		return repository.ModePolling, nil
	default:
		return "", fmt.Errorf("%w: mode must be %q or %q", repository.ErrInvalidInput,
			repository.ModePersistent, repository.ModePolling)
	}
}

// Create registra un agente y devuelve, una sola vez, su token bearer y la
// credencial de enrolamiento en texto plano. Solo se persiste el hash bcrypt.
func (s *agentsService) Create(ctx context.Context, req dto.CreateAgentRequest) (*dto.CreateAgentResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: agent name is required", repository.ErrInvalidInput)
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		return nil, err
	}

	// El tenant tiene que existir antes de colgar agentes debajo.
	if _, err := s.tenants.GetByID(ctx, req.TenantID); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", req.TenantID, err)
	}

	credential, err := auth.NewEnrollmentCredential()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashCredential(credential)
	if err != nil {
		return nil, err
	}

	a := &repository.Agent{
		ID:               uuid.NewString(),
		TenantID:         req.TenantID,
		Name:             name,
		ConnectivityMode: mode,
		CredentialHash:   hash,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.agents.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	token, err := s.tokens.IssueAgentToken(a)
	if err != nil {
		return nil, fmt.Errorf("issue agent token: %w", err)
	}

	logger.From(ctx).Info("agent registered",
		logger.Component("admin.agents"),
		logger.AgentID(a.ID),
		logger.TenantID(a.TenantID),
		logger.String("mode", string(a.ConnectivityMode)),
	)

	return &dto.CreateAgentResponse{
		Agent:      toAgentDTO(a),
		Token:      token,
		Credential: credential,
	}, nil
}

func (s *agentsService) Get(ctx context.Context, id string) (*dto.Agent, error) {
	a, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := toAgentDTO(a)
	return &d, nil
}

func (s *agentsService) ListByTenant(ctx context.Context, tenantID string) ([]dto.Agent, error) {
	as, err := s.agents.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toAgentDTOs(as), nil
}

func (s *agentsService) List(ctx context.Context) ([]dto.Agent, error) {
	as, err := s.agents.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return toAgentDTOs(as), nil
}

func (s *agentsService) Delete(ctx context.Context, id string) error {
	if err := s.agents.Delete(ctx, id); err != nil {
		return err
	}
	logger.From(ctx).Info("agent deleted",
		logger.Component("admin.agents"),
		logger.AgentID(id),
	)
	return nil
}

func toAgentDTO(a *repository.Agent) dto.Agent {
	d := dto.Agent{
		ID:        a.ID,
		TenantID:  a.TenantID,
		Name:      a.Name,
		Mode:      string(a.ConnectivityMode),
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.LastSeen != nil {
		ls := a.LastSeen.UTC().Format(time.RFC3339)
		d.LastSeen = &ls
	}
	return d
}

func toAgentDTOs(as []*repository.Agent) []dto.Agent {
	out := make([]dto.Agent, 0, len(as))
	for _, a := range as {
		out = append(out, toAgentDTO(a))
	}
	return out
}
