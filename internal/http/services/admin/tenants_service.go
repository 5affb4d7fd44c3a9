package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/fleetsign/internal/bus"
	"github.com/dropDatabas3/fleetsign/internal/domain/repository"
	dto "github.com/dropDatabas3/fleetsign/internal/http/dto/admin"
	"github.com/dropDatabas3/fleetsign/internal/observability/logger"
)

// TenantsService maneja el onboarding y consulta de tenants.
type TenantsService interface {
	Create(ctx context.Context, req dto.CreateTenantRequest) (*dto.CreateTenantResponse, error)
	Get(ctx context.Context, id string) (*dto.Tenant, error)
	List(ctx context.Context) ([]dto.Tenant, error)
	RotateBusCredentials(ctx context.Context, id string) (*dto.CreateTenantResponse, error)
}

type tenantsService struct {
	tenants repository.TenantRepository
}

func NewTenantsService(tenants repository.TenantRepository) TenantsService {
	return &tenantsService{tenants: tenants}
}

// newBusCredentials genera el valor opaco que el tenant presenta al bus.
// El scope real lo impone el SubjectPrefix, no este valor.
func newBusCredentials(tenantID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate bus credentials: %w", err)
	}
	return tenantID + "." + base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *tenantsService) Create(ctx context.Context, req dto.CreateTenantRequest) (*dto.CreateTenantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", repository.ErrInvalidInput)
	}

	id := uuid.NewString()
	prefix, err := bus.TenantPrefix(id)
	if err != nil {
		return nil, fmt.Errorf("derive subject prefix: %w", err)
	}
	creds, err := newBusCredentials(id)
	if err != nil {
		return nil, err
	}

	t := &repository.Tenant{
		ID:             id,
		Name:           name,
		SubjectPrefix:  prefix,
		BusCredentials: creds,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	logger.From(ctx).Info("tenant onboarded",
		logger.Component("admin.tenants"),
		logger.TenantID(t.ID),
		logger.String("name", t.Name),
	)

	return &dto.CreateTenantResponse{
		Tenant:         toTenantDTO(t),
		BusCredentials: creds,
	}, nil
}

func (s *tenantsService) Get(ctx context.Context, id string) (*dto.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := toTenantDTO(t)
	return &d, nil
}

func (s *tenantsService) List(ctx context.Context) ([]dto.Tenant, error) {
	ts, err := s.tenants.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Tenant, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTenantDTO(t))
	}
	return out, nil
}

// RotateBusCredentials emite credenciales de bus nuevas. El SubjectPrefix no
// cambia: las suscripciones vigentes del tenant siguen siendo válidas.
func (s *tenantsService) RotateBusCredentials(ctx context.Context, id string) (*dto.CreateTenantResponse, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	creds, err := newBusCredentials(t.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tenants.UpdateBusCredentials(ctx, t.ID, creds); err != nil {
		return nil, fmt.Errorf("update bus credentials: %w", err)
	}

	logger.From(ctx).Info("bus credentials rotated",
		logger.Component("admin.tenants"),
		logger.TenantID(t.ID),
	)

	return &dto.CreateTenantResponse{
		Tenant:         toTenantDTO(t),
		BusCredentials: creds,
	}, nil
}

func toTenantDTO(t *repository.Tenant) dto.Tenant {
	return dto.Tenant{
		ID:            t.ID,
		Name:          t.Name,
		SubjectPrefix: t.SubjectPrefix,
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
