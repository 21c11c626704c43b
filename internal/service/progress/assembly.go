package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fabprogress/internal/storage"
)

type RegisterAssemblyInput struct {
	ID         string `json:"id,omitempty"`
	Mark       string `json:"mark"`
	ProjectRef string `json:"project_ref"`
}

// RegisterAssembly adds an assembly to the list the engine tracks. An empty
// ID gets a generated one.
func (s *Service) RegisterAssembly(ctx context.Context, in RegisterAssemblyInput) (*storage.Assembly, error) {
	const op = "service.progress.RegisterAssembly"

	if strings.TrimSpace(in.Mark) == "" {
		return nil, fmt.Errorf("%s: %w", op, invalid("mark is required"))
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	a := &storage.Assembly{
		ID:          in.ID,
		Mark:        in.Mark,
		ProjectRef:  in.ProjectRef,
		CurrentStep: storage.StepNotStarted,
		CreatedAt:   s.clock(),
	}
	if err := s.store.CreateAssembly(ctx, a); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("assembly registered", slog.String("assembly_id", a.ID), slog.String("mark", a.Mark))

	return a, nil
}

func (s *Service) GetAssembly(ctx context.Context, id string) (*storage.Assembly, error) {
	const op = "service.progress.GetAssembly"

	a, err := s.store.GetAssembly(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapNotFound(err, ErrAssemblyNotFound))
	}
	return a, nil
}

// Detail is everything an operator screen shows for one assembly.
type Detail struct {
	Assembly *storage.Assembly              `json:"assembly"`
	Progress *storage.ProgressState         `json:"progress"`
	Gate     *GateReport                    `json:"gate"`
	Checks   []*storage.QualityCheck        `json:"checks"`
	NCRs     []*storage.NonComplianceRecord `json:"ncrs"`
}

// GetDetail loads the assembly, its progress, the current step's checks and
// its NCRs concurrently.
func (s *Service) GetDetail(ctx context.Context, assemblyID string) (*Detail, error) {
	const op = "service.progress.GetDetail"

	p, err := s.loadProgress(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d := &Detail{Progress: p}
	var blocking []*storage.NonComplianceRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.store.GetAssembly(gctx, assemblyID)
		if err != nil {
			return mapNotFound(err, ErrAssemblyNotFound)
		}
		d.Assembly = a
		return nil
	})
	g.Go(func() error {
		step := p.CurrentStep
		checks, err := s.store.ListChecks(gctx, p.ID, &step)
		d.Checks = checks
		return err
	})
	g.Go(func() error {
		ncrs, err := s.store.ListAssemblyNCRs(gctx, assemblyID)
		d.NCRs = ncrs
		return err
	})
	g.Go(func() error {
		var err error
		blocking, err = s.store.ListBlockingNCRs(gctx, assemblyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d.Gate = buildGateReport(p, d.Checks, blocking)

	return d, nil
}
