// Package intake is the boundary through which claims enter the engine:
// single-claim creation with reference checks, and bulk row import with
// per-row skip reporting.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/claim"
)

// ErrReferenceNotFound is returned when a client, SOW, or patient reference
// cannot be resolved.
var ErrReferenceNotFound = errors.New("reference not found")

// ReferenceResolver answers whether external references exist. The engine
// never creates clients, SOWs, or patients; it only checks them.
type ReferenceResolver interface {
	ClientExists(ctx context.Context, ref string) (bool, error)
	SOWExists(ctx context.Context, ref string) (bool, error)
	PatientExists(ctx context.Context, ref string) (bool, error)
}

// StaticResolver resolves references against fixed sets. Used in development
// and tests; production wires a resolver backed by the master-data service.
type StaticResolver struct {
	mu       sync.RWMutex
	clients  map[string]bool
	sows     map[string]bool
	patients map[string]bool
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		clients:  make(map[string]bool),
		sows:     make(map[string]bool),
		patients: make(map[string]bool),
	}
}

func (s *StaticResolver) AddClient(ref string)  { s.mu.Lock(); s.clients[ref] = true; s.mu.Unlock() }
func (s *StaticResolver) AddSOW(ref string)     { s.mu.Lock(); s.sows[ref] = true; s.mu.Unlock() }
func (s *StaticResolver) AddPatient(ref string) { s.mu.Lock(); s.patients[ref] = true; s.mu.Unlock() }

func (s *StaticResolver) ClientExists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[ref], nil
}

func (s *StaticResolver) SOWExists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sows[ref], nil
}

func (s *StaticResolver) PatientExists(_ context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patients[ref], nil
}

// AllowAllResolver accepts every non-empty reference. Stands in until the
// master-data integration supplies a real resolver.
type AllowAllResolver struct{}

func (AllowAllResolver) ClientExists(_ context.Context, ref string) (bool, error) {
	return ref != "", nil
}

func (AllowAllResolver) SOWExists(_ context.Context, ref string) (bool, error) {
	return ref != "", nil
}

func (AllowAllResolver) PatientExists(_ context.Context, ref string) (bool, error) {
	return ref != "", nil
}

// ClaimInput is everything intake needs to admit one claim.
type ClaimInput struct {
	ClientRef    string `json:"client_ref"`
	SOWRef       string `json:"sow_ref"`
	PatientRef   string `json:"patient_ref"`
	Payer        string `json:"payer"`
	TaskType     string `json:"task_type"`
	ClaimFormat  string `json:"claim_format"`
	ContractType string `json:"contract_type"`
	AmountCents  int64  `json:"amount_cents"`
	PayerScore   int    `json:"payer_score"`
	IntakeSource string `json:"intake_source"`
}

type Service struct {
	claims *claim.Service
	refs   ReferenceResolver
	log    zerolog.Logger
}

func NewService(claims *claim.Service, refs ReferenceResolver, logger zerolog.Logger) *Service {
	return &Service{claims: claims, refs: refs, log: logger}
}

// CreateClaim resolves the input's references and admits the claim in state
// new. Unresolvable references fail with ErrReferenceNotFound naming the
// field.
func (s *Service) CreateClaim(ctx context.Context, in ClaimInput) (uuid.UUID, error) {
	if err := s.resolve(ctx, in); err != nil {
		return uuid.Nil, err
	}
	if in.IntakeSource == "" {
		in.IntakeSource = "api"
	}
	c := &claim.Claim{
		ClientRef:    in.ClientRef,
		SOWRef:       in.SOWRef,
		PatientRef:   in.PatientRef,
		Payer:        in.Payer,
		TaskType:     in.TaskType,
		ClaimFormat:  in.ClaimFormat,
		ContractType: in.ContractType,
		IntakeSource: in.IntakeSource,
		AmountCents:  in.AmountCents,
		PayerScore:   in.PayerScore,
	}
	if err := s.claims.Create(ctx, c); err != nil {
		return uuid.Nil, err
	}
	return c.ID, nil
}

func (s *Service) resolve(ctx context.Context, in ClaimInput) error {
	checks := []struct {
		field string
		ref   string
		fn    func(context.Context, string) (bool, error)
	}{
		{"client_ref", in.ClientRef, s.refs.ClientExists},
		{"sow_ref", in.SOWRef, s.refs.SOWExists},
		{"patient_ref", in.PatientRef, s.refs.PatientExists},
	}
	for _, chk := range checks {
		if chk.ref == "" {
			return fmt.Errorf("%s is required", chk.field)
		}
		ok, err := chk.fn(ctx, chk.ref)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", chk.field, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s %q", ErrReferenceNotFound, chk.field, chk.ref)
		}
	}
	return nil
}

// FieldMapping maps canonical claim fields to source column names. Fields
// without a mapping read the column of the same name.
type FieldMapping map[string]string

// Row is one record of a bulk import.
type Row map[string]string

// SkippedRow explains why one row was not imported.
type SkippedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import: rows either create a claim or land
// in the skip list, never both, and a bad row never aborts the run.
type ImportResult struct {
	Created  int          `json:"created"`
	ClaimIDs []uuid.UUID  `json:"claim_ids"`
	Skipped  []SkippedRow `json:"skipped"`
}

// ImportRows admits rows in order, applying the field mapping. Rows that fail
// reference resolution, parsing, or validation are skipped with a reason.
func (s *Service) ImportRows(ctx context.Context, mapping FieldMapping, rows []Row) (*ImportResult, error) {
	result := &ImportResult{}
	for i, row := range rows {
		in, err := mapRow(mapping, row)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Index: i, Reason: err.Error()})
			continue
		}
		in.IntakeSource = "bulk_import"
		id, err := s.CreateClaim(ctx, in)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Index: i, Reason: err.Error()})
			continue
		}
		result.Created++
		result.ClaimIDs = append(result.ClaimIDs, id)
	}
	s.log.Info().
		Int("rows", len(rows)).
		Int("created", result.Created).
		Int("skipped", len(result.Skipped)).
		Msg("bulk import finished")
	return result, nil
}

func mapRow(mapping FieldMapping, row Row) (ClaimInput, error) {
	col := func(field string) string {
		if mapped, ok := mapping[field]; ok {
			return row[mapped]
		}
		return row[field]
	}

	in := ClaimInput{
		ClientRef:    col("client_ref"),
		SOWRef:       col("sow_ref"),
		PatientRef:   col("patient_ref"),
		Payer:        col("payer"),
		TaskType:     col("task_type"),
		ClaimFormat:  col("claim_format"),
		ContractType: col("contract_type"),
	}
	if raw := col("amount_cents"); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ClaimInput{}, fmt.Errorf("amount_cents %q is not an integer", raw)
		}
		in.AmountCents = amount
	}
	if raw := col("payer_score"); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			return ClaimInput{}, fmt.Errorf("payer_score %q is not an integer", raw)
		}
		in.PayerScore = score
	}
	return in, nil
}
