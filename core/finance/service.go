package finance

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

type (
	Repository interface {
		// Atomic runs fn in a single transaction.
		// Every change made through the Repository given to fn is discarded if fn returns an error.
		Atomic(ctx context.Context, fn func(repo Repository) error) error

		CreateConcept(ctx context.Context, concept Concept) (Concept, error)
		GetConcept(ctx context.Context, institutionID, id string) (Concept, error)
		QueryConcepts(ctx context.Context, institutionID string, filter *ConceptFilter, ordering []core.DBOrdering) ([]Concept, error)
		UpdateConcept(ctx context.Context, concept Concept) (Concept, error)
		DeleteConcept(ctx context.Context, institutionID, id string) error
		// ConceptInUse reports whether any schedule entry references the concept.
		ConceptInUse(ctx context.Context, institutionID, id string) (bool, error)

		CreateEntries(ctx context.Context, entries []ScheduleEntry) ([]ScheduleEntry, error)
		// GetEntry fetches an entry; lock holds it until the end of the current transaction.
		GetEntry(ctx context.Context, institutionID, id string, lock bool) (ScheduleEntry, error)
		QueryEntries(ctx context.Context, institutionID string, filter *EntryFilter, ordering []core.DBOrdering) ([]ScheduleEntry, error)
		// UpdateEntryPayment persists AmountPaid & IsPaid.
		UpdateEntryPayment(ctx context.Context, entry ScheduleEntry) error
		// SetEntriesMora overwrites the accrued mora of the given entries ({entryID: mora}).
		SetEntriesMora(ctx context.Context, institutionID string, mora map[string]decimal.Decimal) error
		// ShiftDueDates overwrites the due date of the unpaid entries matching filter.
		ShiftDueDates(ctx context.Context, institutionID string, filter BulkFilter, dueDate core.Date) (int, error)
		// DeleteUnpaidEntries deletes the unpaid entries matching filter that have no payment and no pending voucher.
		DeleteUnpaidEntries(ctx context.Context, institutionID string, filter BulkFilter) (int, error)

		CreatePayment(ctx context.Context, payment PaymentRecord) (PaymentRecord, error)
		QueryPayments(ctx context.Context, institutionID string, filter *PaymentFilter) ([]PaymentRecord, error)
		GetPaymentByVoucher(ctx context.Context, institutionID, voucherID string) (PaymentRecord, error)

		CreateVoucher(ctx context.Context, voucher Voucher) (Voucher, error)
		// GetVoucher fetches a voucher; lock holds it until the end of the current transaction.
		GetVoucher(ctx context.Context, institutionID, id string, lock bool) (Voucher, error)
		QueryVouchers(ctx context.Context, institutionID string, filter *VoucherFilter, ordering []core.DBOrdering) ([]Voucher, error)
		UpdateVoucher(ctx context.Context, voucher Voucher) (Voucher, error)
	}

	StudentFinder interface {
		GetStudent(ctx context.Context, institutionID, id string) (school.Student, error)
		QueryStudents(ctx context.Context, institutionID string, filter *school.StudentFilter) ([]school.Student, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo            Repository
		students        StudentFinder
		users           UserFinder
		mailSvc         core.EmailService
		validate        *validator.Validate
		logger          core.Logger
		receiptPrefix   string
		defaultCurrency string
	}
)

func NewService(
	repo Repository,
	students StudentFinder,
	users UserFinder,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:            repo,
		students:        students,
		users:           users,
		mailSvc:         mailSvc,
		validate:        validate,
		logger:          logger,
		receiptPrefix:   conf.Finance.ReceiptPrefix,
		defaultCurrency: conf.Finance.DefaultCurrency,
	}
}

// Concepts

func (svc *Service) CreateConcept(ctx context.Context, institutionID string, nc NewConcept) (Concept, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Concept{}, err
	}
	if nc.Currency == "" {
		nc.Currency = svc.defaultCurrency
	}

	now := time.Now().UTC()
	concept, err := svc.repo.CreateConcept(ctx, Concept{
		InstitutionID:   institutionID,
		Name:            nc.Name,
		Description:     nc.Description,
		SuggestedAmount: nc.SuggestedAmount.Round(2),
		Currency:        strings.ToUpper(nc.Currency),
		DailyMoraRate:   nc.DailyMoraRate.Round(2),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Concept{}, svc.conceptNameErr(err)
	}
	return concept, nil
}

func (svc *Service) UpdateConcept(ctx context.Context, institutionID, id string, uc UpdateConcept) (Concept, error) {
	uc.Clean()
	if err := svc.validate.Struct(uc); err != nil {
		return Concept{}, err
	}

	concept, err := svc.repo.GetConcept(ctx, institutionID, id)
	if err != nil {
		return Concept{}, err
	}
	concept.Name = uc.Name
	concept.Description = uc.Description
	concept.SuggestedAmount = uc.SuggestedAmount.Round(2)
	concept.DailyMoraRate = uc.DailyMoraRate.Round(2)
	if uc.Currency != "" {
		concept.Currency = strings.ToUpper(uc.Currency)
	}
	if uc.IsActive != nil {
		concept.IsActive = *uc.IsActive
	}
	concept.UpdatedAt = time.Now().UTC()

	concept, err = svc.repo.UpdateConcept(ctx, concept)
	if err != nil {
		return Concept{}, svc.conceptNameErr(err)
	}
	return concept, nil
}

func (svc *Service) conceptNameErr(err error) error {
	if errors.Cause(err) == ErrConceptExists {
		return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrConceptExists.Error()})
	}
	return err
}

func (svc *Service) GetConcept(ctx context.Context, institutionID, id string) (Concept, error) {
	return svc.repo.GetConcept(ctx, institutionID, id)
}

func (svc *Service) QueryConcepts(ctx context.Context, institutionID string, filter *ConceptFilter, ordering []core.DBOrdering) ([]Concept, error) {
	return svc.repo.QueryConcepts(ctx, institutionID, filter, ordering)
}

// DeleteConcept hard-deletes an unreferenced Concept.
// A Concept referenced by schedule entries is deactivated instead; deactivated reports which one happened.
func (svc *Service) DeleteConcept(ctx context.Context, institutionID, id string) (deactivated bool, err error) {
	err = svc.repo.Atomic(ctx, func(repo Repository) error {
		concept, err := repo.GetConcept(ctx, institutionID, id)
		if err != nil {
			return err
		}
		inUse, err := repo.ConceptInUse(ctx, institutionID, id)
		if err != nil {
			return errors.Wrap(err, "checking concept usage")
		}
		if !inUse {
			return repo.DeleteConcept(ctx, institutionID, id)
		}

		deactivated = true
		if !concept.IsActive {
			return nil
		}
		concept.IsActive = false
		concept.UpdatedAt = time.Now().UTC()
		_, err = repo.UpdateConcept(ctx, concept)
		return err
	})
	return deactivated, err
}
