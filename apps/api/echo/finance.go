package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/services/export"
)

type financeApi struct {
	auth      *authenticator
	svc       *finance.Service
	schoolSvc *school.Service
	mailSvc   core.EmailService
	validate  *validator.Validate
}

func registerFinanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *finance.Service,
	schoolSvc *school.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
) {
	api := financeApi{
		auth:      auth,
		svc:       svc,
		schoolSvc: schoolSvc,
		mailSvc:   mailSvc,
		validate:  validate,
	}

	ag := g.Group("", jwt, adminMiddleware())
	// money changing endpoints
	fin := adminMiddleware(user.FinanceRoles...)

	ag.GET("/concepts", api.queryConcepts)
	ag.POST("/concepts", api.createConcept, fin)
	ag.GET("/concepts/:id", api.retrieveConcept)
	ag.PUT("/concepts/:id", api.updateConcept, fin)
	ag.DELETE("/concepts/:id", api.destroyConcept, fin)

	ag.GET("/schedule", api.querySchedule)
	ag.POST("/schedule", api.generateSchedule, fin)
	ag.DELETE("/schedule", api.deleteUnpaidEntries, fin)
	ag.POST("/schedule/mora", api.applyMora, fin)
	ag.POST("/schedule/due-date", api.shiftDueDates, fin)
	ag.GET("/schedule/:id", api.retrieveEntry)

	ag.GET("/payments", api.queryPayments)
	ag.POST("/payments", api.registerPayment, fin)

	ag.GET("/debtors", api.queryDebtors)
	ag.POST("/debtors/send", api.sendDebtors, fin)
}

// Concepts

func (api *financeApi) queryConcepts(ctx echo.Context) error {
	filter := new(finance.ConceptFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []finance.Concept{})
	}
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter.IsActive = isActive
	ordering := new(Ordering)
	ordering.Bind(ctx)

	concepts, err := api.svc.QueryConcepts(ctx.Request().Context(), institutionID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying concepts")
	}
	if concepts == nil {
		concepts = []finance.Concept{}
	}
	return ctx.JSON(http.StatusOK, concepts)
}

func (api *financeApi) createConcept(ctx echo.Context) error {
	var data finance.NewConcept
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConcept")
	}
	concept, err := api.svc.CreateConcept(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating concept")
	}
	return ctx.JSON(http.StatusCreated, concept)
}

func (api *financeApi) retrieveConcept(ctx echo.Context) error {
	concept, err := api.svc.GetConcept(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting concept")
	}
	return ctx.JSON(http.StatusOK, concept)
}

func (api *financeApi) updateConcept(ctx echo.Context) error {
	var data finance.UpdateConcept
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateConcept")
	}
	concept, err := api.svc.UpdateConcept(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating concept")
	}
	return ctx.JSON(http.StatusOK, concept)
}

// destroyConcept answers 204 on deletion, or the deactivation when the concept is billed already.
func (api *financeApi) destroyConcept(ctx echo.Context) error {
	deactivated, err := api.svc.DeleteConcept(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting concept")
	}
	if !deactivated {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, DeactivatedResponse{Deactivated: true})
}

// Schedule

func (api *financeApi) querySchedule(ctx echo.Context) error {
	filter := new(finance.EntryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to EntryFilter")
	}
	isPaid, err := queryBool(ctx, "is_paid")
	if err != nil {
		return err
	}
	filter.IsPaid = isPaid
	ordering := new(Ordering)
	ordering.Bind(ctx)

	entries, err := api.svc.QuerySchedule(ctx.Request().Context(), institutionID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schedule")
	}
	if wantsXLSX(ctx) {
		today := core.Today()
		data, err := export.Schedule(entries, today)
		if err != nil {
			return errors.Wrap(err, "exporting schedule")
		}
		return attachment(ctx, export.Filename("cronograma", today), data)
	}
	if entries == nil {
		entries = []finance.ScheduleEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *financeApi) generateSchedule(ctx echo.Context) error {
	var data finance.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	entries, err := api.svc.GenerateSchedule(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "generating schedule")
	}
	return ctx.JSON(http.StatusCreated, entries)
}

func (api *financeApi) retrieveEntry(ctx echo.Context) error {
	detail, err := api.svc.GetEntry(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting entry")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *financeApi) applyMora(ctx echo.Context) error {
	var filter finance.BulkFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to BulkFilter")
	}
	result, err := api.svc.ApplyMora(ctx.Request().Context(), institutionID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "applying mora")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *financeApi) shiftDueDates(ctx echo.Context) error {
	var data finance.DueDateShift
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DueDateShift")
	}
	n, err := api.svc.ShiftDueDates(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "shifting due dates")
	}
	return ctx.JSON(http.StatusOK, BulkResponse{Affected: n})
}

// deleteUnpaidEntries reads its filters from the query: DELETE /schedule?concept_id=...&section_id=...
func (api *financeApi) deleteUnpaidEntries(ctx echo.Context) error {
	var data finance.BulkDelete
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkDelete")
	}
	n, err := api.svc.DeleteUnpaidEntries(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "deleting unpaid entries")
	}
	return ctx.JSON(http.StatusOK, BulkResponse{Affected: n})
}

// Payments

func (api *financeApi) registerPayment(ctx echo.Context) error {
	var data finance.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	settlement, err := api.svc.RegisterPayment(ctx.Request().Context(), ctxUsr.InstitutionID, data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "registering payment")
	}
	return ctx.JSON(http.StatusCreated, settlement)
}

func (api *financeApi) queryPayments(ctx echo.Context) error {
	filter := new(finance.PaymentFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to PaymentFilter")
	}
	instID := institutionID(ctx)

	payments, err := api.svc.QueryPayments(ctx.Request().Context(), instID, filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if wantsXLSX(ctx) {
		entries, err := api.svc.QuerySchedule(ctx.Request().Context(), instID, &finance.EntryFilter{StudentID: filter.StudentID}, nil)
		if err != nil {
			return errors.Wrap(err, "querying schedule")
		}
		descriptions := make(map[string]string, len(entries))
		for _, e := range entries {
			descriptions[e.ID] = e.StudentName + " - " + e.Description
		}
		data, err := export.Payments(payments, descriptions)
		if err != nil {
			return errors.Wrap(err, "exporting payments")
		}
		return attachment(ctx, export.Filename("pagos", core.Today()), data)
	}
	if payments == nil {
		payments = []finance.PaymentRecord{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

// Debtors

func (api *financeApi) queryDebtors(ctx echo.Context) error {
	var filter finance.BulkFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to BulkFilter")
	}
	if wantsXLSX(ctx) {
		data, err := api.debtorsReport(ctx, filter)
		if err != nil {
			return err
		}
		return attachment(ctx, export.Filename("morosos", core.Today()), data)
	}

	debtors, err := api.svc.QueryDebtors(ctx.Request().Context(), institutionID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying debtors")
	}
	return ctx.JSON(http.StatusOK, debtors)
}

// sendDebtors emails the debtors report (xlsx) to the given address.
func (api *financeApi) sendDebtors(ctx echo.Context) error {
	var data SendReportRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendReportRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	report, err := api.debtorsReport(ctx, data.BulkFilter)
	if err != nil {
		return err
	}
	today := core.Today()
	api.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: data.Email}},
		Subject: fmt.Sprintf("Reporte de morosos al %s", today),
		BodyStr: fmt.Sprintf("Adjuntamos el reporte de morosos al %s.", today),
		Attachments: []core.Attachment{{
			Filename:    export.Filename("morosos", today),
			ContentType: export.ContentType,
			Content:     report,
		}},
	})
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The report is on its way to " + data.Email + "."})
}

func (api *financeApi) debtorsReport(ctx echo.Context, filter finance.BulkFilter) ([]byte, error) {
	reqCtx := ctx.Request().Context()
	instID := institutionID(ctx)

	debtors, err := api.svc.QueryDebtors(reqCtx, instID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying debtors")
	}
	sections, err := api.schoolSvc.QuerySections(reqCtx, instID)
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	names := make(map[string]string, len(sections))
	for _, sec := range sections {
		names[sec.ID] = sec.Name
	}

	data, err := export.Debtors(debtors, names)
	return data, errors.Wrap(err, "exporting debtors")
}

func attachment(ctx echo.Context, filename string, data []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, export.ContentType, data)
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	// BulkResponse reports how many entries a bulk operation changed.
	BulkResponse struct {
		Affected int `json:"affected"`
	}

	DeactivatedResponse struct {
		Deactivated bool `json:"deactivated"`
	}

	SendReportRequest struct {
		finance.BulkFilter
		Email string `json:"email" validate:"required,email"`
	}
)
