package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

type voucherApi struct {
	auth *authenticator
	svc  *finance.Service
}

func registerVoucherAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *finance.Service) {
	api := voucherApi{auth: auth, svc: svc}

	// review queue (admins)
	vg := g.Group("/vouchers", jwt, adminMiddleware())
	vg.GET("", api.query)
	vg.GET("/:id", api.retrieve)
	vg.GET("/:id/next", api.next)
	vg.GET("/:id/prev", api.prev)
	vg.POST("/:id/approve", api.approve, adminMiddleware(user.FinanceRoles...))
	vg.POST("/:id/reject", api.reject, adminMiddleware(user.FinanceRoles...))

	// parents portal
	pg := g.Group("/portal", jwt, parentMiddleware(auth))
	pg.GET("/students", api.portalStudents)
	pg.GET("/entries", api.portalEntries)
	pg.GET("/entries/:id", api.portalEntry)
	pg.GET("/vouchers", api.portalVouchers)
	pg.POST("/vouchers", api.submit)
}

// Review queue

func (api *voucherApi) query(ctx echo.Context) error {
	filter := new(finance.VoucherFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []finance.Voucher{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	vouchers, err := api.svc.QueryVouchers(ctx.Request().Context(), institutionID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying vouchers")
	}
	if vouchers == nil {
		vouchers = []finance.Voucher{}
	}
	return ctx.JSON(http.StatusOK, vouchers)
}

func (api *voucherApi) retrieve(ctx echo.Context) error {
	voucher, err := api.svc.GetVoucher(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting voucher")
	}
	return ctx.JSON(http.StatusOK, voucher)
}

func (api *voucherApi) next(ctx echo.Context) error {
	return api.adjacent(ctx, true)
}

func (api *voucherApi) prev(ctx echo.Context) error {
	return api.adjacent(ctx, false)
}

func (api *voucherApi) adjacent(ctx echo.Context, next bool) error {
	voucher, err := api.svc.AdjacentPendingVoucher(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"), next)
	if err != nil {
		return errors.Wrap(err, "getting adjacent voucher")
	}
	return ctx.JSON(http.StatusOK, voucher)
}

// approve answers 201 when the payment is created and 200 when the voucher was approved already.
func (api *voucherApi) approve(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	decision, err := api.svc.ApproveVoucher(ctx.Request().Context(), ctxUsr.InstitutionID, ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "approving voucher")
	}
	if decision.Unchanged {
		return ctx.JSON(http.StatusOK, decision)
	}
	return ctx.JSON(http.StatusCreated, decision)
}

func (api *voucherApi) reject(ctx echo.Context) error {
	var data finance.RejectVoucher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectVoucher")
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	decision, err := api.svc.RejectVoucher(ctx.Request().Context(), ctxUsr.InstitutionID, ctx.Param("id"), data, ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "rejecting voucher")
	}
	return ctx.JSON(http.StatusOK, decision)
}

// Parents portal

func (api *voucherApi) portalStudents(ctx echo.Context) error {
	students, err := api.children(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

// portalEntries lists the schedule of the parent's children, or of one of them with ?student_id=.
func (api *voucherApi) portalEntries(ctx echo.Context) error {
	filter := new(finance.EntryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to EntryFilter")
	}
	isPaid, err := queryBool(ctx, "is_paid")
	if err != nil {
		return err
	}
	filter.IsPaid = isPaid
	students, err := api.children(ctx)
	if err != nil {
		return err
	}
	filter.StudentIDs = make([]string, 0, len(students))
	for _, std := range students {
		filter.StudentIDs = append(filter.StudentIDs, std.ID)
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)
	entries, err := api.svc.QuerySchedule(ctx.Request().Context(), institutionID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying schedule")
	}
	if entries == nil {
		entries = []finance.ScheduleEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *voucherApi) portalEntry(ctx echo.Context) error {
	detail, err := api.svc.GetEntry(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting entry")
	}
	students, err := api.children(ctx)
	if err != nil {
		return err
	}
	for _, std := range students {
		if std.ID == detail.StudentID {
			return ctx.JSON(http.StatusOK, detail)
		}
	}
	return errHttpNotFound
}

func (api *voucherApi) portalVouchers(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	vouchers, err := api.svc.QueryVouchers(ctx.Request().Context(), usr.InstitutionID, &finance.VoucherFilter{SubmittedBy: usr.ID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying vouchers")
	}
	if vouchers == nil {
		vouchers = []finance.Voucher{}
	}
	return ctx.JSON(http.StatusOK, vouchers)
}

func (api *voucherApi) submit(ctx echo.Context) error {
	var data finance.NewVoucher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVoucher")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	voucher, err := api.svc.SubmitVoucher(ctx.Request().Context(), usr.InstitutionID, data, usr)
	if err != nil {
		return errors.Wrap(err, "submitting voucher")
	}
	return ctx.JSON(http.StatusCreated, voucher)
}

func (api *voucherApi) children(ctx echo.Context) ([]school.Student, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context user")
	}
	students, err := api.svc.StudentsOf(ctx.Request().Context(), usr.InstitutionID, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	if students == nil {
		students = []school.Student{}
	}
	return students, nil
}
