package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

type schoolApi struct {
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service) {
	api := schoolApi{svc: svc}

	ag := g.Group("", jwt, adminMiddleware())
	ag.GET("/institution", api.institution)
	ag.GET("/sections", api.querySections)
	ag.POST("/sections", api.createSection, adminMiddleware(user.RoleAdminOwner))
	ag.GET("/students", api.queryStudents)
	ag.POST("/students", api.createStudent)
	ag.GET("/students/:id", api.retrieveStudent)
}

func (api *schoolApi) institution(ctx echo.Context) error {
	inst, err := api.svc.GetInstitution(ctx.Request().Context(), institutionID(ctx))
	if err != nil {
		return errors.Wrap(err, "getting institution")
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *schoolApi) querySections(ctx echo.Context) error {
	sections, err := api.svc.QuerySections(ctx.Request().Context(), institutionID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying sections")
	}
	if sections == nil {
		sections = []school.Section{}
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *schoolApi) createSection(ctx echo.Context) error {
	var data school.NewSection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSection")
	}
	sec, err := api.svc.CreateSection(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating section")
	}
	return ctx.JSON(http.StatusCreated, sec)
}

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	filter := new(school.StudentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.Student{})
	}
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter.IsActive = isActive
	filter.Clean()

	students, err := api.svc.QueryStudents(ctx.Request().Context(), institutionID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	var data school.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	std, err := api.svc.CreateStudent(ctx.Request().Context(), institutionID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	std, err := api.svc.GetStudent(ctx.Request().Context(), institutionID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, std)
}
