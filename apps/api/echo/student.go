package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/wallet"
)

// studentApi serves the student dashboard. Apart from notifications, every
// endpoint fails soft: on a query error it logs and returns zeros or an
// empty list so one bad query does not take the whole dashboard down.
type studentApi struct {
	classSvc      class.Service
	sessionSvc    session.Service
	assignmentSvc assignment.Service
	walletSvc     wallet.Service
	notifSvc      notification.Service
	logger        core.Logger
}

type DashboardStats struct {
	ActiveClasses       int `json:"active_classes"`
	UpcomingSessions    int `json:"upcoming_sessions"`
	PendingAssignments  int `json:"pending_assignments"`
	UnreadNotifications int `json:"unread_notifications"`
	TokenBalance        int `json:"token_balance"`
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := studentApi{
		classSvc:      deps.ClassSvc,
		sessionSvc:    deps.SessionSvc,
		assignmentSvc: deps.AssignmentSvc,
		walletSvc:     deps.WalletSvc,
		notifSvc:      deps.NotifSvc,
		logger:        deps.Logger,
	}

	sg := g.Group("/student", jwt)
	sg.GET("/dashboard/stats", api.dashboardStats)
	sg.GET("/classes", api.classes)
	sg.GET("/assignments", api.assignments)
	sg.GET("/sessions", api.sessions)
	sg.GET("/wallet", api.wallet)
	sg.GET("/notifications", api.notifications)
}

func (api *studentApi) failSoft(what string, err error) {
	api.logger.Error("student dashboard: "+what, err)
}

func (api *studentApi) dashboardStats(ctx echo.Context) error {
	userID := ctx.QueryParam("userId")
	rctx := ctx.Request().Context()
	var stats DashboardStats

	if classes, err := api.classSvc.Query(rctx, &class.QueryFilter{StudentID: userID, Status: class.StatusActive}); err != nil {
		api.failSoft("counting classes", err)
	} else {
		stats.ActiveClasses = len(classes)
	}

	if sessions, err := api.sessionSvc.Query(rctx, &session.QueryFilter{StudentID: userID, Status: session.StatusScheduled}); err != nil {
		api.failSoft("counting sessions", err)
	} else {
		now := time.Now()
		for _, ses := range sessions {
			if ses.ScheduledStart.After(now) {
				stats.UpcomingSessions++
			}
		}
	}

	if subs, err := api.assignmentSvc.GetStudentSubmissions(rctx, userID); err != nil {
		api.failSoft("counting assignments", err)
	} else {
		submitted := make(map[string]struct{}, len(subs))
		for _, sub := range subs {
			submitted[sub.AssignmentID] = struct{}{}
		}
		published := true
		if assignments, err := api.assignmentSvc.Query(rctx, &assignment.QueryFilter{Published: &published}); err != nil {
			api.failSoft("counting assignments", err)
		} else {
			for _, a := range assignments {
				if _, done := submitted[a.ID]; !done && a.Status == assignment.StatusPublished {
					stats.PendingAssignments++
				}
			}
		}
	}

	if notifs, err := api.notifSvc.QueryByUser(rctx, userID); err != nil {
		api.failSoft("counting notifications", err)
	} else {
		for _, n := range notifs {
			if !n.IsRead {
				stats.UnreadNotifications++
			}
		}
	}

	if w, err := api.walletSvc.GetOrCreateWallet(rctx, userID); err != nil {
		api.failSoft("getting wallet", err)
	} else {
		stats.TokenBalance = w.Tokens
	}

	return ctx.JSON(http.StatusOK, stats)
}

func (api *studentApi) classes(ctx echo.Context) error {
	classes, err := api.classSvc.Query(ctx.Request().Context(), &class.QueryFilter{StudentID: ctx.QueryParam("userId")})
	if err != nil {
		api.failSoft("querying classes", err)
		classes = nil
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *studentApi) assignments(ctx echo.Context) error {
	published := true
	assignments, err := api.assignmentSvc.Query(ctx.Request().Context(), &assignment.QueryFilter{Published: &published})
	if err != nil {
		api.failSoft("querying assignments", err)
		assignments = nil
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *studentApi) sessions(ctx echo.Context) error {
	sessions, err := api.sessionSvc.Query(ctx.Request().Context(), &session.QueryFilter{StudentID: ctx.QueryParam("userId")})
	if err != nil {
		api.failSoft("querying sessions", err)
		sessions = nil
	}
	if sessions == nil {
		sessions = []session.ClassSession{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *studentApi) wallet(ctx echo.Context) error {
	userID := ctx.QueryParam("userId")
	w, err := api.walletSvc.GetOrCreateWallet(ctx.Request().Context(), userID)
	if err != nil {
		api.failSoft("getting wallet", err)
		w = wallet.Wallet{UserID: userID, Currency: "usd"}
	}
	return ctx.JSON(http.StatusOK, w)
}

// notifications is the one endpoint that propagates its error.
func (api *studentApi) notifications(ctx echo.Context) error {
	notifs, err := api.notifSvc.QueryByUser(ctx.Request().Context(), ctx.QueryParam("userId"))
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if notifs == nil {
		notifs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifs)
}
