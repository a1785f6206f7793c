package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"abhyasika/internal/identity"
	"abhyasika/internal/models"
	"abhyasika/internal/services"
)

// Verifier confirms an emailed verification token.
type Verifier interface {
	Verify(ctx context.Context, token string) (identity.Principal, error)
}

// Deps are the services the HTTP surface dispatches to.
type Deps struct {
	Library       services.LibraryService
	Sessions      *services.SessionService
	Accounts      *services.AccountService
	Notifications *services.NotificationService
	Attendance    *services.AttendanceService
	Verifier      Verifier
	MetricsPage   http.Handler
	Logger        *zap.Logger
	Now           func() time.Time
}

type Handler struct {
	library  services.LibraryService
	sessions *services.SessionService
	accounts *services.AccountService
	notify   *services.NotificationService
	attend   *services.AttendanceService
	verifier Verifier
	logger   *zap.Logger
	now      func() time.Time
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &Handler{
		library:  d.Library,
		sessions: d.Sessions,
		accounts: d.Accounts,
		notify:   d.Notifications,
		attend:   d.Attendance,
		verifier: d.Verifier,
		logger:   d.Logger,
		now:      d.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}

	// Public endpoints
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.MetricsPage != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsPage))
	}
	r.POST("/auth/login", h.login)
	r.GET("/auth/verify", h.verifyEmail)

	authed := r.Group("/", h.authenticate)
	authed.POST("/auth/logout", h.logout)
	authed.GET("/auth/session", h.currentSession)

	// Tenant endpoints
	t := authed.Group("/", h.tenantOnly)
	t.GET("/profile", h.getProfile)
	t.PUT("/profile", h.saveProfile)
	t.GET("/settings", h.getSettings)
	t.PUT("/settings", h.saveSettings)
	t.GET("/rooms", h.listRooms)
	t.POST("/rooms", h.addRoom)
	t.PUT("/rooms/:id", h.updateRoom)
	t.DELETE("/rooms/:id", h.deleteRoom)
	t.GET("/seats", h.listSeats)
	t.PUT("/seats/:id", h.updateSeat)
	t.POST("/seats/:id/assign", h.assignSeat)
	t.POST("/seats/:id/vacate", h.vacateSeat)
	t.GET("/students", h.listStudents)
	t.POST("/students", h.admitStudent)
	t.POST("/students/expire", h.expireStudents)
	t.PUT("/students/:id", h.updateStudent)
	t.DELETE("/students/:id", h.deleteStudent)
	t.GET("/payments", h.listPayments)
	t.POST("/payments", h.recordPayment)
	t.GET("/enquiries", h.listEnquiries)
	t.POST("/enquiries", h.addEnquiry)
	t.PUT("/enquiries/:id", h.updateEnquiry)
	t.DELETE("/enquiries/:id", h.deleteEnquiry)
	t.GET("/attendance", h.listAttendance)
	t.POST("/attendance/scan", h.scan)
	t.POST("/attendance/toggle", h.toggle)
	t.GET("/notifications", h.listNotifications)
	t.POST("/notifications/:id/read", h.markRead)
	t.POST("/sync", h.sync)
	t.POST("/reconcile", h.reconcile)

	// Super admin endpoints
	a := authed.Group("/admin", h.superAdminOnly)
	a.GET("/accounts", h.listAccounts)
	a.POST("/accounts", h.createAccount)
	a.POST("/accounts/sync", h.syncAccounts)
	a.PUT("/accounts/:id", h.updateAccount)
	a.DELETE("/accounts/:id", h.deleteAccount)
	a.POST("/accounts/:id/status", h.setAccountStatus)
	a.POST("/broadcast", h.broadcast)
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.sessions.Login(c.Request.Context(), req.Identifier, req.Secret)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	if h.verifier == nil {
		h.fail(c, identity.ErrProviderDisabled)
		return
	}
	p, err := h.verifier.Verify(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": p.Email, "verified": p.Verified})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), sessionFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) currentSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c))
}

// ─── Profile & Settings ───────────────────────────────────────────────────────

func (h *Handler) getProfile(c *gin.Context) {
	p, ok := h.library.GetProfile(sessionFrom(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not set"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) saveProfile(c *gin.Context) {
	var req models.LibraryProfile
	if !bind(c, &req) {
		return
	}
	p, err := h.library.SaveProfile(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.GetSettings(sessionFrom(c)))
}

func (h *Handler) saveSettings(c *gin.Context) {
	var req models.Settings
	if !bind(c, &req) {
		return
	}
	st, err := h.library.SaveSettings(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ─── Rooms & Seats ────────────────────────────────────────────────────────────

func (h *Handler) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.ListRooms(sessionFrom(c)))
}

func (h *Handler) addRoom(c *gin.Context) {
	var req models.Room
	if !bind(c, &req) {
		return
	}
	room, err := h.library.AddRoom(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) updateRoom(c *gin.Context) {
	var req models.Room
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	room, err := h.library.UpdateRoom(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) deleteRoom(c *gin.Context) {
	if err := h.library.DeleteRoom(c.Request.Context(), sessionFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSeats(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.ListSeats(sessionFrom(c)))
}

func (h *Handler) updateSeat(c *gin.Context) {
	var req services.SeatPatch
	if !bind(c, &req) {
		return
	}
	seat, err := h.library.UpdateSeat(c.Request.Context(), sessionFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seat)
}

type assignRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

func (h *Handler) assignSeat(c *gin.Context) {
	var req assignRequest
	if !bind(c, &req) {
		return
	}
	seat, err := h.library.AssignSeat(c.Request.Context(), sessionFrom(c), c.Param("id"), req.StudentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seat)
}

func (h *Handler) vacateSeat(c *gin.Context) {
	seat, err := h.library.VacateSeat(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, seat)
}

// ─── Students & Payments ──────────────────────────────────────────────────────

func (h *Handler) listStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.ListStudents(sessionFrom(c)))
}

func (h *Handler) admitStudent(c *gin.Context) {
	var req models.Student
	if !bind(c, &req) {
		return
	}
	st, err := h.library.AdmitStudent(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var req models.Student
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	st, err := h.library.UpdateStudent(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.library.DeleteStudent(c.Request.Context(), sessionFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) expireStudents(c *gin.Context) {
	n, err := h.library.ExpireStudents(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

func (h *Handler) listPayments(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.ListPayments(sessionFrom(c)))
}

func (h *Handler) recordPayment(c *gin.Context) {
	var req models.Payment
	if !bind(c, &req) {
		return
	}
	p, err := h.library.RecordPayment(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ─── Enquiries ────────────────────────────────────────────────────────────────

func (h *Handler) listEnquiries(c *gin.Context) {
	c.JSON(http.StatusOK, h.library.ListEnquiries(sessionFrom(c)))
}

func (h *Handler) addEnquiry(c *gin.Context) {
	var req models.Enquiry
	if !bind(c, &req) {
		return
	}
	e, err := h.library.AddEnquiry(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) updateEnquiry(c *gin.Context) {
	var req models.Enquiry
	if !bind(c, &req) {
		return
	}
	req.ID = c.Param("id")
	e, err := h.library.UpdateEnquiry(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) deleteEnquiry(c *gin.Context) {
	if err := h.library.DeleteEnquiry(c.Request.Context(), sessionFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Attendance & Notifications ───────────────────────────────────────────────

func (h *Handler) listAttendance(c *gin.Context) {
	c.JSON(http.StatusOK, h.attend.List(sessionFrom(c), c.Query("date")))
}

type scanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

func (h *Handler) scan(c *gin.Context) {
	var req scanRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.attend.Scan(c.Request.Context(), sessionFrom(c), req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type toggleRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

func (h *Handler) toggle(c *gin.Context) {
	var req toggleRequest
	if !bind(c, &req) {
		return
	}
	rec, err := h.attend.Toggle(c.Request.Context(), sessionFrom(c), req.StudentID, models.AttendanceMethodManual)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.notify.List(sessionFrom(c)))
}

func (h *Handler) markRead(c *gin.Context) {
	if err := h.notify.MarkRead(c.Request.Context(), sessionFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sync(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Hydrate(c.Request.Context(), sessionFrom(c)))
}

func (h *Handler) reconcile(c *gin.Context) {
	n, err := h.library.Reconcile(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": n})
}

// ─── Super Admin ──────────────────────────────────────────────────────────────

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(sessionFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *Handler) createAccount(c *gin.Context) {
	var req services.CreateAccountRequest
	if !bind(c, &req) {
		return
	}
	account, err := h.accounts.Create(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) syncAccounts(c *gin.Context) {
	n, err := h.accounts.Sync(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": n})
}

func (h *Handler) updateAccount(c *gin.Context) {
	var req services.AccountPatch
	if !bind(c, &req) {
		return
	}
	account, err := h.accounts.Update(c.Request.Context(), sessionFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	report, err := h.accounts.Delete(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type statusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) setAccountStatus(c *gin.Context) {
	var req statusRequest
	if !bind(c, &req) {
		return
	}
	account, err := h.accounts.SetActive(c.Request.Context(), sessionFrom(c), c.Param("id"), *req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) broadcast(c *gin.Context) {
	var req services.BroadcastRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.notify.Broadcast(c.Request.Context(), sessionFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
