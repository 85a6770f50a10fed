package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lead-recovery/internal/audit"
	"lead-recovery/internal/auth"
	"lead-recovery/internal/campaign"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/reporting"
	"lead-recovery/internal/telephony"
	"lead-recovery/internal/vip"
	"lead-recovery/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Reporting *reporting.Service
	Campaigns *campaign.Runner
	Dialer    *campaign.Orchestrator
	Audit     *audit.Service

	// SecureCookies marks the session cookie Secure (production).
	SecureCookies bool

	// BlastTimeout bounds a synchronous test blast. The response write
	// deadline is pushed past it so a long dial outlives the server's
	// WriteTimeout. Zero keeps the server defaults.
	BlastTimeout time.Duration
}

const blastWriteSlack = 5 * time.Second

// writeError maps service errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, campaign.ErrInvalidRequest),
		errors.Is(err, leads.ErrInvalidTable):
		status = http.StatusBadRequest
	case errors.Is(err, leads.ErrNotFound), errors.Is(err, campaign.ErrBatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, leads.ErrFetch), errors.Is(err, campaign.ErrSMS):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func actor(c *gin.Context) audit.Actor {
	subject, _ := auth.Subject(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{Subject: subject, Role: role, IP: c.ClientIP()}
}

// --- Auth ---

type loginRequest struct {
	Password string `json:"password"`
}

// Login checks the shared password and sets the session cookie.
// The token is also returned for bearer clients.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	session, err := h.Auth.Login(req.Password, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	auth.SetSessionCookie(c, session.Token, h.Auth.TTL(), h.SecureCookies)
	if h.Audit != nil {
		a := audit.Actor{Subject: session.Role, Role: session.Role, IP: c.ClientIP()}
		if err := h.Audit.Login(c.Request.Context(), a); err != nil {
			logger.FromGin(c).Warn("audit login failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, session)
}

func (h Handlers) Logout(c *gin.Context) {
	auth.ClearSessionCookie(c, h.SecureCookies)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// --- Leads / dashboard ---

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

// ListLeads returns one page of leads with their recovery status.
func (h Handlers) ListLeads(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reporting.ListLeads(c.Request.Context(), reporting.ListRequest{
		Table:    c.Query("table"),
		Option:   c.Query("option"),
		Start:    c.Query("start"),
		End:      c.Query("end"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Dashboard(c *gin.Context) {
	out, err := h.Reporting.Dashboard(c.Request.Context(), reporting.DashboardRequest{
		Table:  c.Query("table"),
		Option: c.Query("option"),
		Start:  c.Query("start"),
		End:    c.Query("end"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Campaigns ---

type vipRequest struct {
	Passports []int64 `json:"passports,omitempty"`
	Commands  string  `json:"commands"`
	ExpiresAt string  `json:"expires_at,omitempty"`
}

type startCampaignRequest struct {
	Table  string `json:"table"`
	Option string `json:"option"`
	Start  string `json:"start"`
	End    string `json:"end"`
	// LeadIDs narrows the filtered list; empty means every lead in it.
	LeadIDs        []int64     `json:"lead_ids,omitempty"`
	SMSMessage     string      `json:"sms_message,omitempty"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	VIP            *vipRequest `json:"vip,omitempty"`
}

// parseExpiry accepts RFC 3339 or a wall-clock "2006-01-02T15:04" in loc.
func parseExpiry(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", vip.ExpiryLayout} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("expires_at must be RFC 3339 or YYYY-MM-DDTHH:MM")
}

// StartCampaign launches a batch in the background and returns its id.
func (h Handlers) StartCampaign(c *gin.Context) {
	var req startCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()

	table, err := h.Reporting.ResolveTable(req.Table)
	if err != nil {
		writeError(c, err)
		return
	}
	filter, err := h.Reporting.ParseFilter(req.Option, req.Start, req.End)
	if err != nil {
		writeError(c, err)
		return
	}

	var grant *campaign.VIPRequest
	if req.VIP != nil {
		exp, err := parseExpiry(req.VIP.ExpiresAt, h.Reporting.Location())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		grant = &campaign.VIPRequest{Passports: req.VIP.Passports, Commands: req.VIP.Commands, ExpiresAt: exp}
	}

	rows, err := h.Reporting.Leads(ctx, table, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	rows = selectLeads(rows, req.LeadIDs)
	if len(rows) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no leads match the selection"})
		return
	}

	batchID, err := h.Campaigns.Start(ctx, campaign.Request{
		BatchID:    strings.TrimSpace(req.IdempotencyKey),
		Table:      table,
		Targets:    campaign.TargetsFromLeads(rows),
		SMSMessage: strings.TrimSpace(req.SMSMessage),
		VIP:        grant,
		Actor:      actor(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "targets": len(rows)})
}

func selectLeads(rows []leads.Lead, ids []int64) []leads.Lead {
	if len(ids) == 0 {
		return rows
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := rows[:0:0]
	for _, l := range rows {
		if _, ok := want[l.ID]; ok {
			out = append(out, l)
		}
	}
	return out
}

// GetCampaign reports live progress, plus the full result once this
// instance has finished the batch.
func (h Handlers) GetCampaign(c *gin.Context) {
	id := c.Param("id")
	p, err := h.Campaigns.Progress(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"progress": p}
	if res, ok := h.Campaigns.Result(id); ok {
		body["result"] = res
	}
	c.JSON(http.StatusOK, body)
}

type testBlastRequest struct {
	// Numbers is newline separated; Lines is accepted for JSON array clients.
	Numbers    string   `json:"numbers"`
	Lines      []string `json:"lines"`
	SMSMessage string   `json:"sms_message,omitempty"`
	VIP        *struct {
		Passport  int64  `json:"passport"`
		Commands  string `json:"commands"`
		ExpiresAt string `json:"expires_at,omitempty"`
	} `json:"vip,omitempty"`
}

func (h Handlers) TestBlast(c *gin.Context) {
	var req testBlastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	lines := append(strings.Split(req.Numbers, "\n"), req.Lines...)

	var grant *campaign.BlastVIP
	if req.VIP != nil {
		exp, err := parseExpiry(req.VIP.ExpiresAt, h.Reporting.Location())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		grant = &campaign.BlastVIP{Passport: req.VIP.Passport, Commands: req.VIP.Commands, ExpiresAt: exp}
	}

	ctx := c.Request.Context()
	if h.BlastTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.BlastTimeout)
		defer cancel()
		rc := http.NewResponseController(c.Writer)
		if err := rc.SetWriteDeadline(time.Now().Add(h.BlastTimeout + blastWriteSlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.FromGin(c).Warn("extend write deadline failed", "err", err)
		}
	}

	out, err := h.Dialer.TestBlast(ctx, campaign.BlastRequest{
		Lines:      lines,
		SMSMessage: strings.TrimSpace(req.SMSMessage),
		VIP:        grant,
		Actor:      actor(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type sendSMSRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h Handlers) SendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	phone, err := h.Dialer.SendSMS(c.Request.Context(), actor(c), req.Phone, req.Message)
	if err != nil {
		if errors.Is(err, telephony.ErrInvalidPhone) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid phone"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "phone": phone})
}
