package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/shift-signup/internal/config"
	"github.com/iliyamo/shift-signup/internal/middleware"
	"github.com/iliyamo/shift-signup/internal/model"
	"github.com/iliyamo/shift-signup/internal/repository"
	"github.com/iliyamo/shift-signup/internal/service"
	"github.com/iliyamo/shift-signup/internal/utils"
)

const testSecret = "test-secret"

type testServer struct {
	e   *echo.Echo
	svc *service.BookingService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	policy := repository.RetryPolicy{Attempts: 20, Base: time.Millisecond, Max: 5 * time.Millisecond}
	svc := service.NewBookingService(repository.NewSlotRepo(rdb), repository.NewBookingRepo(rdb, policy), repository.NewEmployeeRepo(rdb), nil)

	e := echo.New()
	e.GET("/healthz", Health(rdb))
	slots := NewSlotHandler(svc)
	e.GET("/v1/slots", slots.ListOpen)
	e.GET("/v1/slots/:id", slots.Get)
	e.POST("/v1/slots/:id/signup", slots.Signup)
	e.POST("/v1/slots/:id/employee-signup", slots.EmployeeSignup)
	e.POST("/v1/employees", slots.RegisterEmployee)

	admin := NewAdminHandler(svc)
	g := e.Group("/v1/admin", middleware.JWTAuth(testSecret), middleware.RequireRole(model.RoleSuper, model.RoleViewer))
	g.GET("/slots", admin.ListSlots)
	g.GET("/slots/:id/bookings", admin.Bookings)
	super := middleware.RequireRole(model.RoleSuper)
	g.POST("/slots", admin.CreateSlot, super)
	g.PUT("/slots/:id", admin.UpdateSlot, super)
	g.DELETE("/slots/:id", admin.DeleteSlot, super)
	g.DELETE("/slots/:id/bookings/:ref", admin.DeleteBooking, super)

	t.Cleanup(svc.Wait)
	return &testServer{e: e, svc: svc}
}

func (s *testServer) do(method, path, body, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		tok, _ := utils.NewAccessToken(testSecret, 1, role, role, 5)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func (s *testServer) createSlot(t *testing.T, body string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/v1/admin/slots", body, model.RoleSuper)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create slot: %d %s", rec.Code, rec.Body.String())
	}
	return decode(t, rec)["id"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
}

func TestSignupFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.createSlot(t, `{"work_date":"2026-11-01","slot_name":"Morning","capacity":1}`)

	rec := s.do(http.MethodPost, "/v1/slots/"+id+"/signup", `{"name":"Amy","id_last_4":"1234"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["work_date"] != "2026-11-01" || body["slot_name"] != "Morning" {
		t.Errorf("signup response missing slot details: %v", body)
	}

	cases := []struct {
		name, path, body string
		status           int
		code             string
	}{
		{"duplicate", "/v1/slots/" + id + "/signup", `{"name":"Amy","id_last_4":"1234"}`, http.StatusConflict, "already_booked"},
		{"full", "/v1/slots/" + id + "/signup", `{"name":"Ben","id_last_4":"5678"}`, http.StatusConflict, "slot_full"},
		{"bad last4", "/v1/slots/" + id + "/signup", `{"name":"Ben","id_last_4":"56"}`, http.StatusBadRequest, "validation_failed"},
		{"missing slot", "/v1/slots/nope/signup", `{"name":"Ben","id_last_4":"5678"}`, http.StatusNotFound, "slot_not_found"},
	}
	for _, tc := range cases {
		rec := s.do(http.MethodPost, tc.path, tc.body, "")
		if rec.Code != tc.status {
			t.Errorf("%s: expected %d, got %d %s", tc.name, tc.status, rec.Code, rec.Body.String())
			continue
		}
		if got := decode(t, rec)["error"]; got != tc.code {
			t.Errorf("%s: expected error %q, got %v", tc.name, tc.code, got)
		}
	}
}

func TestClosedSlotRejectsSignup(t *testing.T) {
	s := newTestServer(t)
	id := s.createSlot(t, `{"work_date":"2026-11-01","slot_name":"Late","is_open":false,"capacity":5}`)

	rec := s.do(http.MethodPost, "/v1/slots/"+id+"/signup", `{"name":"Amy","id_last_4":"1234"}`, "")
	if rec.Code != http.StatusConflict || decode(t, rec)["error"] != "slot_closed" {
		t.Fatalf("expected slot_closed, got %d %s", rec.Code, rec.Body.String())
	}
	list := decode(t, s.do(http.MethodGet, "/v1/slots", "", ""))
	if slots, _ := list["slots"].([]any); len(slots) != 0 {
		t.Fatalf("closed slot listed publicly: %v", slots)
	}
}

func TestEmployeeRegistrationAndSignup(t *testing.T) {
	s := newTestServer(t)
	id := s.createSlot(t, `{"work_date":"2026-11-01","slot_name":"Morning","capacity":3}`)

	rec := s.do(http.MethodPost, "/v1/employees", `{"name":"Cara","id_full":"X987654321","phone":"0911"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/v1/employees", `{"name":"Cara","id_full":"X987654321","phone":"0911"}`, "")
	if rec.Code != http.StatusConflict || decode(t, rec)["error"] != "duplicate_credential" {
		t.Fatalf("expected duplicate_credential, got %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/v1/slots/"+id+"/employee-signup", `{"name":"Cara","id_last_4":"4321"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("employee signup: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/v1/slots/"+id+"/employee-signup", `{"name":"Zed","id_last_4":"0000"}`, "")
	if rec.Code != http.StatusNotFound || decode(t, rec)["error"] != "employee_not_found" {
		t.Fatalf("expected employee_not_found, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoles(t *testing.T) {
	s := newTestServer(t)
	body := `{"work_date":"2026-11-01","slot_name":"Morning","capacity":2}`

	if rec := s.do(http.MethodPost, "/v1/admin/slots", body, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create: got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/v1/admin/slots", body, model.RoleViewer); rec.Code != http.StatusForbidden {
		t.Errorf("viewer create: got %d", rec.Code)
	}
	id := s.createSlot(t, body)
	if rec := s.do(http.MethodGet, "/v1/admin/slots", "", model.RoleViewer); rec.Code != http.StatusOK {
		t.Errorf("viewer list: got %d", rec.Code)
	}
	if rec := s.do(http.MethodDelete, "/v1/admin/slots/"+id, "", model.RoleViewer); rec.Code != http.StatusForbidden {
		t.Errorf("viewer delete: got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/v1/admin/slots", `{"work_date":"tomorrow","slot_name":"x","capacity":1}`, model.RoleSuper); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: got %d", rec.Code)
	}
}

func TestAdminBookingLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createSlot(t, `{"work_date":"2026-11-01","slot_name":"Morning","capacity":1}`)

	if rec := s.do(http.MethodPost, "/v1/slots/"+id+"/signup", `{"name":"Amy","id_last_4":"1234"}`, ""); rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d", rec.Code)
	}
	rec := s.do(http.MethodGet, "/v1/admin/slots/"+id+"/bookings", "", model.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("bookings: %d", rec.Code)
	}
	bookings := decode(t, rec)["bookings"].([]any)
	if len(bookings) != 1 || bookings[0].(map[string]any)["employee_id"] != "Amy#1234" {
		t.Fatalf("unexpected bookings %v", bookings)
	}

	rec = s.do(http.MethodDelete, "/v1/admin/slots/"+id+"/bookings/Amy%231234", "", model.RoleSuper)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete booking: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodDelete, "/v1/admin/slots/"+id+"/bookings/Amy%231234", "", model.RoleSuper); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/v1/slots/"+id+"/signup", `{"name":"Ben","id_last_4":"5678"}`, ""); rec.Code != http.StatusCreated {
		t.Fatalf("signup after cancel: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPut, "/v1/admin/slots/"+id, `{"work_date":"2026-11-02","slot_name":"Moved","capacity":4}`, model.RoleSuper)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec); got["is_open"] != true || got["current_bookings"] != float64(1) {
		t.Fatalf("update changed open state or bookings: %v", got)
	}

	if rec := s.do(http.MethodDelete, "/v1/admin/slots/"+id, "", model.RoleSuper); rec.Code != http.StatusNoContent {
		t.Fatalf("delete slot: %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/v1/slots/"+id, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted slot still visible: %d", rec.Code)
	}
	if rec := s.do(http.MethodDelete, "/v1/admin/slots/"+id, "", model.RoleSuper); rec.Code != http.StatusNoContent {
		t.Fatalf("repeat delete: %d", rec.Code)
	}
}

func TestDeleteBookingWithPercentInName(t *testing.T) {
	s := newTestServer(t)
	id := s.createSlot(t, `{"work_date":"2026-11-01","slot_name":"Morning","capacity":5}`)

	for _, name := range []string{"50%", "A%41"} {
		body := `{"name":"` + name + `","id_last_4":"1234"}`
		if rec := s.do(http.MethodPost, "/v1/slots/"+id+"/signup", body, ""); rec.Code != http.StatusCreated {
			t.Fatalf("signup %q: %d %s", name, rec.Code, rec.Body.String())
		}
	}
	for _, name := range []string{"50%", "A%41"} {
		ref := model.NameRef(name, "1234")
		rec := s.do(http.MethodDelete, "/v1/admin/slots/"+id+"/bookings/"+url.PathEscape(ref), "", model.RoleSuper)
		if rec.Code != http.StatusOK {
			t.Fatalf("delete %q: %d %s", ref, rec.Code, rec.Body.String())
		}
		removed := decode(t, rec)["removed"].(map[string]any)
		if removed["employee_id"] != ref {
			t.Fatalf("removed %v, expected %q", removed["employee_id"], ref)
		}
	}
	bookings, err := s.svc.SlotBookings(context.Background(), id)
	if err != nil || len(bookings) != 0 {
		t.Fatalf("expected no bookings left, got %+v (%v)", bookings, err)
	}
}

func TestWriteErrorBusy(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if err := writeError(c, repository.ErrBusy); err != nil {
		t.Fatalf("writeError: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 503 with Retry-After, got %d", rec.Code)
	}
}

// ----- auth -----

type memAdmins struct {
	mu    sync.Mutex
	users map[uint64]model.AdminUser
}

func (m *memAdmins) Create(_ context.Context, username, password, role string, cost int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == strings.ToLower(username) {
			return 0, repository.ErrUsernameExists
		}
	}
	hash, _ := utils.HashPassword(password, cost)
	id := uint64(len(m.users) + 1)
	m.users[id] = model.AdminUser{ID: id, Username: strings.ToLower(username), PasswordHash: hash, Role: role}
	return id, nil
}

func (m *memAdmins) GetByUsername(_ context.Context, username string) (model.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == strings.ToLower(username) {
			return u, nil
		}
	}
	return model.AdminUser{}, sql.ErrNoRows
}

func (m *memAdmins) GetByID(_ context.Context, id uint64) (model.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.AdminUser{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memAdmins) UpdatePassword(_ context.Context, id uint64, password string, cost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash, _ = utils.HashPassword(password, cost)
	m.users[id] = u
	return nil
}

type memTokens struct {
	mu     sync.Mutex
	admins *memAdmins
	owners map[string]uint64
}

func (m *memTokens) Store(_ context.Context, adminID uint64, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[hash] = adminID
	return nil
}

func (m *memTokens) Rotate(ctx context.Context, oldHash, newHash string, _ time.Time) (model.AdminUser, error) {
	m.mu.Lock()
	uid, ok := m.owners[oldHash]
	if ok {
		delete(m.owners, oldHash)
		m.owners[newHash] = uid
	}
	m.mu.Unlock()
	if !ok {
		return model.AdminUser{}, repository.ErrRefreshInvalid
	}
	return m.admins.GetByID(ctx, uid)
}

func (m *memTokens) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[hash]; !ok {
		return repository.ErrRefreshInvalid
	}
	delete(m.owners, hash)
	return nil
}

func (m *memTokens) RevokeAll(_ context.Context, adminID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, uid := range m.owners {
		if uid == adminID {
			delete(m.owners, h)
			n++
		}
	}
	return n, nil
}

func newAuthServer() (*echo.Echo, *memTokens) {
	cfg := config.Config{
		JWTSecret: testSecret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: bcrypt.MinCost,
		SuperAdminCode: "super-code", ViewerAdminCode: "viewer-code",
	}
	admins := &memAdmins{users: map[uint64]model.AdminUser{}}
	tokens := &memTokens{admins: admins, owners: map[string]uint64{}}
	a := NewAuthHandler(cfg, admins, tokens)
	e := echo.New()
	e.POST("/v1/auth/register", a.Register)
	e.POST("/v1/auth/login", a.Login)
	e.POST("/v1/auth/refresh", a.Refresh)
	e.POST("/v1/auth/logout", a.Logout)
	me := e.Group("/v1/me", middleware.JWTAuth(testSecret))
	me.GET("", a.Me)
	me.PUT("/password", a.ChangePassword)
	return e, tokens
}

func post(e *echo.Echo, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegisterCodeSelectsRole(t *testing.T) {
	e, _ := newAuthServer()

	if rec := post(e, http.MethodPost, "/v1/auth/register", `{"username":"eve","password":"pw1234","code":"guess"}`, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("bad code: got %d", rec.Code)
	}
	rec := post(e, http.MethodPost, "/v1/auth/register", `{"username":"Vic","password":"pw1234","code":"viewer-code"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	var resp authResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Admin.Role != model.RoleViewer || resp.Admin.Username != "vic" {
		t.Fatalf("unexpected admin %+v", resp.Admin)
	}
	if rec := post(e, http.MethodPost, "/v1/auth/register", `{"username":"vic","password":"pw1234","code":"super-code"}`, ""); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate username: got %d", rec.Code)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	e, tokens := newAuthServer()
	post(e, http.MethodPost, "/v1/auth/register", `{"username":"admin","password":"super","code":"super-code"}`, "")

	if rec := post(e, http.MethodPost, "/v1/auth/login", `{"username":"admin","password":"wrong"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d", rec.Code)
	}
	rec := post(e, http.MethodPost, "/v1/auth/login", `{"username":"ADMIN","password":"super"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var login authResp
	_ = json.Unmarshal(rec.Body.Bytes(), &login)

	meRec := post(e, http.MethodGet, "/v1/me", "", login.Access.Token)
	if meRec.Code != http.StatusOK || !strings.Contains(meRec.Body.String(), `"role":"super"`) {
		t.Fatalf("me: %d %s", meRec.Code, meRec.Body.String())
	}

	rec = post(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+login.Refresh.Token+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	var refreshed authResp
	_ = json.Unmarshal(rec.Body.Bytes(), &refreshed)
	if rec := post(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+login.Refresh.Token+`"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("rotated refresh token reused: got %d", rec.Code)
	}

	if rec := post(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"`+login.Refresh.Token+`"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout with rotated token: expected 401, got %d", rec.Code)
	}
	if rec := post(e, http.MethodPost, "/v1/auth/logout", `{}`, refreshed.Access.Token); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	if len(tokens.owners) != 0 {
		t.Fatalf("expected all refresh tokens revoked, %d left", len(tokens.owners))
	}
}

func TestChangePassword(t *testing.T) {
	e, _ := newAuthServer()
	rec := post(e, http.MethodPost, "/v1/auth/register", `{"username":"admin","password":"super","code":"super-code"}`, "")
	var reg authResp
	_ = json.Unmarshal(rec.Body.Bytes(), &reg)

	if rec := post(e, http.MethodPut, "/v1/me/password", `{"current_password":"nope","new_password":"better"}`, reg.Access.Token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: got %d", rec.Code)
	}
	if rec := post(e, http.MethodPut, "/v1/me/password", `{"current_password":"super","new_password":"better"}`, reg.Access.Token); rec.Code != http.StatusNoContent {
		t.Fatalf("change password: %d %s", rec.Code, rec.Body.String())
	}
	if rec := post(e, http.MethodPost, "/v1/auth/login", `{"username":"admin","password":"super"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still works: %d", rec.Code)
	}
	if rec := post(e, http.MethodPost, "/v1/auth/login", `{"username":"admin","password":"better"}`, ""); rec.Code != http.StatusOK {
		t.Fatalf("new password rejected: %d", rec.Code)
	}
	if rec := post(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+reg.Refresh.Token+`"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("sessions should be revoked after password change: %d", rec.Code)
	}
}
