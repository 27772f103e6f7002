package httpserver

import (
	"net/http"
	"strings"
	"testing"
)

func TestAuthAPI_RegisterFlow(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "a@b.io", "password": "pw",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	var accepted struct {
		RequiresOTP bool `json:"requiresOTP"`
	}
	decodeBody(t, rr, &accepted)
	if !accepted.RequiresOTP {
		t.Fatalf("expected requiresOTP")
	}

	// wrong code
	rr = e.do(t, http.MethodPost, "/api/auth/register/verify", "", map[string]string{
		"email": "a@b.io", "code": "wrong!",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong code: %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/api/auth/register/verify", "", map[string]string{
		"email": "a@b.io", "code": e.sender.otp(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("verify: %d %s", rr.Code, rr.Body.String())
	}

	// duplicate registration
	rr = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "a@b.io", "password": "pw",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rr.Code)
	}
}

func TestAuthAPI_RegisterValidation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@b.io"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/api/auth/register", "", "not an object")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body: %d", rr.Code)
	}
}

func TestAuthAPI_LoginBadCredentials(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	registerAndLogin(t, e, "a@b.io", "pw", "")

	rr := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@b.io", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "no@body", "password": "pw",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: %d", rr.Code)
	}
}

func TestAuthAPI_TwoFactorLogin(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	tok := registerAndLogin(t, e, "a@b.io", "pw", "")

	on := true
	rr := e.do(t, http.MethodPut, "/api/auth/security", tok, map[string]*bool{
		"twoFactorEnabled": &on,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("security: %d %s", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@b.io", "password": "pw",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected OTP step, got %d %s", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/api/auth/login/verify", "", map[string]string{
		"email": "a@b.io", "code": e.sender.otp(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login verify: %d %s", rr.Code, rr.Body.String())
	}
	var res sessionResponse
	decodeBody(t, rr, &res)
	if res.Token == "" {
		t.Fatalf("no token after verify")
	}
}

func TestAuthAPI_ResendOTP(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "a@b.io", "password": "pw",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("register: %d", rr.Code)
	}

	rr = e.do(t, http.MethodPost, "/api/auth/resend-otp", "", map[string]string{
		"email": "a@b.io", "purpose": "register",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("resend: %d %s", rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/api/auth/register/verify", "", map[string]string{
		"email": "a@b.io", "code": e.sender.otp(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("verify after resend: %d %s", rr.Code, rr.Body.String())
	}

	// the consumed registration challenge cannot be brought back
	rr = e.do(t, http.MethodPost, "/api/auth/resend-otp", "", map[string]string{
		"email": "a@b.io", "purpose": "register",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("resend after verify: %d %s", rr.Code, rr.Body.String())
	}
}

func TestAuthAPI_PanicPasswordAndDuressSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	tok := registerAndLogin(t, e, "a@b.io", "pw", "")

	rr := e.do(t, http.MethodPut, "/api/auth/panic", tok, map[string]string{
		"panicPassword": "other-pw",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("panic set: %d %s", rr.Code, rr.Body.String())
	}

	// duress login succeeds and the response shape matches a normal login
	rr = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@b.io", "password": "other-pw",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("duress login: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "duress") || strings.Contains(rr.Body.String(), "panic") {
		t.Fatalf("duress leaked in response: %s", rr.Body.String())
	}
}

func TestAuthAPI_DeleteAccount(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	tok := registerAndLogin(t, e, "a@b.io", "pw", "")

	rr := e.do(t, http.MethodDelete, "/api/auth/account", tok, map[string]string{"password": "nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rr.Code)
	}
	rr = e.do(t, http.MethodDelete, "/api/auth/account", tok, map[string]string{"password": "pw"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}

	// the old token is dead once the account row is gone
	rr = e.do(t, http.MethodGet, "/api/files/", tok, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale token: %d", rr.Code)
	}
}

func TestAuthAPI_Export(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	tok := registerAndLogin(t, e, "a@b.io", "pw", "")

	rr := e.do(t, http.MethodGet, "/api/auth/export", tok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	var exp struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeBody(t, rr, &exp)
	if exp.User.Email != "a@b.io" {
		t.Fatalf("bad export profile: %s", rr.Body.String())
	}
}
