package acceptance

import (
	"encoding/json"
	"net/http"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
)

func (s *Suite) TestChangePassword_Flow() {
	authResp := s.registerVerified("chpass@example.com", "OldPassword123")

	resp := s.doAuth("POST", "/api/v1/account/password", authResp.AccessToken, dto.ChangePasswordRequest{
		OldPassword: "OldPassword123",
		NewPassword: "NewPassword123",
	})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "chpass@example.com", Password: "NewPassword123"})
	defer loginResp.Body.Close()
	s.Equal(http.StatusOK, loginResp.StatusCode)
}

func (s *Suite) TestChangePassword_WrongOldPassword() {
	authResp := s.registerVerified("chpasswrong@example.com", "OldPassword123")

	resp := s.doAuth("POST", "/api/v1/account/password", authResp.AccessToken, dto.ChangePasswordRequest{
		OldPassword: "NotTheOldOne1",
		NewPassword: "NewPassword123",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestUnlink_LastMethodRefused() {
	authResp := s.registerVerified("lastmethod@example.com", "Password123")

	resp := s.doAuth("DELETE", "/api/v1/account/methods/local", authResp.AccessToken, nil)
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)

	// The account still has its login method.
	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "lastmethod@example.com", Password: "Password123"})
	loginResp.Body.Close()
	s.Equal(http.StatusOK, loginResp.StatusCode)
}

func (s *Suite) TestUnlink_Success() {
	authResp := s.registerVerified("unlink@example.com", "Password123")
	s.seedFederatedPrincipal(authResp.User.ID, domain.ProviderGoogle, "google-sub-unlink", "unlink@example.com")

	resp := s.doAuth("DELETE", "/api/v1/account/methods/google", authResp.AccessToken, nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	meResp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	defer meResp.Body.Close()
	var me dto.UserResponse
	s.Require().NoError(json.NewDecoder(meResp.Body).Decode(&me))
	s.Require().Len(me.AuthMethods, 1)
	s.Equal("local", me.AuthMethods[0].Provider)
}

func (s *Suite) TestUnlink_UnknownProvider() {
	authResp := s.registerVerified("unlinkunknown@example.com", "Password123")

	resp := s.doAuth("DELETE", "/api/v1/account/methods/github", authResp.AccessToken, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestUnlink_MethodNotLinked() {
	authResp := s.registerVerified("unlinkmissing@example.com", "Password123")

	resp := s.doAuth("DELETE", "/api/v1/account/methods/apple", authResp.AccessToken, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestEmailChange_Flow() {
	authResp := s.registerVerified("before@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "after@example.com",
	})
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	// The token goes to the new address; the email of record is untouched.
	meResp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	var me dto.UserResponse
	json.NewDecoder(meResp.Body).Decode(&me)
	meResp.Body.Close()
	s.Equal("before@example.com", me.Email)

	token := s.verificationToken("after@example.com", domain.PurposeEmailChangeVerification)
	confirmResp := s.postJSON("/api/v1/account/email-change/confirm", dto.EmailChangeConfirmRequest{Token: token})
	defer confirmResp.Body.Close()
	s.Equal(http.StatusOK, confirmResp.StatusCode)

	var confirmed dto.UserInfo
	s.Require().NoError(json.NewDecoder(confirmResp.Body).Decode(&confirmed))
	s.Equal("after@example.com", confirmed.Email)

	// The old address is no longer a usable identity; the new one is.
	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "before@example.com", Password: "Password123"})
	loginResp.Body.Close()
	s.Equal(http.StatusUnauthorized, loginResp.StatusCode)

	loginResp = s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "after@example.com", Password: "Password123"})
	loginResp.Body.Close()
	s.Equal(http.StatusOK, loginResp.StatusCode)
}

func (s *Suite) TestEmailChange_CascadeUnlinksOldAddressMethods() {
	authResp := s.registerVerified("cascade-old@example.com", "Password123")
	s.seedFederatedPrincipal(authResp.User.ID, domain.ProviderGoogle, "google-sub-cascade", "cascade-old@example.com")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "cascade-new@example.com",
	})
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	token := s.verificationToken("cascade-new@example.com", domain.PurposeEmailChangeVerification)
	confirmResp := s.postJSON("/api/v1/account/email-change/confirm", dto.EmailChangeConfirmRequest{Token: token})
	confirmResp.Body.Close()
	s.Equal(http.StatusOK, confirmResp.StatusCode)

	meResp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	defer meResp.Body.Close()
	var me dto.UserResponse
	s.Require().NoError(json.NewDecoder(meResp.Body).Decode(&me))

	s.Equal("cascade-new@example.com", me.Email)
	s.Require().Len(me.AuthMethods, 1, "the google method bound to the old address is unlinked")
	s.Equal("local", me.AuthMethods[0].Provider)
	s.Equal("cascade-new@example.com", me.AuthMethods[0].Email)
}

func (s *Suite) TestEmailChange_SameEmail() {
	authResp := s.registerVerified("same@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "same@example.com",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestEmailChange_SecondRequestRefusedWhilePending() {
	authResp := s.registerVerified("pending@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "pending-new@example.com",
	})
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "pending-other@example.com",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *Suite) TestEmailChange_Cancel() {
	authResp := s.registerVerified("cancel@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "cancel-new@example.com",
	})
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	token := s.verificationToken("cancel-new@example.com", domain.PurposeEmailChangeVerification)

	resp = s.doAuth("DELETE", "/api/v1/account/email-change", authResp.AccessToken, nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// The cancelled request's token no longer confirms anything.
	confirmResp := s.postJSON("/api/v1/account/email-change/confirm", dto.EmailChangeConfirmRequest{Token: token})
	confirmResp.Body.Close()
	s.Equal(http.StatusBadRequest, confirmResp.StatusCode)

	// And a new request for the same address goes through again.
	resp = s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "cancel-new@example.com",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)
}

func (s *Suite) TestEmailChange_ResendCooldown() {
	authResp := s.registerVerified("resendchange@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/email-change", authResp.AccessToken, dto.EmailChangeRequest{
		NewEmail: "resendchange-new@example.com",
	})
	resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)

	resp = s.doAuth("POST", "/api/v1/account/email-change/resend", authResp.AccessToken, nil)
	defer resp.Body.Close()
	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("Retry-After"))
}

func (s *Suite) TestLinkLocal_AlreadyLinked() {
	authResp := s.registerVerified("linklocal@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/account/methods/local", authResp.AccessToken, dto.LinkLocalRequest{
		Password: "AnotherPassword1",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *Suite) TestAccountEndpoints_RequireAuth() {
	for _, tc := range []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/account/password"},
		{"POST", "/api/v1/account/methods/local"},
		{"DELETE", "/api/v1/account/methods/google"},
		{"POST", "/api/v1/account/email-change"},
		{"POST", "/api/v1/account/email-change/resend"},
		{"DELETE", "/api/v1/account/email-change"},
	} {
		req, _ := http.NewRequest(tc.method, s.BaseURL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}
