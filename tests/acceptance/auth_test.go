package acceptance

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
)

func (s *Suite) TestRegister_Success() {
	authResp := s.register("test@example.com", "Password123")

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.NotZero(authResp.ExpiresIn)
	s.Equal("test@example.com", authResp.User.Email)
	s.NotEmpty(authResp.User.ID)
}

func (s *Suite) TestRegister_DuplicateEmail() {
	s.register("duplicate@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "duplicate@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusConflict, resp.StatusCode)

	var errResp dto.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	s.Equal("Conflict", errResp.Error)
}

func (s *Suite) TestRegister_InvalidEmail() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "invalid-email",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRegister_ShortPassword() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "test@example.com",
		Password: "short",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_Success() {
	s.registerVerified("login@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "login@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.Equal("login@example.com", authResp.User.Email)

	s.NotEmpty(resp.Cookies(), "Should have refresh token cookie")
}

func (s *Suite) TestLogin_BeforeEmailVerification() {
	// Login requires the verified local credential.
	s.register("unverified@example.com", "Password123")

	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "unverified@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogin_InvalidCredentials() {
	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "nonexistent@example.com",
		Password: "wrongpassword",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	var errResp dto.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	s.Equal("Unauthorized", errResp.Error)
}

func (s *Suite) TestLogin_WrongPassword() {
	s.registerVerified("wrongpass@example.com", "CorrectPassword123")

	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{
		Email:    "wrongpass@example.com",
		Password: "WrongPassword123",
	})
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestVerifyEmail_Flow() {
	authResp := s.register("verify@example.com", "Password123")

	meResp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	var before dto.UserResponse
	json.NewDecoder(meResp.Body).Decode(&before)
	meResp.Body.Close()
	s.False(before.IsEmailVerified)

	token := s.verificationToken("verify@example.com", domain.PurposeEmailVerification)
	resp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: token})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	meResp = s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	defer meResp.Body.Close()
	var after dto.UserResponse
	s.Require().NoError(json.NewDecoder(meResp.Body).Decode(&after))
	s.True(after.IsEmailVerified)
	s.Require().Len(after.AuthMethods, 1)
	s.True(after.AuthMethods[0].Verified)
}

func (s *Suite) TestVerifyEmail_TokenIsSingleUse() {
	s.register("once@example.com", "Password123")
	token := s.verificationToken("once@example.com", domain.PurposeEmailVerification)

	resp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: token})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: token})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestVerifyEmail_UnknownToken() {
	resp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Token: "000000"})
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestResendVerification_Cooldown() {
	authResp := s.register("resend@example.com", "Password123")

	// Registration just issued a token, so an immediate resend is refused.
	resp := s.doAuth("POST", "/api/v1/auth/verify-email/resend", authResp.AccessToken, nil)
	defer resp.Body.Close()

	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("Retry-After"))
}

func (s *Suite) TestPasswordReset_Flow() {
	s.registerVerified("reset@example.com", "OldPassword123")

	resp := s.postJSON("/api/v1/auth/password-reset", dto.PasswordResetRequest{Email: "reset@example.com"})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	token := s.verificationToken("reset@example.com", domain.PurposePasswordReset)

	resp = s.postJSON("/api/v1/auth/password-reset/confirm", dto.PasswordResetConfirmRequest{
		Token:       token,
		NewPassword: "NewPassword123",
	})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// The old password is dead, the new one works.
	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "reset@example.com", Password: "OldPassword123"})
	loginResp.Body.Close()
	s.Equal(http.StatusUnauthorized, loginResp.StatusCode)

	loginResp = s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "reset@example.com", Password: "NewPassword123"})
	defer loginResp.Body.Close()
	s.Equal(http.StatusOK, loginResp.StatusCode)
}

func (s *Suite) TestPasswordReset_UnknownEmailIsSilent() {
	resp := s.postJSON("/api/v1/auth/password-reset", dto.PasswordResetRequest{Email: "ghost@example.com"})
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode, "the endpoint must not reveal which emails exist")
}

func (s *Suite) TestPasswordReset_TokenReplay() {
	s.registerVerified("replay@example.com", "OldPassword123")

	resp := s.postJSON("/api/v1/auth/password-reset", dto.PasswordResetRequest{Email: "replay@example.com"})
	resp.Body.Close()

	token := s.verificationToken("replay@example.com", domain.PurposePasswordReset)

	resp = s.postJSON("/api/v1/auth/password-reset/confirm", dto.PasswordResetConfirmRequest{
		Token:       token,
		NewPassword: "NewPassword123",
	})
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.postJSON("/api/v1/auth/password-reset/confirm", dto.PasswordResetConfirmRequest{
		Token:       token,
		NewPassword: "AnotherPassword123",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestGetMe_Success() {
	authResp := s.register("getme@example.com", "Password123")

	resp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var userResp dto.UserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&userResp))

	s.NotEmpty(userResp.ID)
	s.Equal("getme@example.com", userResp.Email)
	s.NotEmpty(userResp.CreatedAt)
	s.NotEmpty(userResp.UpdatedAt)
	s.False(userResp.IsEmailVerified)
	s.Require().Len(userResp.AuthMethods, 1)
	s.Equal("local", userResp.AuthMethods[0].Provider)
}

func (s *Suite) TestGetMe_NoToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestRefresh_Success() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "refresh@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	cookies := resp.Cookies()
	s.Require().NotEmpty(cookies)

	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	refreshResp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer refreshResp.Body.Close()

	s.Equal(http.StatusOK, refreshResp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(refreshResp.Body).Decode(&authResp))
	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
}

func (s *Suite) TestRefresh_RotatedTokenIsDead() {
	resp := s.postJSON("/api/v1/auth/register", dto.RegisterRequest{
		Email:    "rotate@example.com",
		Password: "Password123",
	})
	defer resp.Body.Close()
	cookies := resp.Cookies()
	s.Require().NotEmpty(cookies)

	doRefresh := func() *http.Response {
		req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		r, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		return r
	}

	first := doRefresh()
	first.Body.Close()
	s.Equal(http.StatusOK, first.StatusCode)

	// Presenting the rotated-out cookie again must fail.
	second := doRefresh()
	defer second.Body.Close()
	s.Equal(http.StatusUnauthorized, second.StatusCode)
}

func (s *Suite) TestRefresh_NoCookie() {
	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogout_Success() {
	authResp := s.register("logout@example.com", "Password123")

	resp := s.doAuth("POST", "/api/v1/auth/logout", authResp.AccessToken, nil)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var successResp dto.SuccessResponse
	json.NewDecoder(resp.Body).Decode(&successResp)
	s.Equal("Logged out successfully", successResp.Message)
}

func (s *Suite) TestCompleteFlow() {
	email := "complete@example.com"
	password := "Password123"

	authResp := s.registerVerified(email, password)

	meResp := s.doAuth("GET", "/api/v1/auth/me", authResp.AccessToken, nil)
	meResp.Body.Close()
	s.Equal(http.StatusOK, meResp.StatusCode)

	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: email, Password: password})
	defer loginResp.Body.Close()
	s.Equal(http.StatusOK, loginResp.StatusCode)

	var loginAuth dto.AuthResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&loginAuth))

	logoutResp := s.doAuth("POST", "/api/v1/auth/logout", loginAuth.AccessToken, nil)
	logoutResp.Body.Close()
	s.Equal(http.StatusOK, logoutResp.StatusCode)
}

func (s *Suite) TestMetricsEndpoint() {
	resp, err := http.Get(fmt.Sprintf("%s/metrics", s.BaseURL))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
}
