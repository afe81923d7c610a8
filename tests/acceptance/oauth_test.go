package acceptance

import (
	"net/http"
	"net/url"
	"strings"
)

// noRedirectClient keeps provider redirects observable.
var noRedirectClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func (s *Suite) TestOAuthLogin_RedirectsToProvider() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/google/login")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	s.Require().NoError(err)
	s.Equal("accounts.google.com", location.Host)
	s.NotEmpty(location.Query().Get("state"))
	s.NotEmpty(location.Query().Get("client_id"))
	s.Contains(location.Query().Get("redirect_uri"), "/oauth/google/callback")

	cookies := map[string]string{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}
	s.Equal(location.Query().Get("state"), cookies["oauth_state"])
	s.Equal("sign_in", cookies["oauth_intent"])
}

func (s *Suite) TestOAuthLogin_LinkIntent() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/facebook/login?intent=link")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusFound, resp.StatusCode)

	intent := ""
	for _, c := range resp.Cookies() {
		if c.Name == "oauth_intent" {
			intent = c.Value
		}
	}
	s.Equal("link", intent)
}

func (s *Suite) TestOAuthLogin_AppleUsesFormPost() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/apple/login")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	s.Require().NoError(err)
	s.Equal("appleid.apple.com", location.Host)
	s.Equal("form_post", location.Query().Get("response_mode"))
}

func (s *Suite) TestOAuthLogin_InvalidIntent() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/google/login?intent=delete_everything")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestOAuthLogin_UnknownProvider() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/github/login")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestOAuthCallback_StateMismatch() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/oauth/google/callback?state=forged&code=whatever", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "expected"})

	resp, err := noRedirectClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestOAuthCallback_MissingStateCookie() {
	resp, err := noRedirectClient.Get(s.BaseURL + "/api/v1/oauth/google/callback?state=anything&code=whatever")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestOAuthCallback_MissingCode() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/oauth/google/callback?state=abc123", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "abc123"})

	resp, err := noRedirectClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestOAuthCallback_ApplePostForm() {
	// Apple returns the code via form_post; a state mismatch in the form
	// body is rejected the same way as in the query string.
	form := url.Values{"state": {"forged"}, "code": {"whatever"}}
	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/oauth/apple/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "expected"})

	resp, err := noRedirectClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
