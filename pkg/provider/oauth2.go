package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	facebookUserinfoURL = "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name"
	googleUserinfoURL   = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserinfoURL   = "https://api.github.com/user"
	githubEmailsURL     = "https://api.github.com/user/emails"
	githubOrgsURL       = "https://api.github.com/user/orgs"
)

// OAuth2Strategy implements the OAuth2-style providers: facebook, google,
// github and auth0. Each kind is a preset of endpoints, scopes and userinfo
// shape over the same handshake.
type OAuth2Strategy struct {
	kind         StrategyKind
	login        *LoginHandler
	oauth2Config *oauth2.Config
	userinfoURL  string

	// google restriction: authorized email domains.
	domains []string
	// github restriction: required organization memberships.
	organizations []string

	groupsCfg   *MappingConfig
	rolesCfg    *MappingConfig
	orgsCfg     *MappingConfig
	orgsDefault []string
	autoCreate  bool
}

// NewOAuth2Strategy builds a preset strategy from a remapped provider config.
func NewOAuth2Strategy(kind StrategyKind, mapped map[string]any, login *LoginHandler) (*OAuth2Strategy, error) {
	s := &OAuth2Strategy{
		kind:          kind,
		login:         login,
		domains:       getStringList(mapped["domains"]),
		organizations: getStringList(mapped["organizations"]),
		groupsCfg:     GroupsConfig(mapped),
		rolesCfg:      RolesConfig(mapped),
		orgsCfg:       OrganizationsConfig(mapped),
		orgsDefault:   OrganizationsDefault(mapped),
		autoCreate:    getBool(mapped, "auto_create_group"),
	}
	conf := &oauth2.Config{
		ClientID:     getString(mapped, "clientID"),
		ClientSecret: getString(mapped, "clientSecret"),
		RedirectURL:  getString(mapped, "callbackURL"),
	}
	switch kind {
	case StrategyFacebook:
		conf.Endpoint = endpoints.Facebook
		conf.Scopes = []string{"email"}
		s.userinfoURL = facebookUserinfoURL
	case StrategyGoogle:
		conf.Endpoint = endpoints.Google
		conf.Scopes = []string{"email", "profile"}
		s.userinfoURL = googleUserinfoURL
	case StrategyGithub:
		conf.Endpoint = endpoints.GitHub
		conf.Scopes = []string{"user:email"}
		if len(s.organizations) > 0 {
			conf.Scopes = []string{"user:email", "read:org"}
		}
		s.userinfoURL = githubUserinfoURL
	case StrategyAuth0:
		baseURL := getString(mapped, "baseURL")
		if baseURL == "" {
			baseURL = "https://" + getString(mapped, "domain")
		}
		conf.Endpoint = oauth2.Endpoint{
			AuthURL:  baseURL + "/authorize",
			TokenURL: baseURL + "/oauth/token",
		}
		conf.Scopes = []string{"openid", "email", "profile"}
		s.userinfoURL = baseURL + "/userinfo"
	default:
		return nil, fmt.Errorf("unsupported oauth2 strategy kind: %s", kind)
	}
	s.oauth2Config = conf
	return s, nil
}

// Kind implements Strategy.
func (s *OAuth2Strategy) Kind() StrategyKind { return s.kind }

// Mode implements Strategy.
func (s *OAuth2Strategy) Mode() AuthMode { return AuthSSO }

// InitiateLogin implements RedirectStrategy.
func (s *OAuth2Strategy) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, s.oauth2Config.AuthCodeURL(state), http.StatusFound)
	return nil
}

// HandleCallback implements RedirectStrategy: exchanges the code, fetches the
// profile, applies the per-kind restrictions and completes the login.
func (s *OAuth2Strategy) HandleCallback(w http.ResponseWriter, r *http.Request) (*User, error) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}
	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	client := s.oauth2Config.Client(ctx, token)

	profile, err := fetchJSON(client, s.userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	log.WithFields(log.Fields{"provider": s.kind}).Debug("[OAUTH2] successfully logged")

	email, err := s.resolveEmail(client, profile)
	if err != nil {
		return nil, err
	}
	if err := s.checkRestrictions(client, email); err != nil {
		return nil, err
	}

	src := ClaimSource{Token: decodeToken(token.AccessToken), Userinfo: profile}
	claims := IdentityClaims{
		Email:     email,
		Name:      profileName(profile),
		Firstname: firstNonEmpty(getString(profile, "first_name"), getString(profile, "given_name")),
		Lastname:  firstNonEmpty(getString(profile, "last_name"), getString(profile, "family_name")),
	}
	assoc := AssociationSet{
		Groups:        GroupsToAssociate(s.groupsCfg, s.rolesCfg, src),
		Organizations: ComputeOrganizationsMapping(s.orgsCfg, s.orgsDefault, src),
	}
	return s.login.Complete(ctx, claims, assoc, IsGroupBaseAccess(s.groupsCfg, s.rolesCfg), s.autoCreate)
}

// resolveEmail reads the profile email, falling back to the github email list
// endpoint. Profiles carrying several emails use the first element.
func (s *OAuth2Strategy) resolveEmail(client *http.Client, profile map[string]any) (string, error) {
	if emails := getStringList(profile["emails"]); len(emails) > 0 {
		return FirstEmail(emails), nil
	}
	if email := getString(profile, "email"); email != "" {
		return email, nil
	}
	if s.kind != StrategyGithub {
		return "", nil
	}
	var entries []struct {
		Email string `json:"email"`
	}
	if err := fetchJSONInto(client, githubEmailsURL, &entries); err != nil {
		return "", fmt.Errorf("failed to fetch github emails: %w", err)
	}
	emails := make([]string, 0, len(entries))
	for _, entry := range entries {
		emails = append(emails, entry.Email)
	}
	return FirstEmail(emails), nil
}

// checkRestrictions enforces google domain and github organization allow
// lists. A failed restriction is a restricted-access denial.
func (s *OAuth2Strategy) checkRestrictions(client *http.Client, email string) error {
	if s.kind == StrategyGoogle && len(s.domains) > 0 {
		parts := strings.SplitN(email, "@", 2)
		if len(parts) != 2 {
			return ErrRestrictedAccess
		}
		for _, domain := range s.domains {
			if strings.EqualFold(domain, parts[1]) {
				return nil
			}
		}
		return ErrRestrictedAccess
	}
	if s.kind == StrategyGithub && len(s.organizations) > 0 {
		var orgs []struct {
			Login string `json:"login"`
		}
		if err := fetchJSONInto(client, githubOrgsURL, &orgs); err != nil {
			return fmt.Errorf("failed to fetch github organizations: %w", err)
		}
		for _, org := range orgs {
			for _, required := range s.organizations {
				if org.Login == required {
					return nil
				}
			}
		}
		return ErrRestrictedAccess
	}
	return nil
}

func profileName(profile map[string]any) string {
	return firstNonEmpty(
		getString(profile, "name"),
		getString(profile, "displayName"),
		getString(profile, "login"),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func fetchJSON(client *http.Client, url string) (map[string]any, error) {
	var out map[string]any
	if err := fetchJSONInto(client, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchJSONInto(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request to %s failed with status %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
