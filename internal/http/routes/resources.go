package routes

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hubview/hubview/internal/cache"
	"github.com/hubview/hubview/internal/gateway"
	"github.com/hubview/hubview/internal/github"
	appmw "github.com/hubview/hubview/internal/http/middleware"
)

// namePattern matches GitHub owner/repo/org path components. Anything else
// is rejected before cache or upstream work.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validName(s string) bool {
	return s != "" && len(s) <= 100 && namePattern.MatchString(s)
}

// listParams validates and normalizes the paging parameter shared by the
// list endpoints.
func listParams(r *http.Request) (map[string]string, bool) {
	params := map[string]string{"per_page": "30"}
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		n, err := strconv.Atoi(pp)
		if err != nil || n < 1 || n > 100 {
			return nil, false
		}
		params["per_page"] = strconv.Itoa(n)
	}
	return params, true
}

// handleOrgs lists the viewer's organizations, with the personal
// pseudo-organization first so the browser can offer "your repositories"
// alongside real orgs.
func (s *Server) handleOrgs(w http.ResponseWriter, r *http.Request) {
	token := appmw.TokenFrom(r.Context())

	user, err := s.Gate.Identity(r.Context(), w, token)
	if err != nil {
		s.writeIdentityError(w, err)
		return
	}

	params, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "per_page must be an integer between 1 and 100")
		return
	}

	res := s.Gateway.Serve(r.Context(), token, gateway.Resource{
		Class:  gateway.ClassOrgs,
		Key:    cache.UserScopedKey(user.Login, "orgs", params),
		Path:   "/user/orgs",
		Params: params,
	}, requestValidators(r))

	if res.Status != http.StatusOK {
		s.writeResult(w, r, res)
		return
	}

	var orgs []github.Org
	if err := json.Unmarshal(res.Body, &orgs); err != nil {
		s.Log.Error().Err(err).Msg("orgs: decode upstream payload")
		writeError(w, http.StatusInternalServerError, "internal", "unexpected upstream payload")
		return
	}
	personal := github.Org{Login: user.Login, AvatarURL: user.AvatarURL, Personal: true}

	body, err := json.Marshal(append([]github.Org{personal}, orgs...))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "encode response")
		return
	}
	res.Body = body
	s.writeResult(w, r, res)
}

// handleOrgRepos lists repositories for an org; the personal pseudo-org maps
// to the viewer's own repositories.
func (s *Server) handleOrgRepos(w http.ResponseWriter, r *http.Request) {
	token := appmw.TokenFrom(r.Context())

	org := chi.URLParam(r, "org")
	if !validName(org) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid organization name")
		return
	}
	params, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "per_page must be an integer between 1 and 100")
		return
	}

	user, err := s.Gate.Identity(r.Context(), w, token)
	if err != nil {
		s.writeIdentityError(w, err)
		return
	}

	res := gateway.Resource{Class: gateway.ClassRepos}
	if org == user.Login {
		// Personal repositories are viewer-scoped, not public org data.
		res.Key = cache.UserScopedKey(user.Login, "repos", params)
		res.Path = "/user/repos"
		params["affiliation"] = "owner"
		res.Params = params
	} else {
		res.Key = cache.Key("orgs/"+org+"/repos", params)
		res.Path = "/orgs/" + org + "/repos"
		res.Params = params
	}

	s.writeResult(w, r, s.Gateway.Serve(r.Context(), token, res, requestValidators(r)))
}

// handleWorkflowRuns lists workflow runs for a repository, the polled hot
// path this cache exists for.
func (s *Server) handleWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	if !validName(owner) || !validName(repo) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid repository path")
		return
	}
	params, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "per_page must be an integer between 1 and 100")
		return
	}
	if branch := r.URL.Query().Get("branch"); branch != "" {
		if len(branch) > 255 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid branch name")
			return
		}
		params["branch"] = branch
	}

	res := gateway.Resource{
		Class:  gateway.ClassRuns,
		Key:    cache.Key(cache.RepoPrefix(owner, repo, "runs"), params),
		Path:   "/repos/" + owner + "/" + repo + "/actions/runs",
		Params: params,
	}
	s.writeResult(w, r, s.Gateway.Serve(r.Context(), appmw.TokenFrom(r.Context()), res, requestValidators(r)))
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	if !validName(owner) || !validName(repo) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid repository path")
		return
	}
	params, ok := listParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "per_page must be an integer between 1 and 100")
		return
	}

	res := gateway.Resource{
		Class:  gateway.ClassBranches,
		Key:    cache.Key(cache.RepoPrefix(owner, repo, "branches"), params),
		Path:   "/repos/" + owner + "/" + repo + "/branches",
		Params: params,
	}
	s.writeResult(w, r, s.Gateway.Serve(r.Context(), appmw.TokenFrom(r.Context()), res, requestValidators(r)))
}

// handleRerun triggers a workflow re-run upstream and drops the cached run
// lists for the repository so the next poll observes the write.
func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	token := appmw.TokenFrom(r.Context())

	owner, repo := chi.URLParam(r, "owner"), chi.URLParam(r, "repo")
	if !validName(owner) || !validName(repo) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid repository path")
		return
	}
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil || runID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid run id")
		return
	}

	if err := s.Gateway.Rerun(r.Context(), token, owner, repo, runID); err != nil {
		s.writeUpstreamError(w, token, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeIdentityError maps a failed identity resolution. An invalid
// credential has already torn the session down inside the gate.
func (s *Server) writeIdentityError(w http.ResponseWriter, err error) {
	if github.IsInvalidCredential(err) {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "credential rejected")
		return
	}
	s.Log.Error().Err(err).Msg("identity resolution failed")
	writeError(w, http.StatusInternalServerError, "upstream_error", "upstream unavailable")
}

// writeUpstreamError maps a mutating-call failure onto the response
// contract.
func (s *Server) writeUpstreamError(w http.ResponseWriter, token string, err error) {
	apiErr, ok := github.AsAPIError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "upstream_error", "upstream unavailable")
		return
	}
	switch apiErr.Kind {
	case github.KindInvalidCredential:
		s.Gate.Forget(token)
		s.Sessions.Destroy(w)
		writeError(w, http.StatusUnauthorized, "unauthenticated", "credential rejected")
	case github.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case github.KindUpstream:
		status := apiErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusInternalServerError
		}
		writeError(w, status, "upstream_error", "upstream request failed")
	default:
		writeError(w, http.StatusInternalServerError, "upstream_error", "upstream unavailable")
	}
}
