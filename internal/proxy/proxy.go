package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/JoelGonzalez08/TerraWeb/internal/middleware"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
)

// MakeUpstreamHandler reverse-proxies a route to one path on the external
// geospatial-analysis service. The upstream access token bound to the caller's
// session is attached server-side; clients never see it. Upstream failures
// surface as a generic 502 so collaborator internals do not leak.
func MakeUpstreamHandler(baseURL, upstreamPath string) (http.HandlerFunc, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return func(w http.ResponseWriter, r *http.Request) {
		proxy := httputil.NewSingleHostReverseProxy(target)
		origDirector := proxy.Director
		proxy.Director = func(req *http.Request) {
			origDirector(req)
			req.URL.Path = upstreamPath
			req.URL.RawQuery = r.URL.RawQuery
			req.Header.Del("Cookie")
			if sess := middleware.GetSession(r); sess != nil && sess.UpstreamToken != "" {
				req.Header.Set("Authorization", "Bearer "+sess.UpstreamToken)
			}
		}
		proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
			slog.Error("upstream proxy error", "path", r.URL.Path, "upstream", upstreamPath, "error", err)
			apperrors.WriteError(rw, apperrors.ServiceUnavailable("analysis service unavailable", err))
		}
		proxy.ServeHTTP(w, r)
	}, nil
}
