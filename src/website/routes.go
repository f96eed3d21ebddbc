package website

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/metrics"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/prometheus/client_golang/prometheus"
)

type RoutesConfig struct {
	Media         *media.Service
	MediaConfig   config.MediaConfig
	Uploads       config.RateLimitConfig
	PerfCollector *perf.PerfCollector
	Gatherer      prometheus.Gatherer
	TrustProxy    bool
}

var (
	RegexMediaFiles = regexp.MustCompile(`^/media(?P<file>/.*)?$`)
	RegexMetrics    = regexp.MustCompile(`^/metrics$`)
	RegexPerfmon    = regexp.MustCompile(`^/perfmon$`)

	RegexAPIMedia       = regexp.MustCompile(`^/api/media$`)
	RegexAPIMediaAsset  = regexp.MustCompile(`^/api/media/(?P<id>\d+)$`)
	RegexAPIMediaEdit   = regexp.MustCompile(`^/api/media/(?P<id>\d+)/edit$`)
	RegexAPIMediaDelete = regexp.MustCompile(`^/api/media/(?P<id>\d+)/delete$`)

	RegexCatchAll = regexp.MustCompile(`^`)
)

func NewWebsiteRoutes(rc RoutesConfig) http.Handler {
	router := &Router{TrustProxy: rc.TrustProxy}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			trackRequestPerf(rc.PerfCollector),
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
			withMedia(rc.Media),
		},
	}

	routes.GET(RegexMediaFiles, serveMediaFiles(rc.MediaConfig.StorageRoot))
	routes.GET(RegexMetrics, wrapHTTPHandler(metrics.Handler(rc.Gatherer)))
	routes.GET(RegexPerfmon, Perfmon)

	routes.GET(RegexAPIMedia, APIListMedia)
	routes.GET(RegexAPIMediaAsset, APIGetMedia)
	routes.POST(RegexAPIMediaEdit, APIEditMedia)
	routes.POST(RegexAPIMediaDelete, APIDeleteMedia)

	uploads := routes.WithMiddleware(rateLimitMiddleware(rc.Uploads))
	uploads.POST(RegexAPIMedia, APIUploadMedia(rc.MediaConfig.MaxUploadBytes))

	routes.AnyMethod(RegexCatchAll, FourOhFour)

	return router
}

// Hands the request to a plain http.Handler, which writes the response itself.
func wrapHTTPHandler(h http.Handler) Handler {
	return func(c *RequestContext) ResponseData {
		h.ServeHTTP(c.Res, c.Req.WithContext(c))
		return ResponseData{hijacked: true}
	}
}

// Local backend files. Directory listings are refused.
func serveMediaFiles(root string) Handler {
	fileServer := http.StripPrefix("/media", http.FileServer(http.Dir(root)))
	return func(c *RequestContext) ResponseData {
		if c.PathParams["file"] == "" || strings.HasSuffix(c.Req.URL.Path, "/") {
			return FourOhFour(c)
		}
		c.Perf.StartBlock("FILE", "Serve media file")
		defer c.Perf.EndBlock()
		return wrapHTTPHandler(fileServer)(c)
	}
}
