package website

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/rs/zerolog"
)

type Router struct {
	Routes []Route

	// Whether GetIP believes X-Forwarded-For.
	TrustProxy bool
}

type Route struct {
	Method  string
	Regexes []*regexp.Regexp
	Handler Handler
}

func (r *Route) String() string {
	var routeStrings []string
	for _, regex := range r.Regexes {
		routeStrings = append(routeStrings, regex.String())
	}
	return fmt.Sprintf("%s %v", r.Method, routeStrings)
}

type RouteBuilder struct {
	Router      *Router
	Prefixes    []*regexp.Regexp
	Middlewares []Middleware
}

type Handler func(c *RequestContext) ResponseData
type Middleware func(h Handler) Handler

func applyMiddlewares(h Handler, ms []Middleware) Handler {
	result := h
	for i := len(ms) - 1; i >= 0; i-- {
		result = ms[i](result)
	}
	return result
}

func (rb *RouteBuilder) Handle(methods []string, regex *regexp.Regexp, h Handler) {
	regexStr := regex.String()
	if len(regexStr) == 0 || regexStr[0] != '^' {
		panic("All routing regexes must begin with '^'")
	}

	h = applyMiddlewares(h, rb.Middlewares)
	for _, method := range methods {
		rb.Router.Routes = append(rb.Router.Routes, Route{
			Method:  method,
			Regexes: append(append([]*regexp.Regexp(nil), rb.Prefixes...), regex),
			Handler: h,
		})
	}
}

func (rb *RouteBuilder) AnyMethod(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{""}, regex, h)
}

func (rb *RouteBuilder) GET(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodGet}, regex, h)
}

func (rb *RouteBuilder) POST(regex *regexp.Regexp, h Handler) {
	rb.Handle([]string{http.MethodPost}, regex, h)
}

func (rb *RouteBuilder) WithMiddleware(ms ...Middleware) RouteBuilder {
	newRb := *rb
	newRb.Middlewares = append(append([]Middleware(nil), rb.Middlewares...), ms...)
	return newRb
}

func (rb *RouteBuilder) Group(regex *regexp.Regexp, ms ...Middleware) RouteBuilder {
	newRb := *rb
	newRb.Prefixes = append(append([]*regexp.Regexp(nil), rb.Prefixes...), regex)
	newRb.Middlewares = append(append([]Middleware(nil), rb.Middlewares...), ms...)
	return newRb
}

/*
Each regex in the chain consumes the part of the path it matched, so a group
prefix like ^/api/media leaves /12/edit for the route's own regex. Named
groups across the whole chain become path params.
*/
func (route *Route) match(path string) (map[string]string, bool) {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}

	params := map[string]string{}
	for _, regex := range route.Regexes {
		match := regex.FindStringSubmatch(path)
		if match == nil {
			return nil, false
		}

		for i, name := range regex.SubexpNames() {
			if name == "" {
				continue
			}
			if _, dup := params[name]; dup {
				logging.Warn().
					Str("route", route.String()).
					Str("paramName", name).
					Msg("duplicate names for path parameters; last one wins")
			}
			params[name] = match[i]
		}

		// Never consume a trailing slash, even if the regex matched one
		path = path[len(strings.TrimSuffix(match[0], "/")):]
		if path == "" {
			path = "/"
		}
	}
	return params, true
}

func (r *Router) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	method := req.Method
	if method == http.MethodHead {
		method = http.MethodGet // HEADs route like GETs
	}

	for i := range r.Routes {
		route := &r.Routes[i]
		if route.Method != "" && method != route.Method {
			continue
		}
		params, ok := route.match(req.URL.Path)
		if !ok {
			continue
		}

		c := &RequestContext{
			Route:      route.String(),
			Logger:     logging.GlobalLogger(),
			Req:        req,
			Res:        rw,
			PathParams: params,

			trustProxy: r.TrustProxy,
			ctx:        req.Context(),
		}
		doRequest(rw, c, route.Handler)
		return
	}

	// Routes are expected to end with a catch-all, so this is a setup mistake.
	logging.Error().Str("path", req.URL.Path).Msg("request matched no route; register a catch-all route")
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusNotFound)
	json.NewEncoder(rw).Encode(errorBody{Error: "not found"})
}

type RequestContext struct {
	Route      string
	Logger     *zerolog.Logger
	Req        *http.Request
	PathParams map[string]string

	// For handlers (like the media file server) that write the response
	// themselves.
	Res http.ResponseWriter

	Media *media.Service

	Perf          *perf.RequestPerf
	PerfCollector *perf.PerfCollector

	trustProxy bool
	ctx        context.Context
}

// RequestContext is a context.Context, so it can be handed straight to the
// media service.
var _ context.Context = &RequestContext{}

func (c *RequestContext) Deadline() (time.Time, bool) {
	return c.ctx.Deadline()
}

func (c *RequestContext) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *RequestContext) Err() error {
	return c.ctx.Err()
}

func (c *RequestContext) Value(key any) any {
	return c.ctx.Value(key)
}

func (c *RequestContext) setContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *RequestContext) FullUrl() string {
	scheme := "http://"
	if proto := c.Req.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto + "://"
	} else if c.Req.TLS != nil {
		scheme = "https://"
	}
	return scheme + c.Req.Host + c.Req.URL.String()
}

// The connection's remote address, or the first X-Forwarded-For entry when the
// router trusts a proxy in front of it.
func (c *RequestContext) GetIP() *netip.Addr {
	if forwarded := c.Req.Header.Get("X-Forwarded-For"); c.trustProxy && forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return &addr
		}
	}

	if addrPort, err := netip.ParseAddrPort(c.Req.RemoteAddr); err == nil {
		addr := addrPort.Addr().Unmap()
		return &addr
	}
	if addr, err := netip.ParseAddr(c.Req.RemoteAddr); err == nil {
		return &addr
	}
	return nil
}

// Renders {"success": false, "error": msg}. The message is the first
// SafeError's, otherwise the status text; other errors are only logged.
func (c *RequestContext) ErrorResponse(status int, errs ...error) ResponseData {
	res := ResponseData{
		StatusCode: status,
		Errors:     errs,
	}

	msg := http.StatusText(status)
	for _, err := range errs {
		var safe *SafeError
		if errors.As(err, &safe) {
			msg = safe.Msg
			break
		}
	}
	res.WriteJson(errorBody{Success: false, Error: msg}, c.Perf)
	return res
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ResponseData struct {
	StatusCode int
	Body       *bytes.Buffer
	Errors     []error

	header http.Header

	hijacked bool
}

var _ http.ResponseWriter = &ResponseData{}

func (rd *ResponseData) Header() http.Header {
	if rd.header == nil {
		rd.header = make(http.Header)
	}
	return rd.header
}

func (rd *ResponseData) Write(p []byte) (n int, err error) {
	if rd.Body == nil {
		rd.Body = new(bytes.Buffer)
	}
	return rd.Body.Write(p)
}

func (rd *ResponseData) WriteHeader(status int) {
	rd.StatusCode = status
}

func (rd *ResponseData) WriteJson(data any, rp *perf.RequestPerf) {
	rp.StartBlock("JSON", "Encode response")
	defer rp.EndBlock()

	dataJson, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	rd.Header().Set("Content-Type", "application/json")
	rd.Write(dataJson)
}

func doRequest(rw http.ResponseWriter, c *RequestContext, h Handler) {
	defer func() {
		// Last resort. Middleware should have turned the panic into a JSON
		// error already.
		if recovered := recover(); recovered != nil {
			rw.WriteHeader(http.StatusInternalServerError)
			logging.LogPanicValue(c.Logger, recovered, "request panicked and was not handled")
			rw.Write([]byte("There was a problem handling your request."))
		}
	}()

	res := h(c)
	if res.hijacked {
		return
	}
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}

	// Content-Type and Content-Length are set here rather than left to
	// http.ResponseWriter so HEAD responses carry them too.
	var body io.Reader
	if res.Body != nil {
		bodyLen := res.Body.Len()
		body = res.Body
		if res.Header().Get("Content-Type") == "" {
			preamble := res.Body.Next(512)
			rw.Header().Set("Content-Type", http.DetectContentType(preamble))
			body = io.MultiReader(bytes.NewReader(preamble), res.Body)
		}
		if res.Header().Get("Content-Length") == "" {
			rw.Header().Set("Content-Length", strconv.Itoa(bodyLen))
		}
	}
	if c.Req.Method == http.MethodHead {
		body = nil
	}

	for name, vals := range res.Header() {
		for _, val := range vals {
			rw.Header().Add(name, val)
		}
	}
	rw.WriteHeader(res.StatusCode)

	if body != nil {
		if _, err := io.Copy(rw, body); err != nil {
			if errors.Is(err, syscall.EPIPE) {
				// The client hung up
				c.Logger.Debug().Msg("broken pipe")
			} else {
				c.Logger.Error().Err(err).Msg("failed to write response body")
			}
		}
	}
}
