package website

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLogContextErrors(t *testing.T) {
	err1 := errors.New("test error 1")
	err2 := errors.New("test error 2")

	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Print("sanity check")

	assert.Contains(t, buf.String(), "sanity check")

	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			func(h Handler) Handler {
				return func(c *RequestContext) (res ResponseData) {
					c.Logger = &logger
					return h(c)
				}
			},
			logContextErrorsMiddleware,
		},
	}

	routes.GET(regexp.MustCompile("^/test$"), func(c *RequestContext) ResponseData {
		return c.ErrorResponse(http.StatusInternalServerError, err1, err2)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/test")
	if assert.Nil(t, err) {
		defer res.Body.Close()

		t.Logf("Log contents: %s", buf.String())

		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

		assert.Contains(t, buf.String(), err1.Error())
		assert.Contains(t, buf.String(), err2.Error())
	}
}

func TestRouterParamsAndPrefixes(t *testing.T) {
	router := &Router{}
	routes := RouteBuilder{Router: router}

	group := routes.Group(regexp.MustCompile(`^/things/(?P<thing>\w+)`))
	group.GET(regexp.MustCompile(`^/parts/(?P<part>\d+)$`), func(c *RequestContext) ResponseData {
		var res ResponseData
		res.Write([]byte(c.PathParams["thing"] + ":" + c.PathParams["part"]))
		return res
	})
	routes.AnyMethod(RegexCatchAll, FourOhFour)

	srv := httptest.NewServer(router)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/things/widget/parts/12/")
	if assert.Nil(t, err) {
		defer res.Body.Close()
		body := new(bytes.Buffer)
		body.ReadFrom(res.Body)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "widget:12", body.String())
	}

	res, err = http.Post(srv.URL+"/things/widget/parts/12", "text/plain", nil)
	if assert.Nil(t, err) {
		defer res.Body.Close()
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	}
}

func TestRoutesMustBeAnchored(t *testing.T) {
	routes := RouteBuilder{Router: &Router{}}
	assert.Panics(t, func() {
		routes.GET(regexp.MustCompile(`/unanchored`), FourOhFour)
	})
}

func TestPanicCatcher(t *testing.T) {
	router := &Router{}
	routes := RouteBuilder{
		Router:      router,
		Middlewares: []Middleware{panicCatcherMiddleware},
	}
	routes.GET(regexp.MustCompile(`^/boom$`), func(c *RequestContext) ResponseData {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success": false, "error": "Internal Server Error"}`, rec.Body.String())
}

func TestGetIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/media", nil)
	req.RemoteAddr = "203.0.113.7:52100"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	direct := &RequestContext{Req: req}
	assert.Equal(t, "203.0.113.7", direct.GetIP().String())

	proxied := &RequestContext{Req: req, trustProxy: true}
	assert.Equal(t, "198.51.100.1", proxied.GetIP().String())

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "203.0.113.7", proxied.GetIP().String())
}
