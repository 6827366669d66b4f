package handler

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"

	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

// HeaderInertia marks client side page visits, which want the page object
// as JSON instead of the HTML shell
const HeaderInertia = "X-Inertia"

// Page is the component name and props handed to the front end
type Page struct {
	Component string                 `json:"component"`
	Props     map[string]interface{} `json:"props"`
	URL       string                 `json:"url"`
}

var shell = template.Must(template.New("app").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Component}}</title></head>
<body><div id="app" data-page="{{.JSON}}"></div></body>
</html>
`))

// RenderPage answers a browser page request. The first visit gets the HTML
// shell with the page embedded, later visits get the page object.
func RenderPage(c *gin.Context, component string, props map[string]interface{}) {
	if props == nil {
		props = map[string]interface{}{}
	}
	if flash := httputil.TakeFlash(c); flash != "" {
		props["flash"] = gin.H{"error": flash}
	}
	page := Page{Component: component, Props: props, URL: c.Request.URL.RequestURI()}

	c.Header("Vary", HeaderInertia)
	if c.GetHeader(HeaderInertia) != "" {
		c.Header(HeaderInertia, "true")
		c.JSON(http.StatusOK, page)
		return
	}

	body, err := json.Marshal(page)
	if err != nil {
		Fail(c, err)
		return
	}
	c.Render(http.StatusOK, render.HTML{
		Template: shell,
		Name:     "app",
		Data:     struct{ Component, JSON string }{component, string(body)},
	})
}
