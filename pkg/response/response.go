package response

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gin-gonic/gin/render"

	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

// AuthChallenge is sent in WWW-Authenticate on 401 responses.
var AuthChallenge = "X-Admin-Token"

// ErrorBody is the JSON error contract. Detail mirrors Error.Message for
// clients that only read a flat string.
type ErrorBody struct {
	Detail string           `json:"detail"`
	Error  *appErrors.Error `json:"error"`
}

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<title>{{.Status}} {{.StatusText}}</title>
</head>
<body>
<main>
<h1>{{.Status}} {{.StatusText}}</h1>
<p>{{.Message}}</p>
{{- with .Sheet}}
<p>工作表：{{.}}</p>
{{- end}}
{{- if .Missing}}
<ul>{{range .Missing}}<li>{{.}}</li>{{end}}</ul>
{{- end}}
</main>
</body>
</html>
`))

// JSON sends a payload as-is with caching disabled.
func JSON(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, data)
}

// Error renders err as JSON or as an HTML page depending on the Accept header.
// Server-side failures are reduced to a generic message.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	public := appErr.Public()

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	if public.Status == http.StatusUnauthorized && AuthChallenge != "" {
		c.Header("WWW-Authenticate", AuthChallenge)
	}

	switch c.NegotiateFormat(binding.MIMEJSON, binding.MIMEHTML) {
	case binding.MIMEHTML:
		c.Render(public.Status, render.HTML{
			Template: errorPage,
			Name:     "error",
			Data: gin.H{
				"Status":     public.Status,
				"StatusText": http.StatusText(public.Status),
				"Message":    public.Message,
				"Sheet":      public.Details["sheet"],
				"Missing":    public.Details["missing"],
			},
		})
	default:
		c.JSON(public.Status, ErrorBody{Detail: public.Message, Error: public})
	}
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
