package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auth-api/internal/service"
)

const sessionCookieName = "token"

// CookieOptions controla los atributos de la cookie de sesión que
// dependen del ambiente de despliegue.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) sameSite() http.SameSite {
	// Con el cliente en otro origen la cookie viaja cross-site y
	// necesita SameSite=None; en desarrollo se mantiene Strict.
	if o.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteStrictMode
}

func setSessionCookie(c *gin.Context, opts CookieOptions, token string) {
	c.SetSameSite(opts.sameSite())
	c.SetCookie(sessionCookieName, token, int(service.SessionTTL.Seconds()), "/", "", opts.Secure, true)
}

func clearSessionCookie(c *gin.Context, opts CookieOptions) {
	c.SetSameSite(opts.sameSite())
	c.SetCookie(sessionCookieName, "", -1, "/", "", opts.Secure, true)
}
