package main

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"citesearch/config"
	"citesearch/services"
	"citesearch/session"
	"citesearch/views"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	sessionCookie  = "citesearch_session"
	rateLimitBurst = 3
	statePollMs    = 1000

	msgRateLimited    = "Too many searches. Please wait a moment and try again."
	msgSearchInFlight = "A search is already running. Please wait for it to finish."
)

func newRouter(cfg *config.Config, store *services.SessionStore, limiter *services.RateLimiter, policy session.OverlapPolicy, log *zap.Logger) (*gin.Engine, error) {
	tmpl, err := views.Templates()
	if err != nil {
		return nil, err
	}

	router := gin.Default()
	router.SetHTMLTemplate(tmpl)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	pages := &pageRenderer{cfg: cfg, policy: policy}
	setupPageRoutes(router, store, pages)
	setupSearchRoutes(router, store, limiter, pages, log)
	setupCopyRoutes(router, store, log)
	setupLegalRoutes(router)
	return router, nil
}

type pageRenderer struct {
	cfg    *config.Config
	policy session.OverlapPolicy
}

func (p *pageRenderer) render(c *gin.Context, status int, snap session.Snapshot, notice string) {
	c.HTML(status, "index.html", views.Page{
		Snapshot:      snap,
		Notice:        notice,
		GitHubURL:     p.cfg.GitHubURL,
		DisableSubmit: p.policy == session.RejectWhileLoading && snap.View == session.ViewLoading,
		CopyResetMs:   p.cfg.CopyReset.Milliseconds(),
		PollMs:        statePollMs,
	})
}

// landing ist der Zustand für Besucher ohne Session.
func landing(query string) session.Snapshot {
	return session.Snapshot{View: session.ViewLanding, Query: query}
}

// lookupSession liefert die Session zum Cookie, ohne eine neue anzulegen.
func lookupSession(c *gin.Context, store *services.SessionStore) (*session.Session, bool) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		return nil, false
	}
	return store.Get(id)
}

// ensureSession liefert die Session zum Cookie oder legt eine neue an.
func ensureSession(c *gin.Context, store *services.SessionStore) *session.Session {
	if sess, ok := lookupSession(c, store); ok {
		return sess
	}
	return createSession(c, store)
}

// createSession legt eine Session an, setzt das Cookie und löst den einmaligen Health-Check aus.
func createSession(c *gin.Context, store *services.SessionStore) *session.Session {
	if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
		store.Remove(id)
	}
	id, sess := store.Create(c.ClientIP(), c.Request.UserAgent())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
	activeSessionsGauge.Set(float64(store.Len()))
	sess.Mount()
	return sess
}

func setupPageRoutes(router *gin.Engine, store *services.SessionStore, pages *pageRenderer) {
	router.GET("/", func(c *gin.Context) {
		// Ohne Cookie wird keine Session angelegt, erst die erste Suche tut das
		sess, ok := lookupSession(c, store)
		if !ok {
			pages.render(c, http.StatusOK, landing(""), "")
			return
		}
		pages.render(c, http.StatusOK, sess.Snapshot(), "")
	})

	// Zustand für das Polling der Seite während einer laufenden Suche
	router.GET("/state", func(c *gin.Context) {
		sess, ok := lookupSession(c, store)
		if !ok {
			c.JSON(http.StatusOK, stateResponse(session.Snapshot{View: session.ViewLanding}))
			return
		}
		c.JSON(http.StatusOK, stateResponse(sess.Snapshot()))
	})
}

func stateResponse(snap session.Snapshot) gin.H {
	copied := make([]string, 0, len(snap.Copied))
	for key := range snap.Copied {
		copied = append(copied, key)
	}
	sort.Strings(copied)

	var elapsed any
	if snap.HasElapsed {
		elapsed = snap.Elapsed.Round(time.Millisecond).Seconds()
	}
	return gin.H{
		"view":            snap.View.String(),
		"loading_message": snap.LoadingMessage,
		"error":           snap.Error,
		"copied":          copied,
		"result_count":    len(snap.Citations),
		"elapsed_seconds": elapsed,
	}
}

func setupSearchRoutes(router *gin.Engine, store *services.SessionStore, limiter *services.RateLimiter, pages *pageRenderer, log *zap.Logger) {
	router.POST("/search", func(c *gin.Context) {
		text := c.PostForm("text")

		if !limiter.Allow(c.ClientIP()) {
			log.Warn("Search rate limited", zap.String("client_ip", c.ClientIP()))
			snap := landing(text)
			if sess, ok := lookupSession(c, store); ok {
				sess.SetQuery(text)
				snap = sess.Snapshot()
			}
			pages.render(c, http.StatusTooManyRequests, snap, msgRateLimited)
			return
		}

		sess := ensureSession(c, store)
		_, err := sess.Submit(text)
		if errors.Is(err, session.ErrSessionClosed) {
			// zwischen Lookup und Submit abgeräumt
			log.Info("Session closed before search, starting a new one")
			sess = createSession(c, store)
			_, err = sess.Submit(text)
		}
		if err != nil {
			switch {
			case errors.Is(err, session.ErrSearchInFlight):
				pages.render(c, http.StatusConflict, sess.Snapshot(), msgSearchInFlight)
			default:
				log.Error("Search could not be started", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "search could not be started"})
			}
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	})

	router.POST("/clear", func(c *gin.Context) {
		if sess, ok := lookupSession(c, store); ok {
			sess.Clear()
		}
		c.Redirect(http.StatusSeeOther, "/")
	})
}

func setupCopyRoutes(router *gin.Engine, store *services.SessionStore, log *zap.Logger) {
	router.POST("/copy/:index/:field", func(c *gin.Context) {
		sess, ok := lookupSession(c, store)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "citation not found"})
			return
		}
		field := c.Param("field")

		text, err := sess.CopyCitationField(index, field)
		if err != nil {
			if errors.Is(err, session.ErrNoSuchCitation) {
				c.JSON(http.StatusNotFound, gin.H{"error": "citation not found"})
				return
			}
			log.Error("Copy failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "copy failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"text": text, "key": session.CopyKey(index, field)})
	})
}

func setupLegalRoutes(router *gin.Engine) {
	router.GET("/terms", func(c *gin.Context) {
		c.HTML(http.StatusOK, "terms.html", nil)
	})
	router.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", nil)
	})
}
