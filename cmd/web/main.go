package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/internal/attendance"
	"checkin/internal/auth"
	"checkin/internal/authn"
	"checkin/internal/cache"
	"checkin/internal/challenge"
	"checkin/internal/config"
	"checkin/internal/directory"
	"checkin/internal/httpmiddleware"
	"checkin/internal/model"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	kv, err := cache.Open(cfg)
	if err != nil {
		return err
	}
	store := cache.NewStore(kv)

	dir := directory.New(cfg.DirectoryBaseURL)
	accounts := authn.New(dir, store)
	recorder := attendance.NewRecorder(dir, store)
	challenges := challenge.NewGenerator()

	// Active challenge per username; regenerated on login, on page load and
	// after every registration attempt.
	var chalMu sync.Mutex
	active := make(map[string]challenge.Challenge)
	setChallenge := func(username string, ch challenge.Challenge) {
		chalMu.Lock()
		defer chalMu.Unlock()
		active[username] = ch
	}
	takeChallenge := func(username string) (challenge.Challenge, bool) {
		chalMu.Lock()
		defer chalMu.Unlock()
		ch, ok := active[username]
		delete(active, username)
		return ch, ok
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		healthy := true
		if rkv, ok := kv.(*cache.RedisKV); ok {
			healthy = rkv.Healthy(c.Request.Context())
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "cache": healthy})
	})

	// Landing route: where you go depends on whether a session is persisted.
	r.GET("/", func(c *gin.Context) {
		sess, err := accounts.Current(c.Request.Context())
		if err != nil {
			log.Printf("session load failed: %v", err)
		}
		if sess != nil {
			c.Redirect(http.StatusFound, "/attendance")
			return
		}
		c.Redirect(http.StatusFound, "/login")
	})
	r.GET("/login", func(c *gin.Context) { c.File("web/login.html") })
	r.GET("/attendance", func(c *gin.Context) { c.File("web/attendance.html") })
	r.Static("/static", "web/static")

	limiter := httpmiddleware.NewLoginLimiter(cfg.RateLimitPerMin)

	r.POST("/v1/login", limiter.GinMiddleware(), func(c *gin.Context) {
		var req struct {
			Username   string `json:"username"`
			Credential string `json:"credential"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide username and credential"})
			return
		}

		sess, err := accounts.Login(c.Request.Context(), req.Username, req.Credential)
		switch {
		case err == nil:
		case errors.Is(err, authn.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, authn.ErrInvalidLogin), errors.Is(err, authn.ErrBadLocalRecord):
			c.JSON(http.StatusUnauthorized, gin.H{"error": authn.ErrInvalidLogin.Error()})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}

		ch, err := challenges.New(sess.ID)
		if err != nil {
			// An ID that cannot host a challenge cannot check in; fail the
			// login outright rather than leaving a half-usable session.
			_ = accounts.Logout(c.Request.Context())
			c.JSON(http.StatusUnauthorized, gin.H{"error": authn.ErrInvalidLogin.Error()})
			return
		}
		setChallenge(sess.Username, ch)

		token, _, err := auth.Issue(sess.Username, sess.Source, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.SessionTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.SetCookie(auth.CookieName, token, int(cfg.SessionTTL.Seconds()), "/", "", false, true)

		c.JSON(http.StatusOK, gin.H{"session": sess, "challenge": ch})
	})

	r.POST("/v1/logout", func(c *gin.Context) {
		if err := accounts.Logout(c.Request.Context()); err != nil {
			log.Printf("session clear failed: %v", err)
		}
		c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"status": "logged out"})
	})

	authed := r.Group("/v1", auth.SessionAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authed.GET("/session", func(c *gin.Context) {
		sess := currentSession(c, accounts)
		if sess == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	})

	authed.GET("/challenge", func(c *gin.Context) {
		sess := currentSession(c, accounts)
		if sess == nil {
			return
		}
		ch, err := challenges.New(sess.ID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authn.ErrInvalidLogin.Error()})
			return
		}
		setChallenge(sess.Username, ch)
		c.JSON(http.StatusOK, gin.H{"challenge": ch})
	})

	authed.POST("/attendance", func(c *gin.Context) {
		var req struct {
			Guess1 string `json:"guess1"`
			Guess2 string `json:"guess2"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide both digits"})
			return
		}
		sess := currentSession(c, accounts)
		if sess == nil {
			return
		}

		ch, ok := takeChallenge(sess.Username)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no active challenge, reload the page"})
			return
		}

		history, err := recorder.Register(c.Request.Context(), *sess, ch, req.Guess1, req.Guess2)

		// A fresh challenge for the next attempt, pass or fail.
		next, cerr := challenges.New(sess.ID)
		if cerr == nil {
			setChallenge(sess.Username, next)
		}

		var dirErr *directory.Error
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{
				"status":    "registered",
				"display":   sess.DisplayName,
				"history":   history,
				"challenge": next,
			})
		case errors.Is(err, attendance.ErrRegistrationInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrNoRecord):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrChallengeMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.As(err, &dirErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": dirErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	})

	authed.GET("/history", func(c *gin.Context) {
		sess := currentSession(c, accounts)
		if sess == nil {
			return
		}
		remote, err := recorder.History(c.Request.Context(), *sess)
		if err != nil {
			var dirErr *directory.Error
			if errors.As(err, &dirErr) {
				log.Printf("remote history unavailable: %v", dirErr)
				remote = nil
			} else if errors.Is(err, attendance.ErrNoRecord) {
				remote = nil
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		local, err := store.Attendance(c.Request.Context(), sess.Username)
		if err != nil {
			log.Printf("local attendance read failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"history": remote, "local": local})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// currentSession loads the persisted session and checks it against the cookie
// claims. Writes the error response and returns nil when there is no usable
// session.
func currentSession(c *gin.Context, accounts *authn.Authenticator) *model.Session {
	sess, err := accounts.Current(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session load failed"})
		return nil
	}
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return nil
	}
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	if claims.Username != "" && claims.Username != sess.Username {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session mismatch"})
		return nil
	}
	return sess
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
