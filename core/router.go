package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter constructs the Gin engine with routes wired. The only routes
// outside the authentication gate are the health check, registration, and
// login; every other route runs behind RequireAuth.
func NewRouter(cfg Config, codec *TokenCodec, authService *AuthService, todoService *TodoService, limiter *LoginRateLimiter, status *StatusCollector) *gin.Engine {
	r := gin.Default()

	r.Use(CORSMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"detail": status.Collect(c.Request.Context()),
		})
	})

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", RateLimitMiddleware(limiter, "register"), func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			u, err := authService.Register(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusCreated, userResponse(u))
		})

		auth.POST("/login", RateLimitMiddleware(limiter, "login"), func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			u, err := authService.Login(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondServiceError(c, err)
				return
			}

			// Token concerns stay at this boundary: the service verifies
			// credentials, the codec mints the proof.
			token, err := codec.Issue(u.Username, time.Now())
			if err != nil {
				log.Printf("token issue failed for %s: %v", u.Username, err)
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "unexpected error")
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"token":      token,
				"expires_in": int64(codec.TTL().Seconds()),
				"user":       userResponse(u),
			})
		})
	}

	protected := api.Group("", RequireAuth(codec, authService))

	protected.GET("/auth/me", func(c *gin.Context) {
		identity, ok := CurrentUser(c)
		if !ok {
			rejectUnauthenticated(c, "no identity attached")
			return
		}
		u, err := authService.CurrentIdentity(c.Request.Context(), identity.Username)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, userResponse(u))
	})

	protected.PUT("/auth/password", func(c *gin.Context) {
		identity, ok := CurrentUser(c)
		if !ok {
			rejectUnauthenticated(c, "no identity attached")
			return
		}
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		if err := authService.ChangePassword(c.Request.Context(), identity.Username, req.OldPassword, req.NewPassword); err != nil {
			respondServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	todos := protected.Group("/todos")
	{
		todos.POST("", func(c *gin.Context) {
			identity, ok := CurrentUser(c)
			if !ok {
				rejectUnauthenticated(c, "no identity attached")
				return
			}
			var req struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Priority    string `json:"priority"`
				DueDate     string `json:"due_date"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			due, err := parseDueDate(req.DueDate)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "due_date must be YYYY-MM-DD")
				return
			}

			t, err := todoService.Create(c.Request.Context(), identity.UserID, TodoCreateInput{
				Title:       req.Title,
				Description: strings.TrimSpace(req.Description),
				Priority:    req.Priority,
				DueDate:     due,
			})
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusCreated, t)
		})

		todos.GET("", func(c *gin.Context) {
			identity, ok := CurrentUser(c)
			if !ok {
				rejectUnauthenticated(c, "no identity attached")
				return
			}
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			status := c.DefaultQuery("status", StatusAll)

			items, total, err := todoService.List(c.Request.Context(), identity.UserID, status, c.Query("search"), page, perPage)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		todos.GET("/overdue", func(c *gin.Context) {
			identity, ok := CurrentUser(c)
			if !ok {
				rejectUnauthenticated(c, "no identity attached")
				return
			}
			items, err := todoService.Overdue(c.Request.Context(), identity.UserID, time.Now())
			if err != nil {
				respondServiceError(c, err)
				return
			}
			if items == nil {
				items = []TodoRecord{}
			}
			c.JSON(http.StatusOK, gin.H{"items": items})
		})

		todos.GET("/stats", func(c *gin.Context) {
			identity, ok := CurrentUser(c)
			if !ok {
				rejectUnauthenticated(c, "no identity attached")
				return
			}
			total, completed, incomplete, err := todoService.Stats(c.Request.Context(), identity.UserID)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"total":      total,
				"completed":  completed,
				"incomplete": incomplete,
			})
		})

		todos.GET("/:id", func(c *gin.Context) {
			identity, id, ok := todoRequest(c)
			if !ok {
				return
			}
			t, err := todoService.Get(c.Request.Context(), id, identity.UserID)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, t)
		})

		todos.PUT("/:id", func(c *gin.Context) {
			identity, id, ok := todoRequest(c)
			if !ok {
				return
			}
			var req struct {
				Title       *string `json:"title"`
				Description *string `json:"description"`
				Completed   *bool   `json:"completed"`
				Priority    *string `json:"priority"`
				DueDate     *string `json:"due_date"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			in := TodoUpdateInput{
				Title:       req.Title,
				Description: req.Description,
				Completed:   req.Completed,
				Priority:    req.Priority,
			}
			if req.DueDate != nil {
				due, err := parseDueDate(*req.DueDate)
				if err != nil || due == nil {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "due_date must be YYYY-MM-DD")
					return
				}
				in.DueDate = due
			}

			t, err := todoService.Update(c.Request.Context(), id, identity.UserID, in)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, t)
		})

		todos.DELETE("/:id", func(c *gin.Context) {
			identity, id, ok := todoRequest(c)
			if !ok {
				return
			}
			if err := todoService.Delete(c.Request.Context(), id, identity.UserID); err != nil {
				respondServiceError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		todos.POST("/:id/toggle", func(c *gin.Context) {
			identity, id, ok := todoRequest(c)
			if !ok {
				return
			}
			t, err := todoService.Toggle(c.Request.Context(), id, identity.UserID)
			if err != nil {
				respondServiceError(c, err)
				return
			}
			c.JSON(http.StatusOK, t)
		})
	}

	return r
}

// userResponse projects a credential record for the wire. The password hash
// is deliberately absent.
func userResponse(u *UserRecord) gin.H {
	return gin.H{
		"id":         u.ID,
		"username":   u.Username,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

// todoRequest pulls the caller identity and the :id path parameter, replying
// with the appropriate error when either is unusable.
func todoRequest(c *gin.Context) (Identity, int64, bool) {
	identity, ok := CurrentUser(c)
	if !ok {
		rejectUnauthenticated(c, "no identity attached")
		return Identity{}, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return Identity{}, 0, false
	}
	return identity, id, true
}

func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
