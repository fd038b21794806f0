package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-groupchat/internal/audit"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange"
	"github.com/weiawesome/wes-io-groupchat/internal/profile"
	"github.com/weiawesome/wes-io-groupchat/internal/service"
	"github.com/weiawesome/wes-io-groupchat/internal/session"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/middleware"
	"github.com/weiawesome/wes-io-groupchat/pkg/response"
)

const appName = "groupchat"

// Handler serves the page and group routes. Pages return their view data as
// JSON; rendering happens elsewhere.
type Handler struct {
	accounts  service.AccountService
	groups    service.GroupService
	profiles  *profile.Service
	sessions  *session.Manager
	sessionMW *middleware.SessionMiddleware
}

func NewHandler(
	accounts service.AccountService,
	groups service.GroupService,
	profiles *profile.Service,
	sessions *session.Manager,
	sessionMW *middleware.SessionMiddleware,
) *Handler {
	return &Handler{
		accounts:  accounts,
		groups:    groups,
		profiles:  profiles,
		sessions:  sessions,
		sessionMW: sessionMW,
	}
}

// RegisterRoutes registers all routes. The session middleware's Resolve must
// already be installed on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/", h.Index)

	r.GET("/signin", h.SigninPage)
	r.POST("/signin", h.Signin)
	r.GET("/signup", h.SignupPage)
	r.POST("/signup", h.Signup)
	r.GET("/signout", h.Signout)

	r.GET("/available_groups", h.AvailableGroups)
	r.POST("/available_groups", h.CreateGroup)
	r.POST("/select_group", h.SelectGroup)
	r.POST("/delete_group", h.DeleteGroup)
	r.GET("/chat/:group_name", h.Chat)
	r.GET("/proceed", h.Proceed)

	r.GET("/profile_images/:file", h.ProfileImage)

	// Profile routes act on the caller's own account.
	account := r.Group("/")
	account.Use(h.sessionMW.RequireSession("/signin"), h.requireAccount("/signin"))
	{
		account.GET("/profile", h.Profile)
		account.POST("/upload_profile_image", h.UploadProfileImage)
		account.GET("/delete_profile", h.DeleteProfile)
	}
}

// requireAccount ends sessions whose user no longer exists. Revocation is held
// in memory, so a token issued before a restart can outlive its account.
func (h *Handler) requireAccount(redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username := currentUser(c)

		ok, err := h.accounts.Exists(ctx, username)
		if err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to look up session user")
			response.InternalError(c, "failed to look up account")
			c.Abort()
			return
		}
		if ok {
			c.Next()
			return
		}

		h.sessions.RevokeUser(username)
		h.sessions.Clear(c)
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in required"})
			return
		}
		redirect(c, redirectTo)
		c.Abort()
	}
}

type credentialsRequest struct {
	Username       string `form:"username" json:"username"`
	Password       string `form:"password" json:"password"`
	RetypePassword string `form:"retype_password" json:"retype_password"`
}

type groupRequest struct {
	GroupName string `form:"group_name" json:"group_name"`
}

func currentUser(c *gin.Context) string {
	if username := middleware.GetUsername(c); username != "" {
		return username
	}
	return domain.GuestUsername
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") || c.ContentType() == "application/json"
}

func redirect(c *gin.Context, to string) {
	c.Redirect(http.StatusSeeOther, to)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Index(c *gin.Context) {
	response.Success(c, gin.H{
		"app":      appName,
		"username": currentUser(c),
	})
}

func (h *Handler) SigninPage(c *gin.Context) {
	response.Success(c, gin.H{"flashes": consumeFlashes(c)})
}

func (h *Handler) SignupPage(c *gin.Context) {
	response.Success(c, gin.H{"flashes": consumeFlashes(c)})
}

// Signin checks the credentials and starts a session.
func (h *Handler) Signin(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.Signin(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			if wantsJSON(c) {
				response.Unauthorized(c, "invalid username or password")
				return
			}
			addFlash(c, FlashError, "Invalid username or password.")
			redirect(c, "/signin")
			return
		}
		l.Error().Err(err).Msg("signin failed")
		response.InternalError(c, "failed to sign in")
		return
	}

	if err := h.sessions.Issue(c, user.Username); err != nil {
		l.Error().Err(err).Msg("failed to issue session")
		response.InternalError(c, "failed to sign in")
		return
	}

	if wantsJSON(c) {
		response.Success(c, gin.H{"username": user.Username})
		return
	}
	redirect(c, "/available_groups")
}

func (h *Handler) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.accounts.Signup(ctx, req.Username, req.Password, req.RetypePassword)
	if err != nil {
		var msg string
		switch {
		case errors.Is(err, service.ErrPasswordMismatch):
			msg = "Passwords do not match."
		case errors.Is(err, service.ErrPasswordRequired):
			msg = "Password is required."
		case errors.Is(err, service.ErrPasswordTooLong):
			msg = fmt.Sprintf("Password must be at most %d bytes.", service.MaxPasswordBytes)
		case errors.Is(err, service.ErrInvalidUsername):
			msg = "Username may only contain letters, digits and . _ @ -"
		case errors.Is(err, service.ErrUsernameTaken):
			msg = "Username is already registered."
		default:
			l.Error().Err(err).Msg("signup failed")
			response.InternalError(c, "failed to sign up")
			return
		}

		if wantsJSON(c) {
			response.BadRequest(c, msg)
			return
		}
		addFlash(c, FlashError, msg)
		redirect(c, "/signup")
		return
	}

	if wantsJSON(c) {
		response.Success(c, gin.H{"username": req.Username})
		return
	}
	addFlash(c, FlashSuccess, "Signup successful. Please sign in.")
	redirect(c, "/signin")
}

func (h *Handler) Signout(c *gin.Context) {
	username := currentUser(c)
	h.sessions.Revoke(c)
	audit.Log(c.Request.Context(), audit.ActionSignout, username, "user signed out")
	redirect(c, "/signin")
}

func (h *Handler) AvailableGroups(c *gin.Context) {
	ctx := c.Request.Context()
	username := currentUser(c)

	groups, err := h.groups.List(ctx)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list groups")
		response.InternalError(c, "failed to list groups")
		return
	}

	response.Success(c, gin.H{
		"username":      username,
		"groups":        groups,
		"profile_image": h.profiles.AvatarURL(ctx, username),
		"flashes":       consumeFlashes(c),
	})
}

func (h *Handler) CreateGroup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req groupRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.groups.Create(ctx, currentUser(c), req.GroupName)
	switch {
	case err == nil:
		if wantsJSON(c) {
			response.Success(c, domain.Group{Name: req.GroupName})
			return
		}
		redirect(c, "/available_groups")

	case errors.Is(err, service.ErrInvalidGroupName), errors.Is(err, service.ErrGroupExists):
		if wantsJSON(c) {
			response.BadRequest(c, err.Error())
			return
		}
		addFlash(c, FlashError, err.Error())
		redirect(c, "/available_groups")

	case errors.Is(err, exchange.ErrBrokerUnavailable):
		l.Error().Err(err).Str(log.FieldGroup, req.GroupName).Msg("broker unavailable, group not created")
		response.BadGateway(c, "message broker unavailable")

	default:
		l.Error().Err(err).Str(log.FieldGroup, req.GroupName).Msg("failed to create group")
		response.InternalError(c, "failed to create group")
	}
}

func (h *Handler) SelectGroup(c *gin.Context) {
	ctx := c.Request.Context()

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Status(c, false, "group_name is required")
		return
	}

	exists, err := h.groups.Exists(ctx, req.GroupName)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to look up group")
		response.InternalError(c, "failed to look up group")
		return
	}
	if !exists {
		response.Status(c, false, service.ErrGroupNotFound.Error())
		return
	}
	response.Status(c, true, "")
}

func (h *Handler) DeleteGroup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Status(c, false, "group_name is required")
		return
	}

	err := h.groups.Delete(ctx, currentUser(c), req.GroupName)
	switch {
	case err == nil:
		response.Status(c, true, "")
	case errors.Is(err, service.ErrGroupNotFound):
		response.Status(c, false, err.Error())
	case errors.Is(err, exchange.ErrBrokerUnavailable):
		l.Error().Err(err).Str(log.FieldGroup, req.GroupName).Msg("broker unavailable, group kept")
		response.BadGateway(c, "message broker unavailable")
	default:
		l.Error().Err(err).Str(log.FieldGroup, req.GroupName).Msg("failed to delete group")
		response.InternalError(c, "failed to delete group")
	}
}

func (h *Handler) Chat(c *gin.Context) {
	response.Success(c, gin.H{
		"group_name": c.Param("group_name"),
		"username":   currentUser(c),
	})
}

// Proceed is the plain landing view shown after a group is chosen.
func (h *Handler) Proceed(c *gin.Context) {
	response.Success(c, gin.H{
		"username": currentUser(c),
		"message":  "Welcome to the selected group chat!",
	})
}

func (h *Handler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	username := currentUser(c)
	response.Success(c, gin.H{
		"username":      username,
		"profile_image": h.profiles.AvatarURL(ctx, username),
		"flashes":       consumeFlashes(c),
	})
}

func (h *Handler) ProfileImage(c *gin.Context) {
	data, err := h.profiles.OpenFile(c.Request.Context(), c.Param("file"))
	if err != nil {
		if !errors.Is(err, profile.ErrAvatarNotFound) {
			l := log.Ctx(c.Request.Context())
			l.Error().Err(err).Msg("failed to read avatar")
		}
		response.NotFound(c, "image not found")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) UploadProfileImage(c *gin.Context) {
	ctx := c.Request.Context()
	username := currentUser(c)

	header, err := c.FormFile("profile_image")
	if err != nil {
		response.BadRequest(c, "profile_image file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		response.BadRequest(c, "unreadable upload")
		return
	}
	defer file.Close()

	if err := h.profiles.SetAvatar(ctx, username, file); err != nil {
		if errors.Is(err, profile.ErrInvalidAvatar) || errors.Is(err, profile.ErrAvatarTooLarge) {
			response.BadRequest(c, err.Error())
			return
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to store avatar")
		response.InternalError(c, "failed to store avatar")
		return
	}

	if wantsJSON(c) {
		response.Success(c, gin.H{"profile_image": h.profiles.AvatarURL(ctx, username)})
		return
	}
	redirect(c, "/available_groups")
}

// DeleteProfile removes the account and avatar and ends every session of the
// user.
func (h *Handler) DeleteProfile(c *gin.Context) {
	ctx := c.Request.Context()
	username := currentUser(c)

	if err := h.accounts.DeleteAccount(ctx, username); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to delete profile")
		response.InternalError(c, "failed to delete profile")
		return
	}

	h.sessions.RevokeUser(username)
	h.sessions.Clear(c)
	addFlash(c, FlashSuccess, "Profile deleted.")
	redirect(c, "/signup")
}
