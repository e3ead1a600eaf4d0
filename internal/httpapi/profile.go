package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/identity"
	"github.com/jmerrifield20/roster/internal/pictures"
	"github.com/jmerrifield20/roster/internal/profiles"
	"github.com/oapi-codegen/nullable"
	"go.uber.org/zap"
)

// profileSvc is the interface expected by ProfileHandler, satisfied by *profiles.Service.
type profileSvc interface {
	GetByID(ctx context.Context, id uuid.UUID) (*profiles.Member, error)
	List(ctx context.Context) ([]profiles.Summary, error)
	Search(ctx context.Context, query string, limit int) ([]profiles.Summary, error)
	Update(ctx context.Context, id uuid.UUID, p profiles.Patch) (*profiles.Member, error)
}

// pictureSvc is the interface expected by ProfileHandler, satisfied by *pictures.Service.
type pictureSvc interface {
	Upload(ctx context.Context, memberID uuid.UUID, r io.Reader) error
	Delete(ctx context.Context, memberID uuid.UUID) error
	Get(ctx context.Context, memberID uuid.UUID) (*pictures.Picture, error)
	MaxBytes() int64
}

// PictureFormField is the multipart field carrying an uploaded picture.
const PictureFormField = "profilePicture"

// ProfileHandler serves member profiles and pictures.
type ProfileHandler struct {
	profiles profileSvc
	pictures pictureSvc
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles profileSvc, pictures pictureSvc, sessions *identity.SessionIssuer, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, pictures: pictures, sessions: sessions, logger: logger}
}

// Register mounts the profile routes on rg.
func (h *ProfileHandler) Register(rg *gin.RouterGroup) {
	required := identity.RequireSession(h.sessions)
	optional := identity.OptionalSession(h.sessions)

	p := rg.Group("/profile")
	{
		p.GET("", required, h.List)
		p.GET("/self", required, h.Self)
		p.GET("/my-profile", required, h.Self)
		p.GET("/search", required, h.Search)
		p.PUT("/update", required, h.Update)
		p.POST("/upload-picture", required, h.UploadPicture)
		p.GET("/my-picture", required, h.MyPicture)
		p.DELETE("/picture", required, h.DeletePicture)
		p.GET("/picture/:id", optional, h.PictureByID)
		p.GET("/:id", optional, h.GetByID)
	}
}

// ─── Request types ───────────────────────────────────────────────────────────

// updateRequest is the sparse wire form of a profile update. Year is kept
// raw so that non-numeric input degrades to "no year" rather than a 400.
type updateRequest struct {
	Nickname  nullable.Nullable[string]   `json:"nickname,omitempty"`
	Year      json.RawMessage             `json:"year,omitempty"`
	Interests nullable.Nullable[[]string] `json:"interests,omitempty"`
	Bio       nullable.Nullable[string]   `json:"bio,omitempty"`
	Emojis    nullable.Nullable[[]string] `json:"emojis,omitempty"`
}

func (r updateRequest) patch() profiles.Patch {
	return profiles.Patch{
		Nickname:  r.Nickname,
		Year:      profiles.ParseYear(r.Year),
		Interests: r.Interests,
		Bio:       r.Bio,
		Emojis:    r.Emojis,
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// List handles GET /profile: the full directory roster.
func (h *ProfileHandler) List(c *gin.Context) {
	roster, err := h.profiles.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to load directory")
		return
	}
	if roster == nil {
		roster = []profiles.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"users": roster})
}

// Search handles GET /profile/search?q=&limit=.
func (h *ProfileHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	found, err := h.profiles.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, h.logger, err, "search failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": found})
}

// Self handles GET /profile/self: the signed-in member's full record.
func (h *ProfileHandler) Self(c *gin.Context) {
	id, ok := h.memberID(c)
	if !ok {
		return
	}
	m, err := h.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": m})
}

// GetByID handles GET /profile/:id. Email is only shown to the owner and
// administrators.
func (h *ProfileHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	m, err := h.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to load profile")
		return
	}

	claims := identity.SessionFromCtx(c)
	if claims == nil || (claims.MemberID != m.ID.String() && !claims.Admin) {
		m = m.Public()
	}
	c.JSON(http.StatusOK, gin.H{"user": m})
}

// Update handles PUT /profile/update: a sparse update of the caller's record.
func (h *ProfileHandler) Update(c *gin.Context) {
	id, ok := h.memberID(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	m, err := h.profiles.Update(c.Request.Context(), id, req.patch())
	if err != nil {
		respondError(c, h.logger, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": m})
}

// UploadPicture handles POST /profile/upload-picture (multipart).
func (h *ProfileHandler) UploadPicture(c *gin.Context) {
	id, ok := h.memberID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile(PictureFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, h.logger, err, "")
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no picture uploaded in field " + PictureFormField})
		return
	}
	if fh.Size > h.pictures.MaxBytes() {
		respondError(c, h.logger, pictures.ErrPayloadTooLarge, "")
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, h.logger, err, "failed to read upload")
		return
	}
	defer f.Close()

	if err := h.pictures.Upload(c.Request.Context(), id, f); err != nil {
		respondError(c, h.logger, err, "failed to store picture")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile picture uploaded successfully"})
}

// DeletePicture handles DELETE /profile/picture. Deleting when there is no
// picture succeeds.
func (h *ProfileHandler) DeletePicture(c *gin.Context) {
	id, ok := h.memberID(c)
	if !ok {
		return
	}
	if err := h.pictures.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to delete picture")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile picture deleted successfully"})
}

// MyPicture handles GET /profile/my-picture.
func (h *ProfileHandler) MyPicture(c *gin.Context) {
	id, ok := h.memberID(c)
	if !ok {
		return
	}
	h.servePicture(c, id)
}

// PictureByID handles GET /profile/picture/:id.
func (h *ProfileHandler) PictureByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "picture not found"})
		return
	}
	h.servePicture(c, id)
}

func (h *ProfileHandler) servePicture(c *gin.Context, id uuid.UUID) {
	pic, err := h.pictures.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to load picture")
		return
	}

	c.Header("Cache-Control", "private, max-age=60")
	if pic.ETag != "" {
		c.Header("ETag", pic.ETag)
		if c.GetHeader("If-None-Match") == pic.ETag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	contentType := pic.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, pic.Data)
}

// memberID returns the signed-in member's id, responding 401 when the
// session does not carry one.
func (h *ProfileHandler) memberID(c *gin.Context) (uuid.UUID, bool) {
	claims := identity.SessionFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return uuid.Nil, false
	}
	id, err := claims.ID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return uuid.Nil, false
	}
	return id, true
}
