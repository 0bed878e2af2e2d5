package handler

import (
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registered decoders for dimension probing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"userbotgo/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadMedia stores an uploaded image under a generated filename and
// records its metadata. Optional form fields: "file_type" (defaults to
// image) and "tags", a comma separated list.
func (h *Handler) UploadMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}

	fileType := c.PostForm("file_type")
	if fileType == "" {
		fileType = "image"
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	mimeType, ok := allowedImageTypes[ext]
	if !ok {
		badRequest(c, "unsupported file type, expected jpg, png, gif or webp")
		return
	}

	filename := uuid.New().String() + ext
	dst := filepath.Join(h.uploadsDir, filename)
	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		respondError(c, err)
		return
	}

	media := &models.MediaFile{
		Filename:         filename,
		OriginalFilename: fileHeader.Filename,
		FileType:         fileType,
		FileSize:         fileHeader.Size,
		MimeType:         mimeType,
		Tags:             parseTags(c.PostForm("tags")),
		UploadedAt:       time.Now(),
		IsActive:         true,
	}
	if w, ht, err := probeDimensions(dst); err == nil {
		media.Width = &w
		media.Height = &ht
	}

	if err := h.store.CreateMedia(media); err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", dst).Msg("failed to remove orphan upload")
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, media)
}

// ListMedia returns all media records, newest first.
func (h *Handler) ListMedia(c *gin.Context) {
	files, err := h.store.ListMedia()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// GetMedia returns one media record.
func (h *Handler) GetMedia(c *gin.Context) {
	file, err := h.store.GetMedia(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// DeleteMedia removes the record and the bytes on disk.
func (h *Handler) DeleteMedia(c *gin.Context) {
	file, err := h.store.GetMedia(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.store.DeleteMedia(file.ID); err != nil {
		respondError(c, err)
		return
	}
	if err := os.Remove(filepath.Join(h.uploadsDir, file.Filename)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("media_id", file.ID).Msg("failed to remove media file")
	}
	c.JSON(http.StatusOK, gin.H{"deleted": file.ID})
}

func parseTags(raw string) pq.StringArray {
	if raw == "" {
		return pq.StringArray{}
	}
	var tags pq.StringArray
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// probeDimensions reads just the image header. Formats without a registered
// decoder (webp) simply go without dimensions.
func probeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
