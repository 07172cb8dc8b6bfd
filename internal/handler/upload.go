package handler

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// UploadHandler stores listing images on local disk under Dir and returns a
// URL path the listing endpoints accept as image_url.
type UploadHandler struct {
	Dir string
}

func NewUploadHandler(dir string) *UploadHandler { return &UploadHandler{Dir: dir} }

var allowedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

const maxImageBytes = 8 << 20

// Image accepts a multipart upload under the "file" field, stores it under
// a random name and returns its serving path.
func (h *UploadHandler) Image(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file required"})
	}
	if fh.Size > maxImageBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "image too large"})
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExt[ext] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported image type"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "open upload failed"})
	}
	defer src.Close()

	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storage unavailable"})
	}
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.Dir, name))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store failed"})
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, maxImageBytes)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"image_url": "/uploads/" + name})
}
