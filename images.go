package pubapi

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	_ "golang.org/x/image/webp"

	"github.com/eringen/pubapi/apperr"
)

const maxImageSize = 5 << 20

// imageFormats maps an accepted extension to the format name image.Decode
// reports for it.
var imageFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".webp": "webp",
}

var imageMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// UploadedImage describes an accepted upload. URL is a base64 data URI; the
// image is not stored anywhere.
type UploadedImage struct {
	OriginalName string `json:"originalname"`
	MIMEType     string `json:"mimetype"`
	Size         int    `json:"size"`
	URL          string `json:"url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

// inlineImage checks name, declared type and content of an upload and
// returns it as a data URI. Both the extension and the declared type must be
// an accepted image type, and the content must decode as that format.
func inlineImage(name, declaredType string, src io.Reader) (UploadedImage, error) {
	ext := strings.ToLower(filepath.Ext(name))
	format, ok := imageFormats[ext]
	if !ok {
		return UploadedImage{}, apperr.Validation("only image files are allowed (jpeg, jpg, png, gif, webp)")
	}
	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil || !imageMIMETypes[strings.ToLower(mediaType)] {
		return UploadedImage{}, apperr.Validation("only image files are allowed (jpeg, jpg, png, gif, webp)")
	}
	mediaType = strings.ToLower(mediaType)

	data, err := io.ReadAll(io.LimitReader(src, maxImageSize+1))
	if err != nil {
		return UploadedImage{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxImageSize {
		return UploadedImage{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image exceeds the 5 MiB limit")
	}

	cfg, decoded, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return UploadedImage{}, apperr.Validation("file is not a valid image")
	}
	if decoded != format {
		return UploadedImage{}, apperr.Validation("file content is %s, not %s", decoded, strings.TrimPrefix(ext, "."))
	}

	return UploadedImage{
		OriginalName: name,
		MIMEType:     mediaType,
		Size:         len(data),
		URL:          "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Width:        cfg.Width,
		Height:       cfg.Height,
	}, nil
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return apperr.Validation("no image file provided")
	}
	if file.Size > maxImageSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image exceeds the 5 MiB limit")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, err := inlineImage(file.Filename, file.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return err
	}
	return Respond(c, http.StatusOK, img)
}
