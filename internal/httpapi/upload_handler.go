package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"calorieTracker/internal/imagestore"
)

// multipartOverhead is slack for boundaries and part headers on top of the
// file size limit.
const multipartOverhead = 64 << 10

type uploadResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
	Filename string `json:"filename"`
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	limit := a.deps.MaxUploadBytes
	tooLarge := ErrBadRequest(fmt.Sprintf("File too large. Maximum size is %dMB.", limit>>20))

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge
		}
		return ErrBadRequestWrap("No file received", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		return ErrBadRequestWrap("No file received", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return ErrBadRequestWrap("No file received", err)
	}
	if int64(len(data)) > limit {
		return tooLarge
	}
	if len(data) == 0 {
		return ErrBadRequest("No file received")
	}

	contentType, ext, err := imagestore.Detect(data)
	if err != nil {
		return ErrBadRequestWrap("Invalid file type. Only images are allowed.", err)
	}

	key := imagestore.NewKey(p.UserID, ext, time.Now())
	url, err := a.deps.Images.Save(r.Context(), key, contentType, data)
	if err != nil {
		return ErrInternalWrap("save image", err)
	}
	a.deps.Log.Info(r.Context(), "image uploaded", "user_id", p.UserID, "key", key, "bytes", len(data))
	respondJSON(w, http.StatusOK, uploadResponse{Success: true, ImageURL: url, Filename: path.Base(key)})
	return nil
}
