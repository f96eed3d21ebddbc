package website

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
)

// Multipart bodies beyond this are spooled to disk by net/http.
const multipartMemory = 32 << 20

type uploadResponse struct {
	Success      bool   `json:"success"`
	ID           int    `json:"id"`
	OriginalURL  string `json:"original_url"`
	WebURL       string `json:"web_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type assetJSON struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	DisplayTitle string    `json:"display_title"`
	StorageType  string    `json:"storage_type"`
	Folder       string    `json:"folder"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Format       string    `json:"format"`
	FileSize     int       `json:"file_size"`
	LocalPath    string    `json:"local_path,omitempty"`
	RemoteID     string    `json:"remote_id,omitempty"`
	URL          string    `json:"url"`
	WebURL       string    `json:"web_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAssetJSON(svc *media.Service, a *models.MediaAsset) assetJSON {
	urls := svc.URLs(a)
	res := assetJSON{
		ID:           a.ID,
		Title:        a.Title,
		DisplayTitle: a.DisplayTitle(),
		StorageType:  string(a.StorageType),
		Folder:       a.Folder,
		Width:        a.Width,
		Height:       a.Height,
		Format:       a.Format,
		FileSize:     a.FileSize,
		URL:          urls.Display,
		WebURL:       urls.Web,
		ThumbnailURL: urls.Thumbnail,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Local != nil {
		res.LocalPath = a.Local.Path
	}
	if a.Remote != nil {
		res.RemoteID = a.Remote.ID
	}
	return res
}

type assetResponse struct {
	Success bool      `json:"success"`
	Asset   assetJSON `json:"asset"`
}

type galleryResponse struct {
	Success  bool        `json:"success"`
	Assets   []assetJSON `json:"assets"`
	Search   string      `json:"search"`
	Page     int         `json:"page"`
	NumPages int         `json:"num_pages"`
	Total    int         `json:"total"`
}

// "cloudinary" is accepted for clients of the old dashboard.
func parseStorageType(raw string) (models.StorageType, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return models.StorageLocal, true
	case "cloudinary":
		return models.StorageRemote, true
	}
	return models.ParseStorageType(raw)
}

func APIUploadMedia(maxUploadBytes int) Handler {
	return func(c *RequestContext) ResponseData {
		if maxUploadBytes > 0 {
			// Leave room for the multipart envelope and the other fields.
			c.Req.Body = http.MaxBytesReader(c.Res, c.Req.Body, int64(maxUploadBytes)+multipartMemory)
		}

		c.Perf.StartBlock("HTTP", "Parse multipart form")
		err := c.Req.ParseMultipartForm(multipartMemory)
		c.Perf.EndBlock()
		if err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return c.ErrorResponse(http.StatusRequestEntityTooLarge, NewSafeError(err, "upload is too large"))
			}
			return c.ErrorResponse(http.StatusBadRequest, NewSafeError(err, "could not parse upload form"))
		}

		file, header, err := c.Req.FormFile("image")
		if err != nil {
			res := c.ErrorResponse(http.StatusBadRequest, NewSafeError(err, "No image file provided"))
			res.Errors = nil
			return res
		}
		defer file.Close()

		storageType, ok := parseStorageType(c.Req.FormValue("storage_type"))
		if !ok {
			res := c.ErrorResponse(http.StatusBadRequest, NewSafeError(nil, "unknown storage type %q", c.Req.FormValue("storage_type")))
			res.Errors = nil
			return res
		}

		asset, err := c.Media.Ingest(c, media.Upload{
			Filename: header.Filename,
			Size:     header.Size,
			Body:     file,
		}, c.Req.FormValue("folder"), storageType, c.Req.FormValue("title"))
		if err != nil {
			return mediaErrorResponse(c, err)
		}

		urls := c.Media.URLs(asset)
		var res ResponseData
		res.WriteJson(uploadResponse{
			Success:      true,
			ID:           asset.ID,
			OriginalURL:  urls.Display,
			WebURL:       urls.Web,
			ThumbnailURL: urls.Thumbnail,
		}, c.Perf)
		return res
	}
}

func APIListMedia(c *RequestContext) ResponseData {
	query := c.Req.URL.Query()
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil {
		page = 1
	}

	gallery, err := c.Media.List(c, query.Get("search"), page)
	if err != nil {
		return mediaErrorResponse(c, err)
	}

	res := galleryResponse{
		Success:  true,
		Assets:   make([]assetJSON, 0, len(gallery.Assets)),
		Search:   gallery.Search,
		Page:     gallery.Page,
		NumPages: gallery.NumPages,
		Total:    gallery.Total,
	}
	for _, a := range gallery.Assets {
		res.Assets = append(res.Assets, toAssetJSON(c.Media, a))
	}

	var rd ResponseData
	rd.WriteJson(res, c.Perf)
	return rd
}

func APIGetMedia(c *RequestContext) ResponseData {
	id, ok := assetIDParam(c)
	if !ok {
		return FourOhFour(c)
	}

	asset, err := c.Media.Get(c, id)
	if err != nil {
		return mediaErrorResponse(c, err)
	}

	var res ResponseData
	res.WriteJson(assetResponse{Success: true, Asset: toAssetJSON(c.Media, asset)}, c.Perf)
	return res
}

func APIEditMedia(c *RequestContext) ResponseData {
	id, ok := assetIDParam(c)
	if !ok {
		return FourOhFour(c)
	}

	if err := c.Req.ParseForm(); err != nil {
		return c.ErrorResponse(http.StatusBadRequest, NewSafeError(err, "could not parse form"))
	}

	asset, err := c.Media.UpdateDetails(c, id, c.Req.PostForm.Get("title"), c.Req.PostForm.Get("folder"))
	if err != nil {
		return mediaErrorResponse(c, err)
	}

	var res ResponseData
	res.WriteJson(assetResponse{Success: true, Asset: toAssetJSON(c.Media, asset)}, c.Perf)
	return res
}

func APIDeleteMedia(c *RequestContext) ResponseData {
	id, ok := assetIDParam(c)
	if !ok {
		return FourOhFour(c)
	}

	if err := c.Media.DeleteByID(c, id); err != nil {
		return mediaErrorResponse(c, err)
	}

	var res ResponseData
	res.WriteJson(struct {
		Success bool `json:"success"`
	}{Success: true}, c.Perf)
	return res
}

func assetIDParam(c *RequestContext) (int, bool) {
	id, err := strconv.Atoi(c.PathParams["id"])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
